package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newBibliographyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bibliography [object-number]",
		Short: "List normalised citations for an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBibliography(args[0])
		},
	}
}

func runBibliography(objectNumber string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	citations, err := a.linkedArt.Bibliography(ctx, a.objectURI(objectNumber))
	if err != nil {
		return err
	}

	if len(citations) == 0 {
		fmt.Println("no bibliography entries")
		return nil
	}
	for i, c := range citations {
		fmt.Printf("[%d] (%s) %s\n", i+1, c.Kind, c.Formatted)
		if c.ISBN != "" {
			fmt.Printf("    isbn: %s\n", c.ISBN)
		}
	}
	return nil
}
