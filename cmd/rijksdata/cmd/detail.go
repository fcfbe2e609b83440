package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetailCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "detail [object-number]",
		Short: "Resolve and parse a Linked Art object into full detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDetail(args[0])
		},
	}
}

func runDetail(objectNumber string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	detail, err := a.linkedArt.GetArtwork(ctx, a.objectURI(objectNumber))
	if err != nil {
		return err
	}

	fmt.Printf("%s\n", detail.Title)
	fmt.Printf("creator:   %s\n", detail.Creator)
	fmt.Printf("date:      %s\n", detail.Date)
	if detail.Description != "" {
		fmt.Printf("description: %s\n", detail.Description)
	}
	if len(detail.ObjectTypes) > 0 {
		fmt.Printf("type:      %s\n", detail.ObjectTypes[0].Label)
	}
	if len(detail.Materials) > 0 {
		names := ""
		for i, m := range detail.Materials {
			if i > 0 {
				names += ", "
			}
			names += m.Label
		}
		fmt.Printf("materials: %s\n", names)
	}
	if detail.Image != nil {
		fmt.Printf("image:     %s\n", detail.Image.ThumbnailURL)
	}
	fmt.Printf("bibliography entries: %d\n", detail.BibliographyCount)
	return nil
}
