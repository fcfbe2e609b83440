package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIconclassCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "iconclass",
		Short: "Browse and search the Iconclass notation hierarchy",
	}
	cmd.AddCommand(newIconclassBrowseCmd())
	cmd.AddCommand(newIconclassSearchCmd())
	return cmd
}

func newIconclassBrowseCmd() *cobra.Command {
	var lang string
	cmd := &cobra.Command{
		Use:   "browse [notation]",
		Short: "Resolve a notation into its path, children, and texts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIconclassBrowse(args[0], lang)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "language code")
	return cmd
}

func runIconclassBrowse(notation, lang string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	if a.iconclass == nil {
		return fmt.Errorf("iconclass index is not available")
	}

	entry, err := a.iconclass.Browse(ctx, notation, lang)
	if err != nil {
		return err
	}
	fmt.Printf("%s  %s\n", entry.Notation, entry.Text)
	for _, step := range entry.Path {
		fmt.Printf("  in %s  %s\n", step.Notation, step.Label)
	}
	for _, child := range entry.Children {
		fmt.Printf("  child %s  %s\n", child.Notation, child.Label)
	}
	fmt.Printf("artworks indexed under this notation: %d\n", entry.RijksCount)
	return nil
}

func newIconclassSearchCmd() *cobra.Command {
	var lang string
	var limit int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Full-text search over notation texts and keywords",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			for _, a := range args[1:] {
				query += " " + a
			}
			return runIconclassSearch(query, lang, limit)
		},
	}
	cmd.Flags().StringVar(&lang, "lang", "en", "language code")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum number of results")
	return cmd
}

func runIconclassSearch(query, lang string, limit int) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	if a.iconclass == nil {
		return fmt.Errorf("iconclass index is not available")
	}

	entries, err := a.iconclass.SearchByText(ctx, query, lang, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("no matches")
		return nil
	}
	for _, e := range entries {
		fmt.Printf("%s  %s  (%d artworks)\n", e.Notation, e.Text, e.RijksCount)
	}
	return nil
}
