package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/vocabulary"
)

func newSemanticCmd() *cobra.Command {
	var f vocabulary.Filters
	var k int

	cmd := &cobra.Command{
		Use:   "semantic [query]",
		Short: "Vector KNN search over the embeddings index",
		Long: `Semantic embeds the query and ranks artworks by cosine distance. With no
structured filters this runs pure KNN; with filters set it delegates
candidate resolution to the vocabulary index first.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := args[0]
			for _, a := range args[1:] {
				query += " " + a
			}
			return runSemantic(query, f, k)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.Subject, "subject", "", "depicted subject filter")
	flags.StringVar(&f.Type, "type", "", "object type filter")
	flags.StringVar(&f.Creator, "creator", "", "creator filter")
	flags.IntVar(&k, "k", 25, "number of hits to return")

	return cmd
}

func runSemantic(query string, f vocabulary.Filters, k int) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	if a.semantic == nil || !a.semantic.Available() {
		return fmt.Errorf("semantic search is not available")
	}

	result, err := a.semantic.Search(ctx, query, f, k)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	fmt.Printf("mode: %v\n", result.Mode)
	for _, h := range result.Hits {
		fmt.Printf("%.3f  %s  %s - %s\n", h.Similarity, h.ObjectNumber, h.Title, h.CreatorLabel)
	}
	return nil
}
