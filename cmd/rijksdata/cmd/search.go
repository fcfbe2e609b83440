package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rijksmuseum/rijksdata-retrieval/internal/vocabulary"
)

func newSearchCmd() *cobra.Command {
	var f vocabulary.Filters
	var limit int
	var imageAvailable bool
	var imageAvailableSet bool

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Structured search over the vocabulary index",
		Long: `Search runs a composite structured query against vocabulary.db: every
flag supplied becomes one AND-combined filter. At least one filter must be
set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			f.MaxResults = limit
			if imageAvailableSet {
				f.ImageAvailable = &imageAvailable
			}
			return runSearch(f)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.Title, "title", "", "title contains")
	flags.StringVar(&f.ObjectNumber, "object-number", "", "exact object number; zero matches is an error")
	flags.StringVar(&f.Creator, "creator", "", "creator name")
	flags.StringVar(&f.Type, "type", "", "object type")
	flags.StringVar(&f.Material, "material", "", "material")
	flags.StringVar(&f.Technique, "technique", "", "technique")
	flags.StringVar(&f.CreationDate, "date", "", "creation date, e.g. 1642, 164*, 16*, -5*")
	flags.StringVar(&f.Description, "description", "", "description contains")
	flags.StringVar(&f.Subject, "subject", "", "depicted subject")
	flags.StringVar(&f.DepictedPlace, "depicted-place", "", "place depicted in the work")
	flags.StringVar(&f.ProductionPlace, "production-place", "", "place of production")
	flags.StringVar(&f.Iconclass, "iconclass", "", "Iconclass notation")
	flags.StringVar(&f.License, "license", "", "rights URI contains")
	flags.StringVar(&f.Inscription, "inscription", "", "inscription text contains")
	flags.StringVar(&f.NearPlace, "near-place", "", "geospatial proximity place name")
	flags.Float64Var(&f.NearPlaceRadius, "radius-km", 25, "proximity search radius in kilometres")
	flags.IntVar(&limit, "limit", 25, "maximum number of results (1-100)")
	flags.BoolVar(&f.Compact, "compact", false, "return only the count and object numbers, skipping detail resolution")
	flags.BoolVar(&imageAvailable, "image-available", false, "filter by whether the object has an image")
	cmd.Flags().Lookup("image-available").NoOptDefVal = "true"
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		imageAvailableSet = cmd.Flags().Changed("image-available")
		return nil
	}

	return cmd
}

func runSearch(f vocabulary.Filters) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	if a.vocab == nil {
		return fmt.Errorf("vocabulary index is not available")
	}

	result, err := a.vocab.Search(ctx, f)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if result.TotalResults != nil {
		fmt.Printf("%d total matches\n", *result.TotalResults)
	}
	for _, r := range result.Results {
		line := fmt.Sprintf("%s  %s", r.ObjectNumber, r.Title)
		if r.CreatorLabel != "" {
			line += fmt.Sprintf(" - %s", r.CreatorLabel)
		}
		if r.DateLabel != "" {
			line += fmt.Sprintf(" (%s)", r.DateLabel)
		}
		if r.NearestPlace != "" && r.DistanceKM != nil {
			line += fmt.Sprintf(" [%.1f km from %s]", *r.DistanceKM, r.NearestPlace)
		}
		fmt.Println(line)
	}
	return nil
}
