package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image [object-number]",
		Short: "Resolve the IIIF image chain for an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImage(args[0])
		},
	}
}

func runImage(objectNumber string) error {
	ctx, cancel := cmdContext()
	defer cancel()

	a, err := newApp(ctx, cfgFile)
	if err != nil {
		return err
	}
	defer a.close()

	img, err := a.linkedArt.Image(ctx, a.objectURI(objectNumber))
	if err != nil {
		return err
	}
	if img == nil {
		fmt.Println("no image available for this object")
		return nil
	}
	fmt.Printf("iiif id:   %s\n", img.IIIFID)
	fmt.Printf("thumbnail: %s\n", img.ThumbnailURL)
	fmt.Printf("full:      %s\n", img.FullURL)
	if img.Width > 0 && img.Height > 0 {
		fmt.Printf("dimensions: %dx%d\n", img.Width, img.Height)
	}
	return nil
}
