package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine"
	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
)

// rasterizeEnv provides the environment for the rasterize command.
type rasterizeEnv struct {
	cfg config.Config

	pages        string
	format       string
	quality      int
	size         string
	dpi          int
	keepRotation bool
}

// getRasterizeCmd returns the definition of the rasterize command.
func getRasterizeCmd(cfg config.Config) *cobra.Command {
	env := &rasterizeEnv{cfg: cfg}
	cmd := &cobra.Command{
		Use:   "rasterize PDF OUT_DIR",
		Short: "Render PDF pages to image files",
		Long: `
Renders the selected pages of a PDF to one image file per page, named
<pdf>_<page>.<ext> in OUT_DIR. Page indices are zero-based. A page that
fails is skipped and the rest of the document is still processed; the
exit code is 2 in that case.
`,
		Args: cobra.ExactArgs(2),
		RunE: env.runRasterizeCmd,
	}

	cmd.Flags().StringVar(&env.pages, "pages", "", "pages to render, e.g. \"0-2,5,9-\" (zero-based, default all)")
	cmd.Flags().StringVar(&env.format, "format", cfg.Format, "output format: jpeg, png, gif, tiff or bmp")
	cmd.Flags().IntVar(&env.quality, "quality", cfg.Quality, "JPEG quality, 1-100")
	cmd.Flags().StringVar(&env.size, "size", "", "output size in pixels, e.g. \"800x600\", \"800\" or \"x600\"")
	cmd.Flags().IntVar(&env.dpi, "dpi", cfg.DPI, "render resolution when --size is not given")
	cmd.Flags().BoolVar(&env.keepRotation, "rotate", false, "keep the stored page rotation instead of compensating for it")

	return cmd
}

func (e *rasterizeEnv) runRasterizeCmd(cmd *cobra.Command, args []string) error {
	req := engine.RasterizeRequest{
		PDFPath:      args[0],
		OutDir:       args[1],
		Quality:      e.quality,
		DPI:          e.dpi,
		KeepRotation: e.keepRotation,
	}

	format, err := export.ParseFormat(e.format)
	if err != nil {
		return err
	}
	req.Format = format

	if e.pages != "" {
		pages, err := pagerange.Parse(e.pages)
		if err != nil {
			return err
		}
		req.Pages = pages
	}
	if e.size != "" {
		size, err := pagerange.ParseSize(e.size)
		if err != nil {
			return err
		}
		req.Size = size
	}

	eng, err := engine.New(e.cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	batch, err := eng.Rasterize(cmd.Context(), req)
	if err != nil {
		return err
	}
	for _, r := range batch.Results {
		if r.OK() {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", r.Path)
		}
	}
	if failed := batch.Failed(); failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPartial, failed, len(batch.Results))
	}
	return nil
}
