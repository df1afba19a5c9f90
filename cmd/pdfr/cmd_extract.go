package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine"
	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
)

// extractTextEnv provides the environment for the extract-text command.
type extractTextEnv struct {
	cfg   config.Config
	pages string
}

// getExtractTextCmd returns the definition of the extract-text command.
func getExtractTextCmd(cfg config.Config) *cobra.Command {
	env := &extractTextEnv{cfg: cfg}
	cmd := &cobra.Command{
		Use:   "extract-text PDF OUT_DIR",
		Short: "Extract the text of PDF pages to text files",
		Long: `
Writes the text of each selected page to <pdf>_<page>.txt in OUT_DIR.
Page indices are zero-based. Malformed UTF-16 in the document's text
layer is replaced with U+FFFD rather than failing the page.
`,
		Args: cobra.ExactArgs(2),
		RunE: env.runExtractTextCmd,
	}

	cmd.Flags().StringVar(&env.pages, "pages", "", "pages to extract, e.g. \"0-2,5,9-\" (zero-based, default all)")

	return cmd
}

func (e *extractTextEnv) runExtractTextCmd(cmd *cobra.Command, args []string) error {
	req := engine.ExtractTextRequest{PDFPath: args[0], OutDir: args[1]}
	if e.pages != "" {
		pages, err := pagerange.Parse(e.pages)
		if err != nil {
			return err
		}
		req.Pages = pages
	}

	eng, err := engine.New(e.cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	batch, err := eng.ExtractText(cmd.Context(), req)
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

// extractImagesEnv provides the environment for the extract-images command.
type extractImagesEnv struct {
	cfg     config.Config
	pages   string
	format  string
	quality int
}

// getExtractImagesCmd returns the definition of the extract-images command.
func getExtractImagesCmd(cfg config.Config) *cobra.Command {
	env := &extractImagesEnv{cfg: cfg}
	cmd := &cobra.Command{
		Use:   "extract-images PDF OUT_DIR",
		Short: "Export the images embedded in PDF pages",
		Long: `
Exports every image object on the selected pages to its own file, named
<pdf>_<page>_<n>.<ext> in OUT_DIR. Requires the pdfium renderer.
`,
		Args: cobra.ExactArgs(2),
		RunE: env.runExtractImagesCmd,
	}

	cmd.Flags().StringVar(&env.pages, "pages", "", "pages to scan, e.g. \"0-2,5,9-\" (zero-based, default all)")
	cmd.Flags().StringVar(&env.format, "format", "png", "output format: jpeg, png, gif, tiff or bmp")
	cmd.Flags().IntVar(&env.quality, "quality", cfg.Quality, "JPEG quality, 1-100")

	return cmd
}

func (e *extractImagesEnv) runExtractImagesCmd(cmd *cobra.Command, args []string) error {
	req := engine.ExtractImagesRequest{
		PDFPath: args[0],
		OutDir:  args[1],
		Quality: e.quality,
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

	eng, err := engine.New(e.cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	batch, err := eng.ExtractImages(cmd.Context(), req)
	if err != nil {
		return err
	}
	if failed := batch.Failed(); failed > 0 {
		return fmt.Errorf("%w: %d of %d", errPartial, failed, len(batch.Results))
	}
	return nil
}
