package main

import (
	"github.com/spf13/cobra"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine"
	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
)

// watchEnv provides the environment for the watch command.
type watchEnv struct {
	cfg      config.Config
	format   string
	quality  int
	size     string
	dpi      int
	interval int
}

// getWatchCmd returns the definition of the watch command.
func getWatchCmd(cfg config.Config) *cobra.Command {
	env := &watchEnv{cfg: cfg}
	cmd := &cobra.Command{
		Use:   "watch IN_DIR OUT_DIR",
		Short: "Watch a directory and rasterize PDFs as they appear",
		Long: `
Scans IN_DIR on an interval and rasterizes every new PDF into OUT_DIR.
Runs until interrupted.
`,
		Args: cobra.ExactArgs(2),
		RunE: env.runWatchCmd,
	}

	cmd.Flags().StringVar(&env.format, "format", cfg.Format, "output format: jpeg, png, gif, tiff or bmp")
	cmd.Flags().IntVar(&env.quality, "quality", cfg.Quality, "JPEG quality, 1-100")
	cmd.Flags().StringVar(&env.size, "size", "", "output size in pixels, e.g. \"800x600\", \"800\" or \"x600\"")
	cmd.Flags().IntVar(&env.dpi, "dpi", cfg.DPI, "render resolution when --size is not given")
	cmd.Flags().IntVar(&env.interval, "interval", cfg.WatchInterval, "scan interval in seconds")

	return cmd
}

func (e *watchEnv) runWatchCmd(cmd *cobra.Command, args []string) error {
	req := engine.WatchRequest{
		InDir:   args[0],
		OutDir:  args[1],
		Quality: e.quality,
		DPI:     e.dpi,
	}

	format, err := export.ParseFormat(e.format)
	if err != nil {
		return err
	}
	req.Format = format

	if e.size != "" {
		size, err := pagerange.ParseSize(e.size)
		if err != nil {
			return err
		}
		req.Size = size
	}

	cfg := e.cfg
	if e.interval > 0 {
		cfg.WatchInterval = e.interval
	}
	eng, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	return eng.Watch(cmd.Context(), req)
}
