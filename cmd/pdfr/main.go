// pdfr converts PDF pages into raster images and extracts their text.
//
// Exit codes: 0 on success, 1 on a fatal error (the document could not be
// opened, bad arguments), 2 when the document opened but some pages failed.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine"
	"github.com/jsscheller/pdfr/engine/pdfrenderer"
	"github.com/jsscheller/pdfr/textextract"
)

const (
	exitSuccess = 0
	exitFatal   = 1
	exitPartial = 2
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// injectGlobals injects all of our globals into their packages
func injectGlobals(logger *slog.Logger) {
	Logger = logger
	config.Logger = Logger
	engine.Logger = Logger
	pdfrenderer.Logger = Logger
	textextract.Logger = Logger
}

// errPartial marks a run where the document opened but not every page made it
// through. The root command maps it to exit code 2.
var errPartial = errors.New("some pages failed")

func main() {
	cfg, logger := config.Setup()
	injectGlobals(logger)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "pdfr: %v\n", err)
		os.Exit(exitFatal)
	}

	rootCmd := &cobra.Command{
		Use:           "pdfr",
		Short:         "Convert PDF pages to images and extract their text",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		getRasterizeCmd(cfg),
		getExtractTextCmd(cfg),
		getExtractImagesCmd(cfg),
		getPageCountCmd(cfg),
		getWatchCmd(cfg),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	switch {
	case err == nil:
		os.Exit(exitSuccess)
	case errors.Is(err, errPartial):
		os.Exit(exitPartial)
	default:
		fmt.Fprintf(os.Stderr, "pdfr: %v\n", err)
		os.Exit(exitFatal)
	}
}
