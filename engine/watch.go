package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
)

// WatchRequest describes a watch-mode run: every interval the InDir is
// scanned and any PDF not seen before is rasterized into OutDir.
type WatchRequest struct {
	InDir   string
	OutDir  string
	Format  export.Format
	Quality int
	Size    *pagerange.Size
	DPI     int
}

// Watch scans req.InDir on the configured interval and rasterizes new PDFs as
// they appear. It blocks until ctx is cancelled. A file that fails is
// remembered anyway so it is not retried on every tick.
func (e *Engine) Watch(ctx context.Context, req WatchRequest) error {
	if _, err := os.Stat(req.InDir); err != nil {
		return fmt.Errorf("cannot watch directory: %w", err)
	}

	seen := make(map[string]bool)

	scheduler := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
	))
	spec := fmt.Sprintf("@every %ds", e.Config.WatchInterval)
	_, err := scheduler.AddFunc(spec, func() {
		e.scanOnce(ctx, req, seen)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule directory scan: %w", err)
	}

	Logger.Info("Watching for PDFs", "dir", req.InDir, "intervalSeconds", e.Config.WatchInterval)
	// Run one scan immediately so startup does not wait a full interval. It
	// must finish before the scheduler starts: cron's skip-if-still-running
	// chain only serializes the jobs it launches itself, and the engine
	// handles one document at a time.
	e.scanOnce(ctx, req, seen)
	scheduler.Start()

	<-ctx.Done()
	stopCtx := scheduler.Stop()
	<-stopCtx.Done()
	Logger.Info("Watch stopped", "dir", req.InDir)
	return nil
}

func (e *Engine) scanOnce(ctx context.Context, req WatchRequest, seen map[string]bool) {
	paths, err := discoverPDFs(req.InDir)
	if err != nil {
		Logger.Warn("Directory scan failed", "dir", req.InDir, "error", err)
		return
	}
	for _, path := range paths {
		if ctx.Err() != nil {
			return
		}
		if seen[path] {
			continue
		}
		seen[path] = true

		Logger.Info("New PDF found", "pdf", path)
		batch, err := e.Rasterize(ctx, RasterizeRequest{
			PDFPath: path,
			OutDir:  req.OutDir,
			Format:  req.Format,
			Quality: req.Quality,
			Size:    req.Size,
			DPI:     req.DPI,
		})
		if err != nil {
			Logger.Warn("Failed to rasterize new PDF", "pdf", path, "error", err)
			continue
		}
		if failed := batch.Failed(); failed > 0 {
			Logger.Warn("New PDF rasterized with failures", "pdf", path, "failedPages", failed)
		}
	}
}

// discoverPDFs walks dir and returns the PDF files under it.
func discoverPDFs(dir string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}
