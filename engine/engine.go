// Package engine is the export pipeline: it walks the requested pages of a
// document through render, convert, encode and write, absorbing per-page
// failures so one bad page never sinks the batch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine/pdfrenderer"
	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
	"github.com/jsscheller/pdfr/pixbuf"
	"github.com/jsscheller/pdfr/textextract"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Engine drives one document at a time through the pipeline. It is not safe
// for concurrent use; run one Engine per worker when batching across
// documents.
type Engine struct {
	Config   config.Config
	Renderer pdfrenderer.Renderer
}

// New builds an Engine with the renderer selected in cfg.
func New(cfg config.Config) (*Engine, error) {
	renderer, err := pdfrenderer.New(cfg.Renderer, cfg.MaxDimension)
	if err != nil {
		return nil, fmt.Errorf("failed to set up renderer %q: %w", cfg.Renderer, err)
	}
	return &Engine{Config: cfg, Renderer: renderer}, nil
}

// Close releases the native rendering engine.
func (e *Engine) Close() error {
	return e.Renderer.Close()
}

// RasterizeRequest describes one rasterization batch. Pages nil means all
// pages. Size nil means "derive dimensions from DPI". Immutable once
// submitted.
type RasterizeRequest struct {
	PDFPath string
	OutDir  string
	Pages   *pagerange.Set
	Format  export.Format
	Quality int
	Size    *pagerange.Size
	DPI     int
	// KeepRotation renders the stored page rotation as-is instead of
	// compensating for it.
	KeepRotation bool
}

// Rasterize renders the requested pages to image files in req.OutDir. A fatal
// error (document cannot be opened, output dir cannot be created) aborts the
// run; anything after that is recorded per page and processing continues.
// Cancellation is observed between pages: an in-flight native call runs to
// completion but no further pages are scheduled.
func (e *Engine) Rasterize(ctx context.Context, req RasterizeRequest) (*BatchResult, error) {
	doc, err := e.Renderer.Open(req.PDFPath)
	if err != nil {
		return nil, err
	}
	defer e.closeQuietly(doc, req.PDFPath)

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pageCount, err := doc.PageCount()
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{RunID: ulid.Make()}
	stem := pdfStem(req.PDFPath)
	Logger.Info("Starting rasterize run",
		"runID", batch.RunID, "pdf", req.PDFPath, "pageCount", pageCount, "format", req.Format)

	for _, pageIndex := range selectPages(req.Pages, pageCount) {
		if ctx.Err() != nil {
			Logger.Info("Cancellation observed, stopping batch", "runID", batch.RunID, "afterPages", len(batch.Results))
			break
		}
		result := e.rasterizePage(doc, pageIndex, stem, req)
		if result.OK() {
			Logger.Debug("Page rasterized", "page", pageIndex, "path", result.Path, "bytes", result.Bytes)
		} else {
			e.logPageFailure(result)
		}
		batch.Results = append(batch.Results, result)
	}

	Logger.Info("Rasterize run finished", "summary", batch.Summary())
	return batch, nil
}

func (e *Engine) rasterizePage(doc pdfrenderer.Document, pageIndex int, stem string, req RasterizeRequest) PageResult {
	page, err := doc.Page(pageIndex)
	if err != nil {
		return failure(pageIndex, StagePage, err)
	}
	defer e.closePageQuietly(page, pageIndex)

	pointsW, pointsH, err := page.Size()
	if err != nil {
		return failure(pageIndex, StagePage, err)
	}

	rotate := 0
	if !req.KeepRotation {
		rot, err := page.Rotation()
		if err != nil {
			return failure(pageIndex, StagePage, err)
		}
		if rot == 1 || rot == 3 {
			pointsW, pointsH = pointsH, pointsW
		}
		if rot > 0 {
			rotate = 4 - rot
		}
	}

	width, height := targetDims(pointsW, pointsH, req.Size, req.DPI)

	renderFormat := pixbuf.RGBA32
	if req.Format == export.JPEG {
		renderFormat = pixbuf.RGB24
	}
	buf, err := page.Render(width, height, rotate, renderFormat)
	if err != nil {
		return failure(pageIndex, StageRender, err)
	}

	// The dispatcher owns buf from here on, success or failure.
	data, err := export.Export(buf, export.Request{Format: req.Format, Quality: req.Quality})
	if err != nil {
		return failure(pageIndex, StageEncode, err)
	}

	path := filepath.Join(req.OutDir, fmt.Sprintf("%s_%d.%s", stem, pageIndex, req.Format.Ext()))
	if err := writeFileAtomic(path, data); err != nil {
		return failure(pageIndex, StageWrite, err)
	}

	return PageResult{
		Page:   pageIndex,
		Path:   path,
		Format: req.Format,
		Width:  width,
		Height: height,
		Bytes:  len(data),
	}
}

// ExtractTextRequest describes one text-extraction batch.
type ExtractTextRequest struct {
	PDFPath string
	OutDir  string
	Pages   *pagerange.Set
}

// ExtractText writes one text file per requested page. When the native text
// layer fails for a page, the pure-Go fallback extractor is tried before the
// page is reported as failed.
func (e *Engine) ExtractText(ctx context.Context, req ExtractTextRequest) (*BatchResult, error) {
	doc, err := e.Renderer.Open(req.PDFPath)
	if err != nil {
		return nil, err
	}
	defer e.closeQuietly(doc, req.PDFPath)

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pageCount, err := doc.PageCount()
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{RunID: ulid.Make()}
	stem := pdfStem(req.PDFPath)
	Logger.Info("Starting text extraction run",
		"runID", batch.RunID, "pdf", req.PDFPath, "pageCount", pageCount)

	for _, pageIndex := range selectPages(req.Pages, pageCount) {
		if ctx.Err() != nil {
			Logger.Info("Cancellation observed, stopping batch", "runID", batch.RunID, "afterPages", len(batch.Results))
			break
		}
		result := e.extractPageText(doc, pageIndex, stem, req)
		if !result.OK() {
			e.logPageFailure(result)
		}
		batch.Results = append(batch.Results, result)
	}

	Logger.Info("Text extraction run finished", "summary", batch.Summary())
	return batch, nil
}

func (e *Engine) extractPageText(doc pdfrenderer.Document, pageIndex int, stem string, req ExtractTextRequest) PageResult {
	text, err := e.pageText(doc, pageIndex, req.PDFPath)
	if err != nil {
		return failure(pageIndex, StageExtract, err)
	}

	path := filepath.Join(req.OutDir, fmt.Sprintf("%s_%d.txt", stem, pageIndex))
	if err := writeFileAtomic(path, []byte(text)); err != nil {
		return failure(pageIndex, StageWrite, err)
	}
	return PageResult{Page: pageIndex, Path: path, Bytes: len(text)}
}

func (e *Engine) pageText(doc pdfrenderer.Document, pageIndex int, pdfPath string) (string, error) {
	page, err := doc.Page(pageIndex)
	if err != nil {
		return "", err
	}
	defer e.closePageQuietly(page, pageIndex)

	text, err := textextract.FromPage(page)
	if err == nil {
		return text, nil
	}

	Logger.Warn("Native text extraction failed, trying fallback extractor", "page", pageIndex, "error", err)
	fallback, ferr := textextract.PlainText(pdfPath, pageIndex)
	if ferr != nil {
		Logger.Debug("Fallback extractor failed too", "page", pageIndex, "error", ferr)
		return "", err
	}
	return fallback, nil
}

// ExtractImagesRequest describes an embedded-image export batch.
type ExtractImagesRequest struct {
	PDFPath string
	OutDir  string
	Pages   *pagerange.Set
	Format  export.Format
	Quality int
}

// ExtractImages exports the images embedded in the requested pages, one file
// per image, named <stem>_<page>_<n>.<ext>.
func (e *Engine) ExtractImages(ctx context.Context, req ExtractImagesRequest) (*BatchResult, error) {
	doc, err := e.Renderer.Open(req.PDFPath)
	if err != nil {
		return nil, err
	}
	defer e.closeQuietly(doc, req.PDFPath)

	if err := os.MkdirAll(req.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	pageCount, err := doc.PageCount()
	if err != nil {
		return nil, err
	}

	batch := &BatchResult{RunID: ulid.Make()}
	stem := pdfStem(req.PDFPath)
	Logger.Info("Starting image extraction run",
		"runID", batch.RunID, "pdf", req.PDFPath, "pageCount", pageCount)

	for _, pageIndex := range selectPages(req.Pages, pageCount) {
		if ctx.Err() != nil {
			Logger.Info("Cancellation observed, stopping batch", "runID", batch.RunID, "afterPages", len(batch.Results))
			break
		}
		result := e.extractPageImages(doc, pageIndex, stem, req)
		if !result.OK() {
			e.logPageFailure(result)
		}
		batch.Results = append(batch.Results, result)
	}

	Logger.Info("Image extraction run finished", "summary", batch.Summary())
	return batch, nil
}

func (e *Engine) extractPageImages(doc pdfrenderer.Document, pageIndex int, stem string, req ExtractImagesRequest) PageResult {
	page, err := doc.Page(pageIndex)
	if err != nil {
		return failure(pageIndex, StagePage, err)
	}
	defer e.closePageQuietly(page, pageIndex)

	images, err := page.Images()
	if err != nil {
		return failure(pageIndex, StageExtract, err)
	}

	total := 0
	for n, buf := range images {
		data, err := export.Export(buf, export.Request{Format: req.Format, Quality: req.Quality})
		if err != nil {
			// Remaining buffers still belong to us and must not leak.
			for _, rest := range images[n+1:] {
				rest.Release()
			}
			return failure(pageIndex, StageEncode, err)
		}
		path := filepath.Join(req.OutDir, fmt.Sprintf("%s_%d_%d.%s", stem, pageIndex, n, req.Format.Ext()))
		if err := writeFileAtomic(path, data); err != nil {
			for _, rest := range images[n+1:] {
				rest.Release()
			}
			return failure(pageIndex, StageWrite, err)
		}
		total += len(data)
	}
	return PageResult{Page: pageIndex, Format: req.Format, Bytes: total}
}

// PageCount reports the number of pages in a document.
func (e *Engine) PageCount(path string) (int, error) {
	doc, err := e.Renderer.Open(path)
	if err != nil {
		return 0, err
	}
	defer e.closeQuietly(doc, path)
	return doc.PageCount()
}

// selectPages expands the page selection, defaulting to all pages.
func selectPages(pages *pagerange.Set, pageCount int) []int {
	if pages == nil {
		pages = pagerange.All()
	}
	return pages.Pages(pageCount)
}

// targetDims resolves the output pixel dimensions from either an explicit
// size (missing dimensions derived from the page aspect ratio) or a DPI
// applied to the page's size in points (72 points per inch).
func targetDims(pointsW, pointsH float64, size *pagerange.Size, dpi int) (int, int) {
	var w, h float64
	if size == nil {
		w = math.Round(pointsW / 72 * float64(dpi))
		h = math.Round(w / pointsW * pointsH)
	} else {
		switch {
		case size.Width > 0 && size.Height > 0:
			w, h = size.Width, size.Height
		case size.Width > 0:
			w = size.Width
			h = pointsH / pointsW * size.Width
		default:
			h = size.Height
			w = pointsW / pointsH * size.Height
		}
		w, h = math.Round(w), math.Round(h)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return int(w), int(h)
}

// writeFileAtomic writes data to path via a temp file and rename, so a failed
// page never leaves a partial output file behind.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pdfr-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close output: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set output permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to move output into place: %w", err)
	}
	return nil
}

func pdfStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func (e *Engine) closeQuietly(doc pdfrenderer.Document, path string) {
	if err := doc.Close(); err != nil {
		Logger.Warn("Failed to close document", "pdf", path, "error", err)
	}
}

func (e *Engine) closePageQuietly(page pdfrenderer.Page, index int) {
	if err := page.Close(); err != nil {
		Logger.Warn("Failed to close page", "page", index, "error", err)
	}
}

func (e *Engine) logPageFailure(result PageResult) {
	// Buffer invariant violations mean a native library broke its contract;
	// they get flagged louder than an ordinary page failure.
	if errors.Is(result.Err, pixbuf.ErrInvalidBuffer) {
		Logger.Error("Page failed with buffer invariant violation", "page", result.Page, "stage", result.Stage, "error", result.Err)
		return
	}
	Logger.Warn("Page failed", "page", result.Page, "stage", result.Stage, "error", result.Err)
}
