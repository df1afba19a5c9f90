// Package pdfrenderer wraps the native PDF engines behind a common handle
// model. Two implementations exist: pdfium (via go-pdfium, WebAssembly) and
// MuPDF (via go-fitz). Every handle owns native resources and must be closed
// on all exit paths.
package pdfrenderer

import (
	"errors"
	"log/slog"

	"github.com/jsscheller/pdfr/pixbuf"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// Error taxonomy. Native error codes are translated into these through the
// per-adapter tables; callers match with errors.Is.
var (
	// ErrOpen is fatal for the whole run: the document could not be loaded.
	ErrOpen = errors.New("document open failed")
	// ErrPageAccess covers invalid page indices and page-load failures.
	ErrPageAccess = errors.New("page access failed")
	// ErrRender covers native rasterization failures.
	ErrRender = errors.New("render failed")
	// ErrExtraction covers native text-layer failures.
	ErrExtraction = errors.New("text extraction failed")
	// ErrUnsupported marks operations a renderer does not implement.
	ErrUnsupported = errors.New("operation not supported by this renderer")
)

// DefaultMaxDimension bounds requested render dimensions so a hostile size
// request cannot ask the native side for an absurd allocation.
const DefaultMaxDimension = 16384

// Renderer opens documents. Close releases the native engine itself.
type Renderer interface {
	Open(path string) (Document, error)
	Close() error
}

// Document is an opaque handle to a loaded PDF. Pages must not outlive it.
type Document interface {
	PageCount() (int, error)
	Page(index int) (Page, error)
	Close() error
}

// Page is a handle to one page. Size is reported in points (72 per inch).
// Rotation is the stored page rotation in quarter turns clockwise (0-3).
type Page interface {
	Size() (width, height float64, err error)
	Rotation() (int, error)
	// Render rasterizes the page into a freshly allocated pixel buffer of
	// exactly width x height in the requested format, applying an extra
	// rotation of rotate quarter turns clockwise (0-3). Ownership of the
	// returned buffer passes to the caller.
	Render(width, height, rotate int, format pixbuf.Format) (*pixbuf.Buffer, error)
	// TextUTF16 returns the page text as raw UTF-16 code units, exactly as
	// the native text layer reports them (unpaired surrogates included).
	TextUTF16() ([]uint16, error)
	// Images returns the page's embedded images, each rendered into its own
	// buffer. Renderers without page-object access return ErrUnsupported.
	Images() ([]*pixbuf.Buffer, error)
	Close() error
}

// New constructs the renderer selected by name ("pdfium" or "fitz").
func New(name string, maxDimension int) (Renderer, error) {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	switch name {
	case "", "pdfium":
		return NewPdfiumRenderer(maxDimension)
	case "fitz":
		return NewFitzRenderer(maxDimension)
	}
	return nil, errors.New("unknown renderer: " + name)
}
