package pdfrenderer

import (
	"fmt"
	"image"
	"unicode/utf16"

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"

	"github.com/jsscheller/pdfr/pixbuf"
)

// FitzRenderer implements PDF rendering using go-fitz (requires CGo and MuPDF).
// It is the alternate engine; page-object access (embedded images) and raw
// rotation metadata are not available through it.
type FitzRenderer struct {
	maxDimension int
}

// NewFitzRenderer creates a new Fitz-based PDF renderer.
func NewFitzRenderer(maxDimension int) (*FitzRenderer, error) {
	return &FitzRenderer{maxDimension: maxDimension}, nil
}

func (r *FitzRenderer) Open(path string) (Document, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return &fitzDocument{renderer: r, doc: doc}, nil
}

// Close is a no-op; fitz holds no process-wide state.
func (r *FitzRenderer) Close() error {
	return nil
}

type fitzDocument struct {
	renderer *FitzRenderer
	doc      *fitz.Document
}

func (d *fitzDocument) PageCount() (int, error) {
	return d.doc.NumPage(), nil
}

func (d *fitzDocument) Page(index int) (Page, error) {
	if index < 0 || index >= d.doc.NumPage() {
		return nil, fmt.Errorf("%w: page index %d out of range [0,%d)", ErrPageAccess, index, d.doc.NumPage())
	}
	return &fitzPage{renderer: d.renderer, doc: d.doc, index: index}, nil
}

func (d *fitzDocument) Close() error {
	return d.doc.Close()
}

type fitzPage struct {
	renderer *FitzRenderer
	doc      *fitz.Document
	index    int
}

func (p *fitzPage) Size() (float64, float64, error) {
	bounds, err := p.doc.Bound(p.index)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: page %d bounds: %v", ErrPageAccess, p.index, err)
	}
	// Bound reports pixels at 72 DPI, which is points.
	return float64(bounds.Dx()), float64(bounds.Dy()), nil
}

// Rotation always reports 0: MuPDF bakes the stored page rotation into its
// bounds and rendering, so there is nothing left to compensate for.
func (p *fitzPage) Rotation() (int, error) {
	return 0, nil
}

func (p *fitzPage) Render(width, height, rotate int, format pixbuf.Format) (*pixbuf.Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimensions %dx%d", ErrRender, width, height)
	}
	if max := p.renderer.maxDimension; width > max || height > max {
		return nil, fmt.Errorf("%w: %dx%d exceeds maximum dimension %d", ErrRender, width, height, max)
	}

	pointsW, pointsH, err := p.Size()
	if err != nil {
		return nil, err
	}
	if pointsW <= 0 || pointsH <= 0 {
		return nil, fmt.Errorf("%w: page %d has zero-size bounds", ErrRender, p.index)
	}
	dpi := 72 * float64(width) / pointsW
	if hdpi := 72 * float64(height) / pointsH; hdpi > dpi {
		dpi = hdpi
	}

	img, err := p.doc.ImageDPI(p.index, dpi)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrRender, p.index, err)
	}

	var nrgba *image.NRGBA
	switch rotate & 3 {
	case 1:
		nrgba = imaging.Rotate270(img)
	case 2:
		nrgba = imaging.Rotate180(img)
	case 3:
		nrgba = imaging.Rotate90(img)
	default:
		nrgba = imaging.Clone(img)
	}
	if nrgba.Bounds().Dx() != width || nrgba.Bounds().Dy() != height {
		nrgba = imaging.Resize(nrgba, width, height, imaging.Lanczos)
	}

	buf, err := pixbuf.New(width, height, nrgba.Stride, pixbuf.RGBA32, pixbuf.OriginFitz, nrgba.Pix)
	if err != nil {
		return nil, err
	}
	if format != pixbuf.RGBA32 {
		conv, err := pixbuf.Convert(buf, format)
		if err != nil {
			buf.Release()
			return nil, fmt.Errorf("%w: page %d: %v", ErrRender, p.index, err)
		}
		buf = conv
	}
	return buf, nil
}

func (p *fitzPage) TextUTF16() ([]uint16, error) {
	text, err := p.doc.Text(p.index)
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %v", ErrExtraction, p.index, err)
	}
	return utf16.Encode([]rune(text)), nil
}

func (p *fitzPage) Images() ([]*pixbuf.Buffer, error) {
	return nil, fmt.Errorf("%w: embedded image extraction requires the pdfium renderer", ErrUnsupported)
}

// Close is a no-op; fitz pages are rendered without a persistent page handle.
func (p *fitzPage) Close() error {
	return nil
}
