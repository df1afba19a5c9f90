package pdfrenderer

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/enums"
	pdfiumErrors "github.com/klippa-app/go-pdfium/errors"
	"github.com/klippa-app/go-pdfium/references"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/webassembly"

	"github.com/jsscheller/pdfr/pixbuf"
)

// PdfiumRenderer implements rendering, text and image extraction using
// go-pdfium with WebAssembly (pure Go, no CGo).
type PdfiumRenderer struct {
	pool         pdfium.Pool
	instance     pdfium.Pdfium
	maxDimension int
}

// pdfiumReasons is the explicit translation table from go-pdfium's native
// error values. Codes outside the table classify as "unknown" rather than
// being guessed at.
var pdfiumReasons = []struct {
	err    error
	reason string
}{
	{pdfiumErrors.ErrFile, "file cannot be read"},
	{pdfiumErrors.ErrFormat, "not a PDF or corrupted"},
	{pdfiumErrors.ErrPassword, "password required or incorrect"},
	{pdfiumErrors.ErrSecurity, "unsupported security scheme"},
	{pdfiumErrors.ErrPage, "page not found or invalid"},
	{pdfiumErrors.ErrUnknown, "unknown engine error"},
}

func pdfiumReason(err error) string {
	for _, entry := range pdfiumReasons {
		if errors.Is(err, entry.err) {
			return entry.reason
		}
	}
	return "unknown"
}

// NewPdfiumRenderer initializes a single-worker WebAssembly pool. The pipeline
// is synchronous per document, so one worker is all it can ever use.
func NewPdfiumRenderer(maxDimension int) (*PdfiumRenderer, error) {
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  1,
		MaxTotal: 1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pdfium WebAssembly: %w", err)
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to get pdfium instance: %w", err)
	}

	return &PdfiumRenderer{
		pool:         pool,
		instance:     instance,
		maxDimension: maxDimension,
	}, nil
}

// Open loads a PDF from disk. The returned document owns the native handle
// and must be closed by the caller.
func (r *PdfiumRenderer) Open(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	doc, err := r.instance.OpenDocument(&requests.OpenDocument{
		File: &data,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpen, pdfiumReason(err), err)
	}
	return &pdfiumDocument{renderer: r, doc: doc.Document}, nil
}

// Close tears down the WebAssembly pool.
func (r *PdfiumRenderer) Close() error {
	if r.pool != nil {
		r.pool.Close()
		r.pool = nil
	}
	r.instance = nil
	return nil
}

type pdfiumDocument struct {
	renderer *PdfiumRenderer
	doc      references.FPDF_DOCUMENT
}

func (d *pdfiumDocument) PageCount() (int, error) {
	resp, err := d.renderer.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: d.doc,
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrPageAccess, pdfiumReason(err), err)
	}
	return resp.PageCount, nil
}

func (d *pdfiumDocument) Page(index int) (Page, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: negative page index %d", ErrPageAccess, index)
	}
	resp, err := d.renderer.instance.FPDF_LoadPage(&requests.FPDF_LoadPage{
		Document: d.doc,
		Index:    index,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %s: %v", ErrPageAccess, index, pdfiumReason(err), err)
	}
	return &pdfiumPage{renderer: d.renderer, doc: d.doc, page: resp.Page, index: index}, nil
}

func (d *pdfiumDocument) Close() error {
	_, err := d.renderer.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: d.doc,
	})
	if err != nil {
		return fmt.Errorf("failed to close document: %w", err)
	}
	return nil
}

type pdfiumPage struct {
	renderer *PdfiumRenderer
	doc      references.FPDF_DOCUMENT
	page     references.FPDF_PAGE
	index    int
}

func (p *pdfiumPage) ref() requests.Page {
	return requests.Page{ByReference: &p.page}
}

func (p *pdfiumPage) Size() (float64, float64, error) {
	wResp, err := p.renderer.instance.FPDF_GetPageWidth(&requests.FPDF_GetPageWidth{Page: p.ref()})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: page %d width: %s: %v", ErrPageAccess, p.index, pdfiumReason(err), err)
	}
	hResp, err := p.renderer.instance.FPDF_GetPageHeight(&requests.FPDF_GetPageHeight{Page: p.ref()})
	if err != nil {
		return 0, 0, fmt.Errorf("%w: page %d height: %s: %v", ErrPageAccess, p.index, pdfiumReason(err), err)
	}
	return wResp.Width, hResp.Height, nil
}

func (p *pdfiumPage) Rotation() (int, error) {
	resp, err := p.renderer.instance.FPDFPage_GetRotation(&requests.FPDFPage_GetRotation{Page: p.ref()})
	if err != nil {
		return 0, fmt.Errorf("%w: page %d rotation: %s: %v", ErrPageAccess, p.index, pdfiumReason(err), err)
	}
	return int(resp.PageRotation), nil
}

// bitmapFormat maps the requested pixel format onto the closest native pdfium
// layout. BGR orders are swizzled to RGB after readout.
func bitmapFormat(format pixbuf.Format) (enums.FPDF_BITMAP_FORMAT, error) {
	switch format {
	case pixbuf.Gray8:
		return enums.FPDF_BITMAP_FORMAT_GRAY, nil
	case pixbuf.RGB24:
		return enums.FPDF_BITMAP_FORMAT_BGR, nil
	case pixbuf.RGBA32:
		return enums.FPDF_BITMAP_FORMAT_BGRA, nil
	}
	return 0, fmt.Errorf("%w: unsupported pixel format %v", ErrRender, format)
}

func (p *pdfiumPage) Render(width, height, rotate int, format pixbuf.Format) (*pixbuf.Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimensions %dx%d", ErrRender, width, height)
	}
	if max := p.renderer.maxDimension; width > max || height > max {
		return nil, fmt.Errorf("%w: %dx%d exceeds maximum dimension %d", ErrRender, width, height, max)
	}
	nativeFormat, err := bitmapFormat(format)
	if err != nil {
		return nil, err
	}

	inst := p.renderer.instance
	bmpResp, err := inst.FPDFBitmap_CreateEx(&requests.FPDFBitmap_CreateEx{
		Width:  width,
		Height: height,
		Format: nativeFormat,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d bitmap allocation: %s: %v", ErrRender, p.index, pdfiumReason(err), err)
	}
	bmp := bmpResp.Bitmap
	// The native bitmap must be destroyed on every exit path; the pixels are
	// copied out before this runs.
	defer func() {
		if _, derr := inst.FPDFBitmap_Destroy(&requests.FPDFBitmap_Destroy{Bitmap: bmp}); derr != nil && Logger != nil {
			Logger.Warn("Failed to destroy pdfium bitmap", "page", p.index, "error", derr)
		}
	}()

	// Pages can have transparent regions; fill with opaque white first, the
	// same base the original pipeline renders onto.
	_, err = inst.FPDFBitmap_FillRect(&requests.FPDFBitmap_FillRect{
		Bitmap: bmp,
		Left:   0,
		Top:    0,
		Width:  width,
		Height: height,
		Color:  0xFFFFFFFF,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d fill: %s: %v", ErrRender, p.index, pdfiumReason(err), err)
	}

	_, err = inst.FPDF_RenderPageBitmap(&requests.FPDF_RenderPageBitmap{
		Bitmap: bmp,
		Page:   p.ref(),
		StartX: 0,
		StartY: 0,
		SizeX:  width,
		SizeY:  height,
		Rotate: enums.FPDF_PAGE_ROTATION(rotate & 3),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %s: %v", ErrRender, p.index, pdfiumReason(err), err)
	}

	buf, err := p.renderer.readBitmap(bmp)
	if err != nil {
		return nil, fmt.Errorf("page %d: %w", p.index, err)
	}
	if buf.Format() != format {
		// The engine answered in a different layout than asked for; normalize
		// through the buffer manager rather than guessing at bytes.
		conv, cerr := pixbuf.Convert(buf, format)
		if cerr != nil {
			buf.Release()
			return nil, fmt.Errorf("%w: page %d: %v", ErrRender, p.index, cerr)
		}
		buf = conv
	}
	return buf, nil
}

// readBitmap copies the native bitmap's pixels into an owned buffer,
// validating the stride/length invariants before trusting them and swizzling
// pdfium's BGR channel order into RGB. The buffer's format is derived from
// what the engine actually produced, not from what was requested.
func (r *PdfiumRenderer) readBitmap(bmp references.FPDF_BITMAP) (*pixbuf.Buffer, error) {
	inst := r.instance
	widthResp, err := inst.FPDFBitmap_GetWidth(&requests.FPDFBitmap_GetWidth{Bitmap: bmp})
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap width: %v", ErrRender, err)
	}
	heightResp, err := inst.FPDFBitmap_GetHeight(&requests.FPDFBitmap_GetHeight{Bitmap: bmp})
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap height: %v", ErrRender, err)
	}
	strideResp, err := inst.FPDFBitmap_GetStride(&requests.FPDFBitmap_GetStride{Bitmap: bmp})
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap stride: %v", ErrRender, err)
	}
	formatResp, err := inst.FPDFBitmap_GetFormat(&requests.FPDFBitmap_GetFormat{Bitmap: bmp})
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap format: %v", ErrRender, err)
	}
	bufResp, err := inst.FPDFBitmap_GetBuffer(&requests.FPDFBitmap_GetBuffer{Bitmap: bmp})
	if err != nil {
		return nil, fmt.Errorf("%w: bitmap buffer: %v", ErrRender, err)
	}

	width, height, stride := widthResp.Width, heightResp.Height, strideResp.Stride

	var format pixbuf.Format
	opaqueAlpha := false
	switch formatResp.Format {
	case enums.FPDF_BITMAP_FORMAT_GRAY:
		format = pixbuf.Gray8
	case enums.FPDF_BITMAP_FORMAT_BGR:
		format = pixbuf.RGB24
	case enums.FPDF_BITMAP_FORMAT_BGRA:
		format = pixbuf.RGBA32
	case enums.FPDF_BITMAP_FORMAT_BGRX:
		// The fourth byte is undefined; it becomes opaque alpha.
		format = pixbuf.RGBA32
		opaqueAlpha = true
	default:
		return nil, fmt.Errorf("%w: unexpected native bitmap format %d", ErrRender, formatResp.Format)
	}

	// The WebAssembly boundary hands back a copy, but it is still validated
	// before use: a short or mis-strided buffer means the engine broke its
	// contract and must not be trusted.
	pixels := make([]byte, len(bufResp.Buffer))
	copy(pixels, bufResp.Buffer)
	buf, err := pixbuf.New(width, height, stride, format, pixbuf.OriginPDFium, pixels)
	if err != nil {
		if Logger != nil {
			Logger.Warn("Native bitmap failed invariant validation",
				"width", width, "height", height, "stride", stride, "len", len(pixels), "error", err)
		}
		return nil, err
	}
	if err := swizzleBGR(buf, opaqueAlpha); err != nil {
		return nil, err
	}
	return buf, nil
}

// swizzleBGR converts pdfium's BGR(A) byte order into RGB(A) in place.
func swizzleBGR(buf *pixbuf.Buffer, opaqueAlpha bool) error {
	if buf.Format() == pixbuf.Gray8 {
		return nil
	}
	data, err := buf.Data()
	if err != nil {
		return err
	}
	bpp := buf.Format().BytesPerPixel()
	for y := 0; y < buf.Height(); y++ {
		row := data[y*buf.Stride():]
		for x := 0; x < buf.Width(); x++ {
			i := x * bpp
			row[i], row[i+2] = row[i+2], row[i]
			if opaqueAlpha {
				row[i+3] = 0xff
			}
		}
	}
	return nil
}

func (p *pdfiumPage) TextUTF16() ([]uint16, error) {
	inst := p.renderer.instance
	textResp, err := inst.FPDFText_LoadPage(&requests.FPDFText_LoadPage{Page: p.ref()})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d: %s: %v", ErrExtraction, p.index, pdfiumReason(err), err)
	}
	textPage := textResp.TextPage
	defer func() {
		if _, cerr := inst.FPDFText_ClosePage(&requests.FPDFText_ClosePage{TextPage: textPage}); cerr != nil && Logger != nil {
			Logger.Warn("Failed to close text page", "page", p.index, "error", cerr)
		}
	}()

	countResp, err := inst.FPDFText_CountChars(&requests.FPDFText_CountChars{TextPage: textPage})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d char count: %s: %v", ErrExtraction, p.index, pdfiumReason(err), err)
	}

	units := make([]uint16, 0, countResp.Count)
	for i := 0; i < countResp.Count; i++ {
		charResp, err := inst.FPDFText_GetUnicode(&requests.FPDFText_GetUnicode{
			TextPage: textPage,
			Index:    i,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: page %d char %d: %s: %v", ErrExtraction, p.index, i, pdfiumReason(err), err)
		}
		units = appendUTF16(units, uint32(charResp.Unicode))
	}
	return units, nil
}

// appendUTF16 appends a code point as UTF-16 code units. pdfium reports BMP
// characters (including unpaired surrogates) as single units and higher planes
// as full code points.
func appendUTF16(units []uint16, v uint32) []uint16 {
	if v <= 0xFFFF {
		return append(units, uint16(v))
	}
	v -= 0x10000
	return append(units, uint16(0xD800+(v>>10)), uint16(0xDC00+(v&0x3FF)))
}

func (p *pdfiumPage) Images() ([]*pixbuf.Buffer, error) {
	inst := p.renderer.instance
	countResp, err := inst.FPDFPage_CountObjects(&requests.FPDFPage_CountObjects{Page: p.ref()})
	if err != nil {
		return nil, fmt.Errorf("%w: page %d object count: %s: %v", ErrExtraction, p.index, pdfiumReason(err), err)
	}

	var images []*pixbuf.Buffer
	// On any failure, buffers collected so far are released before returning
	// so ownership never leaks out of a failed call.
	releaseAll := func() {
		for _, img := range images {
			img.Release()
		}
	}

	for i := 0; i < countResp.Count; i++ {
		objResp, err := inst.FPDFPage_GetObject(&requests.FPDFPage_GetObject{
			Page:  p.ref(),
			Index: i,
		})
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("%w: page %d object %d: %s: %v", ErrExtraction, p.index, i, pdfiumReason(err), err)
		}
		typeResp, err := inst.FPDFPageObj_GetType(&requests.FPDFPageObj_GetType{
			PageObject: objResp.PageObject,
		})
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("%w: page %d object %d type: %s: %v", ErrExtraction, p.index, i, pdfiumReason(err), err)
		}
		if typeResp.Type != enums.FPDF_PAGEOBJ_IMAGE {
			continue
		}

		bmpResp, err := inst.FPDFImageObj_GetRenderedBitmap(&requests.FPDFImageObj_GetRenderedBitmap{
			Document:    p.doc,
			Page:        p.ref(),
			ImageObject: objResp.PageObject,
		})
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("%w: page %d image %d: %s: %v", ErrExtraction, p.index, i, pdfiumReason(err), err)
		}
		buf, err := p.renderer.readBitmap(bmpResp.Bitmap)
		if _, derr := inst.FPDFBitmap_Destroy(&requests.FPDFBitmap_Destroy{Bitmap: bmpResp.Bitmap}); derr != nil && Logger != nil {
			Logger.Warn("Failed to destroy image bitmap", "page", p.index, "object", i, "error", derr)
		}
		if err != nil {
			releaseAll()
			return nil, fmt.Errorf("page %d image %d: %w", p.index, i, err)
		}
		images = append(images, buf)
	}
	return images, nil
}

func (p *pdfiumPage) Close() error {
	_, err := p.renderer.instance.FPDF_ClosePage(&requests.FPDF_ClosePage{Page: p.page})
	if err != nil {
		return fmt.Errorf("failed to close page %d: %w", p.index, err)
	}
	return nil
}
