package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/jsscheller/pdfr/config"
	"github.com/jsscheller/pdfr/engine/pdfrenderer"
	"github.com/jsscheller/pdfr/export"
	"github.com/jsscheller/pdfr/pagerange"
	"github.com/jsscheller/pdfr/pixbuf"
)

func TestMain(m *testing.M) {
	Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	pdfrenderer.Logger = Logger
	os.Exit(m.Run())
}

// fakeRenderer serves synthetic pages so pipeline behavior can be tested
// without a native engine.
type fakeRenderer struct {
	openErr   error
	pageCount int
	// pages that fail at a given stage, keyed by index
	pageErr   map[int]error
	renderErr map[int]error
	textErr   map[int]error
	text      map[int][]uint16
	// called at the start of every Render when set
	renderHook func()
}

func (f *fakeRenderer) Open(path string) (pdfrenderer.Document, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeDocument{r: f}, nil
}

func (f *fakeRenderer) Close() error { return nil }

type fakeDocument struct {
	r *fakeRenderer
}

func (d *fakeDocument) PageCount() (int, error) { return d.r.pageCount, nil }

func (d *fakeDocument) Page(index int) (pdfrenderer.Page, error) {
	if index < 0 || index >= d.r.pageCount {
		return nil, fmt.Errorf("%w: page index %d out of range", pdfrenderer.ErrPageAccess, index)
	}
	if err := d.r.pageErr[index]; err != nil {
		return nil, err
	}
	return &fakePage{r: d.r, index: index}, nil
}

func (d *fakeDocument) Close() error { return nil }

type fakePage struct {
	r     *fakeRenderer
	index int
}

// 200x300 points, so a 72 DPI render is 200x300 pixels.
func (p *fakePage) Size() (float64, float64, error) { return 200, 300, nil }
func (p *fakePage) Rotation() (int, error)          { return 0, nil }

func (p *fakePage) Render(width, height, rotate int, format pixbuf.Format) (*pixbuf.Buffer, error) {
	if p.r.renderHook != nil {
		p.r.renderHook()
	}
	if err := p.r.renderErr[p.index]; err != nil {
		return nil, err
	}
	stride := width * format.BytesPerPixel()
	data := make([]byte, stride*height)
	for i := range data {
		data[i] = 0x80
	}
	return pixbuf.New(width, height, stride, format, pixbuf.OriginPDFium, data)
}

func (p *fakePage) TextUTF16() ([]uint16, error) {
	if err := p.r.textErr[p.index]; err != nil {
		return nil, err
	}
	return p.r.text[p.index], nil
}

func (p *fakePage) Images() ([]*pixbuf.Buffer, error) {
	buf, err := pixbuf.New(4, 4, 16, pixbuf.RGBA32, pixbuf.OriginPDFium, make([]byte, 64))
	if err != nil {
		return nil, err
	}
	return []*pixbuf.Buffer{buf}, nil
}

func (p *fakePage) Close() error { return nil }

func testEngine(r pdfrenderer.Renderer) *Engine {
	return &Engine{
		Config: config.Config{
			Renderer:      "pdfium",
			MaxDimension:  16384,
			DPI:           72,
			Quality:       92,
			Format:        "jpeg",
			WatchInterval: 10,
		},
		Renderer: r,
	}
}

func TestRasterizeAllPages(t *testing.T) {
	fake := &fakeRenderer{pageCount: 3}
	e := testEngine(fake)
	outDir := t.TempDir()

	batch, err := e.Rasterize(context.Background(), RasterizeRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  outDir,
		Format:  export.JPEG,
		Quality: 92,
		DPI:     72,
	})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(batch.Results))
	}
	if batch.Failed() != 0 {
		t.Fatalf("got %d failed pages, want 0", batch.Failed())
	}

	for i, r := range batch.Results {
		wantPath := filepath.Join(outDir, fmt.Sprintf("doc_%d.jpg", i))
		if r.Path != wantPath {
			t.Errorf("page %d path = %q, want %q", i, r.Path, wantPath)
		}
		data, err := os.ReadFile(r.Path)
		if err != nil {
			t.Fatalf("reading page %d output: %v", i, err)
		}
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			t.Fatalf("page %d output is not a JPEG: %v", i, err)
		}
		bounds := img.Bounds()
		if bounds.Dx() != 200 || bounds.Dy() != 300 {
			t.Errorf("page %d dims = %dx%d, want 200x300", i, bounds.Dx(), bounds.Dy())
		}
	}
}

func TestRasterizePartialFailure(t *testing.T) {
	fake := &fakeRenderer{
		pageCount: 3,
		renderErr: map[int]error{1: fmt.Errorf("%w: checkerboard page", pdfrenderer.ErrRender)},
	}
	e := testEngine(fake)
	outDir := t.TempDir()

	batch, err := e.Rasterize(context.Background(), RasterizeRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  outDir,
		Format:  export.JPEG,
		Quality: 92,
		DPI:     72,
	})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(batch.Results) != 3 {
		t.Fatalf("got %d results, want 3", len(batch.Results))
	}
	if batch.Failed() != 1 {
		t.Fatalf("got %d failed pages, want 1", batch.Failed())
	}

	bad := batch.Results[1]
	if bad.OK() {
		t.Fatal("page 1 reported success, want failure")
	}
	if bad.Stage != StageRender {
		t.Errorf("page 1 failure stage = %q, want %q", bad.Stage, StageRender)
	}
	if !errors.Is(bad.Err, pdfrenderer.ErrRender) {
		t.Errorf("page 1 error = %v, want ErrRender", bad.Err)
	}
	// The failed page must not leave any output behind.
	if _, err := os.Stat(filepath.Join(outDir, "doc_1.jpg")); !os.IsNotExist(err) {
		t.Errorf("failed page left an output file (stat err = %v)", err)
	}
	// Pages 0 and 2 still completed.
	for _, i := range []int{0, 2} {
		if !batch.Results[i].OK() {
			t.Errorf("page %d failed: %v", i, batch.Results[i].Err)
		}
	}
}

func TestRasterizeOutOfRangePage(t *testing.T) {
	fake := &fakeRenderer{pageCount: 2}
	e := testEngine(fake)

	pages, err := pagerange.Parse("0,5")
	if err != nil {
		t.Fatal(err)
	}
	batch, err := e.Rasterize(context.Background(), RasterizeRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  t.TempDir(),
		Pages:   pages,
		Format:  export.JPEG,
		Quality: 92,
		DPI:     72,
	})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(batch.Results) != 2 {
		t.Fatalf("got %d results, want 2", len(batch.Results))
	}
	if !batch.Results[0].OK() {
		t.Errorf("page 0 failed: %v", batch.Results[0].Err)
	}
	bad := batch.Results[1]
	if bad.OK() || !errors.Is(bad.Err, pdfrenderer.ErrPageAccess) {
		t.Errorf("out-of-range page error = %v, want ErrPageAccess", bad.Err)
	}
	if bad.Stage != StagePage {
		t.Errorf("out-of-range failure stage = %q, want %q", bad.Stage, StagePage)
	}
}

func TestRasterizeOpenFailureIsFatal(t *testing.T) {
	fake := &fakeRenderer{openErr: fmt.Errorf("%w: file not found", pdfrenderer.ErrOpen)}
	e := testEngine(fake)

	_, err := e.Rasterize(context.Background(), RasterizeRequest{
		PDFPath: "/tmp/missing.pdf",
		OutDir:  t.TempDir(),
		Format:  export.JPEG,
		Quality: 92,
		DPI:     72,
	})
	if !errors.Is(err, pdfrenderer.ErrOpen) {
		t.Fatalf("Rasterize() error = %v, want ErrOpen", err)
	}
}

func TestRasterizeCancelledContext(t *testing.T) {
	fake := &fakeRenderer{pageCount: 3}
	e := testEngine(fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	batch, err := e.Rasterize(ctx, RasterizeRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  t.TempDir(),
		Format:  export.JPEG,
		Quality: 92,
		DPI:     72,
	})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	if len(batch.Results) != 0 {
		t.Fatalf("cancelled run processed %d pages, want 0", len(batch.Results))
	}
}

func TestRasterizeExplicitSize(t *testing.T) {
	fake := &fakeRenderer{pageCount: 1}
	e := testEngine(fake)
	outDir := t.TempDir()

	size, err := pagerange.ParseSize("100")
	if err != nil {
		t.Fatal(err)
	}
	batch, err := e.Rasterize(context.Background(), RasterizeRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  outDir,
		Format:  export.PNG,
		Quality: 92,
		Size:    size,
	})
	if err != nil {
		t.Fatalf("Rasterize() error = %v", err)
	}
	r := batch.Results[0]
	if !r.OK() {
		t.Fatalf("page failed: %v", r.Err)
	}
	// 200x300 points at width 100 keeps the aspect ratio.
	if r.Width != 100 || r.Height != 150 {
		t.Errorf("dims = %dx%d, want 100x150", r.Width, r.Height)
	}
	if filepath.Ext(r.Path) != ".png" {
		t.Errorf("output path = %q, want .png extension", r.Path)
	}
}

func TestExtractText(t *testing.T) {
	fake := &fakeRenderer{
		pageCount: 2,
		text: map[int][]uint16{
			0: {'h', 'i'},
			1: {'a', 0xD800, 'b'}, // unpaired high surrogate
		},
	}
	e := testEngine(fake)
	outDir := t.TempDir()

	batch, err := e.ExtractText(context.Background(), ExtractTextRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  outDir,
	})
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if batch.Failed() != 0 {
		t.Fatalf("got %d failed pages, want 0", batch.Failed())
	}

	got0, err := os.ReadFile(filepath.Join(outDir, "doc_0.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got0) != "hi" {
		t.Errorf("page 0 text = %q, want %q", got0, "hi")
	}
	got1, err := os.ReadFile(filepath.Join(outDir, "doc_1.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got1) != "a�b" {
		t.Errorf("page 1 text = %q, want %q", got1, "a�b")
	}
}

func TestExtractTextPageFailure(t *testing.T) {
	fake := &fakeRenderer{
		pageCount: 2,
		text:      map[int][]uint16{0: {'o', 'k'}},
		textErr:   map[int]error{1: fmt.Errorf("%w: no text layer", pdfrenderer.ErrExtraction)},
	}
	e := testEngine(fake)

	batch, err := e.ExtractText(context.Background(), ExtractTextRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  t.TempDir(),
	})
	if err != nil {
		t.Fatalf("ExtractText() error = %v", err)
	}
	if batch.Failed() != 1 {
		t.Fatalf("got %d failed pages, want 1", batch.Failed())
	}
	bad := batch.Results[1]
	if bad.Stage != StageExtract {
		t.Errorf("failure stage = %q, want %q", bad.Stage, StageExtract)
	}
	// The fallback extractor also failed (no real file), so the native
	// error is the one reported.
	if !errors.Is(bad.Err, pdfrenderer.ErrExtraction) {
		t.Errorf("error = %v, want ErrExtraction", bad.Err)
	}
}

func TestPageCount(t *testing.T) {
	e := testEngine(&fakeRenderer{pageCount: 7})
	n, err := e.PageCount("/tmp/doc.pdf")
	if err != nil {
		t.Fatalf("PageCount() error = %v", err)
	}
	if n != 7 {
		t.Errorf("PageCount() = %d, want 7", n)
	}
}

func TestExtractImages(t *testing.T) {
	e := testEngine(&fakeRenderer{pageCount: 1})
	outDir := t.TempDir()

	batch, err := e.ExtractImages(context.Background(), ExtractImagesRequest{
		PDFPath: "/tmp/doc.pdf",
		OutDir:  outDir,
		Format:  export.PNG,
		Quality: 92,
	})
	if err != nil {
		t.Fatalf("ExtractImages() error = %v", err)
	}
	if batch.Failed() != 0 {
		t.Fatalf("got %d failed pages, want 0", batch.Failed())
	}
	if _, err := os.Stat(filepath.Join(outDir, "doc_0_0.png")); err != nil {
		t.Errorf("expected embedded image output: %v", err)
	}
}

func TestTargetDims(t *testing.T) {
	tests := []struct {
		name    string
		pw, ph  float64
		size    *pagerange.Size
		dpi     int
		wantW   int
		wantH   int
	}{
		{name: "dpi 72 is points", pw: 200, ph: 300, dpi: 72, wantW: 200, wantH: 300},
		{name: "dpi 144 doubles", pw: 200, ph: 300, dpi: 144, wantW: 400, wantH: 600},
		{name: "explicit both", pw: 200, ph: 300, size: &pagerange.Size{Width: 80, Height: 60}, wantW: 80, wantH: 60},
		{name: "width only", pw: 200, ph: 300, size: &pagerange.Size{Width: 100}, wantW: 100, wantH: 150},
		{name: "height only", pw: 200, ph: 300, size: &pagerange.Size{Height: 150}, wantW: 100, wantH: 150},
		{name: "never below one", pw: 10000, ph: 1, size: &pagerange.Size{Height: 1}, wantW: 10000, wantH: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, h := targetDims(tt.pw, tt.ph, tt.size, tt.dpi)
			if w != tt.wantW || h != tt.wantH {
				t.Errorf("targetDims() = %dx%d, want %dx%d", w, h, tt.wantW, tt.wantH)
			}
		})
	}
}

func TestWriteFileAtomicNoPartials(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.bin")
	if err := writeFileAtomic(path, []byte("hello")); err != nil {
		t.Fatalf("writeFileAtomic() error = %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("content = %q, want %q", got, "hello")
	}
	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("dir has %d entries, want 1", len(entries))
	}
}
