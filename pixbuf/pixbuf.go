// Package pixbuf owns raw pixel memory handed across the native rendering and
// codec boundaries. A Buffer carries its layout metadata and an origin tag, and
// tracks release so pixels are never read after their owner has let go of them.
package pixbuf

import (
	"errors"
	"fmt"
	"image"
)

var (
	// ErrInvalidBuffer reports a buffer that violates the stride/length
	// invariants. Seeing it means a native library broke its contract.
	ErrInvalidBuffer = errors.New("invalid pixel buffer")
	// ErrUnsupportedConversion reports a pixel format conversion outside the
	// supported set.
	ErrUnsupportedConversion = errors.New("unsupported pixel format conversion")
	// ErrReleased reports a read of a buffer after its release.
	ErrReleased = errors.New("pixel buffer already released")
)

// Format is a per-pixel channel layout.
type Format int

const (
	Gray8 Format = iota
	RGB24
	RGBA32
)

// BytesPerPixel returns the packed size of one pixel in the format.
func (f Format) BytesPerPixel() int {
	switch f {
	case Gray8:
		return 1
	case RGB24:
		return 3
	case RGBA32:
		return 4
	}
	return 0
}

func (f Format) String() string {
	switch f {
	case Gray8:
		return "gray8"
	case RGB24:
		return "rgb24"
	case RGBA32:
		return "rgba32"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Origin tags which allocator produced a buffer.
const (
	OriginPDFium  = "pdfium"
	OriginFitz    = "fitz"
	OriginConvert = "convert"
)

// Buffer is a raw block of pixel data plus its layout. It is owned by exactly
// one holder at a time and is not safe for concurrent use; the pipeline never
// shares a buffer between in-flight operations.
type Buffer struct {
	width    int
	height   int
	stride   int
	format   Format
	origin   string
	data     []byte
	released bool
}

// New validates the layout invariants and wraps data in a Buffer. The caller
// hands over ownership of data.
func New(width, height, stride int, format Format, origin string, data []byte) (*Buffer, error) {
	bpp := format.BytesPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w: unknown format %v", ErrInvalidBuffer, format)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: non-positive dimensions %dx%d", ErrInvalidBuffer, width, height)
	}
	if stride < width*bpp {
		return nil, fmt.Errorf("%w: stride %d < width %d * %d bytes/pixel", ErrInvalidBuffer, stride, width, bpp)
	}
	if len(data) < stride*height {
		return nil, fmt.Errorf("%w: %d bytes < stride %d * height %d", ErrInvalidBuffer, len(data), stride, height)
	}
	return &Buffer{
		width:  width,
		height: height,
		stride: stride,
		format: format,
		origin: origin,
		data:   data,
	}, nil
}

func (b *Buffer) Width() int     { return b.width }
func (b *Buffer) Height() int    { return b.height }
func (b *Buffer) Stride() int    { return b.stride }
func (b *Buffer) Format() Format { return b.format }
func (b *Buffer) Origin() string { return b.origin }

// Data returns the raw pixels. It fails once the buffer has been released.
func (b *Buffer) Data() ([]byte, error) {
	if b.released {
		return nil, fmt.Errorf("%w (origin %s)", ErrReleased, b.origin)
	}
	return b.data, nil
}

// Release drops the pixel data. Releasing twice is a no-op; reading afterwards
// is an error.
func (b *Buffer) Release() {
	b.released = true
	b.data = nil
}

// Released reports whether Release has been called.
func (b *Buffer) Released() bool { return b.released }

// NRGBA copies the buffer into an image.NRGBA for the general image encoder.
// The buffer itself stays owned by the caller.
func (b *Buffer) NRGBA() (*image.NRGBA, error) {
	src, err := b.Data()
	if err != nil {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	for y := 0; y < b.height; y++ {
		row := src[y*b.stride:]
		out := img.Pix[y*img.Stride:]
		switch b.format {
		case RGBA32:
			copy(out[:b.width*4], row[:b.width*4])
		case RGB24:
			for x := 0; x < b.width; x++ {
				out[x*4+0] = row[x*3+0]
				out[x*4+1] = row[x*3+1]
				out[x*4+2] = row[x*3+2]
				out[x*4+3] = 0xff
			}
		case Gray8:
			for x := 0; x < b.width; x++ {
				v := row[x]
				out[x*4+0] = v
				out[x*4+1] = v
				out[x*4+2] = v
				out[x*4+3] = 0xff
			}
		}
	}
	return img, nil
}
