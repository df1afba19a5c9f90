// Package codec is the dedicated JPEG encode path. It reads scanlines straight
// out of raw pixel buffers through image.Image views, so no intermediate pixel
// copy is made before entropy coding.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"

	"github.com/jsscheller/pdfr/pixbuf"
)

// ErrCodec reports a JPEG encoder failure or a buffer the codec cannot accept.
var ErrCodec = errors.New("jpeg encode failed")

// EncodeJPEG encodes a pixel buffer into a complete JPEG stream. Quality must
// be in [1,100]. Only RGB24 and Gray8 buffers are accepted; RGBA32 must be
// converted before reaching the codec. The buffer stays owned by the caller.
// On failure nothing is returned: output is a whole valid stream or nil.
func EncodeJPEG(buf *pixbuf.Buffer, quality int) ([]byte, error) {
	if quality < 1 || quality > 100 {
		return nil, fmt.Errorf("%w: quality %d outside [1,100]", ErrCodec, quality)
	}
	data, err := buf.Data()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}

	var img image.Image
	switch buf.Format() {
	case pixbuf.RGB24:
		img = &rgbImage{pix: data, stride: buf.Stride(), width: buf.Width(), height: buf.Height()}
	case pixbuf.Gray8:
		img = &image.Gray{
			Pix:    data,
			Stride: buf.Stride(),
			Rect:   image.Rect(0, 0, buf.Width(), buf.Height()),
		}
	default:
		return nil, fmt.Errorf("%w: format %v not accepted, convert to rgb24 or gray8 first", ErrCodec, buf.Format())
	}

	var out bytes.Buffer
	if err := jpeg.Encode(&out, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCodec, err)
	}
	return out.Bytes(), nil
}

// rgbImage exposes a packed RGB24 buffer as an image.Image without copying.
type rgbImage struct {
	pix    []byte
	stride int
	width  int
	height int
}

func (m *rgbImage) ColorModel() color.Model { return color.RGBAModel }

func (m *rgbImage) Bounds() image.Rectangle { return image.Rect(0, 0, m.width, m.height) }

func (m *rgbImage) At(x, y int) color.Color {
	i := y*m.stride + x*3
	return color.RGBA{R: m.pix[i], G: m.pix[i+1], B: m.pix[i+2], A: 0xff}
}
