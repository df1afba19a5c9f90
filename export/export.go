// Package export routes pixel buffers to the codec that handles the requested
// target format: JPEG goes through the dedicated codec path, everything else
// through the general image encoder. The dispatcher owns the buffer it is
// handed and releases it exactly once, on every branch.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/jsscheller/pdfr/codec"
	"github.com/jsscheller/pdfr/pixbuf"
)

// ErrDispatch wraps any failure on the way from pixel buffer to encoded bytes.
var ErrDispatch = errors.New("export failed")

// Format is the closed set of supported target image formats.
type Format int

const (
	JPEG Format = iota
	PNG
	GIF
	TIFF
	BMP
)

func (f Format) String() string {
	switch f {
	case JPEG:
		return "jpeg"
	case PNG:
		return "png"
	case GIF:
		return "gif"
	case TIFF:
		return "tiff"
	case BMP:
		return "bmp"
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// Ext returns the file extension for the format, without the dot.
func (f Format) Ext() string {
	if f == JPEG {
		return "jpg"
	}
	return f.String()
}

// ParseFormat parses a format name as given on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "gif":
		return GIF, nil
	case "tiff", "tif":
		return TIFF, nil
	case "bmp":
		return BMP, nil
	}
	return 0, fmt.Errorf("unsupported format %q (supported: jpeg, png, gif, tiff, bmp)", s)
}

// Request holds the per-export parameters. Quality only applies to JPEG.
type Request struct {
	Format  Format
	Quality int
}

// Export encodes buf per req. It takes ownership of buf: whatever happens,
// the buffer (and any buffer produced by conversion along the way) is
// released before Export returns.
func Export(buf *pixbuf.Buffer, req Request) (out []byte, err error) {
	cur := buf
	defer func() { cur.Release() }()

	switch req.Format {
	case JPEG:
		if cur.Format() == pixbuf.RGBA32 {
			// The codec only takes RGB24/Gray8; straight-drop the alpha.
			conv, cerr := pixbuf.Convert(cur, pixbuf.RGB24)
			if cerr != nil {
				return nil, fmt.Errorf("%w: %v", ErrDispatch, cerr)
			}
			cur = conv
		}
		data, cerr := codec.EncodeJPEG(cur, req.Quality)
		if cerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDispatch, cerr)
		}
		return data, nil
	case PNG, GIF, TIFF, BMP:
		img, cerr := cur.NRGBA()
		if cerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDispatch, cerr)
		}
		var w bytes.Buffer
		if cerr := imaging.Encode(&w, img, imagingFormat(req.Format)); cerr != nil {
			return nil, fmt.Errorf("%w: %v", ErrDispatch, cerr)
		}
		return w.Bytes(), nil
	}
	return nil, fmt.Errorf("%w: unsupported format %v", ErrDispatch, req.Format)
}

func imagingFormat(f Format) imaging.Format {
	switch f {
	case PNG:
		return imaging.PNG
	case GIF:
		return imaging.GIF
	case TIFF:
		return imaging.TIFF
	case BMP:
		return imaging.BMP
	}
	return imaging.PNG
}
