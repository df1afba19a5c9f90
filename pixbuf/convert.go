package pixbuf

import "fmt"

// Convert produces a buffer in target format from src. Supported conversions:
// RGBA32→RGB24 (alpha is dropped outright, no compositing) and
// RGBA32/RGB24→Gray8 (JFIF luma weights). Converting to the source format
// returns src unchanged. On success with a new allocation, src is released and
// must not be reused; on failure src is left untouched and still owned by the
// caller.
func Convert(src *Buffer, target Format) (*Buffer, error) {
	if src.Format() == target {
		return src, nil
	}
	data, err := src.Data()
	if err != nil {
		return nil, err
	}

	w, h, stride := src.Width(), src.Height(), src.Stride()
	var out []byte
	switch {
	case src.Format() == RGBA32 && target == RGB24:
		out = make([]byte, w*h*3)
		for y := 0; y < h; y++ {
			row := data[y*stride:]
			dst := out[y*w*3:]
			for x := 0; x < w; x++ {
				dst[x*3+0] = row[x*4+0]
				dst[x*3+1] = row[x*4+1]
				dst[x*3+2] = row[x*4+2]
			}
		}
	case src.Format() == RGBA32 && target == Gray8:
		out = make([]byte, w*h)
		for y := 0; y < h; y++ {
			row := data[y*stride:]
			dst := out[y*w:]
			for x := 0; x < w; x++ {
				dst[x] = luma(row[x*4+0], row[x*4+1], row[x*4+2])
			}
		}
	case src.Format() == RGB24 && target == Gray8:
		out = make([]byte, w*h)
		for y := 0; y < h; y++ {
			row := data[y*stride:]
			dst := out[y*w:]
			for x := 0; x < w; x++ {
				dst[x] = luma(row[x*3+0], row[x*3+1], row[x*3+2])
			}
		}
	default:
		return nil, fmt.Errorf("%w: %v to %v", ErrUnsupportedConversion, src.Format(), target)
	}

	conv, err := New(w, h, w*target.BytesPerPixel(), target, OriginConvert, out)
	if err != nil {
		return nil, err
	}
	src.Release()
	return conv, nil
}

// luma matches the stdlib color.GrayModel weighting.
func luma(r, g, b byte) byte {
	return byte((19595*uint32(r) + 38470*uint32(g) + 7471*uint32(b) + 1<<15) >> 16)
}
