// Package textextract turns the native text layer's UTF-16 code units into Go
// strings. Malformed UTF-16 never fails extraction: unpaired surrogates are
// replaced with U+FFFD at their position, deterministically.
package textextract

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf16"

	"github.com/ledongthuc/pdf"

	"github.com/jsscheller/pdfr/engine/pdfrenderer"
)

// Logger is global since we will need it everywhere
var Logger *slog.Logger

// DecodeUTF16 decodes native UTF-16 code units. A high surrogate not followed
// by a low surrogate, or a stray low surrogate, decodes to one U+FFFD.
func DecodeUTF16(units []uint16) string {
	var sb strings.Builder
	sb.Grow(len(units))
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case u < 0xD800 || u > 0xDFFF:
			sb.WriteRune(rune(u))
		case u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			sb.WriteRune(utf16.DecodeRune(rune(u), rune(units[i+1])))
			i++
		default:
			sb.WriteRune('�')
		}
	}
	return sb.String()
}

// FromPage extracts the text of one page through the renderer's text layer.
// Only a native-layer error fails extraction; malformed UTF-16 never does.
func FromPage(page pdfrenderer.Page) (string, error) {
	units, err := page.TextUTF16()
	if err != nil {
		return "", err
	}
	return DecodeUTF16(units), nil
}

// PlainText is the pure-Go fallback extractor. It reads the page's text
// directly out of the PDF content streams, without the native engine.
// Pages are 0-based here, matching the rest of the pipeline.
func PlainText(path string, pageIndex int) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("fallback extractor: %w", err)
	}
	defer file.Close()

	if pageIndex < 0 || pageIndex >= reader.NumPage() {
		return "", fmt.Errorf("fallback extractor: page %d out of range [0,%d)", pageIndex, reader.NumPage())
	}
	// ledongthuc counts pages from 1.
	page := reader.Page(pageIndex + 1)
	if page.V.IsNull() {
		return "", fmt.Errorf("fallback extractor: page %d is null", pageIndex)
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("fallback extractor: page %d: %w", pageIndex, err)
	}
	return text, nil
}
