// Package pagerange parses page selections and target image sizes from
// command line arguments. Page indices are 0-based throughout.
package pagerange

import (
	"fmt"
	"strconv"
	"strings"
)

// Set is an ordered list of page intervals, e.g. "0-2,5,9-".
// An interval with an open end ("9-") runs to the last page of the document.
type Set struct {
	items []interval
}

type interval struct {
	start int
	end   int
	open  bool
}

// Parse parses a comma separated list of pages and inclusive ranges.
// Accepted forms per item: "3", "1-4" and "7-" (open ended).
func Parse(s string) (*Set, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("empty page selection")
	}
	set := &Set{}
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		dash := strings.Index(item, "-")
		var iv interval
		var err error
		if dash < 0 {
			iv.start, err = strconv.Atoi(item)
			if err != nil {
				return nil, fmt.Errorf("invalid page %q: %w", item, err)
			}
			iv.end = iv.start
		} else {
			iv.start, err = strconv.Atoi(item[:dash])
			if err != nil {
				return nil, fmt.Errorf("invalid interval %q: %w", item, err)
			}
			if dash == len(item)-1 {
				iv.open = true
			} else {
				iv.end, err = strconv.Atoi(item[dash+1:])
				if err != nil {
					return nil, fmt.Errorf("invalid interval %q: %w", item, err)
				}
				if iv.end < iv.start {
					return nil, fmt.Errorf("invalid interval %q: end must not be less than start", item)
				}
			}
		}
		if iv.start < 0 {
			return nil, fmt.Errorf("invalid page %q: pages are 0-based and must not be negative", item)
		}
		set.items = append(set.items, iv)
	}
	return set, nil
}

// All returns a set covering every page of a document.
func All() *Set {
	return &Set{items: []interval{{start: 0, open: true}}}
}

// Pages expands the set against a document with pageCount pages. Open ends
// are clamped to the last page. Out-of-range pages the user named are kept,
// including the start of an open interval that lies beyond the document, so
// that the caller can report them as page access failures instead of silently
// skipping them.
func (s *Set) Pages(pageCount int) []int {
	var pages []int
	for _, iv := range s.items {
		end := iv.end
		if iv.open {
			end = pageCount - 1
			if end < iv.start && pageCount > 0 {
				end = iv.start
			}
		}
		for p := iv.start; p <= end; p++ {
			pages = append(pages, p)
		}
	}
	return pages
}

// Size is a requested output size in pixels. A zero dimension means
// "derive from the page aspect ratio".
type Size struct {
	Width  float64
	Height float64
}

// ParseSize parses "800x600", "800" (width only) or "x600" (height only).
func ParseSize(s string) (*Size, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil, fmt.Errorf("empty size")
	}
	size := &Size{}
	if strings.Contains(s, "x") {
		parts := strings.SplitN(s, "x", 2)
		if parts[0] != "" {
			w, err := strconv.ParseFloat(parts[0], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid size %q: %w", s, err)
			}
			size.Width = w
		}
		if parts[1] != "" {
			h, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return nil, fmt.Errorf("invalid size %q: %w", s, err)
			}
			size.Height = h
		}
	} else {
		w, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid size %q: %w", s, err)
		}
		size.Width = w
	}
	if size.Width < 0 || size.Height < 0 {
		return nil, fmt.Errorf("invalid size %q: dimensions must be positive", s)
	}
	if size.Width == 0 && size.Height == 0 {
		return nil, fmt.Errorf("invalid size %q: at least one dimension is required", s)
	}
	return size, nil
}
