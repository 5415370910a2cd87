// Package sheet computes ID photo sheet layouts: how many 3x4 cm cells fit on a
// page and where each of them goes. Everything here is pure; image loading and
// rendering live in the photo and render packages.
package sheet

import (
	"fmt"
	"strings"
)

// PageSize identifies one of the supported paper formats.
type PageSize int

const (
	A4 PageSize = iota + 1
	Letter
)

// PageSizes lists the supported formats in display order.
var PageSizes = []PageSize{A4, Letter}

// Dimensions is a physical page size in millimeters.
type Dimensions struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
}

var pageDimensions = map[PageSize]Dimensions{
	A4:     {WidthMM: 210, HeightMM: 297},
	Letter: {WidthMM: 215.9, HeightMM: 279.4},
}

// ParsePageSize maps a case-insensitive name ("A4", "letter") to a PageSize.
func ParsePageSize(name string) (PageSize, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "A4":
		return A4, nil
	case "LETTER":
		return Letter, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPageSize, name)
}

// Valid reports whether p is one of the supported formats.
func (p PageSize) Valid() bool {
	_, ok := pageDimensions[p]
	return ok
}

// Dimensions returns the physical size of the page.
func (p PageSize) Dimensions() (Dimensions, error) {
	d, ok := pageDimensions[p]
	if !ok {
		return Dimensions{}, fmt.Errorf("%w: %d", ErrInvalidPageSize, int(p))
	}
	return d, nil
}

func (p PageSize) String() string {
	switch p {
	case A4:
		return "A4"
	case Letter:
		return "Letter"
	}
	return fmt.Sprintf("PageSize(%d)", int(p))
}

// WidthInches and HeightInches are used by renderers that take paper sizes in inches.
func (d Dimensions) WidthInches() float64  { return d.WidthMM / 25.4 }
func (d Dimensions) HeightInches() float64 { return d.HeightMM / 25.4 }

// MarshalText encodes the page by name.
func (p PageSize) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidPageSize, int(p))
	}
	return []byte(p.String()), nil
}

func (p *PageSize) UnmarshalText(text []byte) error {
	v, err := ParsePageSize(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
