package sheet

import (
	"fmt"
	"strings"
)

// ImageRef is an opaque handle to the photo shown in every cell: a data URI,
// a file path, or any URL the consuming renderer can resolve.
type ImageRef string

// PrintRequest is one export action's input.
type PrintRequest struct {
	Image    ImageRef
	Page     PageSize
	Quantity int
}

// Document is a renderer-agnostic description of a finished sheet.
type Document struct {
	Page   PageSize   `json:"page"`
	Size   Dimensions `json:"size"`
	Cell   CellSpec   `json:"cell"`
	Layout Layout     `json:"layout"`
	Image  ImageRef   `json:"-"`
	Cells  []Rect     `json:"cells"`
}

// Build lays out quantity copies of image on page.
func Build(image ImageRef, page PageSize, quantity int) (Document, error) {
	return BuildRequest(PrintRequest{Image: image, Page: page, Quantity: quantity})
}

// BuildRequest is Build for a PrintRequest.
func BuildRequest(req PrintRequest) (Document, error) {
	dims, err := req.Page.Dimensions()
	if err != nil {
		return Document{}, err
	}
	max, err := MaxPhotos(req.Page)
	if err != nil {
		return Document{}, err
	}
	if req.Quantity < 1 || req.Quantity > max {
		return Document{}, fmt.Errorf("%w: %d not in [1, %d] for %s", ErrInvalidQuantity, req.Quantity, max, req.Page)
	}
	if strings.TrimSpace(string(req.Image)) == "" {
		return Document{}, ErrMissingImage
	}

	doc := Document{
		Page:   req.Page,
		Size:   dims,
		Cell:   PhotoCell,
		Layout: DefaultLayout,
		Image:  req.Image,
		Cells:  Flow(dims, PhotoCell, DefaultLayout, req.Quantity),
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Validate re-checks the sheet invariants: a supported page, a cell count in
// range and every cell inside the page.
func (d Document) Validate() error {
	max, err := MaxPhotos(d.Page)
	if err != nil {
		return err
	}
	if n := len(d.Cells); n < 1 || n > max {
		return fmt.Errorf("%w: document holds %d cells", ErrInvalidQuantity, n)
	}
	for i, c := range d.Cells {
		if !c.Within(d.Size) {
			return fmt.Errorf("cell %d at (%.1f, %.1f) overflows %s page", i, c.X, c.Y, d.Page)
		}
	}
	return nil
}

// Quantity is the number of cells on the sheet.
func (d Document) Quantity() int { return len(d.Cells) }

// Rows is the number of cell rows the flow produced.
func (d Document) Rows() int {
	rows := 0
	last := -1.0
	for _, c := range d.Cells {
		if c.Y != last {
			rows++
			last = c.Y
		}
	}
	return rows
}
