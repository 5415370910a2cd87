package sheet

import "errors"

var (
	// ErrInvalidPageSize signals a page size outside the supported set (A4, Letter).
	ErrInvalidPageSize = errors.New("invalid page size")
	// ErrInvalidQuantity signals a photo count outside [1, MaxPhotos(page)].
	ErrInvalidQuantity = errors.New("invalid quantity")
	// ErrMissingImage signals that no usable image was supplied for the sheet.
	ErrMissingImage = errors.New("missing image")
)
