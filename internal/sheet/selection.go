package sheet

import "strings"

// Selection is the user's sheet configuration. The effective quantity is
// derived on demand, so changing the page under auto-fill never leaves a stale
// count behind.
type Selection struct {
	Page     PageSize
	AutoFill bool
	Manual   int
}

// DefaultSelection is the configuration a fresh session starts with.
func DefaultSelection() Selection {
	return Selection{Page: A4, Manual: 5}
}

// ResetSelection is the configuration after the user clears the sheet.
func ResetSelection() Selection {
	return Selection{Page: A4, AutoFill: true, Manual: 6}
}

// SelectionFor builds the selection a one-shot request describes: the
// default quantity, then the typed text, then auto-fill. Text that is not a
// number keeps the default.
func SelectionFor(page PageSize, autoFill bool, text string, defaultQuantity int) Selection {
	s := Selection{Page: page, Manual: defaultQuantity}
	if max, err := s.Max(); err == nil {
		s.Manual = ClampQuantity(defaultQuantity, max)
	}
	if strings.TrimSpace(text) != "" {
		s = s.WithInput(text)
	}
	if autoFill {
		s = s.WithAutoFill(true)
	}
	return s
}

// Max is MaxPhotos for the selected page.
func (s Selection) Max() (int, error) {
	return MaxPhotos(s.Page)
}

// Quantity returns the number of cells the sheet will hold.
func (s Selection) Quantity() (int, error) {
	max, err := s.Max()
	if err != nil {
		return 0, err
	}
	if s.AutoFill {
		return max, nil
	}
	return ClampQuantity(s.Manual, max), nil
}

func (s Selection) WithPage(p PageSize) Selection {
	s.Page = p
	return s
}

// WithAutoFill toggles auto-fill. Turning it on pins the manual value to the
// current maximum so that turning it off again keeps the full page.
func (s Selection) WithAutoFill(on bool) Selection {
	s.AutoFill = on
	if on {
		if max, err := s.Max(); err == nil {
			s.Manual = max
		}
	}
	return s
}

// WithManual records a quantity typed by the user and leaves auto-fill mode.
func (s Selection) WithManual(n int) Selection {
	if max, err := s.Max(); err == nil {
		n = ClampQuantity(n, max)
	}
	s.Manual = n
	s.AutoFill = false
	return s
}

// WithInput applies raw text input; unparseable text changes nothing.
func (s Selection) WithInput(text string) Selection {
	max, err := s.Max()
	if err != nil {
		return s
	}
	q, _ := s.Quantity()
	n := ClampInput(text, q, max)
	if n == q && !looksNumeric(text) {
		return s
	}
	return s.WithManual(n)
}

// Increment adds one cell unless the page is full.
func (s Selection) Increment() Selection {
	q, err := s.Quantity()
	if err != nil {
		return s
	}
	if max, _ := s.Max(); q >= max {
		return s
	}
	return s.WithManual(q + 1)
}

// Decrement removes one cell, never going below one.
func (s Selection) Decrement() Selection {
	q, err := s.Quantity()
	if err != nil || q <= 1 {
		return s
	}
	return s.WithManual(q - 1)
}

func looksNumeric(text string) bool {
	return ClampInput(text, -1, 1) != -1
}
