package sheet

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// CellSpec is the physical size of one photo cell in millimeters.
type CellSpec struct {
	WidthMM  float64 `json:"width_mm"`
	HeightMM float64 `json:"height_mm"`
}

// PhotoCell is the 3x4 cm ID photo format.
var PhotoCell = CellSpec{WidthMM: 30, HeightMM: 40}

// Layout holds the margins and spacing shared by the planner, the builder and
// every renderer. Preview and print diverge if any of them uses other values.
type Layout struct {
	MarginXMM float64 `json:"margin_x_mm"`
	MarginYMM float64 `json:"margin_y_mm"`
	GapMM     float64 `json:"gap_mm"`
}

// DefaultLayout is the only layout sheets are produced with.
var DefaultLayout = Layout{MarginXMM: 15, MarginYMM: 15, GapMM: 4}

// maxPhotos is the contract value per page; AnalyticMaxPhotos documents where
// the numbers come from but does not override them.
var maxPhotos = map[PageSize]int{
	A4:     30,
	Letter: 25,
}

// MaxPhotos returns how many cells a sheet of the given page size may hold.
func MaxPhotos(page PageSize) (int, error) {
	n, ok := maxPhotos[page]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrInvalidPageSize, page)
	}
	return n, nil
}

// MustMaxPhotos is MaxPhotos for callers holding a known-valid page size.
func MustMaxPhotos(page PageSize) int {
	n, err := MaxPhotos(page)
	if err != nil {
		panic(err)
	}
	return n
}

// AnalyticMaxPhotos derives a cell count from margins, gap and cell size:
//
//	cols = floor((W - 2*mx + gap) / (cw + gap))
//	rows = floor((H - 2*my + gap) / (ch + gap))
func AnalyticMaxPhotos(d Dimensions, cell CellSpec, l Layout) int {
	cols := math.Floor((d.WidthMM - 2*l.MarginXMM + l.GapMM) / (cell.WidthMM + l.GapMM))
	rows := math.Floor((d.HeightMM - 2*l.MarginYMM + l.GapMM) / (cell.HeightMM + l.GapMM))
	if cols <= 0 || rows <= 0 {
		return 0
	}
	return int(cols * rows)
}

// ClampQuantity bounds requested to [1, max]. Clamping twice is a no-op.
func ClampQuantity(requested, max int) int {
	if requested < 1 {
		requested = 1
	}
	if requested > max {
		requested = max
	}
	return requested
}

// ClampInput clamps a quantity typed by a user. The leading integer of text
// is used ("4.9" and "4 photos" both mean 4); text without one leaves
// previous untouched.
func ClampInput(text string, previous, max int) int {
	n, ok := leadingInt(text)
	if !ok {
		return previous
	}
	return ClampQuantity(n, max)
}

// leadingInt parses an optional sign followed by decimal digits at the start
// of text. Values beyond the int range saturate.
func leadingInt(text string) (int, bool) {
	s := strings.TrimSpace(text)
	neg := false
	if s != "" && (s[0] == '+' || s[0] == '-') {
		neg = s[0] == '-'
		s = s[1:]
	}
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		n = math.MaxInt
	}
	if neg {
		n = -n
	}
	return n, true
}
