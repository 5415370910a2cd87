package sheet

// Rect is a cell position on the page in millimeters, origin at the top-left corner.
type Rect struct {
	X float64 `json:"x_mm"`
	Y float64 `json:"y_mm"`
	W float64 `json:"width_mm"`
	H float64 `json:"height_mm"`
}

func (r Rect) Right() float64  { return r.X + r.W }
func (r Rect) Bottom() float64 { return r.Y + r.H }

// Within reports whether r lies entirely inside a page of the given size.
func (r Rect) Within(d Dimensions) bool {
	return r.X >= 0 && r.Y >= 0 && r.Right() <= d.WidthMM && r.Bottom() <= d.HeightMM
}

// Flow places n cells in row-major order starting at the layout margins. A row
// wraps when one more cell would cross the right page edge. Only the leading
// margins are honoured; the bottom edge is not checked here.
func Flow(d Dimensions, cell CellSpec, l Layout, n int) []Rect {
	if n <= 0 {
		return nil
	}
	cells := make([]Rect, 0, n)
	x, y := l.MarginXMM, l.MarginYMM
	for i := 0; i < n; i++ {
		if x > l.MarginXMM && x+cell.WidthMM > d.WidthMM {
			x = l.MarginXMM
			y += cell.HeightMM + l.GapMM
		}
		cells = append(cells, Rect{X: x, Y: y, W: cell.WidthMM, H: cell.HeightMM})
		x += cell.WidthMM + l.GapMM
	}
	return cells
}

// Columns returns how many cells Flow puts on one row of the page.
func Columns(d Dimensions, cell CellSpec, l Layout) int {
	cols := 0
	for x := l.MarginXMM; x+cell.WidthMM <= d.WidthMM; x += cell.WidthMM + l.GapMM {
		cols++
	}
	return cols
}
