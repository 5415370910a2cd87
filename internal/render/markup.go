package render

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"idsheet/internal/photo"
	"idsheet/internal/sheet"
)

//go:embed templates/sheet.html
var templateFS embed.FS

var sheetTemplate = template.Must(template.ParseFS(templateFS, "templates/sheet.html"))

type markupCell struct {
	X, Y, W, H string
}

type markupData struct {
	Title     string
	PageName  string
	Width     string
	Height    string
	Image     template.URL
	CutGuides bool
	Cells     []markupCell
}

// Markup renders a sheet as a standalone HTML page with every cell absolutely
// positioned in millimeters, for browser print pipelines.
type Markup struct {
	opts Options
}

func NewMarkup(opts Options) *Markup {
	return &Markup{opts: opts}
}

func (m *Markup) ContentType() string { return "text/html; charset=utf-8" }
func (m *Markup) Extension() string   { return ".html" }

// Render uses the photo's data URI when given, otherwise the document's own
// image reference.
func (m *Markup) Render(_ context.Context, doc sheet.Document, p *photo.Photo) ([]byte, error) {
	if p != nil && len(p.JPEG) > 0 {
		doc.Image = p.Ref()
	}
	s, err := m.HTML(doc)
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

// HTML renders the page markup for doc.
func (m *Markup) HTML(doc sheet.Document) (string, error) {
	if strings.TrimSpace(string(doc.Image)) == "" {
		return "", sheet.ErrMissingImage
	}
	if err := doc.Validate(); err != nil {
		return "", err
	}

	data := markupData{
		Title:     Title,
		PageName:  doc.Page.String(),
		Width:     mm(doc.Size.WidthMM),
		Height:    mm(doc.Size.HeightMM),
		Image:     template.URL(doc.Image), //nolint:gosec // data URI built by package photo or a caller-owned URL
		CutGuides: m.opts.CutGuides,
		Cells:     make([]markupCell, 0, len(doc.Cells)),
	}
	for _, c := range doc.Cells {
		data.Cells = append(data.Cells, markupCell{X: mm(c.X), Y: mm(c.Y), W: mm(c.W), H: mm(c.H)})
	}

	var buf bytes.Buffer
	if err := sheetTemplate.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("execute sheet template: %w", err)
	}
	return buf.String(), nil
}

func mm(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "mm"
}
