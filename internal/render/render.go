// Package render turns a sheet.Document into printable bytes. Every renderer
// draws the cells exactly where the document puts them; none of them lays out
// anything on its own.
package render

import (
	"context"
	"fmt"
	"strings"

	"idsheet/internal/photo"
	"idsheet/internal/sheet"
)

// Format is an output kind.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatHTML Format = "html"
	FormatPNG  Format = "png"
)

// Engine selects the PDF backend.
type Engine string

const (
	EngineChrome Engine = "chrome"
	EngineVector Engine = "vector"
)

// Title is written into document metadata.
const Title = "Foto 3x4 Sheet"

// Renderer produces one output format.
type Renderer interface {
	Render(ctx context.Context, doc sheet.Document, p *photo.Photo) ([]byte, error)
	ContentType() string
	Extension() string
}

// Options are shared by all renderers.
type Options struct {
	CutGuides bool
	DPI       int
}

// ParseFormat accepts "pdf", "html" or "png" in any case; empty means pdf.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPDF, nil
	case FormatPDF, FormatHTML, FormatPNG:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q", s)
}

// ParseEngine accepts "chrome" or "vector"; empty yields fallback.
func ParseEngine(s string, fallback Engine) (Engine, error) {
	switch e := Engine(strings.ToLower(strings.TrimSpace(s))); e {
	case "":
		return fallback, nil
	case EngineChrome, EngineVector:
		return e, nil
	}
	return "", fmt.Errorf("unsupported engine %q", s)
}

func checkInputs(doc sheet.Document, p *photo.Photo) error {
	if p == nil || len(p.JPEG) == 0 {
		return sheet.ErrMissingImage
	}
	return doc.Validate()
}
