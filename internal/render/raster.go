package render

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"

	"idsheet/internal/photo"
	"idsheet/internal/sheet"
)

// DefaultDPI is used when Options.DPI is unset.
const DefaultDPI = 300

// Raster composites the sheet into a single PNG at the configured DPI.
type Raster struct {
	opts Options
}

func NewRaster(opts Options) *Raster {
	if opts.DPI <= 0 {
		opts.DPI = DefaultDPI
	}
	return &Raster{opts: opts}
}

func (r *Raster) ContentType() string { return "image/png" }
func (r *Raster) Extension() string   { return ".png" }

// Compose returns the sheet as an image without encoding it.
func (r *Raster) Compose(ctx context.Context, doc sheet.Document, p *photo.Photo) (*image.NRGBA, error) {
	if err := checkInputs(doc, p); err != nil {
		return nil, err
	}
	if p.Image == nil {
		return nil, sheet.ErrMissingImage
	}

	px := func(v float64) int { return int(math.Round(v * float64(r.opts.DPI) / 25.4)) }

	canvas := imaging.New(px(doc.Size.WidthMM), px(doc.Size.HeightMM), color.White)
	tile := imaging.Fill(p.Image, px(doc.Cell.WidthMM), px(doc.Cell.HeightMM), imaging.Center, imaging.Lanczos)

	for _, c := range doc.Cells {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		canvas = imaging.Paste(canvas, tile, image.Pt(px(c.X), px(c.Y)))
	}
	if r.opts.CutGuides {
		guide := color.NRGBA{R: guideGray, G: guideGray, B: guideGray, A: 255}
		for _, c := range doc.Cells {
			outline(canvas, image.Rect(px(c.X), px(c.Y), px(c.Right()), px(c.Bottom())), guide)
		}
	}
	return canvas, nil
}

func (r *Raster) Render(ctx context.Context, doc sheet.Document, p *photo.Photo) ([]byte, error) {
	canvas, err := r.Compose(ctx, doc, p)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, canvas, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// outline draws a one-pixel border just inside rect.
func outline(img *image.NRGBA, rect image.Rectangle, c color.NRGBA) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return
	}
	for x := rect.Min.X; x < rect.Max.X; x++ {
		img.SetNRGBA(x, rect.Min.Y, c)
		img.SetNRGBA(x, rect.Max.Y-1, c)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		img.SetNRGBA(rect.Min.X, y, c)
		img.SetNRGBA(rect.Max.X-1, y, c)
	}
}
