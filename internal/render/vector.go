package render

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"

	"idsheet/internal/photo"
	"idsheet/internal/sheet"
)

const (
	guideGray    = 204
	guideWidthMM = 0.13 // ~0.5px at 96 dpi
	imageName    = "photo"
)

// VectorPDF draws the sheet directly with fpdf: one embedded JPEG, placed
// once per cell under a clipping rectangle.
type VectorPDF struct {
	opts Options
	// CreationDate is fixed so identical inputs give identical bytes.
	CreationDate time.Time
}

func NewVectorPDF(opts Options) *VectorPDF {
	return &VectorPDF{opts: opts, CreationDate: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (v *VectorPDF) ContentType() string { return "application/pdf" }
func (v *VectorPDF) Extension() string   { return ".pdf" }

func (v *VectorPDF) Render(ctx context.Context, doc sheet.Document, p *photo.Photo) ([]byte, error) {
	if err := checkInputs(doc, p); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: doc.Size.WidthMM, Ht: doc.Size.HeightMM},
	})
	pdf.SetCatalogSort(true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle(Title, true)
	pdf.SetCreator("idsheet", true)
	pdf.SetCreationDate(v.CreationDate)
	pdf.SetModificationDate(v.CreationDate)
	pdf.AddPage()

	imgOpts := fpdf.ImageOptions{ImageType: "JPG"}
	pdf.RegisterImageOptionsReader(imageName, imgOpts, bytes.NewReader(p.JPEG))

	for _, c := range doc.Cells {
		pl := Cover(c, p.Width, p.Height)
		pdf.ClipRect(c.X, c.Y, c.W, c.H, false)
		pdf.ImageOptions(imageName, pl.X, pl.Y, pl.W, pl.H, false, imgOpts, 0, "")
		pdf.ClipEnd()
	}

	if v.opts.CutGuides {
		pdf.SetDrawColor(guideGray, guideGray, guideGray)
		pdf.SetLineWidth(guideWidthMM)
		for _, c := range doc.Cells {
			pdf.Rect(c.X, c.Y, c.W, c.H, "D")
		}
	}

	if pdf.Err() {
		return nil, fmt.Errorf("vector pdf: %w", pdf.Error())
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("vector pdf output: %w", err)
	}
	return buf.Bytes(), nil
}
