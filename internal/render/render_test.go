package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"idsheet/internal/photo"
	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

func solidPhoto(t *testing.T, w, h int, c color.Color) *photo.Photo {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	p, err := photo.Decode(buf.Bytes(), 90)
	require.NoError(t, err)
	return p
}

func buildDoc(t *testing.T, p *photo.Photo, page sheet.PageSize, n int) sheet.Document {
	t.Helper()
	doc, err := sheet.Build(p.Ref(), page, n)
	require.NoError(t, err)
	return doc
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatPDF, "PDF": FormatPDF, " html ": FormatHTML, "png": FormatPNG} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("docx")
	assert.Error(t, err)
}

func TestParseEngine(t *testing.T) {
	got, err := ParseEngine("", EngineVector)
	require.NoError(t, err)
	assert.Equal(t, EngineVector, got)

	got, err = ParseEngine("Chrome", EngineVector)
	require.NoError(t, err)
	assert.Equal(t, EngineChrome, got)

	_, err = ParseEngine("wkhtmltopdf", EngineVector)
	assert.Error(t, err)
}

func TestCover(t *testing.T) {
	cell := sheet.Rect{X: 15, Y: 15, W: 30, H: 40}

	t.Run("same aspect fills exactly", func(t *testing.T) {
		pl := Cover(cell, 300, 400)
		assert.InDelta(t, 15, pl.X, 1e-9)
		assert.InDelta(t, 15, pl.Y, 1e-9)
		assert.InDelta(t, 30, pl.W, 1e-9)
		assert.InDelta(t, 40, pl.H, 1e-9)
		assert.InDelta(t, 254, pl.EffectiveDPI, 1e-9)
	})

	t.Run("wide image is cropped left and right", func(t *testing.T) {
		pl := Cover(cell, 800, 400)
		assert.InDelta(t, 40, pl.H, 1e-9)
		assert.InDelta(t, 80, pl.W, 1e-9)
		assert.InDelta(t, -10, pl.X, 1e-9)
		assert.InDelta(t, 15, pl.Y, 1e-9)
		assert.InDelta(t, 254, pl.EffectiveDPI, 1e-9)
	})

	t.Run("tall image is cropped top and bottom", func(t *testing.T) {
		pl := Cover(cell, 300, 800)
		assert.InDelta(t, 30, pl.W, 1e-9)
		assert.InDelta(t, 80, pl.H, 1e-9)
		assert.InDelta(t, 15, pl.X, 1e-9)
		assert.InDelta(t, -5, pl.Y, 1e-9)
	})

	t.Run("unknown size falls back to the cell", func(t *testing.T) {
		pl := Cover(cell, 0, 0)
		assert.Equal(t, Placement{X: 15, Y: 15, W: 30, H: 40}, pl)
	})
}

func TestNewReport(t *testing.T) {
	p := solidPhoto(t, 8, 8, color.White)
	doc := buildDoc(t, p, sheet.A4, 12)

	r := NewReport(doc, 100, 140)
	assert.Equal(t, "A4", r.Page)
	assert.Equal(t, 12, r.Quantity)
	assert.Equal(t, 3, r.Rows)
	assert.InDelta(t, 84.7, r.EffectiveDPI, 1e-9)
	assert.True(t, r.LowRes)
	assert.Len(t, r.Warnings, 1)

	r = NewReport(doc, 1200, 1600)
	assert.False(t, r.LowRes)
	assert.Empty(t, r.Warnings)
}

func TestMarkup_HTML(t *testing.T) {
	p := solidPhoto(t, 30, 40, color.NRGBA{R: 200, A: 255})
	doc := buildDoc(t, p, sheet.A4, 30)

	out, err := NewMarkup(Options{CutGuides: true}).Render(context.Background(), doc, p)
	require.NoError(t, err)
	html := string(out)

	assert.Contains(t, html, "<title>Foto 3x4 Sheet</title>")
	assert.Contains(t, html, "@page { size: A4; margin: 0; }")
	assert.Contains(t, html, "width: 210mm; height: 297mm;")
	assert.Contains(t, html, "left: 15mm; top: 15mm; width: 30mm; height: 40mm;")
	assert.Contains(t, html, "data:image/jpeg;base64,")
	assert.Equal(t, 30, strings.Count(html, `class="cell guide"`))
}

func TestMarkup_LetterAndNoGuides(t *testing.T) {
	p := solidPhoto(t, 30, 40, color.White)
	doc := buildDoc(t, p, sheet.Letter, 7)

	html, err := NewMarkup(Options{}).HTML(doc)
	require.NoError(t, err)

	assert.Contains(t, html, "size: Letter;")
	assert.Contains(t, html, "width: 215.9mm; height: 279.4mm;")
	assert.Equal(t, 7, strings.Count(html, `class="cell"`))
	assert.NotContains(t, html, "guide\"")
	// seventh cell wraps to the second row on Letter's six columns
	assert.Contains(t, html, "left: 15mm; top: 59mm;")
}

func TestMarkup_MissingImage(t *testing.T) {
	p := solidPhoto(t, 30, 40, color.White)
	doc := buildDoc(t, p, sheet.A4, 2)
	doc.Image = ""

	_, err := NewMarkup(Options{}).HTML(doc)
	assert.ErrorIs(t, err, sheet.ErrMissingImage)
}

func TestVectorPDF_Render(t *testing.T) {
	p := solidPhoto(t, 60, 80, color.NRGBA{G: 180, A: 255})
	doc := buildDoc(t, p, sheet.Letter, 25)

	v := NewVectorPDF(Options{CutGuides: true})
	assert.Equal(t, "application/pdf", v.ContentType())
	assert.Equal(t, ".pdf", v.Extension())

	out, err := v.Render(context.Background(), doc, p)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")), "missing PDF header")
	assert.Contains(t, string(out), "%%EOF")
}

func TestVectorPDF_Errors(t *testing.T) {
	p := solidPhoto(t, 60, 80, color.White)
	doc := buildDoc(t, p, sheet.A4, 3)

	_, err := NewVectorPDF(Options{}).Render(context.Background(), doc, nil)
	assert.ErrorIs(t, err, sheet.ErrMissingImage)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewVectorPDF(Options{}).Render(ctx, doc, p)
	assert.ErrorIs(t, err, context.Canceled)

	bad := doc
	bad.Cells = nil
	_, err = NewVectorPDF(Options{}).Render(context.Background(), bad, p)
	assert.ErrorIs(t, err, sheet.ErrInvalidQuantity)
}

func TestRaster_Compose(t *testing.T) {
	p := solidPhoto(t, 30, 40, color.NRGBA{R: 255, A: 255})
	doc := buildDoc(t, p, sheet.A4, 1)

	r := NewRaster(Options{DPI: 100, CutGuides: true})
	img, err := r.Compose(context.Background(), doc, p)
	require.NoError(t, err)

	assert.Equal(t, 827, img.Bounds().Dx())
	assert.Equal(t, 1169, img.Bounds().Dy())

	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(5, 5), "margin stays white")
	assert.Equal(t, color.NRGBA{R: guideGray, G: guideGray, B: guideGray, A: 255}, img.NRGBAAt(59, 100), "cut guide")

	c := img.NRGBAAt(118, 138)
	assert.Greater(t, c.R, uint8(200))
	assert.Less(t, c.G, uint8(60))

	// second cell slot is empty with quantity 1
	assert.Equal(t, color.NRGBA{R: 255, G: 255, B: 255, A: 255}, img.NRGBAAt(px100(64), px100(35)))
}

func px100(mm float64) int { return int(mm*100/25.4 + 0.5) }

func TestRaster_RenderPNG(t *testing.T) {
	p := solidPhoto(t, 30, 40, color.White)
	doc := buildDoc(t, p, sheet.A4, 2)

	r := NewRaster(Options{})
	assert.Equal(t, "image/png", r.ContentType())

	out, err := NewRaster(Options{DPI: 72}).Render(context.Background(), doc, p)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 595, cfg.Width)
	assert.Equal(t, 842, cfg.Height)
}

func TestChromePDF_MissingImageSkipsBrowser(t *testing.T) {
	cfg := u.DefaultConfig()
	c := NewChromePDF(cfg, Options{})
	defer c.Close()

	p := solidPhoto(t, 30, 40, color.White)
	doc := buildDoc(t, p, sheet.A4, 1)

	_, err := c.Render(context.Background(), doc, &photo.Photo{})
	assert.ErrorIs(t, err, sheet.ErrMissingImage)
}

func TestChromePDF_ZeroPoolSizeDisablesPool(t *testing.T) {
	cfg := u.DefaultConfig()
	cfg.PDF.ChromePoolSize = 0
	c := NewChromePDF(cfg, Options{})

	pool, err := c.Pool()
	assert.NoError(t, err)
	assert.Nil(t, pool)
}

func TestChromePDF_MissingBinary(t *testing.T) {
	cfg := u.DefaultConfig()
	cfg.PDF.ChromePath = "/nonexistent/chrome-for-tests"
	cfg.PDF.ChromePoolSize = 0
	cfg.PDF.TimeoutSecs = 5
	cfg.PDF.UserDataDir = t.TempDir()
	c := NewChromePDF(cfg, Options{})

	p := solidPhoto(t, 30, 40, color.White)
	doc := buildDoc(t, p, sheet.A4, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_, err := c.Render(ctx, doc, p)
	assert.Error(t, err)
}

type fakeRestarter struct {
	err   error
	calls int
}

func (f *fakeRestarter) Restart() error {
	f.calls++
	return f.err
}

func TestRetryInterrupted(t *testing.T) {
	lost := fmt.Errorf("print: %w", context.DeadlineExceeded)

	t.Run("restart failure is returned", func(t *testing.T) {
		pool := &fakeRestarter{err: errors.New("chrome did not start")}
		runs := 0
		_, err := retryInterrupted(context.Background(), pool, func() ([]byte, error) {
			runs++
			return nil, lost
		})
		assert.ErrorIs(t, err, pool.err)
		assert.Equal(t, 1, runs, "no retry against a dead browser")
		assert.Equal(t, 1, pool.calls)
	})

	t.Run("retries once after restart", func(t *testing.T) {
		pool := &fakeRestarter{}
		runs := 0
		buf, err := retryInterrupted(context.Background(), pool, func() ([]byte, error) {
			runs++
			if runs == 1 {
				return nil, lost
			}
			return []byte("%PDF-"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "%PDF-", string(buf))
		assert.Equal(t, 2, runs)
	})

	t.Run("other errors are not retried", func(t *testing.T) {
		pool := &fakeRestarter{}
		_, err := retryInterrupted(context.Background(), pool, func() ([]byte, error) {
			return nil, sheet.ErrMissingImage
		})
		assert.ErrorIs(t, err, sheet.ErrMissingImage)
		assert.Zero(t, pool.calls)
	})
}
