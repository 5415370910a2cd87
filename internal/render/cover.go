package render

import (
	"math"

	"idsheet/internal/sheet"
)

// LowResDPI is the effective resolution below which a print looks soft.
const LowResDPI = 200.0

// Placement is where a cover-scaled image is drawn so that it fills a cell;
// everything outside the cell is clipped.
type Placement struct {
	X, Y, W, H   float64
	EffectiveDPI float64
}

// Cover scales an imgW x imgH picture to fill cell, centred, preserving aspect
// ratio. The overflowing dimension is cropped equally on both sides.
func Cover(cell sheet.Rect, imgW, imgH int) Placement {
	if imgW <= 0 || imgH <= 0 {
		return Placement{X: cell.X, Y: cell.Y, W: cell.W, H: cell.H}
	}
	cellAspect := cell.W / cell.H
	imgAspect := float64(imgW) / float64(imgH)

	var w, h, dpi float64
	if imgAspect > cellAspect {
		h = cell.H
		w = h * imgAspect
		dpi = float64(imgH) / h * 25.4
	} else {
		w = cell.W
		h = w / imgAspect
		dpi = float64(imgW) / w * 25.4
	}
	return Placement{
		X:            cell.X - (w-cell.W)/2,
		Y:            cell.Y - (h-cell.H)/2,
		W:            w,
		H:            h,
		EffectiveDPI: math.Round(dpi*10) / 10,
	}
}

// Report summarises print quality for an export.
type Report struct {
	Page         string   `json:"page"`
	Quantity     int      `json:"quantity"`
	Rows         int      `json:"rows"`
	EffectiveDPI float64  `json:"effective_dpi"`
	LowRes       bool     `json:"low_res"`
	Warnings     []string `json:"warnings,omitempty"`
}

// NewReport computes the quality report; all cells share one image so one
// placement is representative.
func NewReport(doc sheet.Document, imgW, imgH int) Report {
	r := Report{Page: doc.Page.String(), Quantity: doc.Quantity(), Rows: doc.Rows()}
	if len(doc.Cells) == 0 {
		return r
	}
	r.EffectiveDPI = Cover(doc.Cells[0], imgW, imgH).EffectiveDPI
	r.LowRes = r.EffectiveDPI > 0 && r.EffectiveDPI < LowResDPI
	if r.LowRes {
		r.Warnings = append(r.Warnings, "photo resolution is below 200 DPI at 30x40 mm")
	}
	return r
}
