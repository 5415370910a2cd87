package handlers

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"idsheet/internal/export"
	"idsheet/internal/photo"
	"idsheet/internal/render"
	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

var filenamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// SheetRequestParams holds validated export parameters.
type SheetRequestParams struct {
	Page     sheet.PageSize
	Quantity int
	AutoFill bool
	Format   render.Format
	Engine   render.Engine
	Filename string
}

// SheetService bundles configuration and the exporter shared by all routes.
type SheetService struct {
	Config   *u.Config
	Exporter *export.Exporter
}

// NewSheetService creates a SheetService. rdb may be nil.
func NewSheetService(cfg u.Config, rdb *redis.Client) *SheetService {
	return &SheetService{
		Config:   &cfg,
		Exporter: export.New(cfg, rdb),
	}
}

// Close releases the Chrome pool, if one was started.
func (svc *SheetService) Close() {
	svc.Exporter.Close()
}

type pageInfo struct {
	Name      string  `json:"name"`
	WidthMM   float64 `json:"width_mm"`
	HeightMM  float64 `json:"height_mm"`
	MaxPhotos int     `json:"max_photos"`
	Columns   int     `json:"columns"`
}

// HandlePages lists the supported paper formats.
func (svc *SheetService) HandlePages(c *fiber.Ctx) error {
	out := make([]pageInfo, 0, len(sheet.PageSizes))
	for _, p := range sheet.PageSizes {
		d, _ := p.Dimensions()
		out = append(out, pageInfo{
			Name:      p.String(),
			WidthMM:   d.WidthMM,
			HeightMM:  d.HeightMM,
			MaxPhotos: sheet.MustMaxPhotos(p),
			Columns:   sheet.Columns(d, sheet.PhotoCell, sheet.DefaultLayout),
		})
	}
	return c.JSON(out)
}

// HandleLayout returns the planned cell positions for a page and quantity,
// enough for a client to draw a preview.
func (svc *SheetService) HandleLayout(c *fiber.Ctx) error {
	page, autoFill, err := parsePageAndAutoFill(c.Query("page"), c.Query("auto_fill"), *svc.Config)
	if err != nil {
		return err
	}
	q, err := resolveQuantity(page, autoFill, c.Query("quantity"), *svc.Config)
	if err != nil {
		return err
	}
	d, _ := page.Dimensions()
	cells := sheet.Flow(d, sheet.PhotoCell, sheet.DefaultLayout, q)

	return c.JSON(fiber.Map{
		"page":       page,
		"size":       d,
		"cell":       sheet.PhotoCell,
		"layout":     sheet.DefaultLayout,
		"max_photos": sheet.MustMaxPhotos(page),
		"quantity":   q,
		"auto_fill":  autoFill,
		"columns":    sheet.Columns(d, sheet.PhotoCell, sheet.DefaultLayout),
		"cells":      cells,
	})
}

// HandleExport renders an uploaded photo into a printable sheet.
func (svc *SheetService) HandleExport(c *fiber.Ctx) error {
	params, err := validateAndExtractSheetParams(c, *svc.Config, svc.Exporter.DefaultEngine())
	if err != nil {
		return err
	}

	fh, err := c.FormFile("image")
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Missing image: upload a photo in the 'image' field")
	}
	if fh.Size > int64(svc.Config.Limits.MaxImageBytes) {
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, fmt.Sprintf("Image exceeds %d bytes", svc.Config.Limits.MaxImageBytes))
	}
	f, err := fh.Open()
	if err != nil {
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Missing image: upload could not be read")
	}
	defer f.Close()

	apiKey, _ := c.Locals("api_key").(string)
	ctx, cancel := context.WithTimeout(c.UserContext(), time.Duration(svc.Config.PDF.TimeoutSecs)*time.Second)
	defer cancel()

	res, err := svc.Exporter.Export(ctx, export.Request{
		ClientID: export.ClientKey(apiKey, c.IP(), c.Get("User-Agent")),
		Image:    f,
		Page:     params.Page,
		Quantity: params.Quantity,
		Format:   params.Format,
		Engine:   params.Engine,
		Filename: params.Filename,
	})
	if err != nil {
		return exportError(err, svc.Config.PDF.TimeoutSecs)
	}

	cacheState := "MISS"
	if res.Cached {
		cacheState = "HIT"
	}
	c.Set("Content-Type", res.ContentType)
	c.Set("Content-Disposition", "attachment; filename="+res.Filename)
	c.Set("X-Export-ID", res.ID)
	c.Set("X-Cache", cacheState)
	c.Set("X-Sheet-Quantity", strconv.Itoa(res.Report.Quantity))
	c.Set("X-Effective-DPI", strconv.FormatFloat(res.Report.EffectiveDPI, 'f', 1, 64))
	if res.Report.LowRes {
		c.Set("X-Low-Resolution", strings.Join(res.Report.Warnings, "; "))
	}

	u.Info("Sheet sent", "filename", res.Filename, "request_id", c.GetRespHeader("X-Request-ID"), "cache", cacheState)
	return c.Send(res.Data)
}

// HandleChromeStats exposes the Chrome tab pool (capacity / idle / in_use).
func (svc *SheetService) HandleChromeStats(c *fiber.Ctx) error {
	pool, err := svc.Exporter.Chrome().Pool()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, "Chrome pool init failed: "+err.Error())
	}
	if pool == nil {
		return c.JSON(fiber.Map{
			"enabled":        false,
			"capacity":       0,
			"idle":           0,
			"in_use":         0,
			"pool_size_conf": svc.Config.PDF.ChromePoolSize,
			"profile_dir":    "",
			"timeout_secs":   svc.Config.PDF.TimeoutSecs,
			"restarts":       0,
		})
	}
	return c.JSON(pool.Stats(svc.Config.PDF.TimeoutSecs))
}

// validateAndExtractSheetParams validates the multipart form fields of an export.
func validateAndExtractSheetParams(c *fiber.Ctx, cfg u.Config, defaultEngine render.Engine) (*SheetRequestParams, error) {
	page, autoFill, err := parsePageAndAutoFill(c.FormValue("page"), c.FormValue("auto_fill"), cfg)
	if err != nil {
		return nil, err
	}
	q, err := resolveQuantity(page, autoFill, c.FormValue("quantity"), cfg)
	if err != nil {
		return nil, err
	}

	format, err := render.ParseFormat(c.FormValue("format"))
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid format: must be 'pdf', 'html' or 'png'")
	}
	engine, err := render.ParseEngine(c.FormValue("engine"), defaultEngine)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, "Invalid engine: must be 'chrome' or 'vector'")
	}
	if format != render.FormatPDF {
		engine = ""
	}

	filename := c.FormValue("filename")
	if filename != "" {
		if !strings.HasSuffix(filename, "."+string(format)) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename must end with ."+string(format))
		}
		if !filenamePattern.MatchString(filename) {
			return nil, fiber.NewError(fiber.StatusBadRequest, "Filename contains invalid characters")
		}
	}

	return &SheetRequestParams{
		Page:     page,
		Quantity: q,
		AutoFill: autoFill,
		Format:   format,
		Engine:   engine,
		Filename: filename,
	}, nil
}

func parsePageAndAutoFill(pageStr, autoFillStr string, cfg u.Config) (sheet.PageSize, bool, error) {
	if pageStr == "" {
		pageStr = cfg.Sheet.DefaultPage
	}
	page, err := sheet.ParsePageSize(pageStr)
	if err != nil {
		return 0, false, fiber.NewError(fiber.StatusBadRequest, "Invalid page: must be 'A4' or 'Letter'")
	}

	autoFill := false
	if autoFillStr != "" {
		autoFill, err = strconv.ParseBool(autoFillStr)
		if err != nil {
			return 0, false, fiber.NewError(fiber.StatusBadRequest, "Invalid auto_fill: must be a boolean")
		}
	}
	return page, autoFill, nil
}

// resolveQuantity applies the selection rules: auto-fill takes the page
// maximum, a typed value is clamped, and text that is not a number falls back
// to the configured default.
func resolveQuantity(page sheet.PageSize, autoFill bool, text string, cfg u.Config) (int, error) {
	q, err := sheet.SelectionFor(page, autoFill, text, cfg.Sheet.DefaultQuantity).Quantity()
	if err != nil {
		return 0, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	return q, nil
}

// exportError maps export failures to HTTP errors. Render details stay in logs.
func exportError(err error, timeoutSecs int) error {
	switch {
	case errors.Is(err, export.ErrExportInProgress):
		return fiber.NewError(fiber.StatusConflict, "An export is already in progress")
	case errors.Is(err, photo.ErrTooManyPixels):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Image dimensions exceed allowed size")
	case errors.Is(err, photo.ErrTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Image exceeds allowed size")
	case errors.Is(err, photo.ErrUndecodable):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Image could not be decoded")
	case errors.Is(err, sheet.ErrMissingImage):
		return fiber.NewError(fiber.StatusUnprocessableEntity, "Missing image")
	case errors.Is(err, sheet.ErrInvalidPageSize), errors.Is(err, sheet.ErrInvalidQuantity):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, export.ErrOutputTooLarge):
		return fiber.NewError(fiber.StatusRequestEntityTooLarge, "Rendered sheet exceeds allowed size")
	case errors.Is(err, context.DeadlineExceeded):
		u.Error("Sheet generation timeout", "timeout_secs", timeoutSecs, "error", err.Error())
		return fiber.NewError(fiber.StatusRequestTimeout, "Sheet rendering took too long")
	}
	u.Error("Sheet generation failed", "error", err.Error())
	return fiber.NewError(fiber.StatusInternalServerError, export.ErrExportFailed.Error())
}
