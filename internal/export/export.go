// Package export runs one print export: load the photo, lay out the sheet,
// render it and cache the bytes. At most one export per client runs at a time.
package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"idsheet/internal/photo"
	"idsheet/internal/render"
	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

var (
	// ErrExportFailed wraps any renderer failure. Its message is the only one
	// shown to end users.
	ErrExportFailed = errors.New("Failed to generate PDF") //nolint:staticcheck // user-facing text
	// ErrExportInProgress rejects a second export from the same client.
	ErrExportInProgress = errors.New("export already in progress")
	// ErrOutputTooLarge is returned when the rendered bytes exceed the configured limit.
	ErrOutputTooLarge = errors.New("rendered output exceeds allowed size")
)

const cacheKeyPrefix = "sheetcache:"

// Request is one export action.
type Request struct {
	ClientID string
	Image    io.Reader
	Page     sheet.PageSize
	Quantity int
	Format   render.Format
	Engine   render.Engine
	Filename string
}

// Result is a finished export.
type Result struct {
	ID          string
	Data        []byte
	ContentType string
	Filename    string
	Report      render.Report
	Cached      bool
}

// Exporter owns the renderers and the per-client guard.
type Exporter struct {
	cfg   u.Config
	redis *redis.Client

	markup *render.Markup
	vector *render.VectorPDF
	raster *render.Raster
	chrome *render.ChromePDF

	mu     sync.Mutex
	active map[string]struct{}
}

// New builds an Exporter. rdb may be nil, which disables the output cache.
func New(cfg u.Config, rdb *redis.Client) *Exporter {
	opts := render.Options{CutGuides: cfg.Sheet.CutGuides, DPI: cfg.Sheet.RasterDPI}
	return &Exporter{
		cfg:    cfg,
		redis:  rdb,
		markup: render.NewMarkup(opts),
		vector: render.NewVectorPDF(opts),
		raster: render.NewRaster(opts),
		chrome: render.NewChromePDF(cfg, opts),
		active: make(map[string]struct{}),
	}
}

// Chrome exposes the browser-backed renderer, mainly for pool stats.
func (e *Exporter) Chrome() *render.ChromePDF { return e.chrome }

// Close releases the Chrome pool.
func (e *Exporter) Close() { e.chrome.Close() }

// DefaultEngine is the configured PDF engine.
func (e *Exporter) DefaultEngine() render.Engine {
	if e.cfg.PDF.DefaultEngine == "" {
		return render.EngineVector
	}
	return render.Engine(e.cfg.PDF.DefaultEngine)
}

// Renderer picks the renderer for format; engine only matters for PDF.
func (e *Exporter) Renderer(format render.Format, engine render.Engine) (render.Renderer, error) {
	switch format {
	case render.FormatHTML:
		return e.markup, nil
	case render.FormatPNG:
		return e.raster, nil
	case render.FormatPDF, "":
		if engine == "" {
			engine = e.DefaultEngine()
		}
		switch engine {
		case render.EngineChrome:
			return e.chrome, nil
		case render.EngineVector:
			return e.vector, nil
		}
		return nil, fmt.Errorf("unsupported engine %q", engine)
	}
	return nil, fmt.Errorf("unsupported format %q", format)
}

func (e *Exporter) begin(client string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.active[client]; busy {
		return false
	}
	e.active[client] = struct{}{}
	return true
}

func (e *Exporter) end(client string) {
	e.mu.Lock()
	delete(e.active, client)
	e.mu.Unlock()
}

// Busy reports whether client has an export running.
func (e *Exporter) Busy(client string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, busy := e.active[client]
	return busy
}

// Export runs req to completion. Input errors (page, quantity, image) are
// returned as is; renderer failures are wrapped in ErrExportFailed.
func (e *Exporter) Export(ctx context.Context, req Request) (*Result, error) {
	if !e.begin(req.ClientID) {
		return nil, ErrExportInProgress
	}
	defer e.end(req.ClientID)

	if req.Format == "" {
		req.Format = render.FormatPDF
	}
	if req.Format == render.FormatPDF && req.Engine == "" {
		req.Engine = e.DefaultEngine()
	}
	r, err := e.Renderer(req.Format, req.Engine)
	if err != nil {
		return nil, err
	}

	raw, err := photo.ReadAll(req.Image, e.cfg.Limits.MaxImageBytes)
	if err != nil {
		return nil, err
	}
	if _, err := photo.CheckSize(raw, e.cfg.Limits.MaxImagePixels); err != nil {
		return nil, err
	}
	hash := photo.Hash(raw)

	// The layout does not depend on pixel data, so input errors surface
	// before the cache or the decoder is consulted.
	doc, err := sheet.Build(sheet.ImageRef("sha256:"+hash), req.Page, req.Quantity)
	if err != nil {
		return nil, err
	}

	res := &Result{
		ID:          xid.New().String(),
		ContentType: r.ContentType(),
		Filename:    req.Filename,
	}
	if res.Filename == "" {
		res.Filename = "foto-3x4-sheet" + r.Extension()
	}

	key := e.cacheKey(hash, req)
	if hit, ok := e.cached(ctx, key); ok {
		if err := e.checkOutput(hit.data); err != nil {
			return nil, err
		}
		res.Data, res.Cached = hit.data, true
		res.Report = render.NewReport(doc, hit.width, hit.height)
		u.Info("Sheet cache hit", "key", key, "export_id", res.ID)
		return res, nil
	}

	p, err := photo.Decode(raw, e.cfg.Sheet.JPEGQuality)
	if err != nil {
		return nil, err
	}
	doc.Image = p.Ref()
	res.Report = render.NewReport(doc, p.Width, p.Height)

	start := time.Now()
	data, err := r.Render(ctx, doc, p)
	if err != nil {
		u.Error("Sheet export failed", "export_id", res.ID, "format", req.Format, "engine", req.Engine, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrExportFailed, err)
	}
	if err := e.checkOutput(data); err != nil {
		return nil, err
	}
	e.store(ctx, key, cacheEntry{data: data, width: p.Width, height: p.Height})

	res.Data = data
	u.Info("Sheet exported",
		"export_id", res.ID,
		"page", doc.Page,
		"quantity", doc.Quantity(),
		"format", req.Format,
		"bytes", len(data),
		"effective_dpi", res.Report.EffectiveDPI,
		"took_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}

func (e *Exporter) checkOutput(data []byte) error {
	if max := e.cfg.Limits.MaxOutputBytes; max > 0 && len(data) > max {
		return fmt.Errorf("%w: %d bytes", ErrOutputTooLarge, len(data))
	}
	return nil
}

func (e *Exporter) cacheKey(photoHash string, req Request) string {
	h := sha256.New()
	h.Write([]byte(photoHash))
	h.Write([]byte(req.Page.String()))
	h.Write([]byte(strconv.Itoa(req.Quantity)))
	h.Write([]byte(req.Format))
	h.Write([]byte(req.Engine))
	h.Write([]byte(strconv.FormatBool(e.cfg.Sheet.CutGuides)))
	h.Write([]byte(strconv.Itoa(e.cfg.Sheet.RasterDPI)))
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}

func (e *Exporter) cacheEnabled() bool {
	return e.redis != nil && e.cfg.Cache.OutputCacheEnabled
}

// cacheEntry is a rendered sheet plus the oriented photo size, which the
// report of a cache hit needs without decoding the upload again.
type cacheEntry struct {
	data   []byte
	width  int
	height int
}

func (e *Exporter) cached(ctx context.Context, key string) (cacheEntry, bool) {
	if !e.cacheEnabled() {
		return cacheEntry{}, false
	}
	ctxRedis, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	vals, err := e.redis.HMGet(ctxRedis, key, "data", "width", "height").Result()
	if err != nil {
		if err != redis.Nil {
			u.Warn("Redis read failed", "error", err)
		}
		return cacheEntry{}, false
	}
	data, ok1 := vals[0].(string)
	w, ok2 := vals[1].(string)
	h, ok3 := vals[2].(string)
	if !ok1 || !ok2 || !ok3 {
		return cacheEntry{}, false
	}
	entry := cacheEntry{data: []byte(data)}
	if entry.width, err = strconv.Atoi(w); err != nil {
		return cacheEntry{}, false
	}
	if entry.height, err = strconv.Atoi(h); err != nil {
		return cacheEntry{}, false
	}
	return entry, true
}

func (e *Exporter) store(ctx context.Context, key string, entry cacheEntry) {
	if !e.cacheEnabled() {
		return
	}
	ctxRedis, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	ttl := e.cfg.Cache.OutputCacheTTL
	if ttl <= 0 {
		ttl = 1 * time.Minute
	}
	_, err := e.redis.TxPipelined(ctxRedis, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctxRedis, key, "data", entry.data, "width", entry.width, "height", entry.height)
		pipe.Expire(ctxRedis, key, ttl)
		return nil
	})
	if err != nil {
		u.Warn("Redis write failed", "error", err)
	}
}

// ClientKey derives a guard key when no API token is present.
func ClientKey(apiKey, ip, userAgent string) string {
	if k := strings.TrimSpace(apiKey); k != "" {
		return "token:" + k
	}
	sum := sha256.Sum256([]byte(ip + "|" + userAgent))
	return "anon:" + hex.EncodeToString(sum[:])
}
