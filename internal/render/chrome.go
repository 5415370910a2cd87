package render

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"idsheet/internal/chrome"
	"idsheet/internal/photo"
	"idsheet/internal/sheet"
	u "idsheet/internal/utils"
)

// ChromePDF prints the HTML markup through headless Chrome. With a configured
// pool size tabs come from a shared chrome.Pool; otherwise every render starts
// its own browser.
type ChromePDF struct {
	markup *Markup
	cfg    u.Config

	poolMu  sync.Mutex
	pool    *chrome.Pool
	poolErr error
}

func NewChromePDF(cfg u.Config, opts Options) *ChromePDF {
	return &ChromePDF{markup: NewMarkup(opts), cfg: cfg}
}

func (c *ChromePDF) ContentType() string { return "application/pdf" }
func (c *ChromePDF) Extension() string   { return ".pdf" }

// Pool returns the shared tab pool, creating it on first use. A nil pool with
// a nil error means pooling is disabled.
func (c *ChromePDF) Pool() (*chrome.Pool, error) {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()

	if c.cfg.PDF.ChromePoolSize <= 0 {
		return nil, nil
	}
	if c.pool != nil {
		return c.pool, nil
	}
	if c.poolErr != nil {
		return nil, c.poolErr
	}
	pool, err := chrome.NewPool(c.cfg)
	if err != nil {
		c.poolErr = err
		return nil, err
	}
	c.pool = pool
	return c.pool, nil
}

// Close shuts down the pool if one was started.
func (c *ChromePDF) Close() {
	c.poolMu.Lock()
	defer c.poolMu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

func (c *ChromePDF) Render(ctx context.Context, doc sheet.Document, p *photo.Photo) ([]byte, error) {
	if err := checkInputs(doc, p); err != nil {
		return nil, err
	}
	html, err := c.markup.Render(ctx, doc, p)
	if err != nil {
		return nil, err
	}

	pool, err := c.Pool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return c.renderStandalone(ctx, string(html), doc.Size)
	}

	timeout := time.Duration(c.cfg.PDF.TimeoutSecs) * time.Second
	runOnce := func() ([]byte, error) {
		acquireCtx, acquireCancel := context.WithTimeout(ctx, 5*time.Second)
		defer acquireCancel()

		tab, err := pool.Acquire(acquireCtx)
		if err != nil {
			return nil, err
		}
		tabCtx, cancel := context.WithTimeout(tab.Ctx, timeout)
		buf, renderErr := printInTab(tabCtx, string(html), doc.Size)
		cancel()
		pool.Release(tab, renderErr)
		return buf, renderErr
	}

	return retryInterrupted(ctx, pool, runOnce)
}

type restarter interface {
	Restart() error
}

// retryInterrupted calls run again after a browser restart when the first
// attempt lost its Chrome session. A failed restart ends the export.
func retryInterrupted(ctx context.Context, pool restarter, run func() ([]byte, error)) ([]byte, error) {
	buf, err := run()
	if err == nil || !chrome.IsSessionInterrupted(err) || ctx.Err() != nil {
		return buf, err
	}
	u.Warn("Chrome session interrupted; restarting pool and retrying once", "error", err)
	if rerr := pool.Restart(); rerr != nil {
		u.Error("Chrome pool restart failed", "error", rerr)
		return nil, fmt.Errorf("restart chrome after %v: %w", err, rerr)
	}
	return run()
}

func (c *ChromePDF) renderStandalone(ctx context.Context, html string, size sheet.Dimensions) ([]byte, error) {
	dir, err := os.MkdirTemp(c.cfg.PDF.UserDataDir, "idsheet-chrome-*")
	if err != nil {
		return nil, fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	defer os.RemoveAll(dir)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, chrome.AllocatorOptions(c.cfg, dir)...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	browserCtx, cancel = context.WithTimeout(browserCtx, time.Duration(c.cfg.PDF.TimeoutSecs)*time.Second)
	defer cancel()

	return printInTab(browserCtx, html, size)
}

// printInTab loads html into the tab and prints it at the exact sheet size
// with zero margins, so cell positions in the markup map 1:1 onto paper.
func printInTab(ctx context.Context, html string, size sheet.Dimensions) ([]byte, error) {
	var buf []byte
	err := chromedp.Run(ctx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			frame, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return err
			}
			return page.SetDocumentContent(frame.Frame.ID, html).Do(ctx)
		}),
		chromedp.WaitReady("img", chromedp.ByQuery),
		chromedp.Sleep(100*time.Millisecond),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			buf, _, err = page.PrintToPDF().
				WithPrintBackground(true).
				WithPreferCSSPageSize(true).
				WithPaperWidth(size.WidthInches()).
				WithPaperHeight(size.HeightInches()).
				WithMarginTop(0).
				WithMarginBottom(0).
				WithMarginLeft(0).
				WithMarginRight(0).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return buf, nil
}
