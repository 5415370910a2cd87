// Package chrome keeps one headless Chrome process alive and hands out a bounded
// number of tabs for printing sheets to PDF.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"

	u "idsheet/internal/utils"
)

var (
	ErrPoolDisabled = errors.New("chrome pool disabled")
	ErrPoolClosed   = errors.New("chrome pool closed")
)

// Tab is a browser tab checked out of the pool.
type Tab struct {
	Ctx    context.Context
	cancel context.CancelFunc
}

// Pool bounds concurrent tabs with a token semaphore.
type Pool struct {
	cfg u.Config
	sem chan struct{}

	mu            sync.Mutex
	closed        bool
	profileDir    string
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	restarts      int
	lastRestart   time.Time
}

// Stats is a point-in-time view of the pool.
type Stats struct {
	Enabled      bool       `json:"enabled"`
	Capacity     int        `json:"capacity"`
	Idle         int        `json:"idle"`
	InUse        int        `json:"in_use"`
	PoolSizeConf int        `json:"pool_size_conf"`
	ProfileDir   string     `json:"profile_dir"`
	TimeoutSecs  int        `json:"timeout_secs"`
	Restarts     int        `json:"restarts"`
	LastRestart  *time.Time `json:"last_restart,omitempty"`
}

// NewPool prepares a browser allocator with cfg.PDF.ChromePoolSize tabs. Chrome
// itself starts on the first render.
func NewPool(cfg u.Config) (*Pool, error) {
	size := cfg.PDF.ChromePoolSize
	if size <= 0 {
		return nil, ErrPoolDisabled
	}
	p := &Pool{cfg: cfg, sem: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		p.sem <- struct{}{}
	}
	if err := p.start(); err != nil {
		return nil, err
	}
	u.Info("Chrome pool ready", "size", size, "profile_dir", p.profileDir)
	return p, nil
}

func createProfileDir(cfg u.Config) (string, error) {
	base := cfg.PDF.UserDataDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o700); err != nil {
		return "", fmt.Errorf("cannot create chrome profile base: %w", err)
	}
	dir, err := os.MkdirTemp(base, "idsheet-chrome-*")
	if err != nil {
		return "", fmt.Errorf("cannot create chrome profile dir: %w", err)
	}
	return dir, nil
}

// AllocatorOptions are the exec flags used for every Chrome instance.
func AllocatorOptions(cfg u.Config, profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		// Software rendering only; containers rarely have a usable GPU.
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-gpu-compositing", true),
		chromedp.Flag("disable-features", "Vulkan,UseSkiaRenderer"),
		chromedp.Flag("use-gl", "swiftshader"),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.PDF.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.PDF.ChromePath))
	}
	if cfg.PDF.ChromeNoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	return opts
}

// start must be called with p.mu held or before the pool is shared.
func (p *Pool) start() error {
	dir, err := createProfileDir(p.cfg)
	if err != nil {
		return err
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), AllocatorOptions(p.cfg, dir)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	p.profileDir = dir
	p.browserCtx = browserCtx
	p.browserCancel = browserCancel
	p.allocCancel = allocCancel
	return nil
}

func (p *Pool) stop() {
	if p.browserCancel != nil {
		p.browserCancel()
		p.browserCancel = nil
	}
	if p.allocCancel != nil {
		p.allocCancel()
		p.allocCancel = nil
	}
	if p.profileDir != "" {
		_ = os.RemoveAll(p.profileDir)
	}
}

// Acquire waits for a free tab or for ctx to end.
func (p *Pool) Acquire(ctx context.Context) (*Tab, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed || p.sem == nil {
		return nil, ErrPoolClosed
	}

	select {
	case <-p.sem:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	browserCtx := p.browserCtx
	p.mu.Unlock()
	if browserCtx == nil {
		browserCtx = context.Background()
	}
	tabCtx, cancel := chromedp.NewContext(browserCtx)
	return &Tab{Ctx: tabCtx, cancel: cancel}, nil
}

// Release closes the tab and returns its token. renderErr is only logged.
func (p *Pool) Release(tab *Tab, renderErr error) {
	if tab != nil && tab.cancel != nil {
		tab.cancel()
	}
	if renderErr != nil {
		u.Debug("Chrome tab released after error", "error", renderErr)
	}
	select {
	case p.sem <- struct{}{}:
	default:
	}
}

// Restart replaces the browser process and its profile directory.
func (p *Pool) Restart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	p.stop()
	if err := p.start(); err != nil {
		return err
	}
	p.restarts++
	p.lastRestart = time.Now()
	u.Warn("Chrome pool restarted", "restarts", p.restarts)
	return nil
}

// Close shuts the browser down. Calling it again is a no-op.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	p.stop()
}

// Stats reports pool capacity and usage.
func (p *Pool) Stats(timeoutSecs int) Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	capacity, idle := cap(p.sem), len(p.sem)
	st := Stats{
		Enabled:      !p.closed && p.sem != nil,
		Capacity:     capacity,
		Idle:         idle,
		InUse:        capacity - idle,
		PoolSizeConf: p.cfg.PDF.ChromePoolSize,
		ProfileDir:   p.profileDir,
		TimeoutSecs:  timeoutSecs,
		Restarts:     p.restarts,
	}
	if !p.lastRestart.IsZero() {
		t := p.lastRestart
		st.LastRestart = &t
	}
	return st
}

// IsSessionInterrupted reports errors after which the browser should be restarted.
func IsSessionInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"target closed", "session closed", "websocket", "browser closed", "no such target"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
