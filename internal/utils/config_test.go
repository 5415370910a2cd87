package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_Valid(t *testing.T) {
	p := writeConfig(t, `
server:
  port: ":9000"
cache:
  output_cache_enabled: true
  output_cache_ttl: 2m
pdf:
  default_engine: chrome
  chrome_pool_size: 2
sheet:
  default_page: Letter
  default_quantity: 8
  cut_guides: false
rate_limiter:
  interval: 1h
  user_limit: 20
`)
	cfg := LoadFrom(p)
	assert.Equal(t, ":9000", cfg.Server.Port)
	assert.True(t, cfg.Cache.OutputCacheEnabled)
	assert.Equal(t, 2*time.Minute, cfg.Cache.OutputCacheTTL)
	assert.Equal(t, "chrome", cfg.PDF.DefaultEngine)
	assert.Equal(t, "Letter", cfg.Sheet.DefaultPage)
	assert.Equal(t, 8, cfg.Sheet.DefaultQuantity)
	assert.False(t, cfg.Sheet.CutGuides)
	assert.Equal(t, 20, cfg.RateLimiter.UserLimit)
	// untouched keys keep their defaults
	assert.Equal(t, 300, cfg.Sheet.RasterDPI)
	assert.Equal(t, 30, cfg.PDF.TimeoutSecs)
	assert.Equal(t, 40_000_000, cfg.Limits.MaxImagePixels)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFrom_PanicsOnInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "malformed", yml: "server: [\n"},
		{name: "bad page", yml: "sheet:\n  default_page: B5\n"},
		{name: "zero quantity", yml: "sheet:\n  default_quantity: 0\n"},
		{name: "bad dpi", yml: "sheet:\n  raster_dpi: 10\n"},
		{name: "bad engine", yml: "pdf:\n  default_engine: latex\n"},
		{name: "zero timeout", yml: "pdf:\n  timeout_secs: 0\n"},
		{name: "zero interval", yml: "rate_limiter:\n  interval: 0s\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "zero pixel limit", yml: "limits:\n  max_image_pixels: 0\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.yml)
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			_ = LoadFrom(p)
		})
	}
}

func TestLoadConfig_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, "sheet:\n  default_quantity: 12\n")
	t.Setenv("CONFIG_PATH", p)

	cfg := LoadConfig()
	require.Equal(t, 12, cfg.Sheet.DefaultQuantity)
	assert.Equal(t, 12, GetConfig().Sheet.DefaultQuantity)
}
