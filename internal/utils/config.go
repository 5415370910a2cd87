package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration loaded from YAML.
type Config struct {
	Server struct {
		Host    string `yaml:"host"`
		Port    string `yaml:"port"`
		Prefork bool   `yaml:"prefork"`
	} `yaml:"server"`

	Limits struct {
		MaxImageBytes  int `yaml:"max_image_bytes"`
		MaxImagePixels int `yaml:"max_image_pixels"`
		MaxOutputBytes int `yaml:"max_output_bytes"`
	} `yaml:"limits"`

	Logger LoggerConfig `yaml:"logger"`

	Cache struct {
		OutputCacheEnabled bool          `yaml:"output_cache_enabled"`
		OutputCacheTTL     time.Duration `yaml:"output_cache_ttl"`
		RedisHost          string        `yaml:"redis_host"`
		RateLimitDB        int           `yaml:"redis_rate_db"`
		OutputCacheDB      int           `yaml:"redis_output_db"`
	} `yaml:"cache"`

	PDF struct {
		DefaultEngine   string `yaml:"default_engine"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
		ChromePath      string `yaml:"chrome_path"`
		ChromeNoSandbox bool   `yaml:"chrome_no_sandbox"`
		ChromePoolSize  int    `yaml:"chrome_pool_size"`
		UserDataDir     string `yaml:"user_data_dir"`
	} `yaml:"pdf"`

	Sheet SheetConfig `yaml:"sheet"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		Postgres PostgresConfig `yaml:"postgres"`
	} `yaml:"auth"`
}

// LoggerConfig controls the rotating log file.
type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// SheetConfig holds defaults for sheet exports.
type SheetConfig struct {
	DefaultPage     string `yaml:"default_page"`
	DefaultQuantity int    `yaml:"default_quantity"`
	CutGuides       bool   `yaml:"cut_guides"`
	RasterDPI       int    `yaml:"raster_dpi"`
	JPEGQuality     int    `yaml:"jpeg_quality"`
}

// PostgresConfig locates the API token database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// AppConfig is the process-wide configuration set by LoadConfig.
var AppConfig Config

var appConfigMu sync.RWMutex

// DefaultConfig returns a configuration usable without any YAML file.
func DefaultConfig() Config {
	var cfg Config
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = ":8080"
	cfg.Limits.MaxImageBytes = 15 * 1024 * 1024
	cfg.Limits.MaxImagePixels = 40_000_000
	cfg.Limits.MaxOutputBytes = 50 * 1024 * 1024
	cfg.Logger.Level = "info"
	cfg.Logger.MaxSizeMB = 10
	cfg.Logger.MaxBackups = 3
	cfg.Logger.MaxAgeDays = 14
	cfg.Cache.OutputCacheTTL = 10 * time.Minute
	cfg.Cache.RedisHost = "127.0.0.1:6379"
	cfg.Cache.OutputCacheDB = 1
	cfg.PDF.DefaultEngine = "vector"
	cfg.PDF.TimeoutSecs = 30
	cfg.Sheet.DefaultPage = "A4"
	cfg.Sheet.DefaultQuantity = 5
	cfg.Sheet.CutGuides = true
	cfg.Sheet.RasterDPI = 300
	cfg.Sheet.JPEGQuality = 80
	cfg.RateLimiter.Interval = time.Minute
	return cfg
}

// LoadConfig reads the file named by CONFIG_PATH (default config.yaml) and
// installs it as AppConfig. A missing file yields the defaults.
func LoadConfig() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg := LoadFrom(path)
	SetConfig(cfg)
	return cfg
}

// LoadFrom parses the YAML file at path on top of DefaultConfig. It panics on
// malformed YAML or values the service cannot run with.
func LoadFrom(path string) Config {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg
		}
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}
	if err := cfg.validate(); err != nil {
		panic(fmt.Sprintf("config: %s: %v", path, err))
	}
	return cfg
}

func (c *Config) validate() error {
	switch strings.ToUpper(c.Sheet.DefaultPage) {
	case "A4", "LETTER":
	default:
		return fmt.Errorf("sheet.default_page %q must be A4 or Letter", c.Sheet.DefaultPage)
	}
	if c.Sheet.DefaultQuantity < 1 {
		return fmt.Errorf("sheet.default_quantity must be >= 1")
	}
	if c.Sheet.RasterDPI < 72 || c.Sheet.RasterDPI > 1200 {
		return fmt.Errorf("sheet.raster_dpi must be between 72 and 1200")
	}
	if c.Sheet.JPEGQuality < 1 || c.Sheet.JPEGQuality > 100 {
		return fmt.Errorf("sheet.jpeg_quality must be between 1 and 100")
	}
	switch c.PDF.DefaultEngine {
	case "chrome", "vector":
	default:
		return fmt.Errorf("pdf.default_engine %q must be chrome or vector", c.PDF.DefaultEngine)
	}
	if c.PDF.TimeoutSecs <= 0 {
		return fmt.Errorf("pdf.timeout_secs must be positive")
	}
	if c.PDF.ChromePoolSize < 0 {
		return fmt.Errorf("pdf.chrome_pool_size must not be negative")
	}
	if c.Limits.MaxImageBytes <= 0 || c.Limits.MaxImagePixels <= 0 || c.Limits.MaxOutputBytes <= 0 {
		return fmt.Errorf("limits must be positive")
	}
	if c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	return nil
}

// SetConfig replaces AppConfig.
func SetConfig(cfg Config) {
	appConfigMu.Lock()
	AppConfig = cfg
	appConfigMu.Unlock()
}

// GetConfig returns a copy of AppConfig.
func GetConfig() Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return AppConfig
}
