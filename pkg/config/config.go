// Package config loads penpal settings: built-in defaults, then an optional
// TOML file, then PENPAL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/dsedov/penpal-studio/pkg/svg"
)

// Config is the full settings tree.
type Config struct {
	Log  LogConfig  `toml:"log"`
	Eval EvalConfig `toml:"eval"`
	SVG  SVGConfig  `toml:"svg"`
	S3   S3Config   `toml:"s3"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `toml:"level"`  // PENPAL_LOG_LEVEL: debug, info, warn, error
	Format string `toml:"format"` // PENPAL_LOG_FORMAT: text or json
}

// EvalConfig bounds evaluation time.
type EvalConfig struct {
	Timeout     time.Duration `toml:"timeout"`      // PENPAL_EVAL_TIMEOUT (default 5s)
	CodeTimeout time.Duration `toml:"code_timeout"` // PENPAL_CODE_TIMEOUT (default 2s)
}

// SVGConfig controls export.
type SVGConfig struct {
	Units      string  `toml:"units"`     // PENPAL_SVG_UNITS: px or mm
	MMToPx     float64 `toml:"mm_to_px"`  // PENPAL_SVG_MM_TO_PX
	Precision  int     `toml:"precision"` // PENPAL_SVG_PRECISION
	Background bool    `toml:"background"`
}

// S3Config selects the bucket endpoint for s3:// export targets.
type S3Config struct {
	Region   string `toml:"region"`   // PENPAL_S3_REGION (default "us-east-1")
	Endpoint string `toml:"endpoint"` // PENPAL_S3_ENDPOINT (custom endpoint for MinIO)
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Log:  LogConfig{Level: "info", Format: "text"},
		Eval: EvalConfig{Timeout: 5 * time.Second, CodeTimeout: 2 * time.Second},
		SVG: SVGConfig{
			Units:      "px",
			MMToPx:     svg.MMToPx,
			Precision:  2,
			Background: true,
		},
		S3: S3Config{Region: "us-east-1"},
	}
}

// DefaultPath returns $PENPAL_CONFIG, or config.toml under the user config
// directory.
func DefaultPath() string {
	if p := os.Getenv("PENPAL_CONFIG"); p != "" {
		return p
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "penpal", "config.toml")
}

// Load builds the configuration. An empty path uses DefaultPath, which may
// be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	if path != "" {
		_, err := toml.DecodeFile(path, &cfg)
		if err != nil && (explicit || !errors.Is(err, os.ErrNotExist)) {
			return Config{}, fmt.Errorf("config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.Log.Level = envOrDefault("PENPAL_LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault("PENPAL_LOG_FORMAT", c.Log.Format)
	c.SVG.Units = envOrDefault("PENPAL_SVG_UNITS", c.SVG.Units)
	c.S3.Region = envOrDefault("PENPAL_S3_REGION", c.S3.Region)
	c.S3.Endpoint = envOrDefault("PENPAL_S3_ENDPOINT", c.S3.Endpoint)

	if v := os.Getenv("PENPAL_EVAL_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PENPAL_EVAL_TIMEOUT: %w", err)
		}
		c.Eval.Timeout = d
	}
	if v := os.Getenv("PENPAL_CODE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("PENPAL_CODE_TIMEOUT: %w", err)
		}
		c.Eval.CodeTimeout = d
	}
	if v := os.Getenv("PENPAL_SVG_MM_TO_PX"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("PENPAL_SVG_MM_TO_PX: %w", err)
		}
		c.SVG.MMToPx = f
	}
	if v := os.Getenv("PENPAL_SVG_PRECISION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PENPAL_SVG_PRECISION: %w", err)
		}
		c.SVG.Precision = n
	}
	return nil
}

// Validate rejects settings the rest of the program cannot honor.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log format %q: want text or json", c.Log.Format)
	}
	if c.Eval.Timeout <= 0 {
		return fmt.Errorf("eval timeout must be positive, got %s", c.Eval.Timeout)
	}
	if c.Eval.CodeTimeout <= 0 {
		return fmt.Errorf("code timeout must be positive, got %s", c.Eval.CodeTimeout)
	}
	switch c.SVG.Units {
	case "px", "mm":
	default:
		return fmt.Errorf("svg units %q: want px or mm", c.SVG.Units)
	}
	if c.SVG.Precision < 0 || c.SVG.Precision > 6 {
		return fmt.Errorf("svg precision %d out of range 0..6", c.SVG.Precision)
	}
	return nil
}

// Save writes cfg as TOML.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}

// SVGOptions returns the export options.
func (c Config) SVGOptions() svg.Options {
	return svg.Options{
		Units:      c.SVG.Units,
		MMToPx:     c.SVG.MMToPx,
		Precision:  c.SVG.Precision,
		Background: c.SVG.Background,
	}
}

// S3Options returns the S3 endpoint settings.
func (c Config) S3Options() svg.S3Config {
	return svg.S3Config{Region: c.S3.Region, Endpoint: c.S3.Endpoint}
}

// Logger builds a slog.Logger writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
