package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// envVars lists all env vars that must be cleared between tests.
var envVars = []string{
	"PENPAL_CONFIG", "PENPAL_LOG_LEVEL", "PENPAL_LOG_FORMAT",
	"PENPAL_EVAL_TIMEOUT", "PENPAL_CODE_TIMEOUT", "PENPAL_SVG_UNITS",
	"PENPAL_SVG_MM_TO_PX", "PENPAL_SVG_PRECISION", "PENPAL_S3_REGION",
	"PENPAL_S3_ENDPOINT",
}

func clearAllEnv(t *testing.T) {
	t.Helper()
	for _, key := range envVars {
		t.Setenv(key, "")
	}
	// Keep DefaultPath away from the real user config.
	t.Setenv("PENPAL_CONFIG", filepath.Join(t.TempDir(), "absent.toml"))
}

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearAllEnv(t)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Eval.Timeout != 5*time.Second || cfg.SVG.Units != "px" || cfg.S3.Region != "us-east-1" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	for _, tc := range []struct {
		name        string
		file        string
		env         map[string]string
		wantUnits   string
		wantTimeout time.Duration
		wantLevel   string
	}{
		{
			name:        "FileOverridesDefaults",
			file:        "[svg]\nunits = \"mm\"\n[eval]\ntimeout = \"10s\"\n",
			wantUnits:   "mm",
			wantTimeout: 10 * time.Second,
			wantLevel:   "info",
		},
		{
			name: "EnvOverridesFile",
			file: "[svg]\nunits = \"mm\"\n[log]\nlevel = \"warn\"\n",
			env: map[string]string{
				"PENPAL_SVG_UNITS":    "px",
				"PENPAL_EVAL_TIMEOUT": "250ms",
			},
			wantUnits:   "px",
			wantTimeout: 250 * time.Millisecond,
			wantLevel:   "warn",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			cfg, err := Load(writeFile(t, tc.file))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if cfg.SVG.Units != tc.wantUnits {
				t.Errorf("units = %q, want %q", cfg.SVG.Units, tc.wantUnits)
			}
			if cfg.Eval.Timeout != tc.wantTimeout {
				t.Errorf("timeout = %s, want %s", cfg.Eval.Timeout, tc.wantTimeout)
			}
			if cfg.Log.Level != tc.wantLevel {
				t.Errorf("level = %q, want %q", cfg.Log.Level, tc.wantLevel)
			}
		})
	}
}

func TestLoadErrors(t *testing.T) {
	for _, tc := range []struct {
		name string
		file string
		env  map[string]string
		want string
	}{
		{"BadTOML", "[svg\n", nil, "config"},
		{"BadUnits", "[svg]\nunits = \"in\"\n", nil, "svg units"},
		{"BadLevel", "", map[string]string{"PENPAL_LOG_LEVEL": "loud"}, "log level"},
		{"BadDuration", "", map[string]string{"PENPAL_CODE_TIMEOUT": "soon"}, "PENPAL_CODE_TIMEOUT"},
		{"BadPrecision", "", map[string]string{"PENPAL_SVG_PRECISION": "9"}, "precision"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			clearAllEnv(t)
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load(writeFile(t, tc.file))
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadExplicitMissingFile(t *testing.T) {
	clearAllEnv(t)
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("expected error for explicit missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	clearAllEnv(t)
	cfg := Default()
	cfg.SVG.Units = "mm"
	cfg.Eval.CodeTimeout = 750 * time.Millisecond
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != cfg {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, cfg)
	}
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "warn"
	logger := cfg.Logger(&buf)
	logger.Info("hidden")
	logger.Warn("shown", "node", "n1")
	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record logged at warn level")
	}
	if !strings.Contains(out, `"node":"n1"`) {
		t.Errorf("expected JSON record, got %q", out)
	}
}

func TestSVGOptions(t *testing.T) {
	cfg := Default()
	cfg.SVG.Units = "mm"
	opts := cfg.SVGOptions()
	if opts.Units != "mm" || opts.Precision != 2 || !opts.Background {
		t.Errorf("unexpected options %+v", opts)
	}
	if s3 := cfg.S3Options(); s3.Region != "us-east-1" {
		t.Errorf("unexpected S3 options %+v", s3)
	}
}
