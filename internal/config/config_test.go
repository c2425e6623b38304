package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/FranksOps/vigil/internal/fingerprint"
	"github.com/FranksOps/vigil/internal/scanclient"
	"github.com/spf13/pflag"
)

func load(t *testing.T, fs *pflag.FlagSet, file string) Config {
	t.Helper()
	v, err := New(fs, file)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestLoad_Defaults(t *testing.T) {
	cfg := load(t, nil, "")

	if cfg.Endpoint != scanclient.DefaultEndpoint {
		t.Errorf("expected default endpoint, got %q", cfg.Endpoint)
	}
	if cfg.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.Timeout)
	}
	if cfg.TLSProfile != fingerprint.ProfileGo {
		t.Errorf("expected go profile, got %q", cfg.TLSProfile)
	}
	if cfg.Listen != ":8080" {
		t.Errorf("expected :8080, got %q", cfg.Listen)
	}
	if len(cfg.Archive.Backends) != 0 {
		t.Errorf("expected no archive backends, got %v", cfg.Archive.Backends)
	}
	if cfg.Archive.Dir != "." {
		t.Errorf("expected archive dir '.', got %q", cfg.Archive.Dir)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "text" {
		t.Errorf("unexpected log config: %+v", cfg.Log)
	}
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("VIGIL_ENDPOINT", "https://scanner.internal/scan/url/")
	t.Setenv("VIGIL_ARCHIVE_BACKEND", "json, sqlite")
	t.Setenv("VIGIL_LOG_LEVEL", "DEBUG")
	t.Setenv("VIGIL_METRICS_PORT", "9100")
	t.Setenv("VIGIL_TLS_PROFILE", "firefox")

	cfg := load(t, nil, "")

	if cfg.Endpoint != "https://scanner.internal/scan/url/" {
		t.Errorf("expected env endpoint, got %q", cfg.Endpoint)
	}
	if strings.Join(cfg.Archive.Backends, ",") != "json,sqlite" {
		t.Errorf("expected json,sqlite backends, got %v", cfg.Archive.Backends)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Log.Level)
	}
	if cfg.MetricsPort != 9100 {
		t.Errorf("expected metrics port 9100, got %d", cfg.MetricsPort)
	}
	if cfg.TLSProfile != fingerprint.ProfileFirefox {
		t.Errorf("expected firefox profile, got %q", cfg.TLSProfile)
	}
}

func TestLoad_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("VIGIL_RATE", "5")
	t.Setenv("VIGIL_USER_AGENT", "from-env")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	if err := fs.Parse([]string{"--rate=2", "--archive=csv", "--tls-profile=chrome"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg := load(t, fs, "")

	if cfg.Rate != 2 {
		t.Errorf("expected flag rate 2, got %v", cfg.Rate)
	}
	if cfg.UserAgent != "from-env" {
		t.Errorf("expected env user agent for unset flag, got %q", cfg.UserAgent)
	}
	if len(cfg.Archive.Backends) != 1 || cfg.Archive.Backends[0] != BackendCSV {
		t.Errorf("expected csv backend, got %v", cfg.Archive.Backends)
	}
	if cfg.TLSProfile != fingerprint.ProfileChrome {
		t.Errorf("expected chrome profile, got %q", cfg.TLSProfile)
	}
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vigil.yaml")
	content := `endpoint: https://scan.example.org/scan/url/
timeout: 5s
archive:
  backend: [json, csv]
  dir: /var/lib/vigil
log:
  format: json
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg := load(t, nil, path)

	if cfg.Endpoint != "https://scan.example.org/scan/url/" {
		t.Errorf("expected file endpoint, got %q", cfg.Endpoint)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Timeout)
	}
	if strings.Join(cfg.Archive.Backends, ",") != "json,csv" {
		t.Errorf("expected json,csv backends, got %v", cfg.Archive.Backends)
	}
	if cfg.Archive.Dir != "/var/lib/vigil" {
		t.Errorf("expected archive dir from file, got %q", cfg.Archive.Dir)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("expected json log format, got %q", cfg.Log.Format)
	}
}

func TestNew_MissingFile(t *testing.T) {
	if _, err := New(nil, filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_UnknownProfile(t *testing.T) {
	t.Setenv("VIGIL_TLS_PROFILE", "netscape")
	v, err := New(nil, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := Load(v); err == nil {
		t.Fatal("expected error for unknown tls profile")
	}
}

func validConfig() Config {
	return Config{
		Endpoint: scanclient.DefaultEndpoint,
		Timeout:  time.Second,
		Archive:  Archive{Dir: "."},
		Log:      Log{Level: "info", Format: "text"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"relative endpoint", func(c *Config) { c.Endpoint = "/scan/url/" }, "endpoint"},
		{"ftp endpoint", func(c *Config) { c.Endpoint = "ftp://host/scan" }, "endpoint"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout"},
		{"negative rate", func(c *Config) { c.Rate = -1 }, "rate"},
		{"metrics port", func(c *Config) { c.MetricsPort = 70000 }, "metrics port"},
		{"unknown backend", func(c *Config) { c.Archive.Backends = []string{"redis"} }, "unknown archive backend"},
		{"duplicate backend", func(c *Config) { c.Archive.Backends = []string{"json", "json"} }, "listed twice"},
		{"postgres without dsn", func(c *Config) { c.Archive.Backends = []string{"postgres"} }, "archive.dsn"},
		{"postgres with dsn", func(c *Config) {
			c.Archive.Backends = []string{"postgres"}
			c.Archive.DSN = "postgres://localhost/vigil"
		}, ""},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger(&buf, Log{Level: "warn", Format: "json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	logger.Info("dropped")
	logger.Warn("kept", "url", "https://example.com")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one log line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("expected json log line: %v", err)
	}
	if rec["msg"] != "kept" || rec["url"] != "https://example.com" {
		t.Errorf("unexpected log record: %v", rec)
	}

	if _, err := NewLogger(&buf, Log{Level: "info", Format: "xml"}); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := NewLogger(&buf, Log{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}
