// Package config loads vigil settings from flags, VIGIL_* environment
// variables and an optional config file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/vigil/internal/fingerprint"
	"github.com/FranksOps/vigil/internal/scanclient"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. VIGIL_ENDPOINT or
// VIGIL_ARCHIVE_BACKEND.
const EnvPrefix = "VIGIL"

// Archive backend names.
const (
	BackendJSON     = "json"
	BackendCSV      = "csv"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all vigil settings.
type Config struct {
	// Scan service
	Endpoint    string
	Timeout     time.Duration
	TLSProfile  fingerprint.Profile
	TLSInsecure bool
	Rate        float64
	UserAgent   string

	Archive Archive

	// Presentation
	Listen      string
	MetricsPort int
	NoColor     bool

	Log Log
}

// Archive selects where submit outcomes are recorded. No backends means no
// archive.
type Archive struct {
	Backends []string
	Dir      string // file backends
	DSN      string // postgres
}

// Log configures the slog handler.
type Log struct {
	Level  string
	Format string
}

type binding struct {
	key  string
	flag string
	def  any
}

var bindings = []binding{
	{"endpoint", "endpoint", scanclient.DefaultEndpoint},
	{"timeout", "timeout", 30 * time.Second},
	{"tls_profile", "tls-profile", string(fingerprint.ProfileGo)},
	{"tls_insecure", "tls-insecure", false},
	{"rate", "rate", 0.0},
	{"user_agent", "user-agent", "vigil"},
	{"archive.backend", "archive", []string{}},
	{"archive.dir", "archive-dir", "."},
	{"archive.dsn", "archive-dsn", ""},
	{"listen", "listen", ":8080"},
	{"metrics.port", "metrics-port", 0},
	{"no_color", "no-color", false},
	{"log.level", "log-level", "info"},
	{"log.format", "log-format", "text"},
}

// RegisterFlags adds the persistent flags shared by every command.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("endpoint", scanclient.DefaultEndpoint, "Scanning service URL")
	fs.Duration("timeout", 30*time.Second, "Scan request timeout")
	fs.String("tls-profile", string(fingerprint.ProfileGo), "TLS fingerprint: go, chrome, firefox, safari, random")
	fs.Bool("tls-insecure", false, "Skip TLS certificate verification")
	fs.Float64("rate", 0, "Maximum scans per second (0 = unlimited)")
	fs.String("user-agent", "vigil", "User-Agent sent to the scanning service")
	fs.StringSlice("archive", nil, "Archive backends: json, csv, sqlite, postgres")
	fs.String("archive-dir", ".", "Directory for file archive backends")
	fs.String("archive-dsn", "", "Postgres DSN for the postgres archive backend")
	fs.String("listen", ":8080", "HTTP listen address for serve")
	fs.Int("metrics-port", 0, "Expose Prometheus metrics on this port (0 = disabled)")
	fs.Bool("no-color", false, "Disable colored output")
	fs.String("log-level", "info", "Log level: debug, info, warn, error")
	fs.String("log-format", "text", "Log format: text, json")
}

// New returns a viper instance bound to fs and the VIGIL_ environment. When
// file is non-empty it is read as the config file.
func New(fs *pflag.FlagSet, file string) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for _, b := range bindings {
		v.SetDefault(b.key, b.def)
		if fs != nil {
			if f := fs.Lookup(b.flag); f != nil {
				if err := v.BindPFlag(b.key, f); err != nil {
					return nil, fmt.Errorf("config: bind %s: %w", b.flag, err)
				}
				continue
			}
		}
		// Keys without a flag still honour the environment.
		if err := v.BindEnv(b.key); err != nil {
			return nil, fmt.Errorf("config: bind env %s: %w", b.key, err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", file, err)
		}
	}
	return v, nil
}

// Load reads and validates the settings held by v.
func Load(v *viper.Viper) (Config, error) {
	profile, err := fingerprint.ParseProfile(v.GetString("tls_profile"))
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	cfg := Config{
		Endpoint:    strings.TrimSpace(v.GetString("endpoint")),
		Timeout:     v.GetDuration("timeout"),
		TLSProfile:  profile,
		TLSInsecure: v.GetBool("tls_insecure"),
		Rate:        v.GetFloat64("rate"),
		UserAgent:   v.GetString("user_agent"),
		Archive: Archive{
			Backends: splitList(v.GetStringSlice("archive.backend")),
			Dir:      v.GetString("archive.dir"),
			DSN:      v.GetString("archive.dsn"),
		},
		Listen:      v.GetString("listen"),
		MetricsPort: v.GetInt("metrics.port"),
		NoColor:     v.GetBool("no_color"),
		Log: Log{
			Level:  strings.ToLower(v.GetString("log.level")),
			Format: strings.ToLower(v.GetString("log.format")),
		},
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = scanclient.DefaultEndpoint
	}
	if cfg.Archive.Dir == "" {
		cfg.Archive.Dir = "."
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			part = strings.ToLower(strings.TrimSpace(part))
			if part != "" && part != "none" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks value ranges and cross-field requirements.
func (c Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("endpoint %q must be an absolute http(s) URL", c.Endpoint))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %v", c.Timeout))
	}
	if c.Rate < 0 {
		errs = append(errs, fmt.Errorf("rate must not be negative, got %v", c.Rate))
	}
	if c.MetricsPort < 0 || c.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("metrics port %d out of range", c.MetricsPort))
	}

	seen := make(map[string]bool)
	for _, b := range c.Archive.Backends {
		switch b {
		case BackendJSON, BackendCSV, BackendSQLite:
		case BackendPostgres:
			if c.Archive.DSN == "" {
				errs = append(errs, errors.New("postgres archive requires archive.dsn"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown archive backend %q", b))
		}
		if seen[b] {
			errs = append(errs, fmt.Errorf("archive backend %q listed twice", b))
		}
		seen[b] = true
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		errs = append(errs, fmt.Errorf("unknown log format %q", c.Log.Format))
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// NewLogger builds the process logger writing to w.
func NewLogger(w io.Writer, l Log) (*slog.Logger, error) {
	level, err := ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch l.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("config: unknown log format %q", l.Format)
}
