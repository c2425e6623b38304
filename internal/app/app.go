// Package app assembles a scan session from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/FranksOps/vigil/internal/config"
	"github.com/FranksOps/vigil/internal/metrics"
	"github.com/FranksOps/vigil/internal/scanclient"
	"github.com/FranksOps/vigil/internal/session"
	"github.com/FranksOps/vigil/internal/storage"
	"github.com/FranksOps/vigil/internal/storage/csvbackend"
	"github.com/FranksOps/vigil/internal/storage/jsonbackend"
	"github.com/FranksOps/vigil/internal/storage/postgres"
	"github.com/FranksOps/vigil/internal/storage/sqlite"
)

// Archive file names inside config.Archive.Dir.
const (
	JSONFile   = "vigil-archive.ndjson"
	CSVFile    = "vigil-archive.csv"
	SQLiteFile = "vigil-archive.db"
)

// App is a wired session plus the resources it owns.
type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Client  *scanclient.Client
	Archive storage.Backend
	Session *session.Controller

	metrics *metrics.Server
}

// New builds the client, archive and session described by cfg. When
// cfg.MetricsPort is set the Prometheus endpoint is started as well.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	client, err := scanclient.New(scanclient.Config{
		Endpoint:  cfg.Endpoint,
		Timeout:   cfg.Timeout,
		Profile:   cfg.TLSProfile,
		Insecure:  cfg.TLSInsecure,
		RPS:       cfg.Rate,
		UserAgent: cfg.UserAgent,
		Logger:    logger.With("component", "scanclient"),
	})
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	archive, err := OpenArchive(ctx, cfg.Archive)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	sc := session.Config{
		Client:  client,
		Archive: archive,
		Logger:  logger.With("component", "session"),
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Client:  client,
		Archive: archive,
	}

	if cfg.MetricsPort > 0 {
		sc.Metrics = metrics.Prometheus{}
		a.metrics = metrics.Start(cfg.MetricsPort, logger.With("component", "metrics"))
	}

	a.Session, err = session.New(sc)
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("app: %w", err)
	}

	logger.Info("session ready", "endpoint", client.Endpoint(), "archive", cfg.Archive.Backends, "tls_profile", cfg.TLSProfile)
	return a, nil
}

// Close disposes the session and releases every owned resource.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Session != nil {
		if err := a.Session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.metrics != nil {
		if err := a.metrics.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop metrics: %w", err))
		}
	}
	if a.Archive != nil {
		if err := a.Archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close archive: %w", err))
		}
	}
	if a.Client != nil {
		a.Client.Close()
	}
	return errors.Join(errs...)
}

// OpenArchive opens every configured archive backend. It returns nil when
// none are configured, the backend itself when there is one, and a
// storage.Multi otherwise.
func OpenArchive(ctx context.Context, cfg config.Archive) (storage.Backend, error) {
	if len(cfg.Backends) == 0 {
		return nil, nil
	}

	dir := cfg.Dir
	if dir == "" {
		dir = "."
	}

	var opened storage.Multi
	for _, name := range cfg.Backends {
		b, err := openBackend(ctx, name, dir, cfg.DSN)
		if err != nil {
			_ = opened.Close()
			return nil, fmt.Errorf("open %s archive: %w", name, err)
		}
		opened = append(opened, b)
	}

	if len(opened) == 1 {
		return opened[0], nil
	}
	return opened, nil
}

func openBackend(ctx context.Context, name, dir, dsn string) (storage.Backend, error) {
	if name != config.BackendPostgres {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	switch name {
	case config.BackendJSON:
		return jsonbackend.New(filepath.Join(dir, JSONFile))
	case config.BackendCSV:
		return csvbackend.New(filepath.Join(dir, CSVFile))
	case config.BackendSQLite:
		return sqlite.New(filepath.Join(dir, SQLiteFile))
	case config.BackendPostgres:
		return postgres.New(ctx, dsn)
	}
	return nil, fmt.Errorf("unknown backend %q", name)
}
