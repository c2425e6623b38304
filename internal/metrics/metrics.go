// Package metrics exposes Prometheus counters for scan submissions.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/FranksOps/vigil/internal/scan"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ScansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_scans_total",
			Help: "Total number of scan submissions by outcome",
		},
		[]string{"outcome"},
	)

	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigil_scan_duration_seconds",
			Help:    "Round-trip duration of scan requests in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
	)

	VerdictsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigil_verdicts_total",
			Help: "Total number of successful scans by machine learning verdict",
		},
		[]string{"verdict"},
	)

	HistorySize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigil_history_size",
			Help: "Number of records currently held in the session history",
		},
	)
)

// Outcome label values. Failures are labelled with their scan.Kind.
const OutcomeSuccess = "success"

// RecordScan updates the metrics for one submit attempt. Validation and
// busy rejections never reach the service and are still counted by kind.
func RecordScan(rec *scan.Record, err error, d time.Duration) {
	if err != nil {
		kind := scan.KindOf(err)
		label := kind.String()
		if kind == 0 {
			label = "error"
		}
		ScansTotal.WithLabelValues(label).Inc()
		if kind == scan.KindTransport || kind == scan.KindServer || kind == scan.KindMalformedResponse {
			ScanDuration.Observe(d.Seconds())
		}
		return
	}
	if rec == nil {
		return
	}

	ScansTotal.WithLabelValues(OutcomeSuccess).Inc()
	ScanDuration.Observe(d.Seconds())
	VerdictsTotal.WithLabelValues(string(rec.Verdict())).Inc()
}

// SetHistorySize records the current history length.
func SetHistorySize(n int) {
	HistorySize.Set(float64(n))
}

// Prometheus adapts the package-level collectors to per-session recorders.
type Prometheus struct{}

func (Prometheus) RecordScan(rec *scan.Record, err error, d time.Duration) { RecordScan(rec, err, d) }

func (Prometheus) SetHistorySize(n int) { SetHistorySize(n) }

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Handler returns the mux served by Start.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "addr", srv.Addr, "error", err)
		}
	}()

	logger.Info("metrics server listening", "addr", srv.Addr)
	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s == nil || s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
