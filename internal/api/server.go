// Package api serves a scan session over HTTP and streams its view over a
// WebSocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/FranksOps/vigil/internal/filter"
	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/session"
	"github.com/FranksOps/vigil/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// Config configures a Server. Session is required; Archive enables the
// /archive routes.
type Config struct {
	ListenAddr string
	Session    *session.Controller
	Archive    storage.Backend
	Logger     *slog.Logger
}

// Server is the HTTP + WebSocket surface for one session.
type Server struct {
	cfg      Config
	session  *session.Controller
	archive  storage.Backend
	router   chi.Router
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewServer wires the routes for cfg.Session.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Session == nil {
		return nil, errors.New("api: session is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		cfg:     cfg,
		session: cfg.Session,
		archive: cfg.Archive,
		router:  chi.NewRouter(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s, nil
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/view", s.optionsHandler("GET"))
	r.Options("/scan", s.optionsHandler("POST"))
	r.Options("/filter", s.optionsHandler("PATCH, DELETE"))
	r.Options("/filter/custom", s.optionsHandler("PATCH"))
	r.Options("/report", s.optionsHandler("GET"))
	r.Options("/archive", s.optionsHandler("GET"))
	r.Options("/archive/summary", s.optionsHandler("GET"))

	r.Get("/view", s.handleView)
	r.Post("/scan", s.handleScan)

	r.Patch("/filter", s.handleFilter)
	r.Delete("/filter", s.handleResetFilter)
	r.Patch("/filter/custom", s.handleCustomRange)

	r.Get("/report", s.handleReport)

	r.Get("/archive", s.handleArchive)
	r.Get("/archive/summary", s.handleArchiveSummary)

	// Live view stream
	r.Get("/ws", s.handleViewWS)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	attrs := []any{"method", r.Method, "path", r.URL.Path}
	if q := r.URL.RawQuery; q != "" {
		attrs = append(attrs, "query", q)
	}
	s.logger.Info("http_request", attrs...)

	s.router.ServeHTTP(w, r)
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// scanFailure is returned by POST /scan when the submit did not produce a
// record. View reflects the session after the failure.
type scanFailure struct {
	Error string       `json:"error"`
	Kind  string       `json:"kind"`
	View  session.View `json:"view"`
}

func statusFor(err error) int {
	switch scan.KindOf(err) {
	case scan.KindValidation:
		return http.StatusBadRequest
	case scan.KindBusy:
		return http.StatusConflict
	case scan.KindTransport, scan.KindServer, scan.KindMalformedResponse:
		return http.StatusBadGateway
	}
	if errors.Is(err, session.ErrClosed) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// --- HTTP handlers ---

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// A scan runs to completion even if the caller goes away.
	_, err := s.session.Submit(context.WithoutCancel(r.Context()), body.URL)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeJSON(w, statusFor(err), scanFailure{
			Error: scan.Message(err),
			Kind:  scan.KindOf(err).String(),
			View:  s.session.View(),
		})
		return
	}

	writeJSON(w, http.StatusOK, s.session.View())
}

func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	var u filter.Update
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	v, err := s.session.SetFilterSpec(u)
	if err != nil {
		if errors.Is(err, session.ErrClosed) {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleResetFilter(w http.ResponseWriter, r *http.Request) {
	v, err := s.session.ResetFilters()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// handleCustomRange accepts {"start_date": ..., "end_date": ...}. A date
// string sets that bound, null clears it, an absent key leaves it alone.
func (s *Server) handleCustomRange(w http.ResponseWriter, r *http.Request) {
	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var u filter.CustomUpdate
	for key, raw := range body {
		parse := filter.ParseDate
		switch key {
		case "start_date":
		case "end_date":
			parse = filter.ParseEndDate
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown field %q", key))
			return
		}

		var t *time.Time
		unset, err := parseBound(raw, parse, &t)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", key, err))
			return
		}
		if key == "start_date" {
			u.Start, u.ClearStart = t, unset
		} else {
			u.End, u.ClearEnd = t, unset
		}
	}

	v, err := s.session.SetCustomDateRange(u)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func parseBound(raw json.RawMessage, parse func(string) (time.Time, error), out **time.Time) (bool, error) {
	if strings.TrimSpace(string(raw)) == "null" {
		return true, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, errors.New("expected a date string or null")
	}
	t, err := parse(s)
	if err != nil {
		return false, err
	}
	*out = &t
	return false, nil
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	summary := s.session.Summary()

	var err error
	switch format := r.URL.Query().Get("format"); format {
	case "", "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		err = report.WriteHTML(w, summary)
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		err = report.WriteText(w, summary)
	case "json":
		w.Header().Set("Content-Type", "application/json")
		err = report.WriteJSON(w, summary)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown format %q", format))
		return
	}
	if err != nil {
		s.logger.Error("writing report", "error", err)
	}
}

func (s *Server) archiveFilter(r *http.Request) (storage.Filter, error) {
	q := r.URL.Query()
	f := storage.Filter{
		URL:     q.Get("url"),
		Outcome: storage.Outcome(q.Get("outcome")),
	}
	if v := q.Get("malicious"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("malicious: %w", err)
		}
		f.Malicious = &b
	}
	if v := q.Get("since"); v != "" {
		t, err := filter.ParseDate(v)
		if err != nil {
			return f, fmt.Errorf("since: %w", err)
		}
		f.Since = &t
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				return f, fmt.Errorf("%s must be a non-negative integer", key)
			}
			*dst = n
		}
	}
	return f, nil
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	f, err := s.archiveFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Limit == 0 {
		f.Limit = 100
	}

	entries, err := s.archive.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("querying archive", "error", err)
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleArchiveSummary(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusNotFound, "archive not configured")
		return
	}
	f, err := s.archiveFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entries, err := s.archive.Query(r.Context(), f)
	if err != nil {
		s.logger.Error("querying archive", "error", err)
		writeError(w, http.StatusInternalServerError, "archive query failed")
		return
	}
	writeJSON(w, http.StatusOK, report.SummarizeArchive(entries))
}

// WebSockets

func (s *Server) handleViewWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", "error", err)
		return
	}
	defer conn.Close()

	views, cancel := s.session.Subscribe()
	defer cancel()

	// The client never sends anything meaningful; reading only detects
	// disconnects.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.logger.Info("view stream opened", "remote", r.RemoteAddr)
	for v := range views {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(v); err != nil {
			s.logger.Debug("view stream write failed", "error", err)
			return
		}
	}
	s.logger.Info("view stream closed", "remote", r.RemoteAddr)
}
