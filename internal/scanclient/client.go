// Package scanclient submits URLs to the remote scanning service and turns
// its replies into scan records or classified scan errors.
package scanclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FranksOps/vigil/internal/fingerprint"
	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/pkg/httpclient"
	"github.com/FranksOps/vigil/pkg/ratelimit"
	"github.com/google/uuid"
)

// DefaultEndpoint is the scanning service's URL route on a local install.
const DefaultEndpoint = "http://localhost:8000/scan/url/"

// maxBody caps how much of a reply is read.
const maxBody = 4 << 20

// Config configures a Client.
type Config struct {
	Endpoint  string
	Timeout   time.Duration
	Profile   fingerprint.Profile
	Insecure  bool
	RPS       float64
	UserAgent string
	Logger    *slog.Logger

	// Transport overrides the fingerprinted transport when set.
	Transport http.RoundTripper
}

// Client talks to the scanning service. It holds no history and is safe for
// concurrent use.
type Client struct {
	endpoint string
	hc       *httpclient.Client
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	now      func() time.Time
}

// New validates cfg and builds a Client.
func New(cfg Config) (*Client, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("scanclient: parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scanclient: endpoint %q must be http or https", cfg.Endpoint)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("scanclient: endpoint %q has no host", cfg.Endpoint)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rt := cfg.Transport
	if rt == nil {
		rt, err = fingerprint.Transport(cfg.Profile, fingerprint.Options{InsecureSkipVerify: cfg.Insecure})
		if err != nil {
			return nil, fmt.Errorf("scanclient: %w", err)
		}
	}

	hc, err := httpclient.New(httpclient.Config{
		Timeout:      cfg.Timeout,
		MaxRedirects: 5,
		UserAgent:    cfg.UserAgent,
		Transport:    rt,
	})
	if err != nil {
		return nil, fmt.Errorf("scanclient: %w", err)
	}

	return &Client{
		endpoint: cfg.Endpoint,
		hc:       hc,
		limiter:  ratelimit.NewLimiter(cfg.RPS, 0),
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Endpoint returns the configured service URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Close releases the client's idle connections.
func (c *Client) Close() {
	c.limiter.Stop()
	c.hc.CloseIdleConnections()
}

type scanRequest struct {
	URL string `json:"url"`
}

type scanResponse struct {
	URL       json.RawMessage `json:"url"`
	Timestamp json.RawMessage `json:"timestamp"`
	Filters   json.RawMessage `json:"filters"`
}

// naiveLayout is what Python's datetime.isoformat produces for a timestamp
// without a zone. Such timestamps are read as UTC.
const naiveLayout = "2006-01-02T15:04:05.999999999"

// Submit asks the service to evaluate target. A blank target fails with a
// validation error before any network I/O. Every other failure is a
// *scan.Error of kind transport, server or malformed response.
func (c *Client) Submit(ctx context.Context, target string) (*scan.Record, error) {
	if strings.TrimSpace(target) == "" {
		return nil, scan.ErrValidation
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, transportError(err)
	}

	start := c.now()
	c.logger.Debug("submitting scan", "endpoint", c.endpoint, "url", target)

	resp, err := c.hc.PostJSON(ctx, c.endpoint, scanRequest{URL: target})
	if err != nil {
		return nil, transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, transportError(fmt.Errorf("read response: %w", err))
	}

	done := c.now()
	c.logger.Debug("scan response", "url", target, "status", resp.StatusCode, "bytes", len(body), "duration", done.Sub(start))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, serverError(resp.StatusCode, body)
	}

	return c.decode(target, body, start, done)
}

func (c *Client) decode(target string, body []byte, start, done time.Time) (*scan.Record, error) {
	var sr scanResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, malformed(fmt.Errorf("decode response: %w", err))
	}

	raw := strings.TrimSpace(string(sr.Filters))
	if raw == "" || raw == "null" {
		return nil, malformed(errors.New("response has no filters"))
	}

	var byName map[string]json.RawMessage
	if err := json.Unmarshal(sr.Filters, &byName); err != nil {
		return nil, malformed(fmt.Errorf("decode filters: %w", err))
	}

	rec := &scan.Record{
		ID:        uuid.New().String(),
		URL:       jsonString(sr.URL),
		Timestamp: done,
		Filters: scan.Filters{
			SimpleHeuristic:   decodeFilter[scan.SimpleHeuristic](c.logger, scan.FilterSimpleHeuristic, byName),
			AdvancedHeuristic: decodeFilter[scan.AdvancedHeuristic](c.logger, scan.FilterAdvancedHeuristic, byName),
			MachineLearning:   decodeFilter[scan.MachineLearning](c.logger, scan.FilterMachineLearning, byName),
		},
		Duration: done.Sub(start),
	}
	if rec.URL == "" {
		rec.URL = target
	}
	if ts, ok := c.parseTimestamp(sr.Timestamp); ok {
		rec.Timestamp = ts
	}

	return rec, nil
}

// decodeFilter decodes one named filter result. A filter the service left
// out, sent as null or sent in an unexpected shape is nil.
func decodeFilter[T any](logger *slog.Logger, name string, byName map[string]json.RawMessage) *T {
	raw, ok := byName[name]
	if !ok {
		return nil
	}
	var v *T
	if err := json.Unmarshal(raw, &v); err != nil {
		logger.Debug("ignoring undecodable filter result", "filter", name, "error", err)
		return nil
	}
	return v
}

func (c *Client) parseTimestamp(raw json.RawMessage) (time.Time, bool) {
	if len(raw) == 0 || strings.TrimSpace(string(raw)) == "null" {
		return time.Time{}, false
	}
	s := jsonString(raw)
	if s != "" {
		if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return ts, true
		}
		if ts, err := time.Parse(naiveLayout, s); err == nil {
			return ts, true
		}
	}
	c.logger.Debug("ignoring unparseable timestamp", "timestamp", string(raw))
	return time.Time{}, false
}

func transportError(err error) *scan.Error {
	return &scan.Error{Kind: scan.KindTransport, Message: err.Error(), Err: err}
}

func malformed(err error) *scan.Error {
	return &scan.Error{Kind: scan.KindMalformedResponse, Message: scan.ErrMalformedResponse.Message, Err: err}
}

type errorBody struct {
	Detail  json.RawMessage `json:"detail"`
	Message json.RawMessage `json:"message"`
}

func serverError(status int, body []byte) *scan.Error {
	cause := fmt.Errorf("request failed with status code %d", status)
	msg := remoteMessage(body)
	if msg == "" {
		msg = cause.Error()
	}
	return &scan.Error{Kind: scan.KindServer, Message: msg, Err: cause}
}

// remoteMessage picks the most specific operator-facing message out of an
// error reply: "detail", then "message". FastAPI validation failures send
// detail as a list of {"msg": ...} objects; the first msg is used.
func remoteMessage(body []byte) string {
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		return ""
	}

	if s := jsonString(eb.Detail); s != "" {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(eb.Detail, &items); err == nil && len(items) > 0 && items[0].Msg != "" {
		return items[0].Msg
	}

	return jsonString(eb.Message)
}

func jsonString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
