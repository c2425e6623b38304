// Package session owns one operator's scan session: the in-flight state,
// the bounded history, the active filter and the derived view.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/vigil/internal/filter"
	"github.com/FranksOps/vigil/internal/history"
	"github.com/FranksOps/vigil/internal/report"
	"github.com/FranksOps/vigil/internal/scan"
	"github.com/FranksOps/vigil/internal/storage"
)

// ErrClosed is returned by every mutating call after Close.
var ErrClosed = errors.New("session: closed")

// archiveTimeout bounds a single archive write.
const archiveTimeout = 5 * time.Second

// State is the controller's scan state.
type State int

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "idle":
		*s = Idle
	case "scanning":
		*s = Scanning
	default:
		return fmt.Errorf("session: unknown state %q", b)
	}
	return nil
}

// Submitter performs one remote scan.
type Submitter interface {
	Submit(ctx context.Context, url string) (*scan.Record, error)
}

// Recorder receives per-submit measurements.
type Recorder interface {
	RecordScan(rec *scan.Record, err error, d time.Duration)
	SetHistorySize(n int)
}

// Config wires a Controller. Client is required.
type Config struct {
	Client   Submitter
	Capacity int

	// Archive, when set, receives an entry for every submit that reached the
	// service. Write failures are logged and never fail the submit.
	Archive storage.Backend
	Metrics Recorder
	Logger  *slog.Logger
	Now     func() time.Time
}

// View is everything a presentation needs to render the session.
type View struct {
	State       State          `json:"state"`
	Error       string         `json:"error,omitempty"`
	Current     *scan.Record   `json:"current,omitempty"`
	Filtered    []*scan.Record `json:"filtered"`
	Stats       report.Stats   `json:"stats"`
	AllStats    report.Stats   `json:"all_stats"`
	Spec        filter.Spec    `json:"spec"`
	GeneratedAt time.Time      `json:"generated_at"`
}

// Controller serializes all session mutations. The remote call itself runs
// outside the lock so views stay readable while a scan is in flight.
type Controller struct {
	client  Submitter
	archive storage.Backend
	metrics Recorder
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	state   State
	errMsg  string
	current *scan.Record
	history *history.Store
	spec    filter.Spec
	closed  bool

	subs   map[int]chan View
	nextID int
}

// New builds an idle controller with an empty history and the default spec.
func New(cfg Config) (*Controller, error) {
	if cfg.Client == nil {
		return nil, errors.New("session: client is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Controller{
		client:  cfg.Client,
		archive: cfg.Archive,
		metrics: cfg.Metrics,
		logger:  logger,
		now:     now,
		history: history.New(cfg.Capacity),
		spec:    filter.DefaultSpec(),
		subs:    make(map[int]chan View),
	}, nil
}

// Submit scans url. Only one scan runs at a time: a call made while another
// is in flight fails with scan.ErrBusy and leaves the session untouched.
// A blank url fails with scan.ErrValidation without contacting the service.
// On success the record is prepended to the history; on any failure the
// history is unchanged and the view carries the error message.
func (c *Controller) Submit(ctx context.Context, url string) (*scan.Record, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if c.state == Scanning {
		c.mu.Unlock()
		c.logger.Warn("scan rejected, another scan is in progress", "url", url)
		c.record(nil, scan.ErrBusy, 0)
		return nil, scan.ErrBusy
	}
	if strings.TrimSpace(url) == "" {
		c.errMsg = scan.Message(scan.ErrValidation)
		c.publishLocked()
		c.mu.Unlock()
		c.record(nil, scan.ErrValidation, 0)
		return nil, scan.ErrValidation
	}

	c.state = Scanning
	c.errMsg = ""
	c.current = nil
	c.publishLocked()
	c.mu.Unlock()

	c.logger.Info("scan started", "url", url)
	start := c.now()
	rec, err := c.client.Submit(ctx, url)
	d := c.now().Sub(start)

	c.mu.Lock()
	c.state = Idle
	if err != nil {
		c.errMsg = scan.Message(err)
		c.current = nil
	} else {
		c.history.Record(rec)
		c.current = rec
	}
	size := c.history.Len()
	c.publishLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("scan failed", "url", url, "kind", scan.KindOf(err).String(), "error", err, "duration", d)
	} else {
		c.logger.Info("scan completed", "url", rec.URL, "id", rec.ID, "verdict", rec.Verdict(), "duration", d)
	}

	c.record(rec, err, d)
	if c.metrics != nil {
		c.metrics.SetHistorySize(size)
	}
	c.store(ctx, url, rec, err, d)

	return rec, err
}

func (c *Controller) record(rec *scan.Record, err error, d time.Duration) {
	if c.metrics != nil {
		c.metrics.RecordScan(rec, err, d)
	}
}

func (c *Controller) store(ctx context.Context, url string, rec *scan.Record, err error, d time.Duration) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), archiveTimeout)
	defer cancel()

	entry := storage.NewEntry(url, rec, err, d, c.now())
	if serr := c.archive.Save(ctx, entry); serr != nil {
		c.logger.Error("failed to archive scan", "url", url, "error", serr)
	}
}

// SetFilterSpec merges u into the active spec and recomputes the view.
func (c *Controller) SetFilterSpec(u filter.Update) (View, error) {
	if err := u.Validate(); err != nil {
		return View{}, fmt.Errorf("session: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	c.spec = u.Apply(c.spec)
	c.logger.Debug("filter updated", "risk", c.spec.Risk, "tld", c.spec.TLD, "date", c.spec.Date)
	return c.publishLocked(), nil
}

// SetCustomDateRange merges u into the custom date bounds. The bounds only
// take effect while the date range is "custom".
func (c *Controller) SetCustomDateRange(u filter.CustomUpdate) (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	c.spec.Custom = u.Apply(c.spec.Custom)
	return c.publishLocked(), nil
}

// ResetFilters restores the default spec, dropping any custom bounds.
func (c *Controller) ResetFilters() (View, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrClosed
	}
	c.spec = filter.DefaultSpec()
	return c.publishLocked(), nil
}

// View returns the current derived view.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Summary returns a report summary of the current view.
func (c *Controller) Summary() report.Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	all := c.history.Snapshot()
	return report.GenerateSummary(all, filter.Apply(all, c.spec, now), c.spec, now)
}

func (c *Controller) viewLocked() View {
	now := c.now()
	all := c.history.Snapshot()
	filtered := filter.Apply(all, c.spec, now)

	return View{
		State:       c.state,
		Error:       c.errMsg,
		Current:     c.current,
		Filtered:    filtered,
		Stats:       report.Summarize(filtered),
		AllStats:    report.Summarize(all),
		Spec:        c.spec,
		GeneratedAt: now,
	}
}

// Subscribe returns a channel that receives the current view immediately
// and again after every change. A slow subscriber only ever sees the most
// recent view. The returned func unsubscribes and closes the channel.
func (c *Controller) Subscribe() (<-chan View, func()) {
	ch := make(chan View, 1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}

	id := c.nextID
	c.nextID++
	c.subs[id] = ch
	ch <- c.viewLocked()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(ch)
			}
		})
	}
}

func (c *Controller) publishLocked() View {
	v := c.viewLocked()
	for _, ch := range c.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- v
		}
	}
	return v
}

// Close disposes of the session. Subscriber channels are closed and later
// mutations fail with ErrClosed. An in-flight scan still completes but its
// outcome is no longer published.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
	return nil
}
