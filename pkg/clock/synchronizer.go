// Package clock estimates the offset between the local clock and a trusted
// time reference so that distributed agents can agree on a common instant.
package clock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/singleflight"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	utilclock "k8s.io/utils/clock"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	DefaultStaleAfter = time.Hour
	DefaultFreshAfter = time.Minute
	// DefaultMaxDrift bounds extrapolation to 500ppm, well above any sane quartz error.
	DefaultMaxDrift = 500e-6
	DefaultSamples  = 3
	// DefaultRetryAfter is the first wait after a failed sync; later failures
	// double it up to the staleness threshold.
	DefaultRetryAfter = 5 * time.Second

	// minDriftWindow is the shortest interval between two measurements used to derive drift.
	minDriftWindow = 10 * time.Second
)

// Source is one time reference.
type Source interface {
	Name() string
	// Offset returns reference time minus local time.
	Offset(ctx context.Context) (time.Duration, error)
}

// Status is a snapshot of the synchronizer state.
type Status struct {
	Offset      time.Duration `json:"offset"`
	Drift       float64       `json:"drift"`
	LastSync    time.Time     `json:"last_sync"`
	LastAttempt time.Time     `json:"last_attempt"`
	Synced      bool          `json:"synced"`
	Error       string        `json:"error,omitempty"`
}

type Option func(*Synchronizer)

// WithClock injects the local clock. Defaults to the real clock.
func WithClock(c utilclock.PassiveClock) Option {
	return func(s *Synchronizer) { s.clock = c }
}

// WithSamples sets how many successful references are combined per sync.
func WithSamples(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.samples = n
		}
	}
}

func WithStaleAfter(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.staleAfter = d
		}
	}
}

func WithFreshAfter(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.freshAfter = d
		}
	}
}

// WithRetryAfter sets the first wait after a failed sync.
func WithRetryAfter(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.retryAfter = d
		}
	}
}

func WithMaxDrift(rate float64) Option {
	return func(s *Synchronizer) {
		if rate >= 0 {
			s.maxDrift = rate
		}
	}
}

// Synchronizer exposes a corrected "now" derived from a set of time references.
// It is safe for concurrent use; concurrent callers needing a sync share one round of queries.
type Synchronizer struct {
	sources    []Source
	clock      utilclock.PassiveClock
	samples    int
	staleAfter time.Duration
	freshAfter time.Duration
	retryAfter time.Duration
	maxDrift   float64

	group singleflight.Group

	mu          sync.Mutex
	attempts    int
	lastSync    time.Time // local time of the last successful sync
	lastAttempt time.Time
	retryAt     time.Time
	backoff     retry.Backoff // nil until a sync fails
	offset      time.Duration
	drift       float64 // seconds of offset change per elapsed second
	anchor      time.Time
	good        bool // offset and anchor come from a real measurement
	lastErr     error
	returned    time.Time
}

// NewSynchronizer creates a synchronizer over the given sources. With no sources
// the local clock is trusted.
func NewSynchronizer(sources []Source, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		sources:    sources,
		clock:      utilclock.RealClock{},
		samples:    DefaultSamples,
		staleAfter: DefaultStaleAfter,
		freshAfter: DefaultFreshAfter,
		retryAfter: DefaultRetryAfter,
		maxDrift:   DefaultMaxDrift,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync queries the references in order until enough samples are collected and
// adopts their median offset. If every reference fails the offset falls back to
// zero and the failure is recorded and returned.
func (s *Synchronizer) Sync(ctx context.Context) (time.Duration, error) {
	v, err, _ := s.group.Do("sync", func() (any, error) {
		return s.sync(ctx)
	})
	return v.(time.Duration), err
}

func (s *Synchronizer) sync(ctx context.Context) (time.Duration, error) {
	offsets := make([]time.Duration, 0, s.samples)
	var errs []error
	for _, src := range s.sources {
		if len(offsets) >= s.samples {
			break
		}
		off, err := src.Offset(ctx)
		if err != nil {
			log.Debug("Time reference query failed", "source", src.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", src.Name(), err))
			continue
		}
		offsets = append(offsets, off)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	s.attempts++
	s.lastAttempt = now

	if len(offsets) == 0 {
		s.offset, s.drift, s.good = 0, 0, false
		s.anchor = now
		if len(s.sources) == 0 {
			s.succeeded(now)
			return 0, nil
		}
		s.lastErr = fmt.Errorf("all %d time references failed: %w", len(s.sources), utilerrors.NewAggregate(errs))
		s.failed(now)
		return 0, s.lastErr
	}

	off := median(offsets)
	if s.good {
		if elapsed := now.Sub(s.anchor); elapsed >= minDriftWindow {
			s.drift = s.clampDrift((off - s.offset).Seconds() / elapsed.Seconds())
		}
	}
	s.offset, s.anchor, s.good = off, now, true
	s.succeeded(now)

	log.Debug("Clock synchronized", "offset", off, "drift", s.drift, "samples", len(offsets))
	return off, nil
}

func (s *Synchronizer) succeeded(now time.Time) {
	s.lastSync, s.lastErr = now, nil
	s.retryAt, s.backoff = time.Time{}, nil
}

// failed schedules the next attempt. s.mu is held.
func (s *Synchronizer) failed(now time.Time) {
	if s.backoff == nil {
		s.backoff = retry.WithCappedDuration(s.staleAfter, retry.NewExponential(s.retryAfter))
	}
	wait, _ := s.backoff.Next()
	s.retryAt = now.Add(wait)
}

// Now returns the synchronized time, re-syncing first if the last successful
// sync is older than the staleness threshold. Between syncs the measured drift is
// extrapolated. Successive calls never go backwards.
func (s *Synchronizer) Now() time.Time {
	return s.now(context.Background(), s.staleAfter)
}

// ExecutionTime returns a synchronized instant lead ahead of now, forcing a
// fresh sync if the last one is older than the freshness threshold.
func (s *Synchronizer) ExecutionTime(ctx context.Context, lead time.Duration) time.Time {
	return s.now(ctx, s.freshAfter).Add(lead)
}

// Until returns how long the local clock must wait to reach synchronized instant t.
func (s *Synchronizer) Until(t time.Time) time.Duration {
	return t.Sub(s.Now())
}

// Status reports the current estimate.
func (s *Synchronizer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Offset: s.offset, Drift: s.drift, LastSync: s.lastSync, LastAttempt: s.lastAttempt, Synced: s.good}
	if s.lastErr != nil {
		st.Error = s.lastErr.Error()
	}
	return st
}

// LastError returns the failure recorded by the most recent sync, if any.
func (s *Synchronizer) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Synchronizer) now(ctx context.Context, maxAge time.Duration) time.Time {
	if s.needsSync(maxAge) {
		if _, err := s.Sync(ctx); err != nil {
			log.Warn("Clock sync failed, trusting local clock", "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	local := s.clock.Now()
	t := local.Add(s.offset)
	if s.good && s.drift != 0 {
		t = t.Add(time.Duration(s.drift * float64(local.Sub(s.anchor))))
	}
	if t.Before(s.returned) {
		t = s.returned
	}
	s.returned = t
	return t
}

// needsSync reports whether the last successful sync is older than maxAge.
// After failures, attempts are spaced by the retry backoff.
func (s *Synchronizer) needsSync(maxAge time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attempts == 0 {
		return true
	}
	if !s.lastSync.IsZero() && s.clock.Since(s.lastSync) <= maxAge {
		return false
	}
	return !s.clock.Now().Before(s.retryAt)
}

func (s *Synchronizer) clampDrift(rate float64) float64 {
	switch {
	case rate > s.maxDrift:
		return s.maxDrift
	case rate < -s.maxDrift:
		return -s.maxDrift
	}
	return rate
}

func median(d []time.Duration) time.Duration {
	sorted := append([]time.Duration(nil), d...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}
