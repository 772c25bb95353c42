package clock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"
)

type stubSource struct {
	name    string
	offsets []time.Duration
	err     error

	mu    sync.Mutex
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Offset(context.Context) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return 0, s.err
	}
	i := s.calls - 1
	if i >= len(s.offsets) {
		i = len(s.offsets) - 1
	}
	return s.offsets[i], nil
}

func (s *stubSource) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func fixed(name string, d ...time.Duration) *stubSource {
	return &stubSource{name: name, offsets: d}
}

func TestSyncMedianRejectsOutlier(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	s := NewSynchronizer([]Source{
		fixed("a", 10*time.Millisecond),
		fixed("b", 5*time.Second),
		fixed("c", 12*time.Millisecond),
	}, WithClock(fc))

	off, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 12*time.Millisecond, off)
	require.Equal(t, fc.Now().Add(12*time.Millisecond), s.Now())
}

func TestSyncStopsAfterEnoughSamples(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	broken := &stubSource{name: "broken", err: errors.New("unreachable")}
	a, b := fixed("a", time.Millisecond), fixed("b", 3*time.Millisecond)
	unused := fixed("unused", time.Hour)

	s := NewSynchronizer([]Source{broken, a, b, unused}, WithClock(fc), WithSamples(2))
	off, err := s.Sync(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2*time.Millisecond, off)
	require.Equal(t, 0, unused.Calls())
}

func TestSyncFallsBackToLocalClock(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	s := NewSynchronizer([]Source{
		&stubSource{name: "a", err: errors.New("timeout")},
		&stubSource{name: "b", err: errors.New("refused")},
	}, WithClock(fc))

	off, err := s.Sync(context.Background())
	require.Error(t, err)
	require.Zero(t, off)
	require.Error(t, s.LastError())
	require.Equal(t, fc.Now(), s.Now())
	require.False(t, s.Status().Synced)
}

func TestNoSourcesTrustsLocalClock(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	s := NewSynchronizer(nil, WithClock(fc))

	require.Equal(t, fc.Now(), s.Now())
	require.NoError(t, s.LastError())
}

func TestNowResyncsWhenStale(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", time.Second)
	s := NewSynchronizer([]Source{src}, WithClock(fc), WithStaleAfter(time.Hour))

	s.Now()
	fc.Step(30 * time.Minute)
	s.Now()
	require.Equal(t, 1, src.Calls())

	fc.Step(31 * time.Minute)
	s.Now()
	require.Equal(t, 2, src.Calls())
}

func TestFailedSyncRetriesWithBackoff(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := &stubSource{name: "a", err: errors.New("unreachable")}
	s := NewSynchronizer([]Source{src}, WithClock(fc), WithRetryAfter(5*time.Second))

	s.Now()
	require.Equal(t, 1, src.Calls())
	require.True(t, s.Status().LastSync.IsZero())
	require.Equal(t, fc.Now(), s.Status().LastAttempt)

	// Within the first backoff nothing is queried.
	fc.Step(4 * time.Second)
	s.Now()
	require.Equal(t, 1, src.Calls())

	fc.Step(time.Second)
	s.Now()
	require.Equal(t, 2, src.Calls())

	// The second wait doubles.
	fc.Step(9 * time.Second)
	s.Now()
	require.Equal(t, 2, src.Calls())
	fc.Step(time.Second)
	s.Now()
	require.Equal(t, 3, src.Calls())

	// Recovery records the sync and resets the backoff.
	src.mu.Lock()
	src.err, src.offsets = nil, []time.Duration{time.Second}
	src.mu.Unlock()
	fc.Step(20 * time.Second)
	require.Equal(t, fc.Now().Add(time.Second), s.Now())
	require.Equal(t, 4, src.Calls())
	require.Equal(t, fc.Now(), s.Status().LastSync)
	require.NoError(t, s.LastError())

	fc.Step(30 * time.Minute)
	s.Now()
	require.Equal(t, 4, src.Calls())
}

func TestFailureDoesNotCountAsFresh(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", time.Second)
	s := NewSynchronizer([]Source{src}, WithClock(fc), WithFreshAfter(time.Minute), WithRetryAfter(time.Second))

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	synced := fc.Now()

	fc.Step(2 * time.Minute)
	src.mu.Lock()
	src.err = errors.New("unreachable")
	src.mu.Unlock()
	_, err = s.Sync(context.Background())
	require.Error(t, err)
	require.Equal(t, synced, s.Status().LastSync)

	// A scheduling call after the backoff tries again instead of trusting the failed attempt.
	fc.Step(2 * time.Second)
	s.ExecutionTime(context.Background(), time.Second)
	require.Equal(t, 3, src.Calls())
}

func TestExecutionTimeForcesFreshSync(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", 100*time.Millisecond)
	s := NewSynchronizer([]Source{src}, WithClock(fc), WithFreshAfter(time.Minute))

	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	at := s.ExecutionTime(context.Background(), 10*time.Second)
	require.Equal(t, 1, src.Calls())
	require.Equal(t, fc.Now().Add(100*time.Millisecond+10*time.Second), at)

	fc.Step(61 * time.Second)
	at = s.ExecutionTime(context.Background(), 5*time.Second)
	require.Equal(t, 2, src.Calls())
	require.False(t, at.Before(fc.Now().Add(5*time.Second)))
}

func TestDriftExtrapolation(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", 0, 10*time.Millisecond)
	s := NewSynchronizer([]Source{src}, WithClock(fc))

	_, err := s.Sync(context.Background())
	require.NoError(t, err)
	fc.Step(100 * time.Second)
	_, err = s.Sync(context.Background())
	require.NoError(t, err)
	require.InDelta(t, 1e-4, s.Status().Drift, 1e-9)

	fc.Step(50 * time.Second)
	want := fc.Now().Add(15 * time.Millisecond)
	require.WithinDuration(t, want, s.Now(), time.Microsecond)
}

func TestDriftIsClamped(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", 0, time.Second)
	s := NewSynchronizer([]Source{src}, WithClock(fc), WithMaxDrift(1e-4))

	_, _ = s.Sync(context.Background())
	fc.Step(10 * time.Second)
	_, _ = s.Sync(context.Background())
	require.Equal(t, 1e-4, s.Status().Drift)
}

func TestNowIsMonotonic(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(1_700_000_000, 0))
	src := fixed("a", 10*time.Second, 0)
	s := NewSynchronizer([]Source{src}, WithClock(fc))

	first := s.Now()
	fc.Step(time.Second)
	_, err := s.Sync(context.Background())
	require.NoError(t, err)

	prev := first
	for i := 0; i < 5; i++ {
		got := s.Now()
		require.False(t, got.Before(prev), "time went backwards: %v < %v", got, prev)
		prev = got
		fc.Step(time.Second)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		in   []time.Duration
		want time.Duration
	}{
		{[]time.Duration{3}, 3},
		{[]time.Duration{5, 1, 3}, 3},
		{[]time.Duration{4, 1, 3, 2}, 2},
	}
	for _, tt := range tests {
		if got := median(tt.in); got != tt.want {
			t.Errorf("median(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
