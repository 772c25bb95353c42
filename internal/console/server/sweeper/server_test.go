package sweeper

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls atomic.Int32
	err   error
}

func (e *countingExpirer) ExpireExecutions(context.Context) (int, error) {
	e.calls.Add(1)
	return 1, e.err
}

func TestSweepsUntilCancelled(t *testing.T) {
	for _, err := range []error{nil, errors.New("store unavailable")} {
		e := &countingExpirer{err: err}
		srv := NewServer(e, 5*time.Millisecond)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- srv.Start(ctx) }()

		require.Eventually(t, func() bool { return e.calls.Load() >= 3 }, time.Second, time.Millisecond)
		cancel()

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(time.Second):
			t.Fatal("sweeper did not stop")
		}
	}
}

func TestDefaultInterval(t *testing.T) {
	require.Equal(t, DefaultInterval, NewServer(&countingExpirer{}, 0).interval)
}
