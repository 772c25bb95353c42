package ingress

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

func TestIngressRoutesTopics(t *testing.T) {
	ch := messaging.NewMemory(options.NewMessagingOptions())
	defer func() { _ = ch.Close(context.Background()) }()

	var statuses, samplesA, samplesB atomic.Int32
	srv := NewServer(ch,
		func(context.Context, *messaging.Delivery) error { statuses.Add(1); return nil },
		func(context.Context, *messaging.Delivery) error { samplesA.Add(1); return nil },
		func(context.Context, *messaging.Delivery) error { samplesB.Add(1); return nil },
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	ctx2 := context.Background()
	require.True(t, ch.Publish(ctx2, messaging.TopicStatus, messaging.StatusKey("a1"), fleetv1alpha1.StatusMessage{AgentID: "a1"}))
	require.True(t, ch.Publish(ctx2, messaging.TopicMetrics, messaging.MetricsKey("a1"), fleetv1alpha1.MetricsMessage{AgentID: "a1"}))

	require.Eventually(t, func() bool {
		return statuses.Load() == 1 && samplesA.Load() == 1 && samplesB.Load() == 1
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestHandleMetricsErrors(t *testing.T) {
	var called atomic.Int32
	boom := errors.New("boom")
	srv := NewServer(nil, nil,
		func(context.Context, *messaging.Delivery) error { return boom },
		func(context.Context, *messaging.Delivery) error { called.Add(1); return nil },
	)
	require.NoError(t, srv.handleMetrics(context.Background(), &messaging.Delivery{}))
	require.Equal(t, int32(1), called.Load())

	srv = NewServer(nil, nil,
		func(context.Context, *messaging.Delivery) error { return messaging.ErrMalformed },
		func(context.Context, *messaging.Delivery) error { called.Add(1); return nil },
	)
	require.ErrorIs(t, srv.handleMetrics(context.Background(), &messaging.Delivery{}), messaging.ErrMalformed)
	require.Equal(t, int32(1), called.Load())
}
