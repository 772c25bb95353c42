// Package ingress consumes the status and metrics topics on behalf of the console.
package ingress

import (
	"context"
	"errors"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	GroupStatus  = "console-status"
	GroupMetrics = "console-metrics"
)

// Server attaches handlers to the message channel and keeps the
// subscriptions alive until its context ends.
type Server struct {
	ch      messaging.Channel
	status  messaging.Handler
	metrics []messaging.Handler
}

// NewServer routes status events to status and every metrics sample to each
// of metrics in order.
func NewServer(ch messaging.Channel, status messaging.Handler, metrics ...messaging.Handler) *Server {
	return &Server{ch: ch, status: status, metrics: metrics}
}

func (s *Server) Start(ctx context.Context) error {
	log.Info("Starting message ingress", "statusGroup", GroupStatus, "metricsGroup", GroupMetrics)

	s.ch.SubscribeAsync(ctx, messaging.TopicStatus, GroupStatus, s.status)
	s.ch.SubscribeAsync(ctx, messaging.TopicMetrics, GroupMetrics, s.handleMetrics)

	<-ctx.Done()
	log.Info("Message ingress stopped")
	return nil
}

// handleMetrics runs every metrics handler. Samples are not redelivered after
// a handler failure since the other handlers already consumed them; only a
// malformed sample is reported so the channel applies its malformed policy.
func (s *Server) handleMetrics(ctx context.Context, d *messaging.Delivery) error {
	for _, h := range s.metrics {
		if err := h(ctx, d); err != nil {
			if errors.Is(err, messaging.ErrMalformed) {
				return err
			}
			log.Error(err, "Metrics handler failed", "key", d.Key, "id", d.ID)
		}
	}
	return nil
}
