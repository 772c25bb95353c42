// Package sweeper periodically gives up on executions whose agents stopped
// reporting.
package sweeper

import (
	"context"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

// DefaultInterval is how often overdue executions are looked for.
const DefaultInterval = 15 * time.Second

// Expirer fails overdue executions and returns how many it touched.
type Expirer interface {
	ExpireExecutions(ctx context.Context) (int, error)
}

type Server struct {
	expirer  Expirer
	interval time.Duration
}

func NewServer(expirer Expirer, interval time.Duration) *Server {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Server{expirer: expirer, interval: interval}
}

// Start sweeps every interval until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	log.Info("Execution sweeper started", "interval", s.interval)
	wait.UntilWithContext(ctx, s.sweep, s.interval)
	log.Info("Execution sweeper stopped")
	return nil
}

func (s *Server) sweep(ctx context.Context) {
	n, err := s.expirer.ExpireExecutions(ctx)
	if err != nil {
		if ctx.Err() == nil {
			log.Error(err, "Failed to expire executions")
		}
		return
	}
	if n > 0 {
		log.Info("Expired overdue executions", "count", n)
	}
}
