package server

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/autopeer-io/syncpeer/internal/console/core/service"
	"github.com/autopeer-io/syncpeer/internal/console/server/http"
	"github.com/autopeer-io/syncpeer/internal/console/server/ingress"
	"github.com/autopeer-io/syncpeer/internal/console/server/sweeper"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// Server defines the common interface for all sub-servers (http, ingress, sweeper).
type Server interface {
	Start(ctx context.Context) error
}

// Manager manages the lifecycle of all protocol servers.
type Manager struct {
	servers []Server
}

// NewManager creates a new server manager and initializes all sub-servers.
func NewManager(cfg *Config, svc *service.Service) *Manager {
	// Status events drive the executions; metrics feed the history buffer
	// first and the agents' last-known snapshot second.
	ingressSrv := ingress.NewServer(cfg.Channel, svc.HandleStatus, cfg.Aggregator.HandleMetrics, svc.HandleMetrics)
	httpSrv := http.NewServer(cfg.HttpOptions, svc, cfg.Aggregator, cfg.Readiness)
	sweeperSrv := sweeper.NewServer(svc, cfg.SweepInterval)

	return &Manager{
		servers: []Server{ingressSrv, httpSrv, sweeperSrv},
	}
}

// Start launches all servers in parallel and waits for termination.
func (m *Manager) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range m.servers {
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	log.Info("All servers starting...")
	return g.Wait()
}
