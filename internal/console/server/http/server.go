package http

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/syncpeer/internal/console/core/service"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/internal/pkg/middleware"
	"github.com/autopeer-io/syncpeer/pkg/log"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

// ReadinessCheck reports whether the console can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Server exposes the console API, the agent registration endpoint, health
// probes and Prometheus metrics.
type Server struct {
	server  *http.Server
	options *options.HttpOptions

	svc   *service.Service
	agg   *monitoring.Aggregator
	ready ReadinessCheck
}

func NewServer(opts *options.HttpOptions, svc *service.Service, agg *monitoring.Aggregator, ready ReadinessCheck) *Server {
	s := &Server{
		options: opts,
		svc:     svc,
		agg:     agg,
		ready:   ready,
	}
	s.server = &http.Server{
		Addr:              opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: opts.Timeout,
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(middleware.Logging, middleware.Timeout(s.options.Timeout))

	r.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.readyz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tests", s.listTests).Methods(http.MethodGet)
	api.HandleFunc("/tests", s.createTest).Methods(http.MethodPost)
	api.HandleFunc("/tests/{id}", s.getTest).Methods(http.MethodGet)
	api.HandleFunc("/tests/{id}", s.deleteTest).Methods(http.MethodDelete)
	api.HandleFunc("/tests/{id}/execute", s.executeTest).Methods(http.MethodPost)

	api.HandleFunc("/executions", s.listExecutions).Methods(http.MethodGet)
	api.HandleFunc("/executions/{id}", s.getExecution).Methods(http.MethodGet)
	api.HandleFunc("/executions/{id}/abort", s.abortExecution).Methods(http.MethodPost)
	api.HandleFunc("/executions/{id}/results/{agent}/url", s.resultURL).Methods(http.MethodGet)

	// Registered before /agents/{id} so "register" is never taken for an id.
	api.HandleFunc("/agents/register", s.registerAgent).Methods(http.MethodPost)
	api.HandleFunc("/agents", s.listAgents).Methods(http.MethodGet)
	api.HandleFunc("/agents/{id}", s.getAgent).Methods(http.MethodGet)

	api.HandleFunc("/metrics/live", s.liveMetrics).Methods(http.MethodGet)
	api.HandleFunc("/metrics/agents/{id}", s.agentMetrics).Methods(http.MethodGet)
	api.HandleFunc("/metrics/executions/{id}", s.executionMetrics).Methods(http.MethodGet)

	return r
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen(s.options.Network, s.options.Addr)
	if err != nil {
		return err
	}
	log.Info("Starting HTTP Server", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.options.ShutdownTimeout)
		defer cancel()
		log.Info("Shutting down HTTP Server")
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
