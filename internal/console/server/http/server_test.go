package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	"github.com/autopeer-io/syncpeer/internal/console/core/service"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	"github.com/autopeer-io/syncpeer/internal/console/store"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/options"
)

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, string, *fleetv1alpha1.Command) error { return nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) ExecutionTime(_ context.Context, lead time.Duration) time.Time {
	return c.now.Add(lead)
}

type testServer struct {
	*httptest.Server
	agg   *monitoring.Aggregator
	clock *clocktesting.FakeClock
}

func newTestServer(t *testing.T, ready ReadinessCheck) *testServer {
	t.Helper()
	sqlOpts := options.NewSQLiteOptions()
	sqlOpts.Path = filepath.Join(t.TempDir(), "api.db")
	repo, err := store.Open(context.Background(), sqlOpts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	now := time.Now().UTC()
	fc := clocktesting.NewFakeClock(now)
	svc := service.New(repo, nopNotifier{}, fixedClock{now: now})
	agg := monitoring.NewAggregator(monitoring.WithClock(fc))
	if ready == nil {
		ready = repo.Ping
	}

	srv := NewServer(options.NewHttpOptions(), svc, agg, ready)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, agg: agg, clock: fc}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, out any) int {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 && resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/healthz", nil, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/readyz", nil, nil))
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/metrics", nil, nil))

	down := newTestServer(t, func(context.Context) error { return errors.New("store closed") })
	require.Equal(t, http.StatusServiceUnavailable, down.do(t, http.MethodGet, "/readyz", nil, nil))
}

func TestTestLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/tests", map[string]any{"name": "x"}, nil))

	var cfg model.TestConfiguration
	code := ts.do(t, http.MethodPost, "/api/v1/tests", map[string]any{
		"name":          "echo",
		"command":       "echo ${msg}",
		"parameters":    map[string]any{"msg": "hi"},
		"target_agents": []string{"a1"},
	}, &cfg)
	require.Equal(t, http.StatusCreated, code)
	require.NotEmpty(t, cfg.ID)

	var list []model.TestConfiguration
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/tests", nil, &list))
	require.Len(t, list, 1)

	var got model.TestConfiguration
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/tests/"+cfg.ID, nil, &got))
	require.Equal(t, "echo ${msg}", got.Command)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/tests/nope/execute", nil, nil))

	// a1 is unknown, so the execution fails right away and cannot be aborted.
	var exec model.TestExecution
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/tests/"+cfg.ID+"/execute", nil, &exec))
	require.Equal(t, model.ExecutionFailed, exec.Status)
	require.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, "/api/v1/executions/"+exec.ID+"/abort", nil, nil))
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/api/v1/executions/nope/abort", nil, nil))

	var execs []model.TestExecution
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/executions?status=failed", nil, &execs))
	require.Len(t, execs, 1)
	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/executions?status=bogus", nil, nil))

	require.Equal(t, http.StatusNoContent, ts.do(t, http.MethodDelete, "/api/v1/tests/"+cfg.ID, nil, nil))
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/tests/"+cfg.ID, nil, nil))
}

func TestRegisterAndAbort(t *testing.T) {
	ts := newTestServer(t, nil)

	var resp fleetv1alpha1.RegistrationResponse
	code := ts.do(t, http.MethodPost, "/api/v1/agents/register",
		fleetv1alpha1.Registration{ID: "a1", Hostname: "h1", IPAddress: "10.0.0.1"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, fleetv1alpha1.RegistrationResponse{Status: "success", AgentID: "a1"}, resp)

	code = ts.do(t, http.MethodPost, "/api/v1/agents/register",
		fleetv1alpha1.Registration{ID: "other", Hostname: "h1", IPAddress: "10.0.0.1"}, &resp)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "a1", resp.AgentID)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/api/v1/agents/register", fleetv1alpha1.Registration{ID: "x"}, nil))

	var agents []model.Agent
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/agents", nil, &agents))
	require.Len(t, agents, 1)
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/agents/missing", nil, nil))

	var cfg model.TestConfiguration
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/tests",
		map[string]any{"name": "sleep", "command": "sleep 30", "target_agents": []string{"a1"}}, &cfg))

	var exec model.TestExecution
	require.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/v1/tests/"+cfg.ID+"/execute", nil, &exec))
	require.Equal(t, model.ExecutionPreparing, exec.Status)

	var aborted AbortResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/api/v1/executions/"+exec.ID+"/abort", nil, &aborted))
	require.Equal(t, model.ExecutionAborted, aborted.Status)

	var got model.TestExecution
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/executions/"+exec.ID, nil, &got))
	require.Equal(t, model.ExecutionAborted, got.Status)
	require.NotNil(t, got.EndTime)

	// No archive configured.
	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/executions/"+exec.ID+"/results/a1/url", nil, nil))
}

func TestMetricsEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	now := ts.clock.Now()

	ts.agg.Add(monitoring.Sample{AgentID: "X", Timestamp: now.Add(-10 * time.Minute), Metrics: fleetv1alpha1.SystemMetrics{CPUPercent: 1}})
	ts.agg.Add(monitoring.Sample{AgentID: "X", Timestamp: now.Add(-2 * time.Minute), Metrics: fleetv1alpha1.SystemMetrics{CPUPercent: 2}})
	ts.agg.Add(monitoring.Sample{AgentID: "Y", Timestamp: now.Add(-10 * time.Second), Metrics: fleetv1alpha1.SystemMetrics{CPUPercent: 3}})

	var hist AgentMetricsResponse
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/metrics/agents/X", nil, &hist))
	require.Equal(t, 5, hist.LookbackMinutes)
	require.Len(t, hist.Samples, 1)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/metrics/agents/X?lookback_minutes=15", nil, &hist))
	require.Len(t, hist.Samples, 2)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/metrics/agents/nobody", nil, &hist))
	require.Empty(t, hist.Samples)

	require.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/api/v1/metrics/agents/X?lookback_minutes=-1", nil, nil))

	var live map[string]monitoring.Sample
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/v1/metrics/live", nil, &live))
	require.Len(t, live, 1)
	require.Equal(t, 3.0, live["Y"].Metrics.CPUPercent)

	require.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/api/v1/metrics/executions/nope", nil, nil))
}
