package app

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// fakeConsole records created tests and answers a handful of routes.
type fakeConsole struct {
	created []model.TestConfiguration
}

func (f *fakeConsole) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/tests", func(w http.ResponseWriter, r *http.Request) {
		var cfg model.TestConfiguration
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		cfg.ID = "t" + string(rune('1'+len(f.created)))
		f.created = append(f.created, cfg)
		writeJSON(w, http.StatusCreated, cfg)
	})
	mux.HandleFunc("GET /api/v1/tests/{id}", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found: test " + r.PathValue("id")})
	})
	mux.HandleFunc("GET /api/v1/executions", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []*model.TestExecution{{
			ID:       "e1",
			ConfigID: "t1",
			Status:   model.ExecutionStatus(r.URL.Query().Get("status")),
			Targets:  []string{"a1"},
		}})
	})
	mux.HandleFunc("GET /api/v1/agents", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []*model.Agent{{
			ID:          "a1",
			Hostname:    "bench-1",
			IPAddress:   "10.0.0.1",
			Status:      fleetv1alpha1.AgentStatusReady,
			LastMetrics: &fleetv1alpha1.SystemMetrics{CPUPercent: 12.5, MemoryPercent: 40},
			LastSeen:    time.Now(),
		}})
	})
	mux.HandleFunc("DELETE /api/v1/tests/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func runCtl(t *testing.T, server string, args ...string) (string, error) {
	t.Helper()
	a := NewApp()
	var out bytes.Buffer
	a.Command().SetOut(&out)
	a.Command().SetErr(io.Discard)
	a.Command().SetArgs(append([]string{"--server", server}, args...))
	err := a.Command().Execute()
	return out.String(), err
}

func TestReadTestFiles(t *testing.T) {
	in := `
name: ping
command: ping -c 1 example.com
target_agents: [a1, a2]
duration: 30
---
name: iperf
command: iperf3 -c server
parameters:
  port: 5201
`
	cfgs, err := readTestFiles(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	require.Equal(t, []string{"a1", "a2"}, cfgs[0].TargetAgents)
	require.NotNil(t, cfgs[0].Duration)
	require.Equal(t, 30, *cfgs[0].Duration)
	require.Equal(t, 5201, cfgs[1].Parameters["port"])

	_, err = readTestFiles(strings.NewReader("---\n"))
	require.Error(t, err)

	_, err = readTestFiles(strings.NewReader("name: [unterminated"))
	require.Error(t, err)
}

func TestTestsCreateFromFile(t *testing.T) {
	fc := &fakeConsole{}
	ts := httptest.NewServer(fc.handler())
	defer ts.Close()

	file := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: a\ncommand: true\n---\nname: b\ncommand: false\n"), 0o600))

	out, err := runCtl(t, ts.URL, "tests", "create", "-f", file)
	require.NoError(t, err)
	require.Len(t, fc.created, 2)
	require.Equal(t, "b", fc.created[1].Name)
	require.Contains(t, out, "NAME")
	require.Contains(t, out, "t2")
}

func TestAPIErrorIsReported(t *testing.T) {
	ts := httptest.NewServer((&fakeConsole{}).handler())
	defer ts.Close()

	_, err := runCtl(t, ts.URL, "tests", "get", "nope")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found: test nope")
	require.Contains(t, err.Error(), "404")
}

func TestOutputFormats(t *testing.T) {
	ts := httptest.NewServer((&fakeConsole{}).handler())
	defer ts.Close()

	out, err := runCtl(t, ts.URL, "agents", "list")
	require.NoError(t, err)
	require.Contains(t, out, "bench-1")
	require.Contains(t, out, "12.5%")

	out, err = runCtl(t, ts.URL, "-o", "json", "executions", "list", "--status", "running")
	require.NoError(t, err)
	var execs []*model.TestExecution
	require.NoError(t, json.Unmarshal([]byte(out), &execs))
	require.Len(t, execs, 1)
	require.Equal(t, model.ExecutionRunning, execs[0].Status)

	out, err = runCtl(t, ts.URL, "-o", "yaml", "agents", "list")
	require.NoError(t, err)
	var agents []map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(out), &agents))
	require.Len(t, agents, 1)
	require.Equal(t, "10.0.0.1", agents[0]["ip_address"])

	out, err = runCtl(t, ts.URL, "tests", "delete", "t1")
	require.NoError(t, err)
	require.Contains(t, out, "test t1 deleted")
}

func TestInvalidOutputIsRejected(t *testing.T) {
	_, err := runCtl(t, "http://127.0.0.1:1", "-o", "xml", "agents", "list")
	require.Error(t, err)
}
