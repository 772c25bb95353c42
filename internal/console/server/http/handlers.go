package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	"github.com/autopeer-io/syncpeer/internal/console/monitoring"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	defaultLookbackMinutes = 5
	defaultURLExpiry       = 15 * time.Minute
	maxBodyBytes           = 1 << 20
)

// AbortResponse is returned by a successful abort.
type AbortResponse struct {
	Status      model.ExecutionStatus `json:"status"`
	ExecutionID string                `json:"execution_id"`
}

// AgentMetricsResponse is the history of one agent.
type AgentMetricsResponse struct {
	AgentID         string              `json:"agent_id"`
	LookbackMinutes int                 `json:"lookback_minutes"`
	Samples         []monitoring.Sample `json:"samples"`
}

// ExecutionMetricsResponse holds the samples of every agent involved in an
// execution between its start and end time.
type ExecutionMetricsResponse struct {
	ExecutionID string                         `json:"execution_id"`
	From        time.Time                      `json:"from"`
	To          time.Time                      `json:"to"`
	Agents      map[string][]monitoring.Sample `json:"agents"`
}

// ResultURLResponse carries a temporary download link for an archived result.
type ResultURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error(err, "Failed to write response")
	}
}

// writeError maps domain errors to status codes.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrNotFound):
		code = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidArgument):
		code = http.StatusBadRequest
	case errors.Is(err, core.ErrConflict):
		code = http.StatusConflict
	default:
		log.Error(err, "Request failed")
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", core.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) listTests(w http.ResponseWriter, r *http.Request) {
	tests, err := s.svc.ListTests(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tests)
}

func (s *Server) createTest(w http.ResponseWriter, r *http.Request) {
	var cfg model.TestConfiguration
	if err := decodeBody(w, r, &cfg); err != nil {
		writeError(w, err)
		return
	}
	created, err := s.svc.CreateTest(r.Context(), &cfg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) getTest(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.svc.GetTest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

func (s *Server) deleteTest(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.DeleteTest(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) executeTest(w http.ResponseWriter, r *http.Request) {
	exec, err := s.svc.ExecuteTest(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exec)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	status := model.ExecutionStatus(r.URL.Query().Get("status"))
	switch status {
	case "", model.ExecutionPending, model.ExecutionPreparing, model.ExecutionRunning,
		model.ExecutionCompleted, model.ExecutionFailed, model.ExecutionAborted:
	default:
		writeError(w, fmt.Errorf("%w: unknown status %q", core.ErrInvalidArgument, status))
		return
	}

	execs, err := s.svc.ListExecutions(r.Context(), status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) getExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.svc.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, exec)
}

func (s *Server) abortExecution(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ok, err := s.svc.AbortExecution(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, fmt.Errorf("%w: execution %s is not preparing or running", core.ErrConflict, id))
		return
	}
	writeJSON(w, http.StatusOK, AbortResponse{Status: model.ExecutionAborted, ExecutionID: id})
}

func (s *Server) resultURL(w http.ResponseWriter, r *http.Request) {
	archive := s.svc.Archive()
	if archive == nil {
		writeError(w, fmt.Errorf("result archive is not configured: %w", core.ErrNotFound))
		return
	}

	expiry := defaultURLExpiry
	if raw := r.URL.Query().Get("expiry"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, fmt.Errorf("%w: invalid expiry %q", core.ErrInvalidArgument, raw))
			return
		}
		expiry = d
	}

	vars := mux.Vars(r)
	exec, err := s.svc.GetExecution(r.Context(), vars["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	if _, ok := exec.Results[vars["agent"]]; !ok {
		writeError(w, fmt.Errorf("no result of agent %s: %w", vars["agent"], core.ErrNotFound))
		return
	}

	url, err := archive.GeneratePresignedURL(r.Context(), exec.ID, vars["agent"], expiry)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResultURLResponse{URL: url, ExpiresAt: time.Now().UTC().Add(expiry)})
}

func (s *Server) registerAgent(w http.ResponseWriter, r *http.Request) {
	var reg fleetv1alpha1.Registration
	if err := decodeBody(w, r, &reg); err != nil {
		writeError(w, err)
		return
	}
	id, err := s.svc.RegisterAgent(r.Context(), &reg)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fleetv1alpha1.RegistrationResponse{Status: "success", AgentID: id})
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.svc.ListAgents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) getAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.svc.GetAgent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) agentMetrics(w http.ResponseWriter, r *http.Request) {
	minutes := defaultLookbackMinutes
	if raw := r.URL.Query().Get("lookback_minutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, fmt.Errorf("%w: lookback_minutes must be a positive integer", core.ErrInvalidArgument))
			return
		}
		minutes = n
	}

	id := mux.Vars(r)["id"]
	writeJSON(w, http.StatusOK, AgentMetricsResponse{
		AgentID:         id,
		LookbackMinutes: minutes,
		Samples:         s.agg.AgentMetrics(id, time.Duration(minutes)*time.Minute),
	})
}

func (s *Server) liveMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.agg.Live())
}

func (s *Server) executionMetrics(w http.ResponseWriter, r *http.Request) {
	exec, err := s.svc.GetExecution(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}

	to := time.Now().UTC()
	if exec.EndTime != nil {
		to = *exec.EndTime
	}
	resp := ExecutionMetricsResponse{
		ExecutionID: exec.ID,
		From:        exec.StartTime,
		To:          to,
		Agents:      map[string][]monitoring.Sample{},
	}
	for _, id := range exec.Expected() {
		resp.Agents[id] = s.agg.Between(id, exec.StartTime, to)
	}
	for id := range exec.Results {
		if _, ok := resp.Agents[id]; !ok {
			resp.Agents[id] = s.agg.Between(id, exec.StartTime, to)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
