package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// HandleStatus consumes the status topic. Result events arrive under
// agent.<id>.result keys, every other key carries a StatusMessage.
func (s *Service) HandleStatus(ctx context.Context, d *messaging.Delivery) error {
	if strings.HasSuffix(d.Key, ".result") {
		var msg fleetv1alpha1.ResultMessage
		if err := d.Decode(&msg); err != nil {
			return err
		}
		return s.RecordResult(ctx, &msg)
	}

	var msg fleetv1alpha1.StatusMessage
	if err := d.Decode(&msg); err != nil {
		return err
	}
	return s.RecordStatus(ctx, &msg)
}

// HandleMetrics consumes the metrics topic and keeps the latest sample on the agent record.
func (s *Service) HandleMetrics(ctx context.Context, d *messaging.Delivery) error {
	var msg fleetv1alpha1.MetricsMessage
	if err := d.Decode(&msg); err != nil {
		return err
	}
	return s.RecordMetrics(ctx, &msg)
}

// RecordStatus upserts the reporting agent and, when the agent reports it
// started an execution, moves that execution to running.
func (s *Service) RecordStatus(ctx context.Context, msg *fleetv1alpha1.StatusMessage) error {
	if msg.AgentID == "" {
		return fmt.Errorf("%w: status without agent_id", messaging.ErrMalformed)
	}
	if err := s.upsertAgent(ctx, msg); err != nil {
		return err
	}

	execID := msg.DetailString(fleetv1alpha1.DetailExecutionID)
	if execID == "" || !msg.DetailBool(fleetv1alpha1.DetailExecuting) {
		return nil
	}

	s.execMu.Lock()
	defer s.execMu.Unlock()

	exec, err := s.executions.Get(ctx, execID)
	if errors.Is(err, core.ErrNotFound) {
		log.Debug("Status for unknown execution", "agentID", msg.AgentID, "executionID", execID)
		return nil
	}
	if err != nil {
		return err
	}
	if exec.Status.Terminal() || !exec.MarkExecuting(msg.AgentID) {
		return nil
	}

	m := newExecutionMachine(exec, s.now)
	if _, err := m.fire(ctx, EventStart); err != nil {
		return err
	}
	return s.executions.Update(ctx, exec)
}

func (s *Service) upsertAgent(ctx context.Context, msg *fleetv1alpha1.StatusMessage) error {
	now := s.now()

	agent, err := s.agents.Get(ctx, msg.AgentID)
	if errors.Is(err, core.ErrNotFound) {
		agent = &model.Agent{
			ID:        msg.AgentID,
			Hostname:  msg.Hostname,
			IPAddress: msg.IPAddress,
			Status:    msg.Status,
			LastSeen:  now,
			CreatedAt: now,
		}
		if err := s.agents.Create(ctx, agent); err != nil && !errors.Is(err, core.ErrConflict) {
			return fmt.Errorf("failed to create agent: %w", err)
		}
		log.Info("Agent discovered from status", "agentID", agent.ID, "status", agent.Status)
		return nil
	}
	if err != nil {
		return err
	}

	if msg.Status != "" {
		agent.Status = msg.Status
	}
	if msg.Hostname != "" {
		agent.Hostname = msg.Hostname
	}
	if msg.IPAddress != "" {
		agent.IPAddress = msg.IPAddress
	}
	agent.LastSeen = now
	return s.agents.Update(ctx, agent)
}

// RecordResult stores an agent's result on its execution. Once every expected
// agent reported, the execution completes, or fails if any result is not a
// clean completion. Results for finished executions and repeated results of
// the same agent are ignored.
func (s *Service) RecordResult(ctx context.Context, msg *fleetv1alpha1.ResultMessage) error {
	if msg.AgentID == "" {
		return fmt.Errorf("%w: result without agent_id", messaging.ErrMalformed)
	}
	if msg.ExecutionID == "" {
		log.Debug("Result outside any execution", "agentID", msg.AgentID, "commandID", msg.CommandID,
			"status", msg.Result.Status, "exitCode", msg.Result.ExitCode)
		return nil
	}

	result, recorded, err := s.recordResult(ctx, msg)
	if err != nil || !recorded {
		return err
	}

	if s.archive != nil {
		if err := s.archive.Archive(ctx, msg.ExecutionID, result); err != nil {
			log.Error(err, "Failed to archive result", "executionID", msg.ExecutionID, "agentID", msg.AgentID)
		}
	}
	return nil
}

func (s *Service) recordResult(ctx context.Context, msg *fleetv1alpha1.ResultMessage) (*model.AgentResult, bool, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	exec, err := s.executions.Get(ctx, msg.ExecutionID)
	if errors.Is(err, core.ErrNotFound) {
		log.Warn("Result for unknown execution", "agentID", msg.AgentID, "executionID", msg.ExecutionID)
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	if exec.Status.Terminal() {
		log.Debug("Result for finished execution ignored", "executionID", exec.ID, "status", exec.Status, "agentID", msg.AgentID)
		return nil, false, nil
	}
	if _, ok := exec.Results[msg.AgentID]; ok {
		return nil, false, nil
	}

	result := &model.AgentResult{
		AgentID:         msg.AgentID,
		CommandID:       msg.CommandID,
		ExecutionResult: msg.Result,
		ReportedAt:      msg.Timestamp.Time(),
	}
	if exec.Results == nil {
		exec.Results = map[string]*model.AgentResult{}
	}
	exec.Results[msg.AgentID] = result
	summary := exec.Summarize()

	if exec.AllReported() {
		m := newExecutionMachine(exec, s.now)
		event, reason := EventComplete, ""
		if summary.Failed > 0 {
			event, reason = EventFail, fmt.Sprintf("%d of %d agents failed", summary.Failed, summary.Total)
		}
		if _, err := m.fire(ctx, event, reason); err != nil {
			return nil, false, err
		}
		log.Info("Execution finished", "executionID", exec.ID, "status", exec.Status,
			"succeeded", summary.Succeeded, "failed", summary.Failed)
	}

	if err := s.executions.Update(ctx, exec); err != nil {
		return nil, false, fmt.Errorf("failed to update execution: %w", err)
	}
	return result, true, nil
}

// RecordMetrics keeps the sample as the agent's last known metrics.
func (s *Service) RecordMetrics(ctx context.Context, msg *fleetv1alpha1.MetricsMessage) error {
	agent, err := s.agents.Get(ctx, msg.AgentID)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	sample := msg.Metrics
	agent.LastMetrics = &sample
	agent.LastSeen = s.now()
	return s.agents.Update(ctx, agent)
}
