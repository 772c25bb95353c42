package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/autopeer-io/syncpeer/internal/console/core"
	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// ExecuteTest creates an execution of the configuration and distributes a
// prepare command scheduled one preparation lead ahead in synchronized time.
// Named targets get one command each, unknown targets are skipped; an empty
// target list is broadcast once.
func (s *Service) ExecuteTest(ctx context.Context, configID string) (*model.TestExecution, error) {
	cfg, err := s.tests.Get(ctx, configID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	exec := &model.TestExecution{
		ID:        uuid.NewString(),
		ConfigID:  cfg.ID,
		Status:    model.ExecutionPending,
		CommandID: uuid.NewString(),
		StartTime: now,
		Targets:   []string{},
		Results:   map[string]*model.AgentResult{},
	}
	m := newExecutionMachine(exec, s.now)
	if _, err := m.fire(ctx, EventPrepare); err != nil {
		return nil, err
	}

	startAt := s.clock.ExecutionTime(ctx, s.lead)
	exec.ScheduledAt = startAt.UTC()
	cmd := &fleetv1alpha1.Command{
		CommandID:          exec.CommandID,
		ExecutionID:        exec.ID,
		Type:               fleetv1alpha1.CommandPrepare,
		Command:            cfg.Command,
		Parameters:         cfg.Parameters,
		TargetAgents:       cfg.TargetAgents,
		DurationSeconds:    cfg.Duration,
		PreparationSeconds: fleetv1alpha1.Seconds(s.lead),
		ExecutionTime:      fleetv1alpha1.NewEpoch(startAt),
	}
	deadline := exec.ScheduledAt.Add(runBound(cmd) + s.resultWait)
	exec.Deadline = &deadline

	s.execMu.Lock()
	defer s.execMu.Unlock()

	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	if len(cfg.TargetAgents) > 0 {
		s.dispatchTargeted(ctx, exec, cmd, cfg.TargetAgents)
	} else {
		s.dispatchBroadcast(ctx, exec, cmd)
	}

	if len(exec.Targets) == 0 && !exec.Broadcast {
		if _, err := m.fire(ctx, EventFail, "no target agent could be reached"); err != nil {
			return nil, err
		}
	}

	if err := s.executions.Update(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to update execution: %w", err)
	}

	log.Info("Execution dispatched", "executionID", exec.ID, "configID", cfg.ID, "status", exec.Status,
		"targets", exec.Targets, "broadcast", exec.Broadcast, "scheduledAt", exec.ScheduledAt)
	return exec, nil
}

func (s *Service) dispatchTargeted(ctx context.Context, exec *model.TestExecution, cmd *fleetv1alpha1.Command, targets []string) {
	for _, id := range targets {
		if _, err := s.agents.Get(ctx, id); err != nil {
			if errors.Is(err, core.ErrNotFound) {
				log.Warn("Target agent not found, skipping", "executionID", exec.ID, "agentID", id)
			} else {
				log.Error(err, "Failed to look up target agent, skipping", "executionID", exec.ID, "agentID", id)
			}
			continue
		}
		if err := s.notify(ctx, id, cmd); err != nil {
			log.Error(err, "Failed to send prepare command", "executionID", exec.ID, "agentID", id)
			continue
		}
		exec.Targets = append(exec.Targets, id)
	}
}

func (s *Service) dispatchBroadcast(ctx context.Context, exec *model.TestExecution, cmd *fleetv1alpha1.Command) {
	if err := s.notify(ctx, messaging.KeyBroadcast, cmd); err != nil {
		log.Error(err, "Failed to broadcast prepare command", "executionID", exec.ID)
		return
	}
	exec.Broadcast = true

	agents, err := s.agents.List(ctx)
	if err != nil {
		log.Warn("Unable to list agents, completion will follow executing agents", "executionID", exec.ID, "error", err)
		return
	}
	// Only agents that can take a command are awaited.
	for _, a := range agents {
		switch a.Status {
		case fleetv1alpha1.AgentStatusReady, fleetv1alpha1.AgentStatusBusy:
			exec.Targets = append(exec.Targets, a.ID)
		default:
			log.Debug("Agent not expected to report", "executionID", exec.ID, "agentID", a.ID, "status", a.Status)
		}
	}
}

// runBound is how long the command itself may run, from its timeout or else
// its expected duration.
func runBound(cmd *fleetv1alpha1.Command) time.Duration {
	if t := cmd.Timeout(); t > 0 {
		return time.Duration(t * float64(time.Second))
	}
	if cmd.DurationSeconds != nil && *cmd.DurationSeconds > 0 {
		return time.Duration(*cmd.DurationSeconds) * time.Second
	}
	return 0
}

// ExpireExecutions fails every preparing or running execution whose deadline
// passed. Agents that did not report get an error result. It returns the
// number of executions expired.
func (s *Service) ExpireExecutions(ctx context.Context) (int, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	now := s.now()
	expired := 0
	for _, status := range []model.ExecutionStatus{model.ExecutionPreparing, model.ExecutionRunning} {
		execs, err := s.executions.List(ctx, status)
		if err != nil {
			return expired, err
		}
		for _, exec := range execs {
			if exec.Deadline == nil || now.Before(*exec.Deadline) {
				continue
			}
			if err := s.expire(ctx, exec, now); err != nil {
				return expired, err
			}
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expire(ctx context.Context, exec *model.TestExecution, now time.Time) error {
	missing := exec.Missing()
	if exec.Results == nil {
		exec.Results = map[string]*model.AgentResult{}
	}
	for _, id := range missing {
		exec.Results[id] = &model.AgentResult{
			AgentID:   id,
			CommandID: exec.CommandID,
			ExecutionResult: fleetv1alpha1.ExecutionResult{
				Status:   fleetv1alpha1.ResultError,
				ExitCode: -1,
				Message:  "no result before deadline",
			},
			ReportedAt: now,
		}
	}
	summary := exec.Summarize()

	m := newExecutionMachine(exec, s.now)
	reason := fmt.Sprintf("%d of %d agents did not report before the deadline", len(missing), len(exec.Expected()))
	if len(exec.Expected()) == 0 {
		reason = "no agent reported before the deadline"
	}
	if _, err := m.fire(ctx, EventFail, reason); err != nil {
		return err
	}
	if err := s.executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	log.Warn("Execution expired", "executionID", exec.ID, "missing", missing,
		"succeeded", summary.Succeeded, "failed", summary.Failed)
	return nil
}

// AbortExecution moves a preparing or running execution to aborted and
// broadcasts an abort command. It returns false, leaving the record untouched,
// for any other status.
func (s *Service) AbortExecution(ctx context.Context, id string) (bool, error) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	exec, err := s.executions.Get(ctx, id)
	if err != nil {
		return false, err
	}

	m := newExecutionMachine(exec, s.now)
	changed, err := m.fire(ctx, EventAbort, "aborted by operator")
	if err != nil || !changed {
		return false, err
	}
	if err := s.executions.Update(ctx, exec); err != nil {
		return false, fmt.Errorf("failed to update execution: %w", err)
	}

	cmd := &fleetv1alpha1.Command{
		CommandID:   uuid.NewString(),
		ExecutionID: exec.ID,
		Type:        fleetv1alpha1.CommandAbort,
	}
	if err := s.notify(ctx, messaging.KeyBroadcast, cmd); err != nil {
		log.Error(err, "Failed to broadcast abort command", "executionID", exec.ID)
	}

	log.Info("Execution aborted", "executionID", exec.ID)
	return true, nil
}

func (s *Service) notify(ctx context.Context, key string, cmd *fleetv1alpha1.Command) error {
	err := s.notifier.Notify(ctx, key, cmd)
	metrics.CommandsSent.WithLabelValues(string(cmd.Type), metrics.Result(err == nil)).Inc()
	return err
}

func (s *Service) GetExecution(ctx context.Context, id string) (*model.TestExecution, error) {
	return s.executions.Get(ctx, id)
}

func (s *Service) ListExecutions(ctx context.Context, status model.ExecutionStatus) ([]*model.TestExecution, error) {
	return s.executions.List(ctx, status)
}

func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
