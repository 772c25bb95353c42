package model

import (
	"sort"
	"time"

	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

// ExecutionStatus is the lifecycle phase of a TestExecution. Transitions only
// move forward: pending, preparing, running, then one terminal phase.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionPreparing ExecutionStatus = "preparing"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionAborted   ExecutionStatus = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionAborted:
		return true
	}
	return false
}

// AgentResult is what one agent reported for an execution.
type AgentResult struct {
	AgentID   string `json:"agent_id"`
	CommandID string `json:"command_id"`

	fleetv1alpha1.ExecutionResult

	// ReportedAt is the agent's synchronized clock when it published the result.
	ReportedAt time.Time `json:"reported_at"`
}

// ExecutionSummary aggregates the per-agent results.
type ExecutionSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// TestExecution is one run of a TestConfiguration.
type TestExecution struct {
	ID       string          `json:"id"`
	ConfigID string          `json:"config_id"`
	Status   ExecutionStatus `json:"status"`

	// CommandID identifies the prepare command that was dispatched.
	CommandID string `json:"command_id"`

	// ScheduledAt is the synchronized instant the agents were asked to start.
	ScheduledAt time.Time  `json:"scheduled_at"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time,omitempty"`

	// Deadline is when agents that have not reported are given up on.
	Deadline *time.Time `json:"deadline,omitempty"`

	// Targets are the agents the command was delivered to. For a broadcast it
	// holds the agents known at dispatch time.
	Targets []string `json:"targets"`
	// Broadcast is set when the command went to the broadcast key.
	Broadcast bool `json:"broadcast"`
	// Executing lists agents that reported they started the command.
	Executing []string `json:"executing,omitempty"`

	Results map[string]*AgentResult `json:"agent_results"`
	Summary *ExecutionSummary       `json:"results,omitempty"`

	Message string `json:"message,omitempty"`
}

// Expected returns the agents whose results complete the execution.
func (e *TestExecution) Expected() []string {
	if !e.Broadcast || len(e.Targets) > 0 {
		return e.Targets
	}
	seen := make(map[string]struct{}, len(e.Executing)+len(e.Results))
	for _, id := range e.Executing {
		seen[id] = struct{}{}
	}
	for id := range e.Results {
		seen[id] = struct{}{}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// AllReported reports whether every expected agent has a result.
func (e *TestExecution) AllReported() bool {
	expected := e.Expected()
	if len(expected) == 0 {
		return false
	}
	for _, id := range expected {
		if _, ok := e.Results[id]; !ok {
			return false
		}
	}
	return true
}

// Missing returns the expected agents without a result.
func (e *TestExecution) Missing() []string {
	var missing []string
	for _, id := range e.Expected() {
		if _, ok := e.Results[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Summarize recomputes Summary from Results.
func (e *TestExecution) Summarize() *ExecutionSummary {
	s := &ExecutionSummary{Total: len(e.Results)}
	for _, r := range e.Results {
		if r.Succeeded() {
			s.Succeeded++
		} else {
			s.Failed++
		}
	}
	e.Summary = s
	return s
}

// MarkExecuting records that agentID started the command. It reports false
// if the agent was already recorded.
func (e *TestExecution) MarkExecuting(agentID string) bool {
	for _, id := range e.Executing {
		if id == agentID {
			return false
		}
	}
	e.Executing = append(e.Executing, agentID)
	return true
}
