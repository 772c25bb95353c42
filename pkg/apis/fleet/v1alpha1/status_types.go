package v1alpha1

// AgentStatus is the coarse state an agent reports about itself.
type AgentStatus string

const (
	AgentStatusUninstalled AgentStatus = "uninstalled"
	AgentStatusInstalling  AgentStatus = "installing"
	AgentStatusReady       AgentStatus = "ready"
	AgentStatusBusy        AgentStatus = "busy"
	AgentStatusError       AgentStatus = "error"
)

// Well-known keys of StatusMessage.Details.
const (
	DetailExecutionID     = "execution_id"
	DetailCommandID       = "command_id"
	DetailReady           = "ready"
	DetailExecuting       = "executing"
	DetailStartTime       = "start_time"
	DetailExecutionStatus = "execution_status"
	DetailMessage         = "message"
	DetailError           = "error"
)

// StatusMessage is published by an agent on the status topic under its
// status key every time its state changes.
type StatusMessage struct {
	AgentID   string      `json:"agent_id"`
	Hostname  string      `json:"hostname"`
	IPAddress string      `json:"ip_address"`
	Status    AgentStatus `json:"status"`
	// Timestamp is the agent's wall clock at emission.
	Timestamp Epoch `json:"timestamp"`
	// Details is a free-form mapping. See the Detail* keys.
	Details map[string]any `json:"details"`
}

// DetailString returns Details[key] if it is a string.
func (s *StatusMessage) DetailString(key string) string {
	v, _ := s.Details[key].(string)
	return v
}

// DetailBool returns Details[key] if it is a bool.
func (s *StatusMessage) DetailBool(key string) bool {
	v, _ := s.Details[key].(bool)
	return v
}

// ResultStatus is the outcome recorded by the agent's process supervisor.
type ResultStatus string

const (
	ResultStarted   ResultStatus = "started"
	ResultCompleted ResultStatus = "completed"
	ResultTimeout   ResultStatus = "timeout"
	ResultError     ResultStatus = "error"
	ResultAborted   ResultStatus = "aborted"
)

// ExecutionResult is the captured outcome of one process run.
type ExecutionResult struct {
	Status   ResultStatus `json:"status"`
	ExitCode int          `json:"exit_code"`
	Stdout   string       `json:"stdout"`
	Stderr   string       `json:"stderr"`
	// ExecutionTime is the elapsed run time in seconds.
	ExecutionTime float64 `json:"execution_time"`
	// +optional
	Message string `json:"message,omitempty"`
}

// Succeeded reports whether the run completed with exit code zero.
func (r *ExecutionResult) Succeeded() bool {
	return r.Status == ResultCompleted && r.ExitCode == 0
}

// ResultMessage is published by an agent on the status topic under its result
// key once a process it ran has finished.
type ResultMessage struct {
	AgentID   string `json:"agent_id"`
	CommandID string `json:"command_id"`
	// +optional
	ExecutionID string `json:"execution_id,omitempty"`
	// Timestamp is in synchronized time.
	Timestamp Epoch           `json:"timestamp"`
	Result    ExecutionResult `json:"result"`
}
