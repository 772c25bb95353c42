package v1alpha1

// CommandType selects how an agent handles a Command.
type CommandType string

const (
	// CommandExecute runs the command immediately and reports its result.
	CommandExecute CommandType = "execute"
	// CommandPrepare stores the command and arms a timer for ExecutionTime.
	// The agent acknowledges with a ready status event.
	CommandPrepare CommandType = "prepare"
	// CommandStart triggers a prepared execution right away instead of waiting
	// for its timer.
	CommandStart CommandType = "start"
	// CommandAbort cancels a prepared execution and kills running processes.
	CommandAbort CommandType = "abort"
)

// Command is published by the console on the commands topic, keyed either by
// the target agent id or by the broadcast key.
type Command struct {
	// CommandID is unique per dispatch attempt. Agents ignore ids they already handled.
	CommandID string `json:"command_id"`

	// ExecutionID correlates the command with a TestExecution. Empty for
	// one-off commands. For abort it narrows the target to one execution.
	// +optional
	ExecutionID string `json:"execution_id,omitempty"`

	// Type is the operation to perform.
	Type CommandType `json:"command_type"`

	// Command is the command line, tokenized with shell quoting rules and
	// executed without a shell.
	// +optional
	Command string `json:"command,omitempty"`

	// Parameters are substituted into ${name} placeholders of Command.
	// A numeric "timeout" entry doubles as the timeout in seconds when
	// TimeoutSeconds is not set.
	// +optional
	Parameters map[string]any `json:"parameters,omitempty"`

	// ExecutionTime is the synchronized instant at which a prepared command starts.
	// Required for prepare.
	// +optional
	ExecutionTime Epoch `json:"execution_time,omitempty"`

	// TimeoutSeconds bounds the process run time. Zero means no timeout.
	// +optional
	TimeoutSeconds float64 `json:"timeout,omitempty"`

	// PreparationSeconds is the lead time the console granted between dispatch
	// and ExecutionTime. Informational.
	// +optional
	PreparationSeconds float64 `json:"preparation_time,omitempty"`

	// TargetAgents echoes the configuration's target list. Informational;
	// routing is done by message key.
	// +optional
	TargetAgents []string `json:"target_agents,omitempty"`

	// DurationSeconds echoes the configuration's expected duration.
	// +optional
	DurationSeconds *int `json:"duration,omitempty"`
}

// Timeout returns the effective timeout in seconds, falling back to a numeric
// "timeout" parameter. Zero means none.
func (c *Command) Timeout() float64 {
	if c.TimeoutSeconds > 0 {
		return c.TimeoutSeconds
	}
	switch v := c.Parameters["timeout"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
