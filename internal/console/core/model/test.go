package model

import "time"

// TestConfiguration is a reusable definition of a command to run on a set of
// agents. An empty TargetAgents list broadcasts to every agent.
type TestConfiguration struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Command     string         `json:"command"`
	Parameters  map[string]any `json:"parameters"`

	TargetAgents []string `json:"target_agents"`

	// Duration is an optional run length in seconds handed to the agents.
	Duration *int `json:"duration,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	CreatedBy string    `json:"created_by"`
}
