package model

import (
	"time"

	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
)

// Agent is a worker node known to the console. It is created on first
// registration or first status report and never deleted automatically.
type Agent struct {
	ID        string `json:"id"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`

	// Status is only changed by the agent's own status reports, apart from
	// registration which marks it ready.
	Status fleetv1alpha1.AgentStatus `json:"status"`

	// LastMetrics is the most recent telemetry sample.
	LastMetrics *fleetv1alpha1.SystemMetrics `json:"last_metrics,omitempty"`

	LastSeen  time.Time `json:"last_seen"`
	CreatedAt time.Time `json:"created_at"`
}
