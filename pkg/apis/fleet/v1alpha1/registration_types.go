package v1alpha1

// Registration is posted by an agent to the console at startup.
type Registration struct {
	ID        string `json:"id"`
	Hostname  string `json:"hostname"`
	IPAddress string `json:"ip_address"`
}

// RegistrationResponse carries the id the console knows the agent by. It
// differs from Registration.ID when an agent with the same IP address was
// already registered.
type RegistrationResponse struct {
	Status  string `json:"status"`
	AgentID string `json:"agent_id"`
}
