package agent

import (
	"net"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

// AgentIDFile is read when no id is configured. Provisioning tools write the
// cloud instance id there.
const AgentIDFile = "/etc/syncpeer/agent-id"

// Environment variables set for every job the agent runs.
const (
	EnvAgentID     = "SPEER_AGENT_ID"
	EnvCommandID   = "SPEER_COMMAND_ID"
	EnvExecutionID = "SPEER_EXECUTION_ID"
)

// DiscoverAgentID returns the configured id, then the id stored in
// AgentIDFile, then a stable id derived from the hostname.
func DiscoverAgentID(configured, hostname string) string {
	if configured != "" {
		return configured
	}

	if content, err := os.ReadFile(AgentIDFile); err == nil {
		if id := strings.TrimSpace(string(content)); id != "" {
			log.Info("AgentID detected from file", "id", id, "file", AgentIDFile)
			return id
		}
	}

	id := uuid.NewSHA1(uuid.NameSpaceDNS, []byte(hostname)).String()
	log.Info("AgentID derived from hostname", "id", id, "hostname", hostname)
	return id
}

// DiscoverIdentity fills in the hostname, agent id and outbound IP address.
func DiscoverIdentity(id, ip string) Identity {
	hostname, err := os.Hostname()
	if err != nil {
		log.Warn("Unable to read hostname", "error", err)
		hostname = "unknown"
	}
	if ip == "" {
		ip = outboundIP()
	}
	return Identity{
		ID:        DiscoverAgentID(id, hostname),
		Hostname:  hostname,
		IPAddress: ip,
	}
}

// outboundIP is the local address of the default route. Connecting a UDP
// socket sends no packets.
func outboundIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
