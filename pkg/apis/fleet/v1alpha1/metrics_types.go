package v1alpha1

// NetworkCounters are cumulative interface byte counters.
type NetworkCounters struct {
	BytesSent uint64 `json:"bytes_sent"`
	BytesRecv uint64 `json:"bytes_recv"`
}

// SystemMetrics is one host telemetry sample.
type SystemMetrics struct {
	CPUPercent    float64         `json:"cpu_percent"`
	MemoryPercent float64         `json:"memory_percent"`
	DiskPercent   float64         `json:"disk_percent"`
	Network       NetworkCounters `json:"network"`
}

// MetricsMessage is published periodically by every agent on the metrics topic.
type MetricsMessage struct {
	AgentID   string        `json:"agent_id"`
	Timestamp Epoch         `json:"timestamp"`
	Metrics   SystemMetrics `json:"metrics"`
}
