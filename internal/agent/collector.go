package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// DefaultMetricsInterval is the period between two published samples.
const DefaultMetricsInterval = 5 * time.Second

// Collector samples host telemetry.
type Collector interface {
	Collect(ctx context.Context) (fleetv1alpha1.SystemMetrics, error)
}

// HostCollector reads CPU, memory, disk and network counters of the local host.
type HostCollector struct {
	diskPath string
}

var _ Collector = (*HostCollector)(nil)

// NewHostCollector reports disk usage of the filesystem mounted at diskPath.
func NewHostCollector(diskPath string) *HostCollector {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostCollector{diskPath: diskPath}
}

func (h *HostCollector) Collect(ctx context.Context) (fleetv1alpha1.SystemMetrics, error) {
	var m fleetv1alpha1.SystemMetrics

	// A zero interval compares against the previous call instead of sleeping.
	cpus, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return m, fmt.Errorf("cpu: %w", err)
	}
	if len(cpus) > 0 {
		m.CPUPercent = cpus[0]
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return m, fmt.Errorf("memory: %w", err)
	}
	m.MemoryPercent = vm.UsedPercent

	du, err := disk.UsageWithContext(ctx, h.diskPath)
	if err != nil {
		return m, fmt.Errorf("disk %s: %w", h.diskPath, err)
	}
	m.DiskPercent = du.UsedPercent

	counters, err := net.IOCountersWithContext(ctx, false)
	if err != nil {
		return m, fmt.Errorf("network: %w", err)
	}
	if len(counters) > 0 {
		m.Network.BytesSent = counters[0].BytesSent
		m.Network.BytesRecv = counters[0].BytesRecv
	}
	return m, nil
}

// collectMetrics publishes a sample every interval until ctx is done. A failed
// collection backs off for two intervals.
func (a *Agent) collectMetrics(ctx context.Context) {
	log.Info("Metrics collection started", "interval", a.interval)
	for {
		wait := a.interval
		if err := a.publishMetrics(ctx); err != nil {
			log.Warn("Failed to collect metrics", "error", err)
			wait = 2 * a.interval
		}

		select {
		case <-ctx.Done():
			return
		case <-a.clock.After(wait):
		}
	}
}

func (a *Agent) publishMetrics(ctx context.Context) error {
	sample, err := a.collector.Collect(ctx)
	if err != nil {
		return err
	}
	msg := &fleetv1alpha1.MetricsMessage{
		AgentID:   a.id,
		Timestamp: fleetv1alpha1.NewEpoch(a.timesync.Now()),
		Metrics:   sample,
	}
	if !a.ch.Publish(ctx, messaging.TopicMetrics, messaging.MetricsKey(a.id), msg) {
		log.Debug("Metrics sample not published", "agentID", a.id)
	}
	return nil
}
