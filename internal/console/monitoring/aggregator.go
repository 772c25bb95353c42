// Package monitoring keeps a bounded, in-memory history of agent telemetry.
package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	utilclock "k8s.io/utils/clock"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

const (
	// DefaultRetention bounds how long samples are kept per agent.
	DefaultRetention = time.Hour
	// LiveWindow is how recent a sample must be to appear in Live.
	LiveWindow = time.Minute
)

// Sample is one telemetry point of an agent.
type Sample struct {
	AgentID   string                      `json:"agent_id"`
	Timestamp time.Time                   `json:"timestamp"`
	Metrics   fleetv1alpha1.SystemMetrics `json:"metrics"`
}

// Aggregator maps agent ids to timestamp-ascending sample sequences. Every
// insert prunes all sequences to the retention window.
type Aggregator struct {
	clock     utilclock.PassiveClock
	retention time.Duration

	mu      sync.RWMutex
	samples map[string][]Sample
}

type Option func(*Aggregator)

func WithClock(c utilclock.PassiveClock) Option {
	return func(a *Aggregator) { a.clock = c }
}

func WithRetention(d time.Duration) Option {
	return func(a *Aggregator) {
		if d > 0 {
			a.retention = d
		}
	}
}

func NewAggregator(opts ...Option) *Aggregator {
	a := &Aggregator{
		clock:     utilclock.RealClock{},
		retention: DefaultRetention,
		samples:   make(map[string][]Sample),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Add records s and prunes every agent's history.
func (a *Aggregator) Add(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	seq := a.samples[s.AgentID]
	i := sort.Search(len(seq), func(i int) bool { return seq[i].Timestamp.After(s.Timestamp) })
	seq = append(seq, Sample{})
	copy(seq[i+1:], seq[i:])
	seq[i] = s
	a.samples[s.AgentID] = seq

	a.pruneLocked(a.clock.Now().Add(-a.retention))
}

func (a *Aggregator) pruneLocked(cutoff time.Time) {
	for id, seq := range a.samples {
		i := sort.Search(len(seq), func(i int) bool { return !seq[i].Timestamp.Before(cutoff) })
		if i == len(seq) {
			delete(a.samples, id)
			continue
		}
		if i > 0 {
			a.samples[id] = append([]Sample(nil), seq[i:]...)
		}
	}
}

// AgentMetrics returns the samples of agentID stamped at or after now-lookback,
// including samples ahead of the local clock. An unknown agent yields an empty
// slice.
func (a *Aggregator) AgentMetrics(agentID string, lookback time.Duration) []Sample {
	from := a.clock.Now().Add(-lookback)

	a.mu.RLock()
	defer a.mu.RUnlock()

	seq := a.samples[agentID]
	lo := sort.Search(len(seq), func(i int) bool { return !seq[i].Timestamp.Before(from) })
	if lo == len(seq) {
		return []Sample{}
	}
	return append([]Sample(nil), seq[lo:]...)
}

// Between returns the samples of agentID with from <= timestamp <= to.
func (a *Aggregator) Between(agentID string, from, to time.Time) []Sample {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seq := a.samples[agentID]
	lo := sort.Search(len(seq), func(i int) bool { return !seq[i].Timestamp.Before(from) })
	hi := sort.Search(len(seq), func(i int) bool { return seq[i].Timestamp.After(to) })
	if lo >= hi {
		return []Sample{}
	}
	return append([]Sample(nil), seq[lo:hi]...)
}

// Live returns the most recent sample of every agent that reported within LiveWindow.
func (a *Aggregator) Live() map[string]Sample {
	cutoff := a.clock.Now().Add(-LiveWindow)

	a.mu.RLock()
	defer a.mu.RUnlock()

	live := make(map[string]Sample, len(a.samples))
	for id, seq := range a.samples {
		if len(seq) == 0 {
			continue
		}
		if last := seq[len(seq)-1]; !last.Timestamp.Before(cutoff) {
			live[id] = last
		}
	}
	return live
}

// Agents returns the ids with buffered samples, sorted.
func (a *Aggregator) Agents() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	ids := make([]string, 0, len(a.samples))
	for id := range a.samples {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// HandleMetrics consumes the metrics topic. Samples without a timestamp are
// stamped with the delivery time.
func (a *Aggregator) HandleMetrics(_ context.Context, d *messaging.Delivery) error {
	var msg fleetv1alpha1.MetricsMessage
	if err := d.Decode(&msg); err != nil {
		return err
	}
	if msg.AgentID == "" {
		log.Warn("Dropping metrics sample without agent id", "key", d.Key)
		return nil
	}

	ts := msg.Timestamp.Time()
	if msg.Timestamp.IsZero() {
		ts = d.SentAt
	}
	a.Add(Sample{AgentID: msg.AgentID, Timestamp: ts, Metrics: msg.Metrics})
	return nil
}
