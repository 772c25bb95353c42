package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	utilclock "k8s.io/utils/clock"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/internal/pkg/supervisor"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/clock"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

// Identity describes the host an agent runs on.
type Identity struct {
	ID        string
	Hostname  string
	IPAddress string
}

// Agent turns commands from the console into supervised processes and
// reports status, results and host metrics back.
type Agent struct {
	id       string
	hostname string
	ip       string

	ch         messaging.Channel
	timesync   *clock.Synchronizer
	sup        *supervisor.Supervisor
	clock      utilclock.WithTickerAndDelayedExecution
	registrar  Registrar
	collector  Collector
	interval   time.Duration
	closeGrace time.Duration
	workDir    string

	seen    *messaging.Deduper
	session *session

	mu       sync.Mutex
	status   fleetv1alpha1.AgentStatus
	stopping bool
	workers  sync.WaitGroup
}

type Option func(*Agent)

// WithClock replaces the real clock used for timers and timestamps.
func WithClock(c utilclock.WithTickerAndDelayedExecution) Option {
	return func(a *Agent) { a.clock = c }
}

// WithRegistrar registers the agent with the console before it subscribes.
func WithRegistrar(r Registrar) Option {
	return func(a *Agent) { a.registrar = r }
}

// WithMetrics publishes a sample from c every interval. A zero interval
// disables the loop.
func WithMetrics(c Collector, interval time.Duration) Option {
	return func(a *Agent) {
		a.collector = c
		a.interval = interval
	}
}

// WithWorkDir runs every job in dir instead of the agent's working directory.
func WithWorkDir(dir string) Option {
	return func(a *Agent) { a.workDir = dir }
}

func NewAgent(ident Identity, ch messaging.Channel, ts *clock.Synchronizer, sup *supervisor.Supervisor, opts ...Option) *Agent {
	a := &Agent{
		id:         ident.ID,
		hostname:   ident.Hostname,
		ip:         ident.IPAddress,
		ch:         ch,
		timesync:   ts,
		sup:        sup,
		clock:      utilclock.RealClock{},
		closeGrace: 5 * time.Second,
		seen:       messaging.NewDeduper(time.Hour),
		session:    newSession(),
		status:     fleetv1alpha1.AgentStatusReady,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the id the agent is addressed by. It may change during Run if
// the console already knows this host under another id.
func (a *Agent) ID() string {
	return a.id
}

// Status returns the last status the agent reported.
func (a *Agent) Status() fleetv1alpha1.AgentStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Run registers, subscribes to commands and blocks until ctx is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	log.Info("Starting speer-agent", "agentID", a.id, "hostname", a.hostname, "ip", a.ip)

	if off, err := a.timesync.Sync(ctx); err != nil {
		log.Warn("Initial clock sync failed, trusting local clock", "error", err)
	} else {
		metrics.ClockOffset.Set(off.Seconds())
	}

	if a.registrar != nil {
		id, err := a.registrar.Register(ctx, &fleetv1alpha1.Registration{
			ID:        a.id,
			Hostname:  a.hostname,
			IPAddress: a.ip,
		})
		if err != nil {
			return fmt.Errorf("failed to register with console: %w", err)
		}
		if id != "" && id != a.id {
			log.Info("Console assigned a different agent id", "requested", a.id, "assigned", id)
			a.id = id
		}
	}

	a.ch.SubscribeAsync(ctx, messaging.TopicCommands, "agent-"+a.id, a.HandleCommand)
	a.emit(ctx, fleetv1alpha1.AgentStatusReady, nil)

	if a.collector != nil && a.interval > 0 {
		a.spawn(func() { a.collectMetrics(ctx) })
	}

	<-ctx.Done()
	log.Info("Agent shutting down...", "agentID", a.id)
	a.shutdown()
	return nil
}

// spawn runs fn on a tracked worker unless the agent is stopping.
func (a *Agent) spawn(fn func()) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopping {
		return false
	}
	a.workers.Add(1)
	go func() {
		defer a.workers.Done()
		fn()
	}()
	return true
}

func (a *Agent) shutdown() {
	a.mu.Lock()
	a.stopping = true
	a.mu.Unlock()

	if keys := a.session.cancel(""); len(keys) > 0 {
		log.Info("Cancelled prepared executions", "executions", keys)
	}
	if ids := a.sup.AbortAll(); len(ids) > 0 {
		log.Info("Aborted running jobs", "jobs", ids)
	}
	a.workers.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), a.closeGrace)
	defer cancel()
	if err := a.ch.Close(ctx); err != nil {
		log.Error(err, "Failed to close message channel")
	}
}

// emit records and publishes a status event.
func (a *Agent) emit(ctx context.Context, status fleetv1alpha1.AgentStatus, details map[string]any) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()

	if details == nil {
		details = map[string]any{}
	}
	msg := &fleetv1alpha1.StatusMessage{
		AgentID:   a.id,
		Hostname:  a.hostname,
		IPAddress: a.ip,
		Status:    status,
		Timestamp: fleetv1alpha1.NewEpoch(a.clock.Now()),
		Details:   details,
	}
	if !a.ch.Publish(ctx, messaging.TopicStatus, messaging.StatusKey(a.id), msg) {
		log.Warn("Failed to publish status", "agentID", a.id, "status", status)
	}
}
