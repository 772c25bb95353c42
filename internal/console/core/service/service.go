package service

import (
	"sync"
	"time"

	"github.com/autopeer-io/syncpeer/internal/console/core"
)

// DefaultPreparationLead is how far ahead of dispatch executions are scheduled,
// giving every agent time to acknowledge the prepare command.
const DefaultPreparationLead = 10 * time.Second

// DefaultResultTimeout is how long after the scheduled start, plus the
// command's own timeout or duration, results are awaited.
const DefaultResultTimeout = 10 * time.Minute

// Service implements the console use cases: test configuration management,
// orchestration of executions, agent registration and status ingestion.
type Service struct {
	agents     core.AgentRepository
	tests      core.TestRepository
	executions core.ExecutionRepository
	notifier   core.CommandNotifier
	archive    core.ResultArchive
	clock      core.Clock
	lead       time.Duration
	resultWait time.Duration

	// execMu serialises read-modify-write cycles on execution records, which
	// are updated from both the API and the status subscription.
	execMu sync.Mutex
}

type Option func(*Service)

// WithPreparationLead overrides DefaultPreparationLead.
func WithPreparationLead(d time.Duration) Option {
	return func(s *Service) { s.lead = d }
}

// WithResultTimeout overrides DefaultResultTimeout.
func WithResultTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.resultWait = d
		}
	}
}

// WithArchive uploads every recorded agent result.
func WithArchive(a core.ResultArchive) Option {
	return func(s *Service) { s.archive = a }
}

// New creates the console service. Dependency injection happens here.
func New(repo core.Repository, notifier core.CommandNotifier, clock core.Clock, opts ...Option) *Service {
	s := &Service{
		agents:     repo.Agent(),
		tests:      repo.Test(),
		executions: repo.Execution(),
		notifier:   notifier,
		clock:      clock,
		lead:       DefaultPreparationLead,
		resultWait: DefaultResultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Archive returns the configured result archive, or nil.
func (s *Service) Archive() core.ResultArchive {
	return s.archive
}
