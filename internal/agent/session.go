package agent

import (
	"sort"
	"sync"
	"time"

	utilclock "k8s.io/utils/clock"
)

// pendingExecution is a prepared command waiting for its synchronized start.
type pendingExecution struct {
	commandID   string
	executionID string
	command     string
	params      map[string]any
	startAt     time.Time
	timeout     time.Duration
	timer       utilclock.Timer
}

// key identifies the execution in the session tables.
func (p *pendingExecution) key() string {
	if p.executionID != "" {
		return p.executionID
	}
	return p.commandID
}

// session holds the agent's mutable execution state: prepared executions
// waiting for their timer and jobs currently handed to the supervisor.
type session struct {
	mu      sync.Mutex
	pending map[string]*pendingExecution
	// running maps supervisor job ids to the execution they belong to ("" for
	// direct execute commands).
	running map[string]string
	// aborted holds tracked jobs an abort reached before they were launched.
	aborted map[string]bool
}

func newSession() *session {
	return &session{
		pending: make(map[string]*pendingExecution),
		running: make(map[string]string),
		aborted: make(map[string]bool),
	}
}

// prepare stores p, replacing and disarming an earlier preparation of the same
// execution. arm, when not nil, is called under the session lock so that a
// concurrent start or abort always sees the timer.
func (s *session) prepare(p *pendingExecution, arm func() utilclock.Timer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.pending[p.key()]; ok && old.timer != nil {
		old.timer.Stop()
	}
	if arm != nil {
		p.timer = arm()
	}
	s.pending[p.key()] = p
}

// begin moves a pending execution to the running table. It returns nil when
// key was already started or cancelled, so each preparation runs at most once.
func (s *session) begin(key string) *pendingExecution {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pending[key]
	if !ok {
		return nil
	}
	delete(s.pending, key)
	if p.timer != nil {
		p.timer.Stop()
	}
	s.running[p.commandID] = p.executionID
	return p
}

// pendingKeys lists prepared executions, optionally restricted to executionID.
func (s *session) pendingKeys(executionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.pending))
	for k, p := range s.pending {
		if executionID == "" || p.executionID == executionID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// cancel disarms and forgets prepared executions, all of them when
// executionID is empty. It returns the cancelled keys.
func (s *session) cancel(executionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cancelled []string
	for k, p := range s.pending {
		if executionID != "" && p.executionID != executionID {
			continue
		}
		if p.timer != nil {
			p.timer.Stop()
		}
		delete(s.pending, k)
		cancelled = append(cancelled, k)
	}
	sort.Strings(cancelled)
	return cancelled
}

func (s *session) track(jobID, executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[jobID] = executionID
}

func (s *session) untrack(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, jobID)
	delete(s.aborted, jobID)
}

// launch calls start for a tracked job unless an abort already reached it.
// Launch and abortJobs share the session lock, so an abort either finds the
// job started or keeps it from starting.
func (s *session) launch(jobID string, start func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.aborted[jobID] {
		return false
	}
	start()
	return true
}

// abortJobs marks the tracked jobs of executionID, or every tracked job when
// it is empty, as aborted and hands their ids to kill.
func (s *session) abortJobs(executionID string, kill func(jobIDs []string) []string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	for job, exec := range s.running {
		if executionID == "" || exec == executionID {
			s.aborted[job] = true
			ids = append(ids, job)
		}
	}
	sort.Strings(ids)
	return kill(ids)
}
