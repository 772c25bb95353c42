// Package supervisor runs external commands as supervised jobs. Each job gets
// its own process group so that timeouts and aborts reach every child.
package supervisor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/autopeer-io/syncpeer/pkg/log"
)

var (
	// ErrBusy is returned when a job with the same id is still running.
	ErrBusy = errors.New("job is already running")
	// ErrUnknownJob is returned for ids that are neither running nor finished.
	ErrUnknownJob = errors.New("unknown job")
)

// Status is the lifecycle state of a job result.
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusTimeout   Status = "timeout"
	StatusError     Status = "error"
	StatusAborted   Status = "aborted"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s != StatusStarted
}

// TimeoutExitCode is recorded when a job is killed for exceeding its timeout.
const TimeoutExitCode = -1

// Result describes the outcome of a job.
type Result struct {
	JobID         string    `json:"command_id"`
	Status        Status    `json:"status"`
	ExitCode      int       `json:"exit_code"`
	Stdout        string    `json:"stdout"`
	Stderr        string    `json:"stderr"`
	ExecutionTime float64   `json:"execution_time"`
	Message       string    `json:"message,omitempty"`
	PID           int       `json:"pid,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at,omitempty"`
}

type job struct {
	id      string
	cmd     *exec.Cmd
	stdout  bytes.Buffer
	stderr  bytes.Buffer
	started time.Time
	done    chan struct{}

	// Guarded by Supervisor.mu.
	live    bool
	aborted bool
}

// Supervisor tracks running jobs and finished results.
// A single mutex guards both tables and is never held across process I/O.
type Supervisor struct {
	grace time.Duration

	mu      sync.Mutex
	jobs    map[string]*job
	results map[string]*Result
}

type Option func(*Supervisor)

// WithGracePeriod sets how long a signalled group may take to exit before SIGKILL.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) { s.grace = d }
}

func New(opts ...Option) *Supervisor {
	s := &Supervisor{
		grace:   5 * time.Second,
		jobs:    make(map[string]*job),
		results: make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type execConfig struct {
	timeout time.Duration
	params  map[string]any
	env     []string
	dir     string
}

type ExecOption func(*execConfig)

// WithTimeout kills the job's process group after d. Zero means no timeout.
func WithTimeout(d time.Duration) ExecOption {
	return func(c *execConfig) { c.timeout = d }
}

// WithParameters substitutes ${name} placeholders in each argv token.
func WithParameters(params map[string]any) ExecOption {
	return func(c *execConfig) { c.params = params }
}

// WithEnv appends KEY=VALUE pairs to the inherited environment.
func WithEnv(env ...string) ExecOption {
	return func(c *execConfig) { c.env = append(c.env, env...) }
}

func WithDir(dir string) ExecOption {
	return func(c *execConfig) { c.dir = dir }
}

// Execute starts commandLine as job id and returns the "started" acknowledgement
// without waiting for it to finish. A spawn failure is recorded as a result with
// status error and returned as well.
func (s *Supervisor) Execute(id, commandLine string, opts ...ExecOption) (*Result, error) {
	cfg := &execConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	j := &job{id: id, done: make(chan struct{}), started: time.Now()}

	s.mu.Lock()
	if _, running := s.jobs[id]; running {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrBusy, id)
	}
	// Reserve the id before spawning so a concurrent Execute sees it as busy.
	s.jobs[id] = j
	delete(s.results, id)
	s.mu.Unlock()

	argv, err := CommandArgs(commandLine, cfg.params)
	if err == nil {
		j.cmd = exec.Command(argv[0], argv[1:]...)
		j.cmd.Stdout = &j.stdout
		j.cmd.Stderr = &j.stderr
		j.cmd.Dir = cfg.dir
		if len(cfg.env) > 0 {
			j.cmd.Env = append(j.cmd.Environ(), cfg.env...)
		}
		j.cmd.WaitDelay = s.grace
		setProcessGroup(j.cmd)
		err = j.cmd.Start()
	}
	if err != nil {
		res := &Result{
			JobID:      id,
			Status:     StatusError,
			ExitCode:   TimeoutExitCode,
			Message:    err.Error(),
			StartedAt:  j.started,
			FinishedAt: time.Now(),
		}
		s.finish(j, res)
		log.Error(err, "Failed to start job", "jobID", id)
		return res, fmt.Errorf("start job %s: %w", id, err)
	}

	s.mu.Lock()
	j.live = true
	s.mu.Unlock()

	pid := j.cmd.Process.Pid
	log.Info("Job started", "jobID", id, "pid", pid, "timeout", cfg.timeout)

	go s.watch(j, cfg.timeout)

	return &Result{JobID: id, Status: StatusStarted, PID: pid, StartedAt: j.started}, nil
}

// watch waits for the job to exit, enforcing the timeout, and records the result.
func (s *Supervisor) watch(j *job, timeout time.Duration) {
	waitErr := make(chan error, 1)
	go func() { waitErr <- j.cmd.Wait() }()

	var expired <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}

	var err error
	timedOut := false
	select {
	case err = <-waitErr:
	case <-expired:
		timedOut = true
		log.Warn("Job timed out, terminating process group", "jobID", j.id, "timeout", timeout)
		err = s.terminate(j, waitErr)
	}

	res := &Result{
		JobID:         j.id,
		Stdout:        j.stdout.String(),
		Stderr:        j.stderr.String(),
		PID:           j.cmd.Process.Pid,
		StartedAt:     j.started,
		FinishedAt:    time.Now(),
		ExecutionTime: time.Since(j.started).Seconds(),
		ExitCode:      j.cmd.ProcessState.ExitCode(),
		Status:        StatusCompleted,
	}

	s.mu.Lock()
	aborted := j.aborted
	s.mu.Unlock()

	var exitErr *exec.ExitError
	switch {
	case timedOut:
		res.Status = StatusTimeout
		res.ExitCode = TimeoutExitCode
		res.Message = fmt.Sprintf("command exceeded timeout of %s", timeout)
	case aborted:
		res.Status = StatusAborted
		res.Message = "command aborted"
	case err == nil, errors.As(err, &exitErr):
		// A non-zero exit is still a completed run; the exit code tells the story.
	case errors.Is(err, exec.ErrWaitDelay):
		res.Message = "output pipes were still open after exit"
	default:
		res.Status = StatusError
		res.Message = err.Error()
	}

	s.finish(j, res)
	log.Info("Job finished", "jobID", j.id, "status", res.Status, "exitCode", res.ExitCode, "elapsed", res.ExecutionTime)
}

// terminate sends SIGTERM to the group, escalating to SIGKILL after the grace period,
// and waits for the process to be reaped.
func (s *Supervisor) terminate(j *job, waitErr <-chan error) error {
	if err := signalGroup(j.cmd, syscall.SIGTERM); err != nil {
		log.Debug("SIGTERM delivery failed", "jobID", j.id, "error", err)
	}
	select {
	case err := <-waitErr:
		return err
	case <-time.After(s.grace):
		log.Warn("Process group ignored SIGTERM, killing", "jobID", j.id)
		_ = signalGroup(j.cmd, syscall.SIGKILL)
		return <-waitErr
	}
}

func (s *Supervisor) finish(j *job, res *Result) {
	s.mu.Lock()
	s.results[j.id] = res
	if s.jobs[j.id] == j {
		delete(s.jobs, j.id)
	}
	s.mu.Unlock()
	close(j.done)
}

// Result returns the stored result for id, or nil if the job is still running or unknown.
func (s *Supervisor) Result(id string) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[id]; ok {
		cp := *res
		return &cp
	}
	return nil
}

// Wait blocks until job id has a result or ctx is done.
func (s *Supervisor) Wait(ctx context.Context, id string) (*Result, error) {
	s.mu.Lock()
	if res, ok := s.results[id]; ok {
		s.mu.Unlock()
		cp := *res
		return &cp, nil
	}
	j, ok := s.jobs[id]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
	}

	select {
	case <-j.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if res := s.Result(id); res != nil {
		return res, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, id)
}

// Running reports whether id is currently executing.
func (s *Supervisor) Running(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[id]
	return ok
}

// Abort signals the job's process group. It returns false if id is not running.
func (s *Supervisor) Abort(id string) bool {
	s.mu.Lock()
	j, ok := s.jobs[id]
	if !ok || !j.live {
		s.mu.Unlock()
		return false
	}
	j.aborted = true
	s.mu.Unlock()

	if err := signalGroup(j.cmd, syscall.SIGTERM); err != nil {
		log.Debug("Abort signal failed", "jobID", id, "error", err)
		return false
	}
	log.Info("Job aborted", "jobID", id)

	// Escalate if the group outlives the grace period.
	go func() {
		select {
		case <-j.done:
		case <-time.After(s.grace):
			_ = signalGroup(j.cmd, syscall.SIGKILL)
		}
	}()
	return true
}

// AbortAll aborts every running job and returns the ids that were signalled.
func (s *Supervisor) AbortAll() []string {
	s.mu.Lock()
	ids := make([]string, 0, len(s.jobs))
	for id := range s.jobs {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)

	aborted := make([]string, 0, len(ids))
	for _, id := range ids {
		if s.Abort(id) {
			aborted = append(aborted, id)
		}
	}
	return aborted
}
