package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	utilclock "k8s.io/utils/clock"

	"github.com/autopeer-io/syncpeer/internal/pkg/messaging"
	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
	"github.com/autopeer-io/syncpeer/internal/pkg/supervisor"
	fleetv1alpha1 "github.com/autopeer-io/syncpeer/pkg/apis/fleet/v1alpha1"
	"github.com/autopeer-io/syncpeer/pkg/log"
)

var (
	errMissingExecutionTime = errors.New("prepare command without execution_time")
	errMissingCommand       = errors.New("command text is empty")
)

// HandleCommand is the subscription handler for the commands topic. Commands
// addressed to other agents and command ids already seen are ignored. Every
// accepted command is bracketed by a busy status and a ready (or error)
// status; for execute and start the closing status comes from the worker
// that runs the process.
func (a *Agent) HandleCommand(ctx context.Context, d *messaging.Delivery) error {
	if d.Key != messaging.KeyBroadcast && d.Key != a.id {
		return nil
	}

	var cmd fleetv1alpha1.Command
	if err := d.Decode(&cmd); err != nil {
		return err
	}
	if cmd.CommandID == "" {
		log.Warn("Ignoring command without command_id", "messageID", d.ID)
		return nil
	}

	switch cmd.Type {
	case fleetv1alpha1.CommandExecute, fleetv1alpha1.CommandPrepare,
		fleetv1alpha1.CommandStart, fleetv1alpha1.CommandAbort:
	default:
		log.Warn("Unknown command type", "commandID", cmd.CommandID, "type", cmd.Type)
		return nil
	}

	if !a.seen.First(cmd.CommandID) {
		log.Debug("Ignoring command already handled", "commandID", cmd.CommandID)
		return nil
	}

	log.Info("Received command", "commandID", cmd.CommandID, "executionID", cmd.ExecutionID, "type", cmd.Type)
	a.emit(ctx, fleetv1alpha1.AgentStatusBusy, nil)

	var (
		err      error
		deferred bool
	)
	switch cmd.Type {
	case fleetv1alpha1.CommandExecute:
		deferred, err = a.execute(ctx, &cmd)
	case fleetv1alpha1.CommandPrepare:
		deferred, err = a.prepare(ctx, &cmd)
	case fleetv1alpha1.CommandStart:
		deferred, err = a.start(ctx, &cmd)
	case fleetv1alpha1.CommandAbort:
		a.abort(&cmd)
	}

	if err != nil {
		log.Error(err, "Failed to handle command", "commandID", cmd.CommandID, "type", cmd.Type)
		a.emit(ctx, fleetv1alpha1.AgentStatusError, map[string]any{
			fleetv1alpha1.DetailCommandID: cmd.CommandID,
			fleetv1alpha1.DetailError:     err.Error(),
		})
		return nil
	}
	if !deferred {
		a.emit(ctx, fleetv1alpha1.AgentStatusReady, nil)
	}
	return nil
}

// execute hands the command to a worker right away.
func (a *Agent) execute(ctx context.Context, cmd *fleetv1alpha1.Command) (bool, error) {
	if cmd.Command == "" {
		return false, errMissingCommand
	}
	if a.sup.Running(cmd.CommandID) {
		return false, fmt.Errorf("%w: %s", supervisor.ErrBusy, cmd.CommandID)
	}

	a.session.track(cmd.CommandID, cmd.ExecutionID)
	ok := a.spawn(func() {
		defer a.session.untrack(cmd.CommandID)
		a.run(ctx, cmd.CommandID, cmd.ExecutionID, cmd.Command, cmd.Parameters,
			fleetv1alpha1.Duration(cmd.Timeout()))
		a.emit(ctx, fleetv1alpha1.AgentStatusReady, nil)
	})
	if !ok {
		a.session.untrack(cmd.CommandID)
		return false, errors.New("agent is shutting down")
	}
	return true, nil
}

// prepare stores the command and arms a timer for its synchronized start.
// The returned status is the ready acknowledgement the console waits for.
func (a *Agent) prepare(ctx context.Context, cmd *fleetv1alpha1.Command) (bool, error) {
	if cmd.ExecutionTime.IsZero() {
		return false, errMissingExecutionTime
	}
	if cmd.Command == "" {
		return false, errMissingCommand
	}

	if off, err := a.timesync.Sync(ctx); err != nil {
		log.Warn("Clock re-sync before prepare failed", "error", err)
	} else {
		metrics.ClockOffset.Set(off.Seconds())
	}

	p := &pendingExecution{
		commandID:   cmd.CommandID,
		executionID: cmd.ExecutionID,
		command:     cmd.Command,
		params:      cmd.Parameters,
		startAt:     cmd.ExecutionTime.Time(),
		timeout:     fleetv1alpha1.Duration(cmd.Timeout()),
	}
	key := p.key()
	delay := a.timesync.Until(p.startAt)

	if delay > 0 {
		a.session.prepare(p, func() utilclock.Timer {
			return a.clock.AfterFunc(delay, func() {
				// FakeClock calls this with its lock held; never block here.
				a.spawn(func() { a.startPending(ctx, key) })
			})
		})
	} else {
		a.session.prepare(p, nil)
	}

	a.emit(ctx, fleetv1alpha1.AgentStatusReady, map[string]any{
		fleetv1alpha1.DetailExecutionID: cmd.ExecutionID,
		fleetv1alpha1.DetailCommandID:   cmd.CommandID,
		fleetv1alpha1.DetailReady:       true,
	})

	if delay > 0 {
		log.Info("Scheduled execution", "executionID", cmd.ExecutionID, "commandID", cmd.CommandID, "in", delay)
	} else {
		log.Warn("Execution time already passed, executing immediately", "executionID", cmd.ExecutionID, "late", -delay)
		a.spawn(func() { a.startPending(ctx, key) })
	}
	return true, nil
}

// start triggers prepared executions without waiting for their timers: the
// one named by ExecutionID, or every prepared execution.
func (a *Agent) start(ctx context.Context, cmd *fleetv1alpha1.Command) (bool, error) {
	keys := a.session.pendingKeys(cmd.ExecutionID)
	if len(keys) == 0 {
		log.Warn("No prepared execution to start", "executionID", cmd.ExecutionID)
		return false, nil
	}
	for _, key := range keys {
		key := key
		a.spawn(func() { a.startPending(ctx, key) })
	}
	return true, nil
}

// abort cancels prepared executions and kills running jobs, restricted to
// ExecutionID when it is set.
func (a *Agent) abort(cmd *fleetv1alpha1.Command) {
	cancelled := a.session.cancel(cmd.ExecutionID)

	killed := a.session.abortJobs(cmd.ExecutionID, func(jobs []string) []string {
		if cmd.ExecutionID == "" {
			return a.sup.AbortAll()
		}
		var killed []string
		for _, job := range jobs {
			if a.sup.Abort(job) {
				killed = append(killed, job)
			}
		}
		return killed
	})
	log.Info("Abort handled", "executionID", cmd.ExecutionID, "cancelled", cancelled, "killed", killed)
}

// startPending runs a prepared execution once, however many triggers fire.
func (a *Agent) startPending(ctx context.Context, key string) {
	p := a.session.begin(key)
	if p == nil {
		return
	}
	defer a.session.untrack(p.commandID)

	a.emit(ctx, fleetv1alpha1.AgentStatusBusy, map[string]any{
		fleetv1alpha1.DetailExecutionID: p.executionID,
		fleetv1alpha1.DetailCommandID:   p.commandID,
		fleetv1alpha1.DetailExecuting:   true,
		fleetv1alpha1.DetailStartTime:   fleetv1alpha1.NewEpoch(a.timesync.Now()),
	})
	a.run(ctx, p.commandID, p.executionID, p.command, p.params, p.timeout)
	a.emit(ctx, fleetv1alpha1.AgentStatusReady, nil)
}

// run executes one job, waits for it and publishes its result.
func (a *Agent) run(ctx context.Context, jobID, executionID, command string, params map[string]any, timeout time.Duration) {
	opts := []supervisor.ExecOption{
		supervisor.WithTimeout(timeout),
		supervisor.WithParameters(params),
		supervisor.WithEnv(
			EnvAgentID+"="+a.id,
			EnvCommandID+"="+jobID,
			EnvExecutionID+"="+executionID,
		),
	}
	if a.workDir != "" {
		opts = append(opts, supervisor.WithDir(a.workDir))
	}

	var (
		res *supervisor.Result
		err error
	)
	if !a.session.launch(jobID, func() { res, err = a.sup.Execute(jobID, command, opts...) }) {
		log.Info("Job aborted before it started", "jobID", jobID, "executionID", executionID)
		now := time.Now()
		a.publishResult(ctx, jobID, executionID, &supervisor.Result{
			JobID:      jobID,
			Status:     supervisor.StatusAborted,
			ExitCode:   supervisor.TimeoutExitCode,
			Message:    "aborted before start",
			StartedAt:  now,
			FinishedAt: now,
		})
		return
	}
	if res == nil {
		a.emit(ctx, fleetv1alpha1.AgentStatusError, map[string]any{
			fleetv1alpha1.DetailExecutionID: executionID,
			fleetv1alpha1.DetailCommandID:   jobID,
			fleetv1alpha1.DetailError:       err.Error(),
		})
		return
	}

	details := map[string]any{
		fleetv1alpha1.DetailCommandID:       jobID,
		fleetv1alpha1.DetailExecutionStatus: string(res.Status),
	}
	if executionID != "" {
		details[fleetv1alpha1.DetailExecutionID] = executionID
	}
	if res.Message != "" {
		details[fleetv1alpha1.DetailMessage] = res.Message
	}
	a.emit(ctx, fleetv1alpha1.AgentStatusBusy, details)

	if res.Status == supervisor.StatusStarted {
		res, err = a.sup.Wait(ctx, jobID)
		if err != nil {
			log.Warn("Stopped waiting for job", "jobID", jobID, "error", err)
			return
		}
	}

	metrics.JobDuration.WithLabelValues(string(res.Status)).Observe(res.ExecutionTime)
	a.publishResult(ctx, jobID, executionID, res)
}

func (a *Agent) publishResult(ctx context.Context, commandID, executionID string, res *supervisor.Result) {
	msg := &fleetv1alpha1.ResultMessage{
		AgentID:     a.id,
		CommandID:   commandID,
		ExecutionID: executionID,
		Timestamp:   fleetv1alpha1.NewEpoch(a.timesync.Now()),
		Result: fleetv1alpha1.ExecutionResult{
			Status:        fleetv1alpha1.ResultStatus(res.Status),
			ExitCode:      res.ExitCode,
			Stdout:        res.Stdout,
			Stderr:        res.Stderr,
			ExecutionTime: res.ExecutionTime,
			Message:       res.Message,
		},
	}
	if !a.ch.Publish(ctx, messaging.TopicStatus, messaging.ResultKey(a.id), msg) {
		log.Error(errors.New("publish failed"), "Failed to publish result", "commandID", commandID, "executionID", executionID)
		return
	}
	log.Info("Published result", "commandID", commandID, "executionID", executionID, "status", res.Status, "exitCode", res.ExitCode)
}
