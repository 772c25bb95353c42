package service

import (
	"context"
	"time"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/syncpeer/internal/console/core/model"
	fsmutil "github.com/autopeer-io/syncpeer/internal/pkg/fsm"
	"github.com/autopeer-io/syncpeer/internal/pkg/metrics"
)

const (
	// EventPrepare marks the prepare command as dispatched.
	EventPrepare = "event_prepare"
	// EventStart is fired by the first agent that reports it is executing.
	EventStart = "event_start"
	// EventComplete is fired once every expected agent reported success.
	EventComplete = "event_complete"
	// EventFail is fired when dispatch failed or any agent reported a failure.
	EventFail = "event_fail"
	// EventAbort is requested by an operator.
	EventAbort = "event_abort"
)

// executionMachine drives the status of one TestExecution.
type executionMachine struct {
	*fsm.FSM
	exec *model.TestExecution
	now  func() time.Time
}

func newExecutionMachine(exec *model.TestExecution, now func() time.Time) *executionMachine {
	m := &executionMachine{exec: exec, now: now}

	var (
		pending   = string(model.ExecutionPending)
		preparing = string(model.ExecutionPreparing)
		running   = string(model.ExecutionRunning)
	)
	events := fsm.Events{
		{Name: EventPrepare, Src: []string{pending}, Dst: preparing},
		{Name: EventStart, Src: []string{preparing}, Dst: running},
		// A result can overtake the executing status of its agent.
		{Name: EventComplete, Src: []string{preparing, running}, Dst: string(model.ExecutionCompleted)},
		{Name: EventFail, Src: []string{pending, preparing, running}, Dst: string(model.ExecutionFailed)},
		{Name: EventAbort, Src: []string{preparing, running}, Dst: string(model.ExecutionAborted)},
	}

	callbacks := fsm.Callbacks{
		"enter_state": fsmutil.WrapEvent(m.actionEnterState),
	}

	m.FSM = fsm.NewFSM(string(exec.Status), events, callbacks)
	return m
}

// fire triggers event and reports whether the execution changed status.
// Events that are not allowed in the current status are not errors.
func (m *executionMachine) fire(ctx context.Context, event string, args ...any) (bool, error) {
	if !m.Can(event) {
		return false, nil
	}
	if err := m.Event(ctx, event, args...); fsmutil.IsRealError(err) {
		return false, err
	}
	return model.ExecutionStatus(m.Current()) == m.exec.Status, nil
}

// actionEnterState copies the new status onto the record and stamps the end
// time exactly once, on the terminal transition.
func (m *executionMachine) actionEnterState(_ context.Context, e *fsm.Event) error {
	status := model.ExecutionStatus(e.Dst)
	m.exec.Status = status

	if len(e.Args) > 0 {
		if msg, ok := e.Args[0].(string); ok && msg != "" {
			m.exec.Message = msg
		}
	}

	if status.Terminal() && m.exec.EndTime == nil {
		end := m.now()
		m.exec.EndTime = &end
		metrics.ExecutionsFinished.WithLabelValues(string(status)).Inc()
	}
	return nil
}
