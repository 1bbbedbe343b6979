package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/procflow/internal/clock"
	"github.com/viant/procflow/log"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/progress"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/activity"
	"github.com/viant/procflow/service/compensation"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/task"
	"github.com/viant/procflow/tracing"
)

// instance is the actor state of one process. Fields other than process,
// ctx, inbox and done are only touched by the actor goroutine.
type instance struct {
	process *execution.Process
	ctx     context.Context
	cancel  context.CancelFunc
	inbox   chan interface{}
	done    chan struct{}
	tracker *progress.Tracker

	inflight map[string]bool
	retrying map[string]*time.Timer
	status   execution.Status
}

func newInstance(ctx context.Context, process *execution.Process, inboxSize int, onProgress func(progress.Counters)) *instance {
	tracker := progress.NewTracker(process.ID, process.Workflow.Key(), onProgress)
	ctx, cancel := context.WithCancel(progress.WithTracker(ctx, tracker))
	return &instance{
		process:  process,
		ctx:      ctx,
		cancel:   cancel,
		tracker:  tracker,
		inbox:    make(chan interface{}, inboxSize),
		done:     make(chan struct{}),
		inflight: make(map[string]bool),
		retrying: make(map[string]*time.Timer),
		status:   process.GetStatus(),
	}
}

func (i *instance) stop() {
	i.cancel()
	for id, pending := range i.retrying {
		pending.Stop()
		delete(i.retrying, id)
	}
}

type (
	resultSignal struct {
		tokenID  string
		activity *graph.Activity
		result   activity.Result
	}

	retrySignal struct {
		tokenID string
	}

	taskSignal struct {
		taskID  string
		userID  string
		outputs map[string]interface{}
		reply   chan error
	}

	timerSignal struct {
		activityID string
		timerID    string
		reply      chan error
	}

	terminateSignal struct {
		reason string
		reply  chan error
	}
)

type request interface {
	replyTo() chan error
	init()
}

func (s *taskSignal) replyTo() chan error      { return s.reply }
func (s *taskSignal) init()                    { s.reply = make(chan error, 1) }
func (s *timerSignal) replyTo() chan error     { return s.reply }
func (s *timerSignal) init()                   { s.reply = make(chan error, 1) }
func (s *terminateSignal) replyTo() chan error { return s.reply }
func (s *terminateSignal) init()               { s.reply = make(chan error, 1) }

// call hands a request to the instance actor and waits for its reply.
func (e *Engine) call(ctx context.Context, inst *instance, req request) error {
	req.init()
	select {
	case inst.inbox <- req:
	case <-inst.done:
		return e.closedError(inst)
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-req.replyTo():
		return err
	case <-inst.done:
		select {
		case err := <-req.replyTo():
			return err
		default:
			return e.closedError(inst)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post hands a request to the actor without waiting for the reply.
func (e *Engine) post(ctx context.Context, inst *instance, req request) error {
	req.init()
	select {
	case inst.inbox <- req:
		return nil
	case <-inst.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) closedError(inst *instance) error {
	if inst.process.GetStatus().IsTerminal() {
		return fmt.Errorf("%w: %s", ErrProcessTerminal, inst.process.ID)
	}
	return ErrNotStarted
}

func (e *Engine) run(inst *instance) {
	defer e.wg.Done()
	defer close(inst.done)
	defer inst.stop()

	e.step(inst)
	for !inst.process.GetStatus().IsTerminal() {
		select {
		case <-inst.ctx.Done():
			return
		case sig := <-inst.inbox:
			e.dispatch(inst, sig)
		}
	}
}

func (e *Engine) dispatch(inst *instance, sig interface{}) {
	switch sig := sig.(type) {
	case *resultSignal:
		delete(inst.inflight, sig.tokenID)
		inst.tracker.Update(progress.Delta{Running: -1})
		e.apply(inst, sig.tokenID, sig.activity, sig.result)
		e.step(inst)
	case *retrySignal:
		delete(inst.retrying, sig.tokenID)
		e.step(inst)
	case *taskSignal:
		err := e.resumeTask(inst, sig)
		e.step(inst)
		sig.reply <- err
	case *timerSignal:
		err := e.resumeTimer(inst, sig)
		e.step(inst)
		sig.reply <- err
	case *terminateSignal:
		err := e.terminate(inst, sig.reason)
		e.step(inst)
		sig.reply <- err
	}
}

// step runs every runnable token until none is left, then derives the
// instance status and persists a snapshot.
func (e *Engine) step(inst *instance) {
	e.advance(inst)
	e.settle(inst)
}

func (e *Engine) advance(inst *instance) {
	process := inst.process
	for progressed := true; progressed; {
		progressed = false
		for _, candidate := range process.ActiveTokens() {
			if process.GetStatus().IsTerminal() {
				return
			}
			token := process.Token(candidate.ID)
			if token == nil || !token.Runnable() || inst.inflight[token.ID] || inst.retrying[token.ID] != nil {
				continue
			}
			e.visit(inst, token)
			progressed = true
		}
		if process.GetStatus().IsTerminal() {
			return
		}
		if e.releaseInclusiveJoins(inst) {
			progressed = true
		}
	}
}

func (e *Engine) visit(inst *instance, token *execution.Token) {
	process := inst.process
	workflow := process.Workflow
	node, ok := workflow.Activity(token.ActivityID)
	if !ok {
		e.fail(inst, fmt.Errorf("token %s references unknown activity %s", token.ID, token.ActivityID))
		return
	}
	if workflow.IsEnd(node.ID) {
		process.CompleteActivity(node.ID)
		_ = process.RemoveToken(token.ID)
		return
	}
	if node.Kind == graph.KindGateway && !token.Merged {
		if incoming := len(workflow.Incoming(node.ID)); incoming > 1 {
			switch node.Gateway {
			case graph.GatewayParallel:
				if !process.Arrive(node.ID, token.ID, incoming) {
					return
				}
				process.Merge(node.ID, token.ID)
			case graph.GatewayInclusive:
				process.Arrive(node.ID, token.ID, 0)
				return
			}
		}
	}
	e.execute(inst, token, node)
}

// releaseInclusiveJoins merges and executes tokens waiting at inclusive
// gateways that no other token can still reach.
func (e *Engine) releaseInclusiveJoins(inst *instance) bool {
	process := inst.process
	workflow := process.Workflow
	tokens := process.ActiveTokens()
	seen := map[string]bool{}
	for _, token := range tokens {
		if !token.Joining || seen[token.ActivityID] {
			continue
		}
		seen[token.ActivityID] = true
		node, ok := workflow.Activity(token.ActivityID)
		if !ok || !node.IsGateway(graph.GatewayInclusive) {
			continue
		}
		blocked := false
		for _, other := range tokens {
			if other.Joining && other.ActivityID == node.ID {
				continue
			}
			if workflow.Reachable(other.ActivityID)[node.ID] {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		joining := process.JoiningTokens(node.ID)
		if len(joining) == 0 {
			continue
		}
		keep := joining[len(joining)-1]
		process.Merge(node.ID, keep)
		if merged := process.Token(keep); merged != nil {
			e.execute(inst, merged, node)
		}
		return true
	}
	return false
}

func (e *Engine) scope(inst *instance, tokenID string, node *graph.Activity) *activity.Scope {
	return &activity.Scope{
		ProcessID: inst.process.ID,
		TokenID:   tokenID,
		Variables: inst.process.Variables.Snapshot(),
		Outgoing:  inst.process.Workflow.Outgoing(node.ID),
	}
}

// execute runs service activities on their own goroutine and everything
// else inline on the actor.
func (e *Engine) execute(inst *instance, token *execution.Token, node *graph.Activity) {
	process := inst.process
	attempt := process.Attempt(node.ID)
	scope := e.scope(inst, token.ID, node)
	attrs := map[string]string{
		log.InstanceIDKey:   process.ID,
		log.ActivityIDKey:   node.ID,
		log.ActivityKindKey: string(node.Kind),
		log.AttemptKey:      fmt.Sprint(attempt),
	}
	ctx := execution.WithProcess(inst.ctx, process, token)
	inst.tracker.Update(progress.Delta{Started: 1})

	if node.Kind != graph.KindService {
		ctx, span := tracing.StartSpan(ctx, "procflow.activity", attrs)
		result := e.executor.Execute(ctx, scope, node)
		tracing.EndSpan(span, resultError(result))
		e.apply(inst, token.ID, node, result)
		return
	}

	inst.inflight[token.ID] = true
	inst.tracker.Update(progress.Delta{Running: 1})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		started := clock.Now()
		ctx, span := tracing.StartSpan(ctx, "procflow.activity", attrs)
		result := e.executor.Execute(ctx, scope, node)
		tracing.EndSpan(span, resultError(result))
		e.logger.DebugContext(ctx, "service activity finished",
			log.InstanceIDKey, process.ID,
			log.ActivityIDKey, node.ID,
			log.DurationKey, clock.Since(started).Milliseconds())
		select {
		case inst.inbox <- &resultSignal{tokenID: token.ID, activity: node, result: result}:
		case <-inst.ctx.Done():
			e.logger.DebugContext(context.WithoutCancel(ctx), "late activity result dropped",
				log.InstanceIDKey, process.ID,
				log.ActivityIDKey, node.ID,
				log.TokenIDKey, token.ID)
		}
	}()
}

func resultError(result activity.Result) error {
	if failed, ok := result.(*activity.Failed); ok {
		return failed.Err
	}
	return nil
}

func (e *Engine) apply(inst *instance, tokenID string, node *graph.Activity, result activity.Result) {
	process := inst.process
	if process.GetStatus().IsTerminal() || process.Token(tokenID) == nil {
		e.logger.DebugContext(inst.ctx, "result for a finished token dropped",
			log.InstanceIDKey, process.ID,
			log.ActivityIDKey, node.ID,
			log.TokenIDKey, tokenID)
		return
	}
	switch r := result.(type) {
	case *activity.Completed:
		process.ResetAttempts(node.ID)
		process.Variables.Merge(r.Variables)
		process.CompleteActivity(node.ID)
		inst.tracker.Update(progress.Delta{Completed: 1})
		e.follow(inst, tokenID, node, r.Selected)
	case *activity.Waiting:
		if err := process.Park(tokenID, r.TaskID, r.TimerID); err != nil {
			e.fail(inst, err)
			return
		}
		inst.tracker.Update(progress.Delta{Waiting: 1})
	case *activity.Failed:
		e.onFailure(inst, tokenID, node, r.Err)
	}
}

// follow moves the token along the first selected transition and spawns a
// token for each additional one.
func (e *Engine) follow(inst *instance, tokenID string, node *graph.Activity, selected []*graph.Transition) {
	process := inst.process
	if len(selected) == 0 {
		_ = process.RemoveToken(tokenID)
		return
	}
	for i, transition := range selected {
		if i == 0 {
			if err := process.MoveToken(node.ID, transition.To, tokenID); err != nil {
				e.fail(inst, err)
				return
			}
			continue
		}
		process.AddToken(transition.To)
	}
}

func (e *Engine) onFailure(inst *instance, tokenID string, node *graph.Activity, cause error) {
	process := inst.process
	process.Record(&execution.HistoryEntry{Type: execution.EntryActivityFailed, ActivityID: node.ID, TokenID: tokenID, Message: cause.Error()})
	inst.tracker.Update(progress.Delta{Failed: 1})
	noRetry := node.Retry != nil && node.Retry.Type == activity.RetryNone
	if !noRetry && activity.Retryable(cause) {
		if remaining, ok := process.ConsumeRetry(node.ID); ok {
			attempt := process.AttemptCount(node.ID)
			delay := activity.RetryDelay(node.Retry, attempt, e.config.Retry)
			process.Record(&execution.HistoryEntry{Type: execution.EntryActivityRetry, ActivityID: node.ID, TokenID: tokenID,
				Message: fmt.Sprintf("attempt %d failed, retrying in %s, %d left", attempt, delay, remaining)})
			e.logger.WarnContext(inst.ctx, "activity failed, retrying",
				log.InstanceIDKey, process.ID,
				log.ActivityIDKey, node.ID,
				log.AttemptKey, attempt,
				log.RemainingKey, remaining,
				log.DelayKey, delay,
				"error", cause)
			inst.tracker.Update(progress.Delta{Retried: 1})
			e.scheduleRetry(inst, tokenID, delay)
			return
		}
	}
	e.fail(inst, cause)
}

func (e *Engine) scheduleRetry(inst *instance, tokenID string, delay time.Duration) {
	inst.retrying[tokenID] = time.AfterFunc(delay, func() {
		select {
		case inst.inbox <- &retrySignal{tokenID: tokenID}:
		case <-inst.ctx.Done():
		}
	})
}

// fail compensates completed activities in reverse order and marks the
// instance failed.
func (e *Engine) fail(inst *instance, cause error) {
	process := inst.process
	if process.GetStatus().IsTerminal() {
		return
	}
	process.Fail(cause)
	e.logger.ErrorContext(inst.ctx, "process failed",
		log.InstanceIDKey, process.ID,
		log.WorkflowIDKey, process.WorkflowID,
		"error", cause)

	view := &compensation.View{ProcessID: process.ID, Workflow: process.Workflow, Variables: process.Variables.Snapshot()}
	report := e.compensator.Compensate(inst.ctx, view, process.CompletedActivities())
	failures := make(map[string]string, len(report.Failed))
	for _, failure := range report.Failed {
		failures[failure.ActivityID] = failure.Error()
	}
	for _, id := range report.Attempted {
		entry := &execution.HistoryEntry{Type: execution.EntryCompensation, ActivityID: id, Message: "compensated"}
		if message, ok := failures[id]; ok {
			entry.Message = message
		}
		process.Record(entry)
	}
	process.SetCompensationErrors(report.Errors())
	process.ClearTokens("process failed")
	e.timers.CancelProcess(process.ID)
	process.SetStatus(execution.StatusFailed, cause.Error())
}

func (e *Engine) resumeTask(inst *instance, sig *taskSignal) error {
	process := inst.process
	if process.GetStatus().IsTerminal() {
		return fmt.Errorf("%w: %s", ErrProcessTerminal, process.ID)
	}
	token := process.TokenByTask(sig.taskID)
	if token == nil {
		return &task.InvalidStateError{TaskID: sig.taskID, Status: task.StatusCompleted}
	}
	node, ok := process.Workflow.Activity(token.ActivityID)
	if !ok {
		return fmt.Errorf("token %s references unknown activity %s", token.ID, token.ActivityID)
	}
	if err := e.tasks.CompleteTask(inst.ctx, sig.taskID, sig.userID, sig.outputs); err != nil {
		return err
	}
	if err := process.Unpark(token.ID, execution.EntryTaskCompleted, sig.taskID); err != nil {
		return err
	}
	inst.tracker.Update(progress.Delta{Waiting: -1})
	process.SetStatus(execution.StatusRunning, "task "+sig.taskID+" completed")
	e.logger.InfoContext(inst.ctx, "task completed",
		log.InstanceIDKey, process.ID,
		log.ActivityIDKey, node.ID,
		log.TaskIDKey, sig.taskID)
	e.apply(inst, token.ID, node, e.executor.Resume(node, e.scope(inst, token.ID, node), sig.outputs))
	return nil
}

func (e *Engine) resumeTimer(inst *instance, sig *timerSignal) error {
	process := inst.process
	token := process.TokenByTimer(sig.activityID)
	if process.GetStatus().IsTerminal() || token == nil || (sig.timerID != "" && token.TimerID != sig.timerID) {
		e.logger.DebugContext(inst.ctx, "stale timer ignored",
			log.InstanceIDKey, process.ID,
			log.ActivityIDKey, sig.activityID,
			log.TimerIDKey, sig.timerID)
		return nil
	}
	node, ok := process.Workflow.Activity(token.ActivityID)
	if !ok {
		return fmt.Errorf("token %s references unknown activity %s", token.ID, token.ActivityID)
	}
	e.timers.Cancel(token.TimerID)
	if err := process.Unpark(token.ID, execution.EntryTimerFired, token.TimerID); err != nil {
		return err
	}
	inst.tracker.Update(progress.Delta{Waiting: -1})
	process.SetStatus(execution.StatusRunning, "timer "+token.TimerID+" fired")
	e.apply(inst, token.ID, node, e.executor.Resume(node, e.scope(inst, token.ID, node), nil))
	return nil
}

func (e *Engine) terminate(inst *instance, reason string) error {
	process := inst.process
	if !process.Terminate(reason) {
		return fmt.Errorf("%w: %s", ErrProcessTerminal, process.ID)
	}
	process.ClearTokens("terminated: " + reason)
	e.timers.CancelProcess(process.ID)
	e.logger.InfoContext(inst.ctx, "process terminated",
		log.InstanceIDKey, process.ID,
		"reason", reason)
	return nil
}

var statusEvents = map[execution.Status]string{
	execution.StatusWaiting:    event.ProcessWaiting,
	execution.StatusCompleted:  event.ProcessCompleted,
	execution.StatusFailed:     event.ProcessFailed,
	execution.StatusTerminated: event.ProcessTerminated,
}

// settle derives the status from the token set, publishes lifecycle
// changes and saves a snapshot.
func (e *Engine) settle(inst *instance) {
	process := inst.process
	if !process.GetStatus().IsTerminal() {
		switch {
		case len(process.ActiveTokens()) == 0:
			process.SetStatus(execution.StatusCompleted, "")
		case len(inst.inflight) > 0 || len(inst.retrying) > 0:
			process.SetStatus(execution.StatusRunning, "")
		default:
			process.SetStatus(execution.StatusWaiting, "")
		}
	}
	status := process.GetStatus()
	if status.IsTerminal() {
		inst.tracker.Settle()
	}
	if status != inst.status {
		inst.status = status
		if name, ok := statusEvents[status]; ok {
			e.emit(inst.ctx, name, process)
		}
		e.logger.DebugContext(inst.ctx, "process status changed",
			log.InstanceIDKey, process.ID,
			log.StatusKey, string(status))
	}
	e.save(inst.ctx, inst)
}
