package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viant/procflow/internal/idgen"
	"github.com/viant/procflow/log"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/progress"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/activity"
	"github.com/viant/procflow/service/compensation"
	"github.com/viant/procflow/service/dao"
	snapshotmemory "github.com/viant/procflow/service/dao/snapshot/memory"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
	taskmemory "github.com/viant/procflow/service/task/memory"
	"github.com/viant/procflow/service/timer"
	"github.com/viant/procflow/tracing"
)

// Config represents engine configuration.
type Config struct {
	// Retry applies where an activity retry policy leaves fields unset.
	Retry activity.RetryDefaults
	// InboxSize is the signal buffer of every instance actor.
	InboxSize int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		Retry:     activity.DefaultRetry(),
		InboxSize: 64,
	}
}

// Engine registers workflow definitions and drives process instances. Each
// instance is owned by one actor goroutine; the public API talks to it
// through the instance inbox.
type Engine struct {
	config      Config
	logger      *slog.Logger
	bus         event.Bus
	tasks       task.Queue
	registry    registry.Registry
	timers      *timer.Scheduler
	store       dao.Service[string, execution.Snapshot]
	executor    *activity.Executor
	compensator *compensation.Manager
	onProgress  func(progress.Counters)

	mu        sync.RWMutex
	workflows map[string]*model.Workflow
	latest    map[string]string
	instances map[string]*instance

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()
	ownBus      bool
	ownTimers   bool
	closeOnce   sync.Once
}

// New creates an engine. Collaborators that are not supplied get in-memory
// defaults wired to the engine bus.
func New(options ...Option) *Engine {
	e := &Engine{
		config:    DefaultConfig(),
		logger:    slog.Default(),
		workflows: make(map[string]*model.Workflow),
		latest:    make(map[string]string),
		instances: make(map[string]*instance),
	}
	for _, opt := range options {
		opt(e)
	}
	if e.config.InboxSize <= 0 {
		e.config.InboxSize = DefaultConfig().InboxSize
	}
	if e.bus == nil {
		e.bus = event.New(event.WithLogger(e.logger))
		e.ownBus = true
	}
	if e.timers == nil {
		e.timers = timer.New(e.bus, timer.WithLogger(e.logger))
		e.ownTimers = true
	}
	if e.tasks == nil {
		e.tasks = taskmemory.New(taskmemory.WithBus(e.bus), taskmemory.WithLogger(e.logger))
	}
	if e.registry == nil {
		e.registry = registry.NewLocal()
	}
	if e.store == nil {
		e.store = snapshotmemory.New()
	}
	e.executor = activity.New(
		activity.WithRegistry(e.registry),
		activity.WithTaskQueue(e.tasks),
		activity.WithTimers(e.timers),
	)
	e.compensator = compensation.New(
		compensation.WithRegistry(e.registry),
		compensation.WithEvaluator(e.executor.Evaluator()),
		compensation.WithLogger(e.logger),
	)
	return e
}

// Bus returns the event bus lifecycle events are published on.
func (e *Engine) Bus() event.Bus { return e.bus }

// TaskQueue returns the queue user activities enqueue tasks on.
func (e *Engine) TaskQueue() task.Queue { return e.tasks }

// Registry returns the service registry.
func (e *Engine) Registry() registry.Registry { return e.registry }

// Start enables process execution and subscribes to timer events.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.ctx != nil {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.unsubscribe = e.bus.On(event.TimerFired, e.onTimerEvent)
	return nil
}

// Shutdown stops every instance actor, waits for them and releases owned
// collaborators. Instance state is kept.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	cancel, unsubscribe := e.cancel, e.unsubscribe
	e.cancel, e.unsubscribe = nil, nil
	e.mu.Unlock()
	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
		done := make(chan struct{})
		go func() {
			e.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	var err error
	e.closeOnce.Do(func() {
		if e.ownTimers {
			e.timers.Shutdown()
		}
		if closer, ok := e.bus.(interface{ Close() error }); ok && e.ownBus {
			err = closer.Close()
		}
	})
	return err
}

func (e *Engine) started() (context.Context, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.ctx, e.ctx != nil && e.cancel != nil
}

// RegisterWorkflow validates and stores a definition under id@version.
func (e *Engine) RegisterWorkflow(ctx context.Context, workflow *model.Workflow) (string, error) {
	if workflow == nil {
		return "", fmt.Errorf("workflow was nil")
	}
	if err := workflow.Check(); err != nil {
		return "", err
	}
	registered := workflow.Clone()
	registered.Index()
	key := registered.Key()

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.workflows[key]; ok {
		return "", fmt.Errorf("%w: %s", ErrDuplicateWorkflow, key)
	}
	e.workflows[key] = registered
	e.latest[registered.ID] = key
	e.logger.InfoContext(ctx, "workflow registered", log.WorkflowIDKey, key)
	return registered.ID, nil
}

// Workflow resolves "id" (latest registered version) or "id@version".
func (e *Engine) Workflow(ref string) (*model.Workflow, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	key := ref
	if !strings.Contains(ref, "@") {
		latest, ok := e.latest[ref]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, ref)
		}
		key = latest
	}
	workflow, ok := e.workflows[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowNotFound, ref)
	}
	return workflow, nil
}

// StartProcess creates an instance with a single token at the start
// activity and spawns its actor.
func (e *Engine) StartProcess(ctx context.Context, workflowRef, initiator string, inputs map[string]interface{}) (string, error) {
	engineCtx, ok := e.started()
	if !ok {
		return "", ErrNotStarted
	}
	workflow, err := e.Workflow(workflowRef)
	if err != nil {
		return "", err
	}
	ctx, span := tracing.StartSpan(ctx, "procflow.start", map[string]string{log.WorkflowIDKey: workflow.Key()})
	defer tracing.EndSpan(span, nil)

	process := execution.NewProcess(idgen.New(), workflow, initiator, inputs)
	process.AddToken(workflow.Start)
	process.SetStatus(execution.StatusRunning, "started")
	span.SetAttributes(map[string]string{log.InstanceIDKey: process.ID})

	inst := newInstance(engineCtx, process, e.config.InboxSize, e.onProgress)
	e.mu.Lock()
	if e.cancel == nil {
		e.mu.Unlock()
		return "", ErrNotStarted
	}
	e.instances[process.ID] = inst
	e.wg.Add(1)
	e.mu.Unlock()

	e.save(ctx, inst)
	e.emit(ctx, event.ProcessStarted, process)
	e.logger.InfoContext(ctx, "process started",
		log.InstanceIDKey, process.ID,
		log.WorkflowIDKey, workflow.Key())

	go e.run(inst)
	return process.ID, nil
}

func (e *Engine) instance(id string) (*instance, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	inst, ok := e.instances[id]
	return inst, ok
}

// CompleteTask completes a human task and resumes the token parked on it.
// Unknown or already completed tasks are rejected without touching any
// instance.
func (e *Engine) CompleteTask(ctx context.Context, taskID, userID string, outputs map[string]interface{}) error {
	t, err := e.tasks.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if t.Status != task.StatusCreated {
		return &task.InvalidStateError{TaskID: taskID, Status: t.Status}
	}
	inst, ok := e.instance(t.ProcessID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, t.ProcessID)
	}
	return e.call(ctx, inst, &taskSignal{taskID: taskID, userID: userID, outputs: outputs})
}

// HandleTimerFired resumes the token parked on a timer of activityID.
// Unknown or finished instances and timers nobody waits for are ignored.
func (e *Engine) HandleTimerFired(ctx context.Context, instanceID, activityID string) error {
	return e.handleTimer(ctx, instanceID, activityID, "", true)
}

func (e *Engine) handleTimer(ctx context.Context, instanceID, activityID, timerID string, wait bool) error {
	inst, ok := e.instance(instanceID)
	if !ok || inst.process.GetStatus().IsTerminal() {
		e.logger.DebugContext(ctx, "stale timer ignored",
			log.InstanceIDKey, instanceID,
			log.ActivityIDKey, activityID,
			log.TimerIDKey, timerID)
		return nil
	}
	signal := &timerSignal{activityID: activityID, timerID: timerID}
	if !wait {
		return e.post(ctx, inst, signal)
	}
	err := e.call(ctx, inst, signal)
	if errors.Is(err, ErrProcessTerminal) {
		return nil
	}
	return err
}

func (e *Engine) onTimerEvent(ctx context.Context, evt *event.Event) error {
	payload := &event.TimerFiredPayload{}
	if err := event.Decode(evt.Data, payload); err != nil {
		return err
	}
	// the bus dispatcher must not wait on an actor that may itself be emitting
	return e.handleTimer(ctx, payload.ProcessID, payload.ActivityID, payload.TimerID, false)
}

// TerminateProcess force-stops an instance: in-flight service calls are
// cancelled, late results dropped and no compensation runs.
func (e *Engine) TerminateProcess(ctx context.Context, instanceID, reason string) error {
	inst, ok := e.instance(instanceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, instanceID)
	}
	return e.call(ctx, inst, &terminateSignal{reason: reason})
}

// GetProcessInstance returns a snapshot of a live or archived instance.
func (e *Engine) GetProcessInstance(ctx context.Context, id string) (*execution.Snapshot, error) {
	if inst, ok := e.instance(id); ok {
		return inst.process.Snapshot(), nil
	}
	snapshot, err := e.store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, dao.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
		}
		return nil, err
	}
	return snapshot, nil
}

// Progress returns the activity counters of an instance held in memory.
func (e *Engine) Progress(id string) (progress.Counters, error) {
	inst, ok := e.instance(id)
	if !ok {
		return progress.Counters{}, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	return inst.tracker.Snapshot(), nil
}

// ListActiveInstances returns snapshots of non-terminal instances ordered
// by start time.
func (e *Engine) ListActiveInstances(ctx context.Context) []*execution.Snapshot {
	e.mu.RLock()
	result := make([]*execution.Snapshot, 0, len(e.instances))
	for _, inst := range e.instances {
		if snapshot := inst.process.Snapshot(); !snapshot.IsTerminal() {
			result = append(result, snapshot)
		}
	}
	e.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool {
		if result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].StartedAt.Before(result[j].StartedAt)
	})
	return result
}

// Wait polls an instance until it is no longer running, backing off
// between polls. A zero timeout waits until ctx is done.
func (e *Engine) Wait(ctx context.Context, id string, timeout time.Duration) (*execution.Snapshot, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = 0
	ticker := backoff.NewTicker(policy)
	defer ticker.Stop()
	for {
		snapshot, err := e.GetProcessInstance(ctx, id)
		if err != nil {
			return nil, err
		}
		if snapshot.Status != execution.StatusRunning {
			return snapshot, nil
		}
		select {
		case <-ctx.Done():
			return snapshot, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Cleanup archives a finished instance in the snapshot store and releases
// it from memory.
func (e *Engine) Cleanup(ctx context.Context, id string) error {
	inst, ok := e.instance(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	snapshot := inst.process.Snapshot()
	if !snapshot.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrProcessActive, id, snapshot.Status)
	}
	if err := e.store.Save(ctx, snapshot); err != nil {
		return fmt.Errorf("failed to archive process %s: %w", id, err)
	}
	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()
	e.logger.DebugContext(ctx, "process archived", log.InstanceIDKey, id)
	return nil
}

func (e *Engine) save(ctx context.Context, inst *instance) {
	if err := e.store.Save(context.WithoutCancel(ctx), inst.process.Snapshot()); err != nil {
		e.logger.ErrorContext(ctx, "failed to save process snapshot",
			log.InstanceIDKey, inst.process.ID,
			"error", err)
	}
}

func (e *Engine) emit(ctx context.Context, name string, process *execution.Process) {
	snapshot := process.Snapshot()
	payload := &event.ProcessPayload{
		ProcessID:  snapshot.ID,
		WorkflowID: snapshot.WorkflowID,
		Status:     string(snapshot.Status),
		Initiator:  snapshot.Initiator,
		Reason:     snapshot.Reason,
		Error:      snapshot.Error,
	}
	if err := e.bus.Emit(context.WithoutCancel(ctx), name, payload); err != nil {
		e.logger.ErrorContext(ctx, "failed to emit process event",
			log.InstanceIDKey, snapshot.ID,
			log.EventNameKey, name,
			"error", err)
	}
}
