package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/runtime/evaluator"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
)

// Timers arms timer activities.
type Timers interface {
	Schedule(ctx context.Context, processID, activityID string, spec *graph.Timer) (string, time.Time, error)
}

// Executor runs single activities. It never touches process state; the
// engine applies results.
type Executor struct {
	registry  registry.Registry
	tasks     task.Queue
	timers    Timers
	evaluator *evaluator.Evaluator
}

type Option func(*Executor)

func WithRegistry(r registry.Registry) Option {
	return func(e *Executor) { e.registry = r }
}

func WithTaskQueue(q task.Queue) Option {
	return func(e *Executor) { e.tasks = q }
}

func WithTimers(t Timers) Option {
	return func(e *Executor) { e.timers = t }
}

func WithEvaluator(ev *evaluator.Evaluator) Option {
	return func(e *Executor) { e.evaluator = ev }
}

// New creates an executor.
func New(opts ...Option) *Executor {
	ret := &Executor{}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.evaluator == nil {
		ret.evaluator = evaluator.New()
	}
	return ret
}

// Evaluator returns the expression evaluator in use.
func (e *Executor) Evaluator() *evaluator.Evaluator {
	return e.evaluator
}

// Execute runs activity against scope.
func (e *Executor) Execute(ctx context.Context, scope *Scope, activity *graph.Activity) Result {
	inputs, err := e.MapInput(activity, scope.Variables)
	if err != nil {
		return failed(activity, err)
	}
	var result Result
	switch activity.Kind {
	case graph.KindService:
		result = e.service(ctx, scope, activity, inputs)
	case graph.KindUser:
		result = e.user(ctx, scope, activity, inputs)
	case graph.KindScript:
		result = e.script(scope, activity, inputs)
	case graph.KindTimer:
		result = e.timer(ctx, scope, activity)
	case graph.KindGateway:
		result = &Completed{}
	default:
		return failed(activity, fmt.Errorf("unsupported kind %q", activity.Kind))
	}
	completed, ok := result.(*Completed)
	if !ok {
		return result
	}
	if completed.Selected, err = e.Route(activity, scope.Outgoing, scope.env(completed.Variables)); err != nil {
		return failed(activity, err)
	}
	return completed
}

func (e *Executor) service(ctx context.Context, scope *Scope, activity *graph.Activity, inputs map[string]interface{}) Result {
	if e.registry == nil {
		return failed(activity, fmt.Errorf("service registry is not configured"))
	}
	timeout, err := activity.TimeoutDuration()
	if err != nil {
		return failed(activity, err)
	}
	output, err := e.registry.CallService(ctx, activity.Call.Service, activity.Call.Operation, inputs, timeout)
	if err != nil {
		return failed(activity, err)
	}
	updates, err := e.MapOutput(activity, scope.Variables, output)
	if err != nil {
		return failed(activity, err)
	}
	return &Completed{Output: output, Variables: updates}
}

func (e *Executor) user(ctx context.Context, scope *Scope, activity *graph.Activity, inputs map[string]interface{}) Result {
	if e.tasks == nil {
		return failed(activity, fmt.Errorf("task queue is not configured"))
	}
	t := &task.Task{
		ActivityID: activity.ID,
		ProcessID:  scope.ProcessID,
		TokenID:    scope.TokenID,
		Name:       activity.Name,
		Input:      inputs,
	}
	if activity.Task != nil {
		t.Assignee = activity.Task.Assignee
		t.CandidateGroups = append([]string(nil), activity.Task.CandidateGroups...)
	}
	taskID, err := e.tasks.AddTask(ctx, t)
	if err != nil {
		return failed(activity, err)
	}
	return &Waiting{TaskID: taskID}
}

func (e *Executor) script(scope *Scope, activity *graph.Activity, inputs map[string]interface{}) Result {
	value, err := e.evaluator.Evaluate(activity.Script.Expression, scope.env(inputs))
	if err != nil {
		return failed(activity, err)
	}
	output, ok := value.(map[string]interface{})
	if !ok {
		output = map[string]interface{}{ResultKey: value}
	}
	updates, err := e.MapOutput(activity, scope.Variables, output)
	if err != nil {
		return failed(activity, err)
	}
	return &Completed{Output: output, Variables: updates}
}

func (e *Executor) timer(ctx context.Context, scope *Scope, activity *graph.Activity) Result {
	if e.timers == nil {
		return failed(activity, fmt.Errorf("timer scheduler is not configured"))
	}
	timerID, at, err := e.timers.Schedule(ctx, scope.ProcessID, activity.ID, activity.Timer)
	if err != nil {
		return failed(activity, err)
	}
	return &Waiting{TimerID: timerID, At: at}
}

// Resume completes a parked user or timer activity: output (task outputs,
// or nil for timers) is mapped and routing is evaluated. Task outputs are
// merged into the variables as given, mapped names are applied on top.
func (e *Executor) Resume(activity *graph.Activity, scope *Scope, output map[string]interface{}) Result {
	mapped, err := e.MapOutput(activity, scope.Variables, output)
	if err != nil {
		return failed(activity, err)
	}
	updates := mapped
	if activity.Kind == graph.KindUser && len(activity.Output) > 0 {
		updates = make(map[string]interface{}, len(output)+len(mapped))
		for k, v := range output {
			updates[k] = v
		}
		for k, v := range mapped {
			updates[k] = v
		}
	}
	selected, err := e.Route(activity, scope.Outgoing, scope.env(updates))
	if err != nil {
		return failed(activity, err)
	}
	return &Completed{Output: output, Variables: updates, Selected: selected}
}
