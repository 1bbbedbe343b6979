package compensation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/viant/procflow/log"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/runtime/evaluator"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/tracing"
)

// View is the part of a failed process compensation needs.
type View struct {
	ProcessID string
	Workflow  *model.Workflow
	// Variables at the time of failure.
	Variables map[string]interface{}
}

// Report summarises a compensation sweep.
type Report struct {
	Attempted []string
	Failed    []*CompensationError
}

// Errors returns the failures as plain errors.
func (r *Report) Errors() []error {
	if r == nil {
		return nil
	}
	result := make([]error, 0, len(r.Failed))
	for _, failure := range r.Failed {
		result = append(result, failure)
	}
	return result
}

// Manager runs compensation descriptors of completed activities.
type Manager struct {
	registry  registry.Registry
	evaluator *evaluator.Evaluator
	logger    *slog.Logger
}

type Option func(*Manager)

func WithRegistry(r registry.Registry) Option {
	return func(m *Manager) { m.registry = r }
}

func WithEvaluator(e *evaluator.Evaluator) Option {
	return func(m *Manager) { m.evaluator = e }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func New(opts ...Option) *Manager {
	ret := &Manager{logger: slog.Default()}
	for _, opt := range opts {
		opt(ret)
	}
	if ret.evaluator == nil {
		ret.evaluator = evaluator.New()
	}
	return ret
}

// Compensate walks completed (in completion order) backwards and invokes
// every compensation descriptor. Failures are collected and never stop the
// sweep.
func (m *Manager) Compensate(ctx context.Context, view *View, completed []string) *Report {
	report := &Report{}
	ctx, span := tracing.StartSpan(ctx, "procflow.compensate", map[string]string{log.InstanceIDKey: view.ProcessID})
	defer func() {
		var err error
		if len(report.Failed) > 0 {
			err = fmt.Errorf("%d compensation(s) failed", len(report.Failed))
		}
		tracing.EndSpan(span, err)
	}()

	for i := len(completed) - 1; i >= 0; i-- {
		activity, ok := view.Workflow.Activity(completed[i])
		if !ok || activity.Compensation == nil {
			continue
		}
		report.Attempted = append(report.Attempted, activity.ID)
		if err := m.invoke(ctx, view, activity); err != nil {
			failure := newCompensationError(view.ProcessID, activity.ID, len(report.Attempted), err)
			report.Failed = append(report.Failed, failure)
			m.logger.ErrorContext(ctx, "compensation failed",
				log.InstanceIDKey, view.ProcessID,
				log.ActivityIDKey, activity.ID,
				"error", err)
			continue
		}
		m.logger.DebugContext(ctx, "activity compensated",
			log.InstanceIDKey, view.ProcessID,
			log.ActivityIDKey, activity.ID)
	}
	return report
}

func (m *Manager) invoke(ctx context.Context, view *View, activity *graph.Activity) error {
	compensation := activity.Compensation
	params := make(map[string]interface{}, len(view.Variables)+len(compensation.Params))
	for k, v := range view.Variables {
		params[k] = v
	}
	for k, v := range compensation.Params {
		params[k] = v
	}
	switch compensation.Kind {
	case graph.CompensateService:
		if m.registry == nil {
			return fmt.Errorf("service registry is not configured")
		}
		timeout, err := activity.TimeoutDuration()
		if err != nil {
			return err
		}
		_, err = m.registry.CallService(ctx, compensation.Service, compensation.Operation, params, timeout)
		return err
	case graph.CompensateScript:
		if strings.TrimSpace(compensation.Script) == "" {
			return fmt.Errorf("empty compensation script")
		}
		_, err := m.evaluator.Evaluate(compensation.Script, params)
		return err
	}
	return fmt.Errorf("unknown compensation kind %q", compensation.Kind)
}
