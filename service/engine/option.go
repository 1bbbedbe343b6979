package engine

import (
	"log/slog"

	"github.com/viant/procflow/progress"
	"github.com/viant/procflow/runtime/execution"
	"github.com/viant/procflow/service/activity"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/registry"
	"github.com/viant/procflow/service/task"
	"github.com/viant/procflow/service/timer"
)

// Option customises an Engine.
type Option func(e *Engine)

// WithConfig replaces the engine configuration.
func WithConfig(config Config) Option {
	return func(e *Engine) {
		e.config = config
	}
}

// WithRetryDefaults sets the retry settings used where an activity leaves them unset.
func WithRetryDefaults(defaults activity.RetryDefaults) Option {
	return func(e *Engine) {
		e.config.Retry = defaults
	}
}

// WithInboxSize sets the per-instance signal buffer.
func WithInboxSize(size int) Option {
	return func(e *Engine) {
		e.config.InboxSize = size
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithBus sets the event bus; without it the engine owns an in-memory bus.
func WithBus(bus event.Bus) Option {
	return func(e *Engine) {
		e.bus = bus
	}
}

func WithTaskQueue(queue task.Queue) Option {
	return func(e *Engine) {
		e.tasks = queue
	}
}

func WithRegistry(r registry.Registry) Option {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithStore sets the snapshot store written after every instance step.
func WithStore(store dao.Service[string, execution.Snapshot]) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithTimers sets the timer scheduler; it must publish on the engine bus.
func WithTimers(scheduler *timer.Scheduler) Option {
	return func(e *Engine) {
		e.timers = scheduler
	}
}

// WithProgressListener receives instance counters after every change. It is
// called from actor and activity goroutines and must not block.
func WithProgressListener(fn func(progress.Counters)) Option {
	return func(e *Engine) {
		e.onProgress = fn
	}
}
