package memory

import (
	"log/slog"

	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/task"
)

type Option func(*Service)

// WithBus publishes task.created and task.completed events.
func WithBus(bus event.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

// WithLogger sets the logger reporting event publication failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStore replaces the default in-memory task store.
func WithStore(store dao.Service[string, task.Task]) Option {
	return func(s *Service) { s.store = store }
}
