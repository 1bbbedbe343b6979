package memory

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"

	"github.com/viant/procflow/internal/clock"
	"github.com/viant/procflow/internal/idgen"
	"github.com/viant/procflow/log"
	"github.com/viant/procflow/service/dao"
	"github.com/viant/procflow/service/dao/criteria"
	"github.com/viant/procflow/service/dao/store"
	"github.com/viant/procflow/service/event"
	"github.com/viant/procflow/service/task"
)

// Service is an in-memory task.Queue.
type Service struct {
	mu     sync.Mutex
	store  dao.Service[string, task.Task]
	bus    event.Bus
	logger *slog.Logger
}

func taskKey(t *task.Task) string { return t.ID }

// New creates a task queue.
func New(options ...Option) *Service {
	ret := &Service{
		logger: slog.Default(),
		store: store.NewMemoryStore[string, task.Task](taskKey).WithMatcher(func(t *task.Task, parameters []*dao.Parameter) bool {
			return criteria.FilterByStatus(string(t.Status), parameters)
		}),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Service) AddTask(ctx context.Context, t *task.Task) (string, error) {
	if t == nil {
		return "", dao.ErrNilEntity
	}
	stored := t.Clone()
	if stored.ID == "" {
		stored.ID = idgen.New()
	}
	stored.Status = task.StatusCreated
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = clock.Now()
	}
	s.mu.Lock()
	err := s.store.Save(ctx, stored)
	s.mu.Unlock()
	if err != nil {
		return "", err
	}
	s.publish(ctx, event.TaskCreated, stored)
	return stored.ID, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*task.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, id)
}

func (s *Service) load(ctx context.Context, id string) (*task.Task, error) {
	t, err := s.store.Load(ctx, id)
	if err != nil && !errors.Is(err, dao.ErrNotFound) {
		return nil, err
	}
	if t == nil {
		return nil, &task.NotFoundError{TaskID: id}
	}
	return t.Clone(), nil
}

func (s *Service) CompleteTask(ctx context.Context, id string, userID string, outputs map[string]interface{}) error {
	s.mu.Lock()
	t, err := s.load(ctx, id)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if t.Status != task.StatusCreated {
		s.mu.Unlock()
		return &task.InvalidStateError{TaskID: id, Status: t.Status}
	}
	now := clock.Now()
	t.Status = task.StatusCompleted
	t.CompletedBy = userID
	t.CompletedAt = &now
	t.Outputs = outputs
	err = s.store.Save(ctx, t)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(ctx, event.TaskCompleted, t.Clone())
	return nil
}

func (s *Service) ListPending(ctx context.Context) ([]*task.Task, error) {
	s.mu.Lock()
	all, err := s.store.List(ctx, dao.NewParameter("Status", string(task.StatusCreated)))
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	pending := make([]*task.Task, 0, len(all))
	for _, t := range all {
		if t.Status == task.StatusCreated {
			pending = append(pending, t.Clone())
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	return pending, nil
}

func (s *Service) publish(ctx context.Context, name string, t *task.Task) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Emit(context.WithoutCancel(ctx), name, t); err != nil {
		s.logger.ErrorContext(ctx, "failed to emit task event",
			log.TaskIDKey, t.ID,
			log.EventNameKey, name,
			"error", err)
	}
}

var _ task.Queue = (*Service)(nil)
