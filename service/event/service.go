package event

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/viant/procflow/internal/idgen"
	plog "github.com/viant/procflow/log"
	"github.com/viant/procflow/service/messaging"
	"github.com/viant/procflow/service/messaging/memory"
)

// Service is an in-memory Bus. Events are queued and dispatched in order by
// a single goroutine; a failing handler causes redelivery of the event to
// the handlers that have not handled it yet.
type Service struct {
	queue       *memory.Queue[Event]
	queueConfig memory.Config
	logger      *slog.Logger

	mux      sync.RWMutex
	handlers map[string]map[uint64]Handler
	seq      uint64

	// handled holds, per event id awaiting redelivery, the subscriptions
	// that already succeeded. Only the dispatch goroutine touches it.
	handled map[string]map[uint64]bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates and starts an in-memory event bus.
func New(opts ...Option) *Service {
	ret := &Service{
		queueConfig: memory.DefaultConfig(),
		logger:      slog.Default(),
		handlers:    make(map[string]map[uint64]Handler),
		handled:     make(map[string]map[uint64]bool),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ret)
	}
	ret.queue = memory.NewQueue[Event](ret.queueConfig)
	var ctx context.Context
	ctx, ret.cancel = context.WithCancel(context.Background())
	go ret.dispatch(ctx)
	return ret
}

// Emit queues an event for asynchronous dispatch.
func (s *Service) Emit(ctx context.Context, name string, payload interface{}) error {
	anEvent := NewEvent(name, payload)
	anEvent.ID = idgen.New()
	return s.queue.Publish(ctx, anEvent)
}

// On subscribes handler to name.
func (s *Service) On(name string, handler Handler) func() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.seq++
	id := s.seq
	if s.handlers[name] == nil {
		s.handlers[name] = make(map[uint64]Handler)
	}
	s.handlers[name][id] = handler
	return func() {
		s.mux.Lock()
		defer s.mux.Unlock()
		delete(s.handlers[name], id)
	}
}

type subscription struct {
	id      uint64
	handler Handler
}

func (s *Service) subscribers(name string) []subscription {
	s.mux.RLock()
	defer s.mux.RUnlock()
	var result []subscription
	for id, handler := range s.handlers[name] {
		result = append(result, subscription{id: id, handler: handler})
	}
	for id, handler := range s.handlers[All] {
		result = append(result, subscription{id: id, handler: handler})
	}
	return result
}

func (s *Service) dispatch(ctx context.Context) {
	defer close(s.done)
	for {
		message, err := s.queue.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Error("event consume failed", "error", err)
			return
		}
		s.deliver(ctx, message)
	}
}

func (s *Service) deliver(ctx context.Context, message messaging.Message[Event]) {
	anEvent := message.T()
	handled := s.handled[anEvent.ID]
	var errs []error
	for _, sub := range s.subscribers(anEvent.Name) {
		if handled[sub.id] {
			continue
		}
		if err := sub.handler(ctx, anEvent); err != nil {
			s.logger.Warn("event handler failed", plog.EventNameKey, anEvent.Name, "error", err)
			errs = append(errs, err)
			continue
		}
		if handled == nil {
			handled = make(map[uint64]bool)
		}
		handled[sub.id] = true
	}
	if len(errs) == 0 {
		delete(s.handled, anEvent.ID)
		_ = message.Ack()
		return
	}
	if s.redelivered(message) {
		s.handled[anEvent.ID] = handled
	} else {
		delete(s.handled, anEvent.ID)
	}
	_ = message.Nack(errors.Join(errs...))
}

// redelivered reports whether a Nack of message schedules another delivery.
func (s *Service) redelivered(message messaging.Message[Event]) bool {
	counted, ok := message.(interface{ Attempts() int })
	if !ok {
		return true
	}
	return counted.Attempts()+1 <= s.queueConfig.MaxRetries
}

// Close stops dispatching; queued events are dropped.
func (s *Service) Close() error {
	s.cancel()
	<-s.done
	s.queue.Close()
	return nil
}

var _ Bus = (*Service)(nil)
