package timer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/viant/procflow/internal/clock"
	"github.com/viant/procflow/internal/idgen"
	"github.com/viant/procflow/log"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/service/event"
)

type entry struct {
	processID  string
	activityID string
	timer      *time.Timer
}

// Scheduler emits event.TimerFired on the bus when a timer activity is due.
type Scheduler struct {
	bus    event.Bus
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

type Option func(*Scheduler)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// New creates a scheduler publishing to bus.
func New(bus event.Bus, opts ...Option) *Scheduler {
	ret := &Scheduler{bus: bus, logger: slog.Default(), entries: map[string]*entry{}}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Next returns the fire time of a timer descriptor relative to now.
func Next(spec *graph.Timer, now time.Time) (time.Time, error) {
	if spec == nil {
		return time.Time{}, fmt.Errorf("timer descriptor is missing")
	}
	if spec.Duration != "" {
		delay, err := time.ParseDuration(spec.Duration)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timer duration %q: %w", spec.Duration, err)
		}
		return now.Add(delay), nil
	}
	schedule, err := cron.ParseStandard(spec.Cron)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", spec.Cron, err)
	}
	return schedule.Next(now), nil
}

// Schedule arms a timer for an activity and returns its id and fire time.
func (s *Scheduler) Schedule(ctx context.Context, processID, activityID string, spec *graph.Timer) (string, time.Time, error) {
	at, err := Next(spec, clock.Now())
	if err != nil {
		return "", time.Time{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", time.Time{}, fmt.Errorf("timer scheduler is shut down")
	}
	timerID := idgen.New()
	e := &entry{processID: processID, activityID: activityID}
	e.timer = time.AfterFunc(time.Until(at), func() { s.fire(timerID) })
	s.entries[timerID] = e
	s.logger.DebugContext(ctx, "timer scheduled",
		log.InstanceIDKey, processID,
		log.ActivityIDKey, activityID,
		log.TimerIDKey, timerID,
		log.AtKey, at)
	return timerID, at, nil
}

func (s *Scheduler) fire(timerID string) {
	s.mu.Lock()
	e, ok := s.entries[timerID]
	if !ok || s.closed {
		s.mu.Unlock()
		return
	}
	delete(s.entries, timerID)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	payload := &event.TimerFiredPayload{ProcessID: e.processID, ActivityID: e.activityID, TimerID: timerID}
	if err := s.bus.Emit(context.Background(), event.TimerFired, payload); err != nil {
		s.logger.Error("failed to emit timer event",
			log.InstanceIDKey, e.processID,
			log.TimerIDKey, timerID,
			"error", err)
	}
}

// Cancel disarms a pending timer; it reports whether the timer was pending.
func (s *Scheduler) Cancel(timerID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[timerID]
	if !ok {
		return false
	}
	e.timer.Stop()
	delete(s.entries, timerID)
	return true
}

// CancelProcess disarms every timer of a process.
func (s *Scheduler) CancelProcess(processID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for id, e := range s.entries {
		if e.processID == processID {
			e.timer.Stop()
			delete(s.entries, id)
			count++
		}
	}
	return count
}

// Pending returns the number of armed timers.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Shutdown disarms all timers and waits for in-flight emits.
func (s *Scheduler) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for id, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
