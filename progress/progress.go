package progress

import (
	"context"
	"sync"
	"time"
)

// Delta is an incremental counter change; fields may be negative.
type Delta struct {
	Started   int
	Completed int
	Failed    int
	Retried   int
	Running   int
	Waiting   int
}

// Counters is a point-in-time copy of a tracker.
type Counters struct {
	ProcessID string    `json:"processId"`
	Workflow  string    `json:"workflow"`
	StartedAt time.Time `json:"startedAt"`

	Started   int `json:"started"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Retried   int `json:"retried"`
	Running   int `json:"running"`
	Waiting   int `json:"waiting"`
}

// Tracker aggregates counters of one instance. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	counters Counters
	onChange func(Counters)
}

// NewTracker creates a tracker; onChange, when set, receives a copy after
// every update.
func NewTracker(processID, workflow string, onChange func(Counters)) *Tracker {
	return &Tracker{
		counters: Counters{ProcessID: processID, Workflow: workflow, StartedAt: time.Now()},
		onChange: onChange,
	}
}

// Update applies d. The callback runs outside the lock.
func (t *Tracker) Update(d Delta) {
	if t == nil {
		return
	}
	t.mu.Lock()
	c := &t.counters
	c.Started += d.Started
	c.Completed += d.Completed
	c.Failed += d.Failed
	c.Retried += d.Retried
	c.Running += d.Running
	c.Waiting += d.Waiting
	snapshot := t.counters
	cb := t.onChange
	t.mu.Unlock()

	if cb != nil {
		cb(snapshot)
	}
}

// Settle zeroes the running and waiting gauges once the instance has
// reached a final state.
func (t *Tracker) Settle() {
	if t == nil {
		return
	}
	snapshot := t.Snapshot()
	if snapshot.Running == 0 && snapshot.Waiting == 0 {
		return
	}
	t.Update(Delta{Running: -snapshot.Running, Waiting: -snapshot.Waiting})
}

// Snapshot returns a copy of the counters.
func (t *Tracker) Snapshot() Counters {
	if t == nil {
		return Counters{}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters
}

type trackerKey struct{}

// WithTracker returns ctx carrying t.
func WithTracker(ctx context.Context, t *Tracker) context.Context {
	return context.WithValue(ctx, trackerKey{}, t)
}

// FromContext extracts the tracker from ctx.
func FromContext(ctx context.Context) (*Tracker, bool) {
	if ctx == nil {
		return nil, false
	}
	t, ok := ctx.Value(trackerKey{}).(*Tracker)
	return t, ok
}

// Update applies d to the tracker carried by ctx, if any.
func Update(ctx context.Context, d Delta) {
	if t, ok := FromContext(ctx); ok {
		t.Update(d)
	}
}
