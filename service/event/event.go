package event

import (
	"context"
	"time"

	"github.com/viant/procflow/internal/clock"
)

// Event is the envelope delivered to handlers.
type Event struct {
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"createdAt"`
	Data      interface{} `json:"data,omitempty"`
}

// NewEvent creates an event envelope.
func NewEvent(name string, data interface{}) *Event {
	return &Event{Name: name, CreatedAt: clock.Now(), Data: data}
}

// Handler handles a delivered event. Returned errors are logged and may
// cause redelivery depending on the bus.
type Handler func(ctx context.Context, event *Event) error

// Bus publishes named events and dispatches them to subscribers.
type Bus interface {
	// Emit publishes payload under name.
	Emit(ctx context.Context, name string, payload interface{}) error

	// On subscribes handler to name ("*" subscribes to all events) and
	// returns a function removing the subscription.
	On(name string, handler Handler) (cancel func())
}
