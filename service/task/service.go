package task

import (
	"context"
)

// Queue stores human tasks on behalf of the engine.
type Queue interface {
	// AddTask stores a task in the created state and returns its id.
	AddTask(ctx context.Context, t *Task) (string, error)

	// GetTask returns a copy of a task or *NotFoundError.
	GetTask(ctx context.Context, id string) (*Task, error)

	// CompleteTask marks a created task completed. It returns
	// *NotFoundError or *InvalidStateError without side effects.
	CompleteTask(ctx context.Context, id string, userID string, outputs map[string]interface{}) error

	// ListPending returns tasks still in the created state.
	ListPending(ctx context.Context) ([]*Task, error)
}

// Completer completes tasks, typically the engine which resumes the owning
// process instance.
type Completer interface {
	CompleteTask(ctx context.Context, id string, userID string, outputs map[string]interface{}) error
}
