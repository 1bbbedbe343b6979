package task

import "fmt"

// NotFoundError is returned for an unknown task id.
type NotFoundError struct {
	TaskID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// InvalidStateError is returned when a task is not in the created state.
type InvalidStateError struct {
	TaskID string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("task %s is %s, expected %s", e.TaskID, e.Status, StatusCreated)
}
