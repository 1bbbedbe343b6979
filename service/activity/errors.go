package activity

import (
	"errors"
	"fmt"

	"github.com/viant/procflow/model/graph"
)

// ActivityExecutionError wraps a failure raised while executing an activity.
type ActivityExecutionError struct {
	ActivityID string
	Kind       graph.Kind
	Err        error
}

func (e *ActivityExecutionError) Error() string {
	return fmt.Sprintf("activity %s (%s) failed: %v", e.ActivityID, e.Kind, e.Err)
}

func (e *ActivityExecutionError) Unwrap() error { return e.Err }

// NoMatchingTransitionError is returned when routing selects no transition.
type NoMatchingTransitionError struct {
	ActivityID string
}

func (e *NoMatchingTransitionError) Error() string {
	return fmt.Sprintf("activity %s: no matching outgoing transition", e.ActivityID)
}

// ConditionError is returned when a transition condition cannot be
// evaluated. Like a missing match it is never retried.
type ConditionError struct {
	ActivityID   string
	TransitionID string
	Err          error
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("activity %s: transition %s: %v", e.ActivityID, e.TransitionID, e.Err)
}

func (e *ConditionError) Unwrap() error { return e.Err }

// Retryable reports whether a failure may be retried.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var noMatch *NoMatchingTransitionError
	var condition *ConditionError
	return !errors.As(err, &noMatch) && !errors.As(err, &condition)
}

func failed(activity *graph.Activity, err error) *Failed {
	var execErr *ActivityExecutionError
	if errors.As(err, &execErr) {
		return &Failed{Err: err}
	}
	var noMatch *NoMatchingTransitionError
	if errors.As(err, &noMatch) {
		return &Failed{Err: err}
	}
	var condition *ConditionError
	if errors.As(err, &condition) {
		return &Failed{Err: err}
	}
	return &Failed{Err: &ActivityExecutionError{ActivityID: activity.ID, Kind: activity.Kind, Err: err}}
}
