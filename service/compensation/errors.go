package compensation

import (
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// TextCode marks categorised compensation failures.
const TextCode = "COMPENSATION_FAILED"

// CompensationError records one failed compensation. Err is the
// categorised *goerrors.Error wrapping the cause.
type CompensationError struct {
	ActivityID string
	Err        error
	cause      error
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("compensation of %s failed: %v", e.ActivityID, e.cause)
}

func (e *CompensationError) Unwrap() error { return e.Err }

func newCompensationError(processID, activityID string, position int, err error) *CompensationError {
	wrapped := goerrors.Wrap(err, goerrors.CategoryHandler, fmt.Sprintf("compensation failed at %s", activityID)).
		WithTextCode(TextCode).
		WithMetadata(map[string]any{
			"process_id":  processID,
			"activity_id": activityID,
			"position":    position,
		})
	return &CompensationError{ActivityID: activityID, Err: wrapped, cause: err}
}
