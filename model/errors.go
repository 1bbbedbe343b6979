package model

import (
	"fmt"
	"strings"
)

// InvalidDefinitionError lists every structural problem of a workflow.
type InvalidDefinitionError struct {
	WorkflowID string
	Issues     []error
}

func (e *InvalidDefinitionError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, issue.Error())
	}
	return fmt.Sprintf("invalid workflow %s: %s", e.WorkflowID, strings.Join(messages, "; "))
}

// Unwrap exposes individual issues to errors.Is/As.
func (e *InvalidDefinitionError) Unwrap() []error {
	return e.Issues
}

// Check validates w and returns *InvalidDefinitionError when it is unsound.
func (w *Workflow) Check() error {
	if issues := w.Validate(); len(issues) > 0 {
		return &InvalidDefinitionError{WorkflowID: w.ID, Issues: issues}
	}
	return nil
}
