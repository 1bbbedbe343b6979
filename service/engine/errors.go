package engine

import "errors"

var (
	ErrWorkflowNotFound  = errors.New("workflow not found")
	ErrDuplicateWorkflow = errors.New("workflow already registered")
	ErrProcessNotFound   = errors.New("process not found")
	ErrProcessTerminal   = errors.New("process already finished")
	// ErrProcessActive is returned by Cleanup for running or waiting instances.
	ErrProcessActive = errors.New("process is still active")
	ErrNotStarted    = errors.New("engine is not started")
)
