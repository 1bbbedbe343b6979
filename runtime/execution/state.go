package execution

// Status represents the lifecycle state of a process instance.
type Status string

const (
	StatusRunning    Status = "running"
	StatusWaiting    Status = "waiting"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusTerminated:
		return true
	}
	return false
}

// IsActive reports whether the instance is running or waiting.
func (s Status) IsActive() bool {
	return s == StatusRunning || s == StatusWaiting
}
