package event

// Event names published by the engine and the timer scheduler.
const (
	TimerFired = "timer.fired"

	ProcessStarted    = "process.started"
	ProcessWaiting    = "process.waiting"
	ProcessCompleted  = "process.completed"
	ProcessFailed     = "process.failed"
	ProcessTerminated = "process.terminated"

	TaskCreated   = "task.created"
	TaskCompleted = "task.completed"

	// All subscribes to every event name.
	All = "*"
)

// TimerFiredPayload identifies the timer a fired event belongs to.
type TimerFiredPayload struct {
	ProcessID  string `json:"processId"`
	ActivityID string `json:"activityId"`
	TimerID    string `json:"timerId"`
}

// ProcessPayload describes a process lifecycle change.
type ProcessPayload struct {
	ProcessID  string `json:"processId"`
	WorkflowID string `json:"workflowId"`
	Status     string `json:"status"`
	Initiator  string `json:"initiator,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
}
