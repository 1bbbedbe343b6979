package log

const (
	NamespaceKey = "procflow"

	InstanceIDKey   = NamespaceKey + ".instance.id"
	WorkflowIDKey   = NamespaceKey + ".workflow.id"
	ActivityIDKey   = NamespaceKey + ".activity.id"
	ActivityKindKey = NamespaceKey + ".activity.kind"
	TokenIDKey      = NamespaceKey + ".token.id"
	TaskIDKey       = NamespaceKey + ".task.id"
	TimerIDKey      = NamespaceKey + ".timer.id"
	StatusKey       = NamespaceKey + ".status"

	EventNameKey = NamespaceKey + ".event.name"

	AttemptKey   = NamespaceKey + ".attempt"
	RemainingKey = NamespaceKey + ".retry.remaining"
	DelayKey     = NamespaceKey + ".retry.delay"
	DurationKey  = NamespaceKey + ".duration_ms"

	// AtKey is the time at which a timer is scheduled to fire
	AtKey = NamespaceKey + ".timer.at"
)
