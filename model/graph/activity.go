package graph

import (
	"fmt"
	"time"

	"github.com/viant/procflow/model/state"
)

// Kind is the closed set of activity kinds.
type Kind string

const (
	KindService Kind = "service"
	KindUser    Kind = "user"
	KindScript  Kind = "script"
	KindTimer   Kind = "timer"
	KindGateway Kind = "gateway"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindService, KindUser, KindScript, KindTimer, KindGateway:
		return true
	}
	return false
}

// GatewayKind controls token fan-out of a gateway activity.
type GatewayKind string

const (
	GatewayExclusive GatewayKind = "exclusive"
	GatewayParallel  GatewayKind = "parallel"
	GatewayInclusive GatewayKind = "inclusive"
)

// Valid reports whether g is a known gateway kind.
func (g GatewayKind) Valid() bool {
	switch g {
	case GatewayExclusive, GatewayParallel, GatewayInclusive:
		return true
	}
	return false
}

type (
	// ServiceCall describes an outbound call through the service registry.
	ServiceCall struct {
		Service   string `json:"service" yaml:"service"`
		Operation string `json:"operation" yaml:"operation"`
	}

	// UserTask describes a human task enqueued on the task queue.
	UserTask struct {
		Assignee        string   `json:"assignee,omitempty" yaml:"assignee,omitempty"`
		CandidateGroups []string `json:"candidateGroups,omitempty" yaml:"candidateGroups,omitempty"`
	}

	// Script is a sandboxed expression evaluated against variables and inputs.
	Script struct {
		Expression string `json:"expression" yaml:"expression"`
	}

	// Timer delays a token by a fixed duration or until the next cron tick.
	Timer struct {
		Duration string `json:"duration,omitempty" yaml:"duration,omitempty"`
		Cron     string `json:"cron,omitempty" yaml:"cron,omitempty"`
	}

	// Retry strategy for an activity
	Retry struct {
		Type       string  `json:"type,omitempty" yaml:"type,omitempty"` // fixed, exponential, none
		Delay      string  `json:"delay,omitempty" yaml:"delay,omitempty"`
		Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
		MaxDelay   string  `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
	}

	// Activity is a typed unit of work. Exactly one descriptor matching Kind
	// is set.
	Activity struct {
		ID           string           `json:"id" yaml:"id"`
		Name         string           `json:"name,omitempty" yaml:"name,omitempty"`
		Kind         Kind             `json:"kind" yaml:"kind"`
		Gateway      GatewayKind      `json:"gateway,omitempty" yaml:"gateway,omitempty"`
		Call         *ServiceCall     `json:"call,omitempty" yaml:"call,omitempty"`
		Task         *UserTask        `json:"task,omitempty" yaml:"task,omitempty"`
		Script       *Script          `json:"script,omitempty" yaml:"script,omitempty"`
		Timer        *Timer           `json:"timer,omitempty" yaml:"timer,omitempty"`
		Input        state.Parameters `json:"input,omitempty" yaml:"input,omitempty"`
		Output       state.Parameters `json:"output,omitempty" yaml:"output,omitempty"`
		Timeout      string           `json:"timeout,omitempty" yaml:"timeout,omitempty"`
		Retries      int              `json:"retries,omitempty" yaml:"retries,omitempty"`
		Retry        *Retry           `json:"retry,omitempty" yaml:"retry,omitempty"`
		Compensation *Compensation    `json:"compensation,omitempty" yaml:"compensation,omitempty"`
	}
)

// NewActivity creates an activity of the given kind.
func NewActivity(id string, kind Kind) *Activity {
	return &Activity{ID: id, Name: id, Kind: kind}
}

// NewService creates a service call activity.
func NewService(id, service, operation string) *Activity {
	return NewActivity(id, KindService).WithService(service, operation)
}

// NewUser creates a human task activity.
func NewUser(id, assignee string, candidateGroups ...string) *Activity {
	return NewActivity(id, KindUser).WithUserTask(assignee, candidateGroups...)
}

// NewScript creates a script activity.
func NewScript(id, expression string) *Activity {
	return NewActivity(id, KindScript).WithScript(expression)
}

// NewTimer creates a duration timer activity.
func NewTimer(id, duration string) *Activity {
	return NewActivity(id, KindTimer).WithTimer(duration)
}

// NewGateway creates a gateway activity.
func NewGateway(id string, kind GatewayKind) *Activity {
	return NewActivity(id, KindGateway).WithGateway(kind)
}

// WithName sets a display name.
func (a *Activity) WithName(name string) *Activity {
	a.Name = name
	return a
}

// WithService sets the service call descriptor.
func (a *Activity) WithService(service, operation string) *Activity {
	a.Call = &ServiceCall{Service: service, Operation: operation}
	return a
}

// WithUserTask sets the human task descriptor.
func (a *Activity) WithUserTask(assignee string, candidateGroups ...string) *Activity {
	a.Task = &UserTask{Assignee: assignee, CandidateGroups: candidateGroups}
	return a
}

// WithScript sets the script expression.
func (a *Activity) WithScript(expression string) *Activity {
	a.Script = &Script{Expression: expression}
	return a
}

// WithTimer sets a duration timer.
func (a *Activity) WithTimer(duration string) *Activity {
	a.Timer = &Timer{Duration: duration}
	return a
}

// WithCron sets a cron timer.
func (a *Activity) WithCron(expression string) *Activity {
	a.Timer = &Timer{Cron: expression}
	return a
}

// WithGateway sets the gateway kind.
func (a *Activity) WithGateway(kind GatewayKind) *Activity {
	a.Gateway = kind
	return a
}

// WithInput adds an input mapping: param name -> expression over variables.
func (a *Activity) WithInput(name, expression string) *Activity {
	a.Input.Add(name, expression)
	return a
}

// WithOutput adds an output mapping: variable name -> expression over result.
func (a *Activity) WithOutput(name, expression string) *Activity {
	a.Output.Add(name, expression)
	return a
}

// WithTimeout sets the activity timeout.
func (a *Activity) WithTimeout(timeout time.Duration) *Activity {
	a.Timeout = timeout.String()
	return a
}

// WithRetries sets the number of retries after the first failed attempt.
func (a *Activity) WithRetries(retries int) *Activity {
	a.Retries = retries
	return a
}

// WithRetry sets the retry delay strategy.
func (a *Activity) WithRetry(retry *Retry) *Activity {
	a.Retry = retry
	return a
}

// WithCompensation sets the compensation descriptor.
func (a *Activity) WithCompensation(compensation *Compensation) *Activity {
	a.Compensation = compensation
	return a
}

// IsGateway reports whether a is a gateway of the given kind.
func (a *Activity) IsGateway(kind GatewayKind) bool {
	return a.Kind == KindGateway && a.Gateway == kind
}

// TimeoutDuration returns the parsed timeout or zero.
func (a *Activity) TimeoutDuration() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("activity %s: invalid timeout %q: %w", a.ID, a.Timeout, err)
	}
	return d, nil
}

// Clone creates a deep copy of an activity
func (a *Activity) Clone() *Activity {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Call != nil {
		call := *a.Call
		clone.Call = &call
	}
	if a.Task != nil {
		task := *a.Task
		task.CandidateGroups = append([]string(nil), a.Task.CandidateGroups...)
		clone.Task = &task
	}
	if a.Script != nil {
		script := *a.Script
		clone.Script = &script
	}
	if a.Timer != nil {
		timer := *a.Timer
		clone.Timer = &timer
	}
	if a.Retry != nil {
		retry := *a.Retry
		clone.Retry = &retry
	}
	clone.Input = a.Input.Clone()
	clone.Output = a.Output.Clone()
	clone.Compensation = a.Compensation.Clone()
	return &clone
}
