package model

import (
	"fmt"

	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/model/state"
)

// Workflow represents a workflow definition: a graph of activities connected
// by ordered transitions.
type Workflow struct {
	// Source provides information about the origin of the workflow
	Source *Source `json:"source,omitempty" yaml:"source,omitempty"`

	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Version     string `json:"version,omitempty" yaml:"version,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Start string   `json:"start" yaml:"start"`
	End   []string `json:"end" yaml:"end"`

	Activities  map[string]*graph.Activity `json:"activities" yaml:"activities"`
	Transitions []*graph.Transition        `json:"transitions" yaml:"transitions"`

	// Variables are default bindings overlaid by process inputs.
	Variables state.Parameters `json:"variables,omitempty" yaml:"variables,omitempty"`

	outgoing map[string][]*graph.Transition
	incoming map[string][]*graph.Transition
}

type Source struct {
	URL string `json:"url,omitempty" yaml:"url,omitempty"`
}

// NewWorkflow creates a new workflow with the given id
func NewWorkflow(id string) *Workflow {
	return &Workflow{
		ID:         id,
		Name:       id,
		Activities: make(map[string]*graph.Activity),
	}
}

// WithName sets the display name of the workflow
func (w *Workflow) WithName(name string) *Workflow {
	w.Name = name
	return w
}

// WithDescription sets the description of the workflow
func (w *Workflow) WithDescription(description string) *Workflow {
	w.Description = description
	return w
}

// WithVersion sets the version of the workflow
func (w *Workflow) WithVersion(version string) *Workflow {
	w.Version = version
	return w
}

// WithVariable adds a default variable binding
func (w *Workflow) WithVariable(name string, value interface{}) *Workflow {
	w.Variables.Add(name, value)
	return w
}

// WithStart sets the start activity id
func (w *Workflow) WithStart(id string) *Workflow {
	w.Start = id
	return w
}

// WithEnd adds end activity ids
func (w *Workflow) WithEnd(ids ...string) *Workflow {
	w.End = append(w.End, ids...)
	return w
}

// AddActivity adds activities to the workflow
func (w *Workflow) AddActivity(activities ...*graph.Activity) *Workflow {
	if w.Activities == nil {
		w.Activities = make(map[string]*graph.Activity)
	}
	for _, activity := range activities {
		w.Activities[activity.ID] = activity
	}
	w.outgoing, w.incoming = nil, nil
	return w
}

// NewActivity creates an activity and adds it to the workflow
func (w *Workflow) NewActivity(id string, kind graph.Kind) *graph.Activity {
	activity := graph.NewActivity(id, kind)
	w.AddActivity(activity)
	return activity
}

// AddTransition appends a transition; declaration order is evaluation order.
func (w *Workflow) AddTransition(from, to, when string) *graph.Transition {
	transition := &graph.Transition{
		ID:   fmt.Sprintf("%s->%s#%d", from, to, len(w.Transitions)+1),
		From: from,
		To:   to,
		When: when,
	}
	w.Transitions = append(w.Transitions, transition)
	w.outgoing, w.incoming = nil, nil
	return transition
}

// Connect adds unconditional transitions along a chain of activity ids.
func (w *Workflow) Connect(ids ...string) *Workflow {
	for i := 1; i < len(ids); i++ {
		w.AddTransition(ids[i-1], ids[i], "")
	}
	return w
}

// Key returns the registration key id@version.
func (w *Workflow) Key() string {
	return Key(w.ID, w.Version)
}

// Key builds a workflow registration key.
func Key(id, version string) string {
	if version == "" {
		return id
	}
	return id + "@" + version
}

// Activity returns an activity by id.
func (w *Workflow) Activity(id string) (*graph.Activity, bool) {
	activity, ok := w.Activities[id]
	return activity, ok
}

// IsEnd reports whether id is an end activity.
func (w *Workflow) IsEnd(id string) bool {
	for _, end := range w.End {
		if end == id {
			return true
		}
	}
	return false
}

// Index builds the outgoing/incoming transition lookups. It must be called
// before the workflow is shared between goroutines.
func (w *Workflow) Index() {
	w.outgoing = make(map[string][]*graph.Transition)
	w.incoming = make(map[string][]*graph.Transition)
	for i, transition := range w.Transitions {
		if transition.ID == "" {
			transition.ID = fmt.Sprintf("%s->%s#%d", transition.From, transition.To, i+1)
		}
		w.outgoing[transition.From] = append(w.outgoing[transition.From], transition)
		w.incoming[transition.To] = append(w.incoming[transition.To], transition)
	}
}

// Outgoing returns transitions leaving id in declaration order.
func (w *Workflow) Outgoing(id string) []*graph.Transition {
	if w.outgoing == nil {
		w.Index()
	}
	return w.outgoing[id]
}

// Incoming returns transitions entering id in declaration order.
func (w *Workflow) Incoming(id string) []*graph.Transition {
	if w.incoming == nil {
		w.Index()
	}
	return w.incoming[id]
}

// Reachable returns activity ids reachable from the given activity
// (inclusive).
func (w *Workflow) Reachable(from string) map[string]bool {
	visited := map[string]bool{}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if visited[current] {
			continue
		}
		visited[current] = true
		for _, transition := range w.Outgoing(current) {
			if !visited[transition.To] {
				queue = append(queue, transition.To)
			}
		}
	}
	return visited
}

// Defaults returns default variable bindings.
func (w *Workflow) Defaults() map[string]interface{} {
	return w.Variables.ToMap()
}

// RetryBudget returns activity id -> retry count for activities that retry.
func (w *Workflow) RetryBudget() map[string]int {
	result := make(map[string]int)
	for id, activity := range w.Activities {
		if activity.Retries > 0 {
			result[id] = activity.Retries
		}
	}
	return result
}

// Clone creates a deep copy of the workflow
func (w *Workflow) Clone() *Workflow {
	if w == nil {
		return nil
	}
	clone := &Workflow{
		ID:          w.ID,
		Name:        w.Name,
		Version:     w.Version,
		Description: w.Description,
		Start:       w.Start,
		End:         append([]string(nil), w.End...),
		Variables:   w.Variables.Clone(),
		Activities:  make(map[string]*graph.Activity, len(w.Activities)),
	}
	if w.Source != nil {
		source := *w.Source
		clone.Source = &source
	}
	for id, activity := range w.Activities {
		clone.Activities[id] = activity.Clone()
	}
	for _, transition := range w.Transitions {
		t := *transition
		clone.Transitions = append(clone.Transitions, &t)
	}
	return clone
}
