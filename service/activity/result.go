package activity

import (
	"time"

	"github.com/viant/procflow/model/graph"
)

// Result is the outcome of one activity execution: *Completed, *Waiting or
// *Failed.
type Result interface {
	isResult()
}

// Completed carries the raw output, the variable updates to apply and the
// transitions to follow.
type Completed struct {
	Output    map[string]interface{}
	Variables map[string]interface{}
	Selected  []*graph.Transition
}

// Waiting parks the token until a task completes or a timer fires.
type Waiting struct {
	TaskID  string
	TimerID string
	At      time.Time
}

// Failed reports an execution error.
type Failed struct {
	Err error
}

func (*Completed) isResult() {}
func (*Waiting) isResult()   {}
func (*Failed) isResult()    {}
