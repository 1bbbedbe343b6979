package activity

import (
	"github.com/viant/procflow/model/graph"
)

// Route selects the outgoing transitions to follow after activity completes.
// Parallel gateways take every transition, inclusive gateways every true
// one, everything else the first true one in declared order. An activity
// without outgoing transitions selects nothing.
func (e *Executor) Route(activity *graph.Activity, outgoing []*graph.Transition, variables map[string]interface{}) ([]*graph.Transition, error) {
	if len(outgoing) == 0 {
		return nil, nil
	}
	if activity.IsGateway(graph.GatewayParallel) {
		return append([]*graph.Transition(nil), outgoing...), nil
	}
	inclusive := activity.IsGateway(graph.GatewayInclusive)
	var selected []*graph.Transition
	for _, transition := range outgoing {
		ok, err := e.evaluator.Condition(transition.When, variables)
		if err != nil {
			return nil, &ConditionError{ActivityID: activity.ID, TransitionID: transition.ID, Err: err}
		}
		if !ok {
			continue
		}
		selected = append(selected, transition)
		if !inclusive {
			break
		}
	}
	if len(selected) == 0 {
		return nil, &NoMatchingTransitionError{ActivityID: activity.ID}
	}
	return selected, nil
}
