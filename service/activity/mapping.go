package activity

import (
	"fmt"

	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/model/state"
)

// ResultKey names the raw result in output mapping and script environments.
const ResultKey = "result"

// MapInput evaluates the input mapping against variables. String values are
// expressions; other values are literals. Without a mapping the call
// receives no parameters.
func (e *Executor) MapInput(activity *graph.Activity, variables map[string]interface{}) (map[string]interface{}, error) {
	return e.mapParameters("input", activity.Input, variables)
}

// MapOutput returns the variable updates for output. Without an output
// mapping every output field becomes a variable; otherwise each mapping
// expression is evaluated against variables, the output fields and result.
func (e *Executor) MapOutput(activity *graph.Activity, variables, output map[string]interface{}) (map[string]interface{}, error) {
	if len(activity.Output) == 0 {
		updates := make(map[string]interface{}, len(output))
		for k, v := range output {
			updates[k] = v
		}
		return updates, nil
	}
	env := make(map[string]interface{}, len(variables)+len(output)+1)
	for k, v := range variables {
		env[k] = v
	}
	for k, v := range output {
		env[k] = v
	}
	env[ResultKey] = output
	return e.mapParameters("output", activity.Output, env)
}

func (e *Executor) mapParameters(kind string, params state.Parameters, env map[string]interface{}) (map[string]interface{}, error) {
	result := make(map[string]interface{}, len(params))
	for _, param := range params {
		expr, ok := param.Value.(string)
		if !ok {
			result[param.Name] = param.Value
			continue
		}
		value, err := e.evaluator.Evaluate(expr, env)
		if err != nil {
			return nil, fmt.Errorf("%s mapping %s: %w", kind, param.Name, err)
		}
		result[param.Name] = value
	}
	return result, nil
}
