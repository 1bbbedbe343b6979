package workflow

import (
	"fmt"
	"strings"

	"github.com/viant/procflow/internal/yml"
	"github.com/viant/procflow/model"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/model/state"
	"gopkg.in/yaml.v3"
)

func parseWorkflow(node *yml.Node, workflow *model.Workflow) error {
	var deferred []*pendingTransition
	err := node.Pairs(func(key string, value *yml.Node) error {
		switch strings.ToLower(key) {
		case "id":
			workflow.ID = value.String()
		case "name":
			workflow.Name = value.String()
		case "version":
			workflow.Version = value.String()
		case "description":
			workflow.Description = value.String()
		case "start":
			workflow.Start = value.String()
		case "end":
			workflow.End = value.Strings()
		case "variables":
			variables, err := parseValues(value)
			if err != nil {
				return fmt.Errorf("variables: %w", err)
			}
			workflow.Variables = variables
		case "activities":
			next, err := parseActivities(value, workflow)
			if err != nil {
				return err
			}
			deferred = append(deferred, next...)
		case "transitions":
			return value.Items(func(_ int, item *yml.Node) error {
				transition, err := parseTransition("", item)
				if err != nil {
					return err
				}
				workflow.AddTransition(transition.from, transition.to, transition.when)
				return nil
			})
		default:
			return fmt.Errorf("line %d: unsupported workflow attribute %q", value.Line, key)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, transition := range deferred {
		workflow.AddTransition(transition.from, transition.to, transition.when)
	}
	return nil
}

// parseActivities accepts a mapping keyed by activity id or a sequence of
// mappings with an id attribute. Inline "next" transitions are returned so
// they follow the explicit transitions list in declared order.
func parseActivities(node *yml.Node, workflow *model.Workflow) ([]*pendingTransition, error) {
	var deferred []*pendingTransition
	add := func(id string, item *yml.Node) error {
		activity, next, err := parseActivity(id, item)
		if err != nil {
			return fmt.Errorf("activity %s: %w", id, err)
		}
		if _, ok := workflow.Activities[activity.ID]; ok {
			return fmt.Errorf("line %d: duplicate activity %s", item.Line, activity.ID)
		}
		workflow.AddActivity(activity)
		deferred = append(deferred, next...)
		return nil
	}
	switch node.Kind {
	case yaml.MappingNode:
		return deferred, node.Pairs(add)
	case yaml.SequenceNode:
		return deferred, node.Items(func(_ int, item *yml.Node) error {
			return add(item.Lookup("id").String(), item)
		})
	}
	return nil, fmt.Errorf("line %d: activities should be a mapping or a sequence", node.Line)
}

func parseActivity(id string, node *yml.Node) (*graph.Activity, []*pendingTransition, error) {
	if node.Kind != yaml.MappingNode {
		return nil, nil, fmt.Errorf("line %d: activity should be a mapping", node.Line)
	}
	activity := graph.NewActivity(id, "")
	var next []*pendingTransition
	err := node.Pairs(func(key string, value *yml.Node) error {
		var err error
		switch strings.ToLower(key) {
		case "id":
			activity.ID = value.String()
		case "name":
			activity.Name = value.String()
		case "kind", "type":
			activity.Kind = graph.Kind(strings.ToLower(value.String()))
		case "gateway":
			activity.Gateway = graph.GatewayKind(strings.ToLower(value.String()))
		case "call":
			service, operation, _ := strings.Cut(value.String(), ":")
			activity.WithService(service, operation)
		case "service":
			callOf(activity).Service = value.String()
		case "operation", "method":
			callOf(activity).Operation = value.String()
		case "assignee":
			taskOf(activity).Assignee = value.String()
		case "candidategroups", "groups":
			taskOf(activity).CandidateGroups = value.Strings()
		case "script", "expression":
			activity.WithScript(value.String())
		case "duration":
			timerOf(activity).Duration = value.String()
		case "cron":
			timerOf(activity).Cron = value.String()
		case "input":
			activity.Input, err = parseValues(value)
		case "output":
			activity.Output, err = parseValues(value)
		case "timeout":
			activity.Timeout = value.String()
		case "retries":
			activity.Retries, err = value.Int()
		case "retry":
			activity.Retry, err = parseRetry(value)
		case "compensation":
			activity.Compensation, err = parseCompensation(value)
		case "next":
			next, err = parseNext(activity, value)
		default:
			err = fmt.Errorf("line %d: unsupported activity attribute %q", value.Line, key)
		}
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if activity.Name == "" {
		activity.Name = activity.ID
	}
	for _, transition := range next {
		transition.from = activity.ID
	}
	return activity, next, nil
}

func callOf(activity *graph.Activity) *graph.ServiceCall {
	if activity.Call == nil {
		activity.Call = &graph.ServiceCall{}
	}
	return activity.Call
}

func taskOf(activity *graph.Activity) *graph.UserTask {
	if activity.Task == nil {
		activity.Task = &graph.UserTask{}
	}
	return activity.Task
}

func timerOf(activity *graph.Activity) *graph.Timer {
	if activity.Timer == nil {
		activity.Timer = &graph.Timer{}
	}
	return activity.Timer
}

func parseRetry(node *yml.Node) (*graph.Retry, error) {
	retry := &graph.Retry{}
	if node.Kind == yaml.ScalarNode {
		retry.Type = node.String()
		return retry, nil
	}
	err := node.Pairs(func(key string, value *yml.Node) error {
		var err error
		switch strings.ToLower(key) {
		case "type":
			retry.Type = value.String()
		case "delay":
			retry.Delay = value.String()
		case "multiplier":
			retry.Multiplier, err = value.Float()
		case "maxdelay":
			retry.MaxDelay = value.String()
		default:
			err = fmt.Errorf("line %d: unsupported retry attribute %q", value.Line, key)
		}
		return err
	})
	return retry, err
}

func parseCompensation(node *yml.Node) (*graph.Compensation, error) {
	compensation := &graph.Compensation{}
	err := node.Pairs(func(key string, value *yml.Node) error {
		switch strings.ToLower(key) {
		case "kind", "type":
			compensation.Kind = graph.CompensationKind(strings.ToLower(value.String()))
		case "service":
			compensation.Service = value.String()
		case "operation", "method":
			compensation.Operation = value.String()
		case "script":
			compensation.Script = value.String()
		case "params":
			params, ok := value.Interface().(map[string]interface{})
			if !ok {
				return fmt.Errorf("line %d: compensation params should be a mapping", value.Line)
			}
			compensation.Params = params
		default:
			return fmt.Errorf("line %d: unsupported compensation attribute %q", value.Line, key)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if compensation.Kind == "" {
		compensation.Kind = graph.CompensateService
		if compensation.Script != "" {
			compensation.Kind = graph.CompensateScript
		}
	}
	return compensation, nil
}

type pendingTransition struct {
	from string
	to   string
	when string
}

// parseNext accepts "b", [b, c] or [{to: b, when: ...}].
func parseNext(activity *graph.Activity, node *yml.Node) ([]*pendingTransition, error) {
	if node.Kind == yaml.ScalarNode {
		var result []*pendingTransition
		for _, to := range node.Strings() {
			result = append(result, &pendingTransition{to: to})
		}
		return result, nil
	}
	var result []*pendingTransition
	err := node.Items(func(_ int, item *yml.Node) error {
		transition, err := parseTransition(activity.ID, item)
		if err != nil {
			return err
		}
		result = append(result, transition)
		return nil
	})
	return result, err
}

func parseTransition(from string, node *yml.Node) (*pendingTransition, error) {
	transition := &pendingTransition{from: from}
	if node.Kind == yaml.ScalarNode {
		transition.to = node.String()
		return transition, nil
	}
	err := node.Pairs(func(key string, value *yml.Node) error {
		switch strings.ToLower(key) {
		case "from":
			transition.from = value.String()
		case "to":
			transition.to = value.String()
		case "when", "condition":
			transition.when = value.String()
		default:
			return fmt.Errorf("line %d: unsupported transition attribute %q", value.Line, key)
		}
		return nil
	})
	return transition, err
}

// parseValues keeps mapping order; scalars keep their YAML type.
func parseValues(node *yml.Node) (state.Parameters, error) {
	var params state.Parameters
	err := node.Pairs(func(key string, value *yml.Node) error {
		params.Add(key, value.Interface())
		return nil
	})
	return params, err
}
