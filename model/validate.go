package model

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/viant/procflow/model/graph"
	"github.com/viant/procflow/model/state"
	"github.com/viant/procflow/runtime/evaluator"
)

// Validate performs structural validation of the workflow. The returned
// slice is empty when the workflow is sound; otherwise it lists every
// violation found. Expressions are parsed but never evaluated.
func (w *Workflow) Validate() []error {
	var issues []error
	add := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Errorf(format, args...))
	}
	checker := evaluator.New()
	if w.ID == "" {
		add("workflow id is empty")
	}
	if len(w.Activities) == 0 {
		add("workflow has no activities")
	}
	startKnown := false
	switch {
	case w.Start == "":
		add("missing start activity")
	case w.Activities[w.Start] == nil:
		add("start activity %s is not defined", w.Start)
	default:
		startKnown = true
	}
	if len(w.End) == 0 {
		add("missing end activity")
	}
	for _, end := range w.End {
		if w.Activities[end] == nil {
			add("end activity %s is not defined", end)
		}
	}

	w.Index()
	seen := map[string]bool{}
	for _, transition := range w.Transitions {
		if seen[transition.ID] {
			add("duplicate transition id %s", transition.ID)
		}
		seen[transition.ID] = true
		if w.Activities[transition.From] == nil {
			add("transition %s references unknown source activity %s", transition.ID, transition.From)
		}
		if w.Activities[transition.To] == nil {
			add("transition %s references unknown target activity %s", transition.ID, transition.To)
		}
		if transition.When != "" {
			if _, err := checker.Parse(transition.When); err != nil {
				add("transition %s: %v", transition.ID, err)
			}
		}
	}

	var reachable map[string]bool
	if startKnown {
		reachable = w.Reachable(w.Start)
	}
	for _, id := range w.activityIDs() {
		activity := w.Activities[id]
		if activity == nil {
			add("activity %s is nil", id)
			continue
		}
		if activity.ID != id {
			add("activity key %s does not match id %s", id, activity.ID)
		}
		isEnd := w.IsEnd(id)
		if id != w.Start && !isEnd && len(w.Incoming(id)) == 0 {
			add("activity %s has no incoming transition", id)
		}
		if !isEnd && len(w.Outgoing(id)) == 0 {
			add("activity %s has no outgoing transition and is not an end activity", id)
		}
		if startKnown && !reachable[id] {
			add("activity %s is unreachable from start %s", id, w.Start)
		}
		for _, err := range validateActivity(checker, activity) {
			issues = append(issues, fmt.Errorf("activity %s: %w", id, err))
		}
	}
	return issues
}

func (w *Workflow) activityIDs() []string {
	ids := make([]string, 0, len(w.Activities))
	for id := range w.Activities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validateActivity(checker *evaluator.Evaluator, activity *graph.Activity) []error {
	var issues []error
	add := func(format string, args ...interface{}) {
		issues = append(issues, fmt.Errorf(format, args...))
	}
	switch activity.Kind {
	case graph.KindService:
		if activity.Call == nil || activity.Call.Service == "" || activity.Call.Operation == "" {
			add("service activity requires service and operation")
		}
	case graph.KindUser:
		if activity.Task == nil {
			add("user activity requires task descriptor")
		}
	case graph.KindScript:
		if activity.Script == nil || strings.TrimSpace(activity.Script.Expression) == "" {
			add("script activity requires expression")
		} else if _, err := checker.Parse(activity.Script.Expression); err != nil {
			issues = append(issues, err)
		}
	case graph.KindTimer:
		switch {
		case activity.Timer == nil || (activity.Timer.Duration == "" && activity.Timer.Cron == ""):
			add("timer activity requires duration or cron")
		case activity.Timer.Duration != "":
			if _, err := time.ParseDuration(activity.Timer.Duration); err != nil {
				add("invalid timer duration %q: %v", activity.Timer.Duration, err)
			}
		default:
			if _, err := cron.ParseStandard(activity.Timer.Cron); err != nil {
				add("invalid cron expression %q: %v", activity.Timer.Cron, err)
			}
		}
	case graph.KindGateway:
		if !activity.Gateway.Valid() {
			add("unknown gateway kind %q", activity.Gateway)
		}
	default:
		add("unknown kind %q", activity.Kind)
	}
	if activity.Retries < 0 {
		add("retries cannot be negative")
	}
	if _, err := activity.TimeoutDuration(); err != nil {
		issues = append(issues, err)
	}
	if retry := activity.Retry; retry != nil {
		switch retry.Type {
		case "", "fixed", "exponential", "none":
		default:
			add("unknown retry type %q", retry.Type)
		}
		for _, value := range []string{retry.Delay, retry.MaxDelay} {
			if value == "" {
				continue
			}
			if _, err := time.ParseDuration(value); err != nil {
				add("invalid retry duration %q: %v", value, err)
			}
		}
	}
	issues = append(issues, validateMapping(checker, "input", activity.Input)...)
	issues = append(issues, validateMapping(checker, "output", activity.Output)...)
	if c := activity.Compensation; c != nil {
		switch c.Kind {
		case graph.CompensateService:
			if c.Service == "" || c.Operation == "" {
				add("service compensation requires service and operation")
			}
		case graph.CompensateScript:
			if _, err := checker.Parse(c.Script); err != nil {
				add("compensation: %v", err)
			}
		default:
			add("unknown compensation kind %q", c.Kind)
		}
	}
	return issues
}

func validateMapping(checker *evaluator.Evaluator, kind string, params state.Parameters) []error {
	var issues []error
	for _, param := range params {
		if param.Name == "" {
			issues = append(issues, fmt.Errorf("%s mapping with empty name", kind))
		}
		expr, ok := param.Value.(string)
		if !ok {
			continue
		}
		if _, err := checker.Parse(expr); err != nil {
			issues = append(issues, fmt.Errorf("%s mapping %s: %w", kind, param.Name, err))
		}
	}
	return issues
}
