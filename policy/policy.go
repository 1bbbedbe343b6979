package policy

import (
	"context"
	"fmt"
	"strings"
)

// Modes.
const (
	ModeAuto = "auto"
	ModeAsk  = "ask"
	ModeDeny = "deny"
)

// AskFunc approves a single call when Mode is ask.
type AskFunc func(ctx context.Context, action string, params map[string]interface{}, p *Policy) bool

// Policy is an allow/block list over "service.operation" action names.
// Entries match case-insensitively; "service.*" matches every operation of
// a service.
type Policy struct {
	Mode      string
	AllowList []string
	BlockList []string
	Ask       AskFunc
}

// Config is the serialisable part of a Policy.
type Config struct {
	Mode      string   `json:"mode,omitempty" yaml:"mode,omitempty"`
	AllowList []string `json:"allow,omitempty" yaml:"allow,omitempty"`
	BlockList []string `json:"block,omitempty" yaml:"block,omitempty"`
}

// FromConfig builds a Policy; nil config yields nil.
func FromConfig(c *Config) *Policy {
	if c == nil {
		return nil
	}
	return &Policy{
		Mode:      c.Mode,
		AllowList: append([]string(nil), c.AllowList...),
		BlockList: append([]string(nil), c.BlockList...),
	}
}

// Validate reports an unknown mode.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	switch c.Mode {
	case "", ModeAuto, ModeAsk, ModeDeny:
		return nil
	}
	return fmt.Errorf("policy: unknown mode %q", c.Mode)
}

// Action formats the name matched by the lists.
func Action(service, operation string) string {
	return service + "." + operation
}

// DeniedError is returned by Check for a rejected call.
type DeniedError struct {
	Action string
	Reason string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("policy: %s denied: %s", e.Action, e.Reason)
}

// IsAllowed evaluates the lists only; the block list wins.
func (p *Policy) IsAllowed(action string) bool {
	if p == nil {
		return true
	}
	if matchAny(p.BlockList, action) {
		return false
	}
	return len(p.AllowList) == 0 || matchAny(p.AllowList, action)
}

// Check applies the lists and the mode to a call.
func (p *Policy) Check(ctx context.Context, action string, params map[string]interface{}) error {
	if p == nil {
		return nil
	}
	if !p.IsAllowed(action) {
		return &DeniedError{Action: action, Reason: "not allowed"}
	}
	switch p.Mode {
	case ModeDeny:
		return &DeniedError{Action: action, Reason: "mode deny"}
	case ModeAsk:
		if p.Ask == nil || !p.Ask(ctx, action, params, p) {
			return &DeniedError{Action: action, Reason: "not approved"}
		}
	}
	return nil
}

func matchAny(patterns []string, action string) bool {
	action = strings.ToLower(action)
	for _, pattern := range patterns {
		pattern = strings.ToLower(pattern)
		if pattern == action {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, "*"); ok && strings.HasPrefix(action, prefix) {
			return true
		}
	}
	return false
}

type contextKey struct{}

// WithPolicy embeds p in ctx; it overrides the registry policy for calls
// made with that context.
func WithPolicy(ctx context.Context, p *Policy) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// FromContext returns the embedded policy or nil.
func FromContext(ctx context.Context) *Policy {
	if p, ok := ctx.Value(contextKey{}).(*Policy); ok {
		return p
	}
	return nil
}
