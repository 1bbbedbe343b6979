package graph

// CompensationKind selects how a compensating action is executed.
type CompensationKind string

const (
	CompensateService CompensationKind = "service"
	CompensateScript  CompensationKind = "script"
)

// Compensation describes the action undoing a completed activity.
type Compensation struct {
	Kind      CompensationKind       `json:"kind" yaml:"kind"`
	Service   string                 `json:"service,omitempty" yaml:"service,omitempty"`
	Operation string                 `json:"operation,omitempty" yaml:"operation,omitempty"`
	Script    string                 `json:"script,omitempty" yaml:"script,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// CompensateWithService returns a service compensation descriptor.
func CompensateWithService(service, operation string, params map[string]interface{}) *Compensation {
	return &Compensation{Kind: CompensateService, Service: service, Operation: operation, Params: params}
}

// CompensateWithScript returns a script compensation descriptor.
func CompensateWithScript(script string) *Compensation {
	return &Compensation{Kind: CompensateScript, Script: script}
}

// Clone returns a copy with its own params map.
func (c *Compensation) Clone() *Compensation {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Params != nil {
		clone.Params = make(map[string]interface{}, len(c.Params))
		for k, v := range c.Params {
			clone.Params[k] = v
		}
	}
	return &clone
}
