package graph

// Transition connects two activities. An empty When is unconditional.
type Transition struct {
	ID   string `json:"id,omitempty" yaml:"id,omitempty"`
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
	When string `json:"when,omitempty" yaml:"when,omitempty"`
}

// IsDefault reports whether the transition has no condition.
func (t *Transition) IsDefault() bool {
	return t.When == ""
}
