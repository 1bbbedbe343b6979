package state

import "sort"

// Parameter represents a named value or expression.
type Parameter struct {
	Name  string      `json:"name" yaml:"name"`
	Value interface{} `json:"value" yaml:"value"`
}

// Parameters is an ordered collection of named values. Order is significant
// for input/output mappings: later entries observe earlier assignments.
type Parameters []*Parameter

// Add appends a parameter to the collection
func (p *Parameters) Add(name string, value interface{}) {
	*p = append(*p, &Parameter{Name: name, Value: value})
}

// Get retrieves a parameter by name
func (p Parameters) Get(name string) (*Parameter, bool) {
	for _, param := range p {
		if param.Name == name {
			return param, true
		}
	}
	return nil, false
}

// Names returns parameter names in declaration order.
func (p Parameters) Names() []string {
	result := make([]string, 0, len(p))
	for _, param := range p {
		result = append(result, param.Name)
	}
	return result
}

// ToMap converts Parameters to a map
func (p Parameters) ToMap() map[string]interface{} {
	result := make(map[string]interface{}, len(p))
	for _, param := range p {
		result[param.Name] = param.Value
	}
	return result
}

// Clone returns a shallow copy of each parameter.
func (p Parameters) Clone() Parameters {
	if p == nil {
		return nil
	}
	result := make(Parameters, 0, len(p))
	for _, param := range p {
		clone := *param
		result = append(result, &clone)
	}
	return result
}

// FromMap creates Parameters from a map, ordered by name.
func FromMap(m map[string]interface{}) Parameters {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	params := make(Parameters, 0, len(m))
	for _, name := range names {
		params = append(params, &Parameter{Name: name, Value: m[name]})
	}
	return params
}
