package dao

// Parameter is a named list filter.
type Parameter struct {
	Name  string
	Value interface{}
}

// NewParameter creates a filter; a single value is stored as string,
// several as []string.
func NewParameter(name string, values ...string) *Parameter {
	if len(values) == 1 {
		return &Parameter{Name: name, Value: values[0]}
	}
	return &Parameter{Name: name, Value: values}
}
