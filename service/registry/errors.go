package registry

import "fmt"

// ServiceNotFoundError is returned for an unregistered service.
type ServiceNotFoundError struct {
	Service string
}

func (e *ServiceNotFoundError) Error() string {
	return fmt.Sprintf("service %s not found", e.Service)
}

// OperationNotFoundError is returned for an unknown operation.
type OperationNotFoundError struct {
	Service   string
	Operation string
}

func (e *OperationNotFoundError) Error() string {
	return fmt.Sprintf("operation %s not found in service %s", e.Operation, e.Service)
}

// NewInvalidInputError reports an unexpected input type inside an Executable.
func NewInvalidInputError(in interface{}) error {
	return fmt.Errorf("invalid input %T", in)
}

// NewInvalidOutputError reports an unexpected output type inside an Executable.
func NewInvalidOutputError(out interface{}) error {
	return fmt.Errorf("invalid output %T", out)
}
