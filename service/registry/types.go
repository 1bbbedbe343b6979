package registry

import (
	"context"
	"reflect"
	"time"
)

// Signature describes one operation of a typed service.
type Signature struct {
	Name        string
	Description string
	Input       reflect.Type
	Output      reflect.Type
}

type Signatures []Signature

// Lookup returns the named signature or nil.
func (s Signatures) Lookup(name string) *Signature {
	for i := range s {
		if s[i].Name == name {
			return &s[i]
		}
	}
	return nil
}

// Executable runs an operation; input and output are pointers of the
// signature types.
type Executable func(ctx context.Context, input, output interface{}) error

// Service is a named set of typed operations hosted by the local registry.
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}

// Registry dispatches service calls made by service activities and
// compensations.
type Registry interface {
	CallService(ctx context.Context, service, operation string, params map[string]interface{}, timeout time.Duration) (map[string]interface{}, error)
}
