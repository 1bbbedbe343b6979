package registry

import (
	"context"
	"reflect"
	"sort"
	"sync"
)

// Func is an untyped operation over parameter maps.
type Func func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error)

var mapType = reflect.TypeOf(map[string]interface{}{})

// FuncService groups Func operations under a service name.
type FuncService struct {
	name       string
	mu         sync.RWMutex
	operations map[string]Func
}

// NewFuncService creates an empty function service.
func NewFuncService(name string) *FuncService {
	return &FuncService{name: name, operations: map[string]Func{}}
}

// With adds or replaces an operation.
func (s *FuncService) With(operation string, fn Func) *FuncService {
	s.mu.Lock()
	s.operations[operation] = fn
	s.mu.Unlock()
	return s
}

func (s *FuncService) Name() string {
	return s.name
}

func (s *FuncService) Methods() Signatures {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(Signatures, 0, len(s.operations))
	for name := range s.operations {
		result = append(result, Signature{Name: name, Input: mapType, Output: mapType})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

func (s *FuncService) Method(name string) (Executable, error) {
	s.mu.RLock()
	fn, ok := s.operations[name]
	s.mu.RUnlock()
	if !ok {
		return nil, &OperationNotFoundError{Service: s.name, Operation: name}
	}
	return func(ctx context.Context, input, output interface{}) error {
		in, ok := input.(*map[string]interface{})
		if !ok {
			return NewInvalidInputError(input)
		}
		out, ok := output.(*map[string]interface{})
		if !ok {
			return NewInvalidOutputError(output)
		}
		result, err := fn(ctx, *in)
		if err != nil {
			return err
		}
		*out = result
		return nil
	}, nil
}
