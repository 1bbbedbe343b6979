package nop

import (
	"context"
	"reflect"

	"github.com/viant/procflow/service/registry"
)

const Name = "nop"

// Service accepts any operation and returns its input unchanged.
type Service struct{}

func New() *Service {
	return &Service{}
}

func (s *Service) Name() string {
	return Name
}

func (s *Service) Methods() registry.Signatures {
	mapType := reflect.TypeOf(map[string]interface{}{})
	return registry.Signatures{{Name: "nop", Description: "returns input as output", Input: mapType, Output: mapType}}
}

// Method returns the echo executable for every name.
func (s *Service) Method(string) (registry.Executable, error) {
	return s.echo, nil
}

func (s *Service) echo(_ context.Context, in, out interface{}) error {
	input, ok := in.(*map[string]interface{})
	if !ok {
		return registry.NewInvalidInputError(in)
	}
	output, ok := out.(*map[string]interface{})
	if !ok {
		return registry.NewInvalidOutputError(out)
	}
	*output = *input
	return nil
}
