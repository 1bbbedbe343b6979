package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync"

	"github.com/viant/procflow/service/registry"
)

const Name = "printer"

type Input struct {
	Message string `json:"message"`
}

type Output struct {
	Printed int `json:"printed"`
}

// Service writes messages to a writer, stdout by default.
type Service struct {
	mu     sync.Mutex
	writer io.Writer
}

func New(writer io.Writer) *Service {
	if writer == nil {
		writer = os.Stdout
	}
	return &Service{writer: writer}
}

func (s *Service) Name() string {
	return Name
}

func (s *Service) Methods() registry.Signatures {
	return registry.Signatures{
		{
			Name:        "print",
			Description: "writes message followed by a new line",
			Input:       reflect.TypeOf(&Input{}),
			Output:      reflect.TypeOf(&Output{}),
		},
	}
}

func (s *Service) Method(name string) (registry.Executable, error) {
	switch strings.ToLower(name) {
	case "print":
		return s.print, nil
	}
	return nil, &registry.OperationNotFoundError{Service: Name, Operation: name}
}

func (s *Service) print(_ context.Context, in, out interface{}) error {
	input, ok := in.(*Input)
	if !ok {
		return registry.NewInvalidInputError(in)
	}
	output, ok := out.(*Output)
	if !ok {
		return registry.NewInvalidOutputError(out)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := fmt.Fprintln(s.writer, input.Message)
	output.Printed = n
	return err
}
