package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/viant/procflow/policy"
	"github.com/viant/structology/conv"
)

// Option customises a Local registry.
type Option func(*Local)

// WithPolicy checks every call against p unless the call context carries
// its own policy.
func WithPolicy(p *policy.Policy) Option {
	return func(l *Local) { l.policy = p }
}

// Local hosts services in process.
type Local struct {
	mu        sync.RWMutex
	services  map[string]Service
	converter *conv.Converter
	policy    *policy.Policy
}

// NewLocal creates an empty local registry.
func NewLocal(opts ...Option) *Local {
	options := conv.DefaultOptions()
	options.ClonePointerData = true
	options.IgnoreUnmapped = true
	ret := &Local{
		services:  map[string]Service{},
		converter: conv.NewConverter(options),
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

// Register adds or replaces services by name.
func (l *Local) Register(services ...Service) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, service := range services {
		l.services[service.Name()] = service
	}
	return l
}

// RegisterFunc adds a single Func operation, creating the function service
// when needed.
func (l *Local) RegisterFunc(service, operation string, fn Func) *Local {
	l.mu.Lock()
	defer l.mu.Unlock()
	funcService, ok := l.services[service].(*FuncService)
	if !ok {
		funcService = NewFuncService(service)
		l.services[service] = funcService
	}
	funcService.With(operation, fn)
	return l
}

// Lookup returns a registered service.
func (l *Local) Lookup(name string) (Service, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	service, ok := l.services[name]
	return service, ok
}

// Names lists registered services.
func (l *Local) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	names := make([]string, 0, len(l.services))
	for name := range l.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallService converts params into the operation input type, runs it with
// the timeout (zero means none) and returns the output as a map.
func (l *Local) CallService(ctx context.Context, serviceName, operation string, params map[string]interface{}, timeout time.Duration) (map[string]interface{}, error) {
	active := policy.FromContext(ctx)
	if active == nil {
		active = l.policy
	}
	if err := active.Check(ctx, policy.Action(serviceName, operation), params); err != nil {
		return nil, err
	}
	service, ok := l.Lookup(serviceName)
	if !ok {
		return nil, &ServiceNotFoundError{Service: serviceName}
	}
	method, err := service.Method(operation)
	if err != nil {
		return nil, &OperationNotFoundError{Service: serviceName, Operation: operation}
	}
	signature := service.Methods().Lookup(operation)
	if signature == nil {
		signature = &Signature{Name: operation, Input: mapType, Output: mapType}
	}
	input, err := l.input(signature.Input, params)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid input: %w", policy.Action(serviceName, operation), err)
	}
	output := newInstancePtr(signature.Output)

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic: %v", r)
			}
		}()
		done <- method(ctx, input, output)
	}()
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", policy.Action(serviceName, operation), ctx.Err())
	case err = <-done:
	}
	if err != nil {
		return nil, err
	}
	return toMap(output)
}

func (l *Local) input(aType reflect.Type, params map[string]interface{}) (interface{}, error) {
	if aType == nil || aType == mapType {
		copied := make(map[string]interface{}, len(params))
		for k, v := range params {
			copied[k] = v
		}
		return &copied, nil
	}
	input := newInstancePtr(aType)
	if len(params) == 0 {
		return input, nil
	}
	return input, l.converter.Convert(params, input)
}

func newInstancePtr(aType reflect.Type) interface{} {
	if aType == nil || aType == mapType {
		return &map[string]interface{}{}
	}
	if aType.Kind() == reflect.Ptr {
		aType = aType.Elem()
	}
	return reflect.New(aType).Interface()
}

// toMap normalises typed outputs into JSON-shaped maps so they can be
// mapped into variables and persisted in snapshots.
func toMap(output interface{}) (map[string]interface{}, error) {
	if m, ok := output.(*map[string]interface{}); ok {
		return *m, nil
	}
	data, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("failed to encode output %T: %w", output, err)
	}
	result := map[string]interface{}{}
	if err = json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("output %T is not an object: %w", output, err)
	}
	return result, nil
}

var _ Registry = (*Local)(nil)
