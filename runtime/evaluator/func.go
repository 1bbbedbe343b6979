package evaluator

import (
	"fmt"
	"reflect"
	"strings"
)

func builtins() map[string]Func {
	return map[string]Func{
		"len":      length,
		"isNil":    isNilFunc,
		"contains": contains,
		"lower":    stringFunc(strings.ToLower),
		"upper":    stringFunc(strings.ToUpper),
	}
}

func length(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len: expected 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return 0, nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.String, reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len(), nil
	}
	return nil, fmt.Errorf("len: unsupported type %T", args[0])
}

func isNilFunc(args ...interface{}) (interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("isNil: expected 1 argument, got %d", len(args))
	}
	if args[0] == nil {
		return true, nil
	}
	rv := reflect.ValueOf(args[0])
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map:
		return rv.IsNil(), nil
	}
	return false, nil
}

// contains reports whether a string holds a substring, a slice holds an
// element or a map holds a key.
func contains(args ...interface{}) (interface{}, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("contains: expected 2 arguments, got %d", len(args))
	}
	switch container := args[0].(type) {
	case nil:
		return false, nil
	case string:
		return strings.Contains(container, stringify(args[1])), nil
	case map[string]interface{}:
		_, ok := container[stringify(args[1])]
		return ok, nil
	}
	rv := reflect.ValueOf(args[0])
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if equal(rv.Index(i).Interface(), args[1]) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, fmt.Errorf("contains: unsupported type %T", args[0])
}

func stringFunc(fn func(string) string) Func {
	return func(args ...interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("expected 1 argument, got %d", len(args))
		}
		return fn(stringify(args[0])), nil
	}
}
