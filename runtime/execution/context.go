package execution

import (
	"context"
	"reflect"
)

var ProcessKey = KeyOf[*Process]()
var TokenKey = KeyOf[*Token]()

// WithProcess returns a context carrying the process instance and token that
// an activity executes on behalf of.
func WithProcess(ctx context.Context, process *Process, token *Token) context.Context {
	ctx = context.WithValue(ctx, ProcessKey, process)
	if token != nil {
		ctx = context.WithValue(ctx, TokenKey, token)
	}
	return ctx
}

// ContextValue returns the value of the provided type from the context
func ContextValue[T any](ctx context.Context) T {
	key := KeyOf[T]()
	if value := ctx.Value(key); value != nil {
		return value.(T)
	}
	var t T
	return t
}

// KeyOf returns the reflect.Type of the provided type
func KeyOf[T any]() reflect.Type {
	var a T
	return reflect.TypeOf(a)
}
