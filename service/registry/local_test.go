package registry_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/procflow/policy"
	"github.com/viant/procflow/service/action/nop"
	"github.com/viant/procflow/service/action/printer"
	"github.com/viant/procflow/service/registry"
)

func TestLocal_CallService(t *testing.T) {
	ctx := context.Background()
	buffer := &bytes.Buffer{}
	local := registry.NewLocal().Register(nop.New(), printer.New(buffer))
	local.RegisterFunc("payments", "quote", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		return map[string]interface{}{"quote": params["amount"]}, nil
	})
	local.RegisterFunc("payments", "slow", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
			return nil, nil
		}
	})
	assert.Equal(t, []string{"nop", "payments", "printer"}, local.Names())

	output, err := local.CallService(ctx, "payments", "quote", map[string]interface{}{"amount": 42}, 0)
	require.NoError(t, err)
	assert.Equal(t, 42, output["quote"])

	output, err = local.CallService(ctx, "printer", "print", map[string]interface{}{"Message": "hello"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hello\n", buffer.String())
	assert.EqualValues(t, 6, output["printed"])

	output, err = local.CallService(ctx, "nop", "anything", map[string]interface{}{"k": "v"}, 0)
	require.NoError(t, err)
	assert.Equal(t, "v", output["k"])

	_, err = local.CallService(ctx, "payments", "slow", nil, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var notFound *registry.ServiceNotFoundError
	_, err = local.CallService(ctx, "shipping", "send", nil, 0)
	assert.True(t, errors.As(err, &notFound))

	var opNotFound *registry.OperationNotFoundError
	_, err = local.CallService(ctx, "payments", "refund", nil, 0)
	assert.True(t, errors.As(err, &opNotFound))
}

func TestLocal_Policy(t *testing.T) {
	ctx := context.Background()
	local := registry.NewLocal(registry.WithPolicy(&policy.Policy{BlockList: []string{"nop.*"}})).Register(nop.New())

	var denied *policy.DeniedError
	_, err := local.CallService(ctx, "nop", "nop", nil, 0)
	assert.True(t, errors.As(err, &denied))

	_, err = local.CallService(policy.WithPolicy(ctx, &policy.Policy{}), "nop", "nop", nil, 0)
	assert.NoError(t, err)
}

func TestLocal_Panic(t *testing.T) {
	local := registry.NewLocal()
	local.RegisterFunc("broken", "run", func(ctx context.Context, params map[string]interface{}) (map[string]interface{}, error) {
		panic("boom")
	})
	_, err := local.CallService(context.Background(), "broken", "run", nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}
