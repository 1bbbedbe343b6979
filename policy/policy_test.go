package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Check(t *testing.T) {
	ctx := context.Background()
	testCases := []struct {
		description string
		policy      *Policy
		action      string
		allowed     bool
	}{
		{description: "nil policy", action: "payments.charge", allowed: true},
		{description: "empty lists", policy: &Policy{}, action: "payments.charge", allowed: true},
		{description: "allow list hit", policy: &Policy{AllowList: []string{"Payments.Charge"}}, action: "payments.charge", allowed: true},
		{description: "allow list miss", policy: &Policy{AllowList: []string{"payments.quote"}}, action: "payments.charge", allowed: false},
		{description: "wildcard", policy: &Policy{AllowList: []string{"payments.*"}}, action: "payments.refund", allowed: true},
		{description: "block wins", policy: &Policy{AllowList: []string{"payments.*"}, BlockList: []string{"payments.refund"}}, action: "payments.refund", allowed: false},
		{description: "deny mode", policy: &Policy{Mode: ModeDeny}, action: "payments.quote", allowed: false},
		{description: "ask without callback", policy: &Policy{Mode: ModeAsk}, action: "payments.quote", allowed: false},
		{
			description: "ask approves",
			policy: &Policy{Mode: ModeAsk, Ask: func(ctx context.Context, action string, params map[string]interface{}, p *Policy) bool {
				return params["amount"] == 10
			}},
			action:  "payments.quote",
			allowed: true,
		},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			err := testCase.policy.Check(ctx, testCase.action, map[string]interface{}{"amount": 10})
			if testCase.allowed {
				assert.NoError(t, err)
				return
			}
			var denied *DeniedError
			assert.True(t, errors.As(err, &denied))
		})
	}
}

func TestConfig(t *testing.T) {
	config := &Config{Mode: ModeAuto, BlockList: []string{"payments.refund"}}
	assert.NoError(t, config.Validate())
	assert.Error(t, (&Config{Mode: "maybe"}).Validate())
	p := FromConfig(config)
	assert.False(t, p.IsAllowed(Action("payments", "refund")))
	assert.Nil(t, FromConfig(nil))

	ctx := WithPolicy(context.Background(), p)
	assert.Equal(t, p, FromContext(ctx))
	assert.Nil(t, FromContext(context.Background()))
}
