package activity

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/viant/procflow/model/graph"
)

// Retry types.
const (
	RetryNone        = "none"
	RetryFixed       = "fixed"
	RetryExponential = "exponential"
)

// RetryDefaults apply where an activity retry policy leaves fields unset.
type RetryDefaults struct {
	Type       string
	Delay      time.Duration
	Multiplier float64
	MaxDelay   time.Duration
}

// DefaultRetry is a fixed 100ms delay.
func DefaultRetry() RetryDefaults {
	return RetryDefaults{Type: RetryFixed, Delay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 10 * time.Second}
}

// RetryDelay returns the wait before retry attempt (1-based).
func RetryDelay(policy *graph.Retry, attempt int, defaults RetryDefaults) time.Duration {
	settings := defaults
	if policy != nil {
		if policy.Type != "" {
			settings.Type = policy.Type
		}
		if d, err := time.ParseDuration(policy.Delay); err == nil {
			settings.Delay = d
		}
		if policy.Multiplier > 0 {
			settings.Multiplier = policy.Multiplier
		}
		if d, err := time.ParseDuration(policy.MaxDelay); err == nil {
			settings.MaxDelay = d
		}
	}
	if attempt < 1 {
		attempt = 1
	}
	var strategy backoff.BackOff
	switch settings.Type {
	case RetryNone:
		return 0
	case RetryExponential:
		exponential := backoff.NewExponentialBackOff()
		exponential.InitialInterval = settings.Delay
		exponential.RandomizationFactor = 0
		exponential.Multiplier = settings.Multiplier
		if settings.MaxDelay > 0 {
			exponential.MaxInterval = settings.MaxDelay
		}
		exponential.MaxElapsedTime = 0
		exponential.Reset()
		strategy = exponential
	default:
		strategy = backoff.NewConstantBackOff(settings.Delay)
	}
	delay := strategy.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = strategy.NextBackOff()
	}
	if delay < 0 {
		return 0
	}
	return delay
}
