package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicyExponentialDelay(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   2000 * time.Millisecond,
		MaxDelay:    10000 * time.Millisecond,
		Backoff:     BackoffExponential,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 4000 * time.Millisecond},
		{2, 8000 * time.Millisecond},
		{3, 10000 * time.Millisecond},
		{4, 10000 * time.Millisecond},
		{10, 10000 * time.Millisecond},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, policy.Delay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestRetryPolicyExponentialMonotonic(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 250 * time.Millisecond,
		MaxDelay:  8 * time.Second,
		Backoff:   BackoffExponential,
	}

	prev := time.Duration(0)
	for attempt := 1; attempt <= 12; attempt++ {
		d := policy.Delay(attempt)
		assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
		prev = d
	}
}

func TestRetryPolicyExponentialUncapped(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		Backoff:   BackoffExponential,
	}

	assert.Equal(t, 8*time.Second, policy.Delay(3))
	// Huge attempt numbers must not wrap into a negative duration.
	assert.Positive(t, policy.Delay(200))
}

func TestRetryPolicyLinearDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 500 * time.Millisecond,
		Backoff:   BackoffLinear,
	}

	for attempt := 1; attempt <= 4; attempt++ {
		assert.Equal(t, 500*time.Millisecond, policy.Delay(attempt))
	}
}

func TestRetryPolicyCustomDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: time.Second,
		Backoff:   BackoffCustom,
		DelayFunc: func(attempt int) time.Duration {
			return time.Duration(attempt) * 100 * time.Millisecond
		},
	}

	assert.Equal(t, 100*time.Millisecond, policy.Delay(1))
	assert.Equal(t, 300*time.Millisecond, policy.Delay(3))
}

func TestRetryPolicyCustomWithoutFuncFallsBack(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay: 42 * time.Millisecond,
		Backoff:   BackoffCustom,
	}

	assert.Equal(t, 42*time.Millisecond, policy.Delay(7))
}

func TestDefaultRetryPolicy(t *testing.T) {
	policy := DefaultRetryPolicy()

	assert.Equal(t, 5, policy.MaxAttempts)
	assert.Equal(t, time.Second, policy.BaseDelay)
	assert.Equal(t, 30*time.Second, policy.MaxDelay)
	assert.Equal(t, BackoffExponential, policy.Backoff)
}

func TestBackoffModeString(t *testing.T) {
	assert.Equal(t, "linear", BackoffLinear.String())
	assert.Equal(t, "exponential", BackoffExponential.String())
	assert.Equal(t, "custom", BackoffCustom.String())
	assert.Equal(t, "unknown", BackoffMode(99).String())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", StateDisconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "reconnecting", StateReconnecting.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(99).String())
}
