package connection

import "time"

// BackoffMode selects how the delay between reconnect attempts grows.
type BackoffMode uint8

const (
	// BackoffLinear waits BaseDelay before every attempt.
	BackoffLinear BackoffMode = iota
	// BackoffExponential doubles the delay per attempt, capped at MaxDelay.
	BackoffExponential
	// BackoffCustom delegates to the policy's DelayFunc.
	BackoffCustom
)

// String returns a human-readable name for the backoff mode.
func (m BackoffMode) String() string {
	switch m {
	case BackoffLinear:
		return "linear"
	case BackoffExponential:
		return "exponential"
	case BackoffCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// DelayFunc computes the delay before reconnect attempt number attempt.
// Attempts are numbered starting at 1.
type DelayFunc func(attempt int) time.Duration

// RetryPolicy configures reconnect behavior. It is pure configuration;
// the attempt counter lives in the Manager.
type RetryPolicy struct {
	// MaxAttempts is the number of consecutive failures tolerated before
	// the manager gives up and enters StateFailed.
	MaxAttempts int
	// BaseDelay is the starting delay between attempts.
	BaseDelay time.Duration
	// MaxDelay caps the delay for BackoffExponential. Zero means no cap.
	MaxDelay time.Duration
	// Backoff selects the growth mode.
	Backoff BackoffMode
	// DelayFunc is consulted when Backoff is BackoffCustom.
	DelayFunc DelayFunc
}

// DefaultRetryPolicy returns the policy used when none is supplied:
// five attempts with exponential backoff from 1s capped at 30s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Backoff:     BackoffExponential,
	}
}

// Delay returns how long to wait before reconnect attempt number attempt.
// The result is monotonically non-decreasing in the attempt number for
// the built-in modes.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	switch p.Backoff {
	case BackoffExponential:
		d := p.BaseDelay
		for i := 0; i < attempt; i++ {
			next := d * 2
			if next < d {
				// Doubling overflowed; the delay is already enormous.
				return d
			}
			d = next
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				return p.MaxDelay
			}
		}
		return d
	case BackoffCustom:
		if p.DelayFunc != nil {
			return p.DelayFunc(attempt)
		}
		return p.BaseDelay
	default:
		return p.BaseDelay
	}
}
