package retry

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// ErrMaxRetriesExceeded is returned when all attempts are exhausted
var ErrMaxRetriesExceeded = errors.New("max retries exceeded")

// Policy configures retry behavior
type Policy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	Multiplier    float64
	Jitter        float64
	RetryableFunc func(error) bool
}

// DefaultPolicy is a conservative exponential backoff suitable for RPC calls
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.2,
	}
}

// Validate checks the policy values
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}
	if p.InitialDelay <= 0 {
		return fmt.Errorf("initial delay must be positive")
	}
	if p.Multiplier < 1 {
		return fmt.Errorf("multiplier must be at least 1")
	}
	if p.Jitter < 0 || p.Jitter > 1 {
		return fmt.Errorf("jitter must be between 0 and 1")
	}
	return nil
}

// Backoff computes attempt delays for a policy
type Backoff struct {
	policy Policy
}

// NewBackoff creates a backoff calculator
func NewBackoff(policy Policy) *Backoff {
	return &Backoff{policy: policy}
}

// Calculate returns the delay before the given attempt (1-based)
func (b *Backoff) Calculate(attempt int) time.Duration {
	delay := float64(b.policy.InitialDelay) * math.Pow(b.policy.Multiplier, float64(attempt-1))

	if b.policy.MaxDelay > 0 && delay > float64(b.policy.MaxDelay) {
		delay = float64(b.policy.MaxDelay)
	}

	if b.policy.Jitter > 0 {
		jitter := delay * b.policy.Jitter
		delay = delay - jitter + rand.Float64()*2*jitter
	}

	return time.Duration(delay)
}
