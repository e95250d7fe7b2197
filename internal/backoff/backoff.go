// Package backoff computes reconnect delays.
//
// Delays grow exponentially from Base and are capped at Cap:
//
//	delay(k) = min(Base * 2^(k-1), Cap)    k = 1, 2, ...
//
// Attempts are allowed while k <= MaxAttempts. With the defaults the schedule is
// 1s, 2s, 4s, 8s, 16s and a sixth attempt is never made.
package backoff

import (
	"errors"
	"time"
)

// Defaults
const (
	DefaultBase        = 1 * time.Second
	DefaultCap         = 30 * time.Second
	DefaultMaxAttempts = 5
)

// Policy is a capped exponential backoff with an attempt budget.
type Policy struct {
	Base        time.Duration // Delay before the first attempt
	Cap         time.Duration // Upper bound for any delay
	MaxAttempts int           // Attempts allowed before giving up
}

// DefaultPolicy returns the 1s/30s/5 attempt policy.
func DefaultPolicy() Policy {
	return Policy{
		Base:        DefaultBase,
		Cap:         DefaultCap,
		MaxAttempts: DefaultMaxAttempts,
	}
}

// Validate checks the policy is usable.
func (p Policy) Validate() error {
	if p.Base <= 0 {
		return errors.New("backoff base must be > 0")
	}
	if p.Cap < p.Base {
		return errors.New("backoff cap must be >= base")
	}
	if p.MaxAttempts < 0 {
		return errors.New("backoff max attempts must be >= 0")
	}
	return nil
}

// Delay returns the wait before the given 1-indexed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := p.Base
	for i := 1; i < attempt; i++ {
		// Stop doubling once capped so large attempts cannot overflow
		if delay >= p.Cap {
			break
		}
		delay *= 2
	}

	if delay > p.Cap {
		delay = p.Cap
	}
	return delay
}

// Allowed reports whether attempt is within the budget.
func (p Policy) Allowed(attempt int) bool {
	return attempt >= 1 && attempt <= p.MaxAttempts
}

// Next returns the delay for attempt and whether the attempt may be made at all.
func (p Policy) Next(attempt int) (time.Duration, bool) {
	if !p.Allowed(attempt) {
		return 0, false
	}
	return p.Delay(attempt), true
}

// Schedule lists every delay the policy will ever produce, in order.
func (p Policy) Schedule() []time.Duration {
	delays := make([]time.Duration, 0, p.MaxAttempts)
	for k := 1; p.Allowed(k); k++ {
		delays = append(delays, p.Delay(k))
	}
	return delays
}
