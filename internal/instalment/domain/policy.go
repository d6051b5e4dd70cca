package domain

import "time"

// Policy bounds how often and how long a task is retried.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 12, BaseDelay: time.Minute, MaxDelay: 6 * time.Hour}
}

// MaxBackoffCeiling caps the delay when MaxDelay is unset.
const MaxBackoffCeiling = 24 * time.Hour

// Backoff returns the delay after the given number of attempts, doubling from
// BaseDelay up to MaxDelay, or MaxBackoffCeiling when MaxDelay is not positive.
func (p Policy) Backoff(attempts int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = MaxBackoffCeiling
	}
	delay := p.BaseDelay
	if delay <= 0 {
		delay = time.Minute
	}
	for i := 1; i < attempts && delay < limit; i++ {
		delay *= 2
	}
	if delay > limit {
		return limit
	}
	return delay
}

// Exhausted reports whether no further attempt is allowed.
func (p Policy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}
