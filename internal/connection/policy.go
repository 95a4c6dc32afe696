package connection

import (
	"math"
	"time"
)

// ReconnectPolicy bounds automatic reconnection.
type ReconnectPolicy struct {
	BaseDelay   time.Duration // Delay before the first retry
	Multiplier  float64       // Growth factor per attempt
	MaxDelay    time.Duration // Upper bound for any single delay (0 = uncapped)
	MaxAttempts int           // Retries allowed before giving up
}

// DefaultReconnectPolicy returns 2s base, x1.5 growth, 30s cap, 5 attempts.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		BaseDelay:   2 * time.Second,
		Multiplier:  1.5,
		MaxDelay:    30 * time.Second,
		MaxAttempts: 5,
	}
}

// Delay returns the wait before the given 1-based attempt:
// min(MaxDelay, BaseDelay * Multiplier^(attempt-1)).
func (p ReconnectPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if p.MaxDelay > 0 && d > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}
