package stream

import (
	"math"
	"math/rand/v2"
	"time"
)

// BackoffPolicy spaces out capture reinitialisation attempts
type BackoffPolicy struct {
	Min       time.Duration
	Max       time.Duration
	JitterPct int
}

// Delay calculates jittered exponential backoff delay for a 1-based attempt
func (b BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	// Base delay with exponential backoff
	exp := math.Min(float64(attempt-1), 30)
	baseDelay := time.Duration(math.Pow(2, exp)) * time.Second

	// Clamp to configured min/max
	if baseDelay < b.Min {
		baseDelay = b.Min
	}
	if b.Max > 0 && baseDelay > b.Max {
		baseDelay = b.Max
	}

	// Add jitter (random percentage of the delay)
	jitterPct := float64(b.JitterPct) / 100.0
	jitter := time.Duration(float64(baseDelay) * jitterPct * (rand.Float64()*2 - 1))

	return baseDelay + jitter
}
