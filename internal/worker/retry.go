package worker

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy spaces out attempts of a failed sync task. Delays grow from
// InitialDelay by BackoffFactor up to MaxDelay, and Jitter moves each one
// by up to that fraction in either direction.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        float64
}

// DefaultRetryPolicy is what the API server runs the sheet mirror with.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:    5,
		InitialDelay:  2 * time.Second,
		MaxDelay:      time.Minute,
		BackoffFactor: 2,
		Jitter:        0.2,
	}
}

// withDefaults fills unset limits. A zero Jitter stays zero.
func (r RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if r.MaxRetries <= 0 {
		r.MaxRetries = def.MaxRetries
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = def.InitialDelay
	}
	if r.MaxDelay <= 0 {
		r.MaxDelay = def.MaxDelay
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = def.BackoffFactor
	}
	return r
}

// Exhausted reports whether a task that has failed attempt times goes to
// the dead letter list instead of another retry.
func (r RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= r.MaxRetries
}

// NextDelay returns the wait after the attempt-th failure (1-based).
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	return r.delay(attempt, rand.Float64)
}

func (r RetryPolicy) delay(attempt int, random func() float64) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := r.InitialDelay
	if initial <= 0 {
		initial = time.Second
	}
	factor := r.BackoffFactor
	if factor <= 0 {
		factor = 2
	}
	ceiling := r.MaxDelay
	if ceiling <= 0 {
		ceiling = time.Hour
	}

	d := math.Min(float64(initial)*math.Pow(factor, float64(attempt-1)), float64(ceiling))
	if r.Jitter > 0 {
		spread := math.Min(r.Jitter, 1)
		d += d * spread * (2*random() - 1)
	}
	if d < float64(time.Millisecond) {
		return time.Millisecond
	}
	return time.Duration(d)
}
