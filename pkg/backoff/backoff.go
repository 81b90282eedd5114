// Package backoff provides exponential delay calculation for retries.
package backoff

import (
	"math"
	"time"
)

// Policy describes an exponential backoff curve. Zero values use defaults.
type Policy struct {
	Initial time.Duration // default: 250ms
	Max     time.Duration // default: 10s
}

// Delay returns the delay before the given retry attempt.
// Attempt 1 returns Initial, attempt 2 returns Initial*2, and so on,
// capped at Max. Attempts below 1 return Initial.
func (p Policy) Delay(attempt int) time.Duration {
	initial := p.Initial
	if initial <= 0 {
		initial = 250 * time.Millisecond
	}
	ceiling := p.Max
	if ceiling <= 0 {
		ceiling = 10 * time.Second
	}

	if attempt < 1 {
		return initial
	}
	d := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if d > float64(ceiling) {
		return ceiling
	}
	return time.Duration(d)
}
