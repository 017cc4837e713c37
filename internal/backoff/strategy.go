// Package backoff provides pure delay calculation for retry scheduling.
package backoff

import (
	"math/rand"
	"time"
)

// jitterFraction bounds the uniform perturbation applied to a capped delay.
const jitterFraction = 0.25

// Delay returns the wait before re-running the given 0-based attempt:
// min(base * multiplier^attempt, max). With jitter enabled the capped value
// is perturbed by a uniform random offset in +/-25%, floored at zero. The
// result is rounded to the nearest millisecond and is deterministic when
// jitter is off.
func Delay(attempt int, base, max time.Duration, multiplier float64, jitter bool) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Prevent overflow by limiting attempt
	if attempt > 30 {
		attempt = 30
	}

	d := time.Duration(float64(base) * pow(multiplier, attempt))
	if d < 0 || d > max {
		d = max
	}

	if jitter {
		offset := (rand.Float64()*2 - 1) * jitterFraction * float64(d)
		d += time.Duration(offset)
		if d < 0 {
			d = 0
		}
	}

	return d.Round(time.Millisecond)
}

// pow calculates base^exponent using integer exponentiation.
func pow(base float64, exponent int) float64 {
	result := 1.0
	for i := 0; i < exponent; i++ {
		result *= base
	}
	return result
}
