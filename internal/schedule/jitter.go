package schedule

import (
	"math/rand/v2"
	"time"
)

// jitterScaleDivisor keeps roughly 95% of exponential draws below the
// configured maximum before clamping.
const jitterScaleDivisor = 3.0

// Jitter draws a random delay from an exponential distribution clamped to
// [0, max]. Most draws land near zero with a thin tail reaching the maximum,
// which imitates someone who is usually on time and occasionally late, rather
// than a uniformly random arrival.
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	scale := max.Seconds() / jitterScaleDivisor
	d := time.Duration(rand.ExpFloat64() * scale * float64(time.Second))
	if d > max {
		return max
	}
	return d
}
