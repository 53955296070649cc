package util

import (
	"math/rand"
	"time"
)

// Jitter scales d by a uniform random factor in [0.9, 1.1), spreading out
// otherwise-synchronized re-check timers across vaults that share the
// same bucket/tier interval.
func Jitter(d time.Duration) time.Duration {
	factor := 0.9 + rand.Float64()*0.2
	return time.Duration(float64(d) * factor)
}
