package timeutil

import (
	"math"
	"math/rand"
	"time"
)

// MaxDuration returns the largest duration, or zero for an empty slice.
func MaxDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	max := durations[0]
	for _, d := range durations[1:] {
		if d > max {
			max = d
		}
	}
	return max
}

// ComputeJitter returns a random duration in [0, max).
func ComputeJitter(max time.Duration, rng *rand.Rand) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rng.Int63n(int64(max)))
}

// RandomizedDelay returns a duration drawn uniformly from [0.5*base, 1.5*base).
func RandomizedDelay(base time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	return time.Duration((0.5 + rng.Float64()) * float64(base))
}

// ExponentialBackoffDelay computes initial * multiplier^(backoffCount-1), capped at the
// max duration, plus up to jitter of random variance.
func ExponentialBackoffDelay(
	backoffCount int,
	jitter time.Duration,
	rng *rand.Rand,
	param BackoffParam,
) time.Duration {
	if backoffCount < 1 {
		backoffCount = 1
	}
	raw := float64(param.InitialDuration()) * math.Pow(param.Multiplier(), float64(backoffCount-1))
	delay := param.MaxDuration()
	if raw < float64(param.MaxDuration()) {
		delay = time.Duration(raw)
	}
	if delay < 0 {
		delay = 0
	}
	return delay + ComputeJitter(jitter, rng)
}
