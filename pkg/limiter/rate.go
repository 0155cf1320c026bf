package limiter

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rohmanhakim/crawl-engine/pkg/timeutil"
)

// DelayResolver
// Decides how long an origin must rest after each dispatch.
// Responsibilities:
// - Hold the configured base delay, jitter and randomization policy
// - Bookkeep each origin's robots crawl-delay and backoff state
// - Draw a fresh delay every time one is resolved
type DelayResolver interface {
	SetCrawlDelay(origin string, delay time.Duration)
	Backoff(origin string)
	ResetBackoff(origin string)
	Forget(origin string)
	NextDelay(origin string) time.Duration
}

type ConcurrentRateLimiter struct {
	mu            sync.RWMutex
	rngMu         sync.Mutex
	baseDelay     time.Duration
	jitter        time.Duration
	randomize     bool
	backoffParam  timeutil.BackoffParam
	originTimings map[string]originTiming
	rng           *rand.Rand
}

func NewConcurrentRateLimiter() *ConcurrentRateLimiter {
	return &ConcurrentRateLimiter{
		originTimings: make(map[string]originTiming),
		backoffParam:  timeutil.DefaultBackoffParam(),
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *ConcurrentRateLimiter) SetBaseDelay(baseDelay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.baseDelay = baseDelay
}

func (r *ConcurrentRateLimiter) SetJitter(jitter time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.jitter = jitter
}

// SetRandomize draws the base part of every delay from [0.5*base, 1.5*base).
func (r *ConcurrentRateLimiter) SetRandomize(randomize bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.randomize = randomize
}

func (r *ConcurrentRateLimiter) SetBackoffParam(param timeutil.BackoffParam) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.backoffParam = param
}

func (r *ConcurrentRateLimiter) SetRandomSeed(randomSeed int64) {
	r.SetRNG(rand.New(rand.NewSource(randomSeed)))
}

// SetRNG allows injecting a custom random number generator for testing
func (r *ConcurrentRateLimiter) SetRNG(rng *rand.Rand) {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	r.rng = rng
}

// Set delay for the given origin, separate from the global base delay
func (r *ConcurrentRateLimiter) SetCrawlDelay(origin string, delay time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.originTimings[origin]
	timing.crawlDelay = delay
	r.originTimings[origin] = timing
}

// Backoff triggers exponential backoff for the given origin.
// It increments the backoff counter and computes the delay.
func (r *ConcurrentRateLimiter) Backoff(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing := r.originTimings[origin]
	timing.backoffCount++
	timing.backoffDelay = r.withRNG(func(rng *rand.Rand) time.Duration {
		return timeutil.ExponentialBackoffDelay(timing.backoffCount, r.jitter, rng, r.backoffParam)
	})
	r.originTimings[origin] = timing
}

// ResetBackoff resets the backoff counter for the given origin.
// Called after a successful response to clear backoff state.
func (r *ConcurrentRateLimiter) ResetBackoff(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	timing, exists := r.originTimings[origin]
	if !exists || timing.backoffCount == 0 {
		return
	}
	timing.backoffCount = 0
	timing.backoffDelay = 0
	r.originTimings[origin] = timing
}

// Forget drops all state for origin once its slot is torn down.
func (r *ConcurrentRateLimiter) Forget(origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.originTimings, origin)
}

// NextDelay resolves the rest period to apply after a dispatch to origin.
// FinalDelay = max(base, crawlDelay, backoffDelay) + jitter
// where base is redrawn around the configured base delay on every call when
// randomization is enabled.
func (r *ConcurrentRateLimiter) NextDelay(origin string) time.Duration {
	// copy needed state under read lock, then compute without holding r.mu
	r.mu.RLock()
	timing := r.originTimings[origin]
	base := r.baseDelay
	jitter := r.jitter
	randomize := r.randomize
	r.mu.RUnlock()

	return r.withRNG(func(rng *rand.Rand) time.Duration {
		if randomize {
			base = timeutil.RandomizedDelay(base, rng)
		}
		delay := timeutil.MaxDuration([]time.Duration{base, timing.crawlDelay, timing.backoffDelay})
		return delay + timeutil.ComputeJitter(jitter, rng)
	})
}

func (r *ConcurrentRateLimiter) withRNG(fn func(rng *rand.Rand) time.Duration) time.Duration {
	r.rngMu.Lock()
	defer r.rngMu.Unlock()

	if r.rng == nil {
		r.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return fn(r.rng)
}

func (r *ConcurrentRateLimiter) BaseDelay() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.baseDelay
}

func (r *ConcurrentRateLimiter) Jitter() time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jitter
}

// Timing returns a copy of the politeness state for origin.
func (r *ConcurrentRateLimiter) Timing(origin string) (originTiming, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	timing, ok := r.originTimings[origin]
	return timing, ok
}
