package timeutil

import (
	"math/rand"
	"testing"
	"time"
)

func TestMaxDuration(t *testing.T) {
	tests := []struct {
		name      string
		durations []time.Duration
		want      time.Duration
	}{
		{
			name:      "multiple values returns maximum",
			durations: []time.Duration{100 * time.Millisecond, 500 * time.Millisecond, 200 * time.Millisecond},
			want:      500 * time.Millisecond,
		},
		{
			name:      "empty slice returns zero",
			durations: []time.Duration{},
			want:      0,
		},
		{
			name:      "all negative returns least negative",
			durations: []time.Duration{-100 * time.Millisecond, -50 * time.Millisecond},
			want:      -50 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxDuration(tt.durations); got != tt.want {
				t.Errorf("MaxDuration() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestComputeJitter(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	if got := ComputeJitter(0, rng); got != 0 {
		t.Errorf("ComputeJitter(0) = %v, want 0", got)
	}
	for i := 0; i < 500; i++ {
		got := ComputeJitter(20*time.Millisecond, rng)
		if got < 0 || got >= 20*time.Millisecond {
			t.Fatalf("ComputeJitter() = %v, want in [0, 20ms)", got)
		}
	}
}

// TestRandomizedDelay_Window checks every draw lands in [0.5D, 1.5D) and that
// draws actually vary, since the downloader picks a fresh delay per dispatch.
func TestRandomizedDelay_Window(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := 200 * time.Millisecond
	seen := make(map[time.Duration]struct{})

	for i := 0; i < 1000; i++ {
		got := RandomizedDelay(base, rng)
		if got < base/2 || got >= base+base/2 {
			t.Fatalf("RandomizedDelay() = %v, want in [%v, %v)", got, base/2, base+base/2)
		}
		seen[got] = struct{}{}
	}
	if len(seen) < 100 {
		t.Errorf("expected varied delays, got %d distinct values", len(seen))
	}
	if got := RandomizedDelay(0, rng); got != 0 {
		t.Errorf("RandomizedDelay(0) = %v, want 0", got)
	}
}

func TestExponentialBackoffDelay(t *testing.T) {
	tests := []struct {
		name         string
		backoffCount int
		jitter       time.Duration
		backoffParam BackoffParam
		wantMin      time.Duration
		wantMax      time.Duration
	}{
		{
			name:         "first backoff with no jitter",
			backoffCount: 1,
			backoffParam: NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
			wantMin:      1 * time.Second,
			wantMax:      1 * time.Second,
		},
		{
			name:         "third backoff quadruples",
			backoffCount: 3,
			backoffParam: NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
			wantMin:      4 * time.Second,
			wantMax:      4 * time.Second,
		},
		{
			name:         "backoff hits max cap",
			backoffCount: 10,
			backoffParam: NewBackoffParam(1*time.Second, 2.0, 10*time.Second),
			wantMin:      10 * time.Second,
			wantMax:      10 * time.Second,
		},
		{
			name:         "jitter adds positive variance",
			backoffCount: 2,
			jitter:       100 * time.Millisecond,
			backoffParam: NewBackoffParam(1*time.Second, 2.0, 30*time.Second),
			wantMin:      2 * time.Second,
			wantMax:      2*time.Second + 100*time.Millisecond,
		},
		{
			name:         "zero count treated as first",
			backoffCount: 0,
			backoffParam: NewBackoffParam(500*time.Millisecond, 2.0, 30*time.Second),
			wantMin:      500 * time.Millisecond,
			wantMax:      500 * time.Millisecond,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng := rand.New(rand.NewSource(1))
			got := ExponentialBackoffDelay(tt.backoffCount, tt.jitter, rng, tt.backoffParam)
			if got < tt.wantMin || got > tt.wantMax {
				t.Errorf("ExponentialBackoffDelay() = %v, want between %v and %v", got, tt.wantMin, tt.wantMax)
			}
		})
	}
}
