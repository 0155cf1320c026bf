package downloader

import (
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/frontier"
	"golang.org/x/time/rate"
)

// slot is the per-origin politeness and concurrency state. All fields are
// guarded by the owning Downloader's mutex.
type slot struct {
	origin      string
	concurrency int
	active      int
	queue       *frontier.FIFOQueue[*Future]
	inflight    map[*Future]struct{}
	// lastSend and delay: the next dispatch may happen at lastSend+delay.
	lastSend time.Time
	delay    time.Duration
	bucket   *rate.Limiter
	timer    *time.Timer
}

func newSlot(origin string, concurrency int, bucket *rate.Limiter) *slot {
	return &slot{
		origin:      origin,
		concurrency: concurrency,
		queue:       frontier.NewFIFOQueue[*Future](),
		inflight:    make(map[*Future]struct{}),
		bucket:      bucket,
	}
}

func (s *slot) idle() bool {
	return s.active == 0 && s.queue.Size() == 0
}

func (s *slot) hasCapacity() bool {
	return s.active < s.concurrency
}

// readyAt is the earliest time the slot may dispatch again.
func (s *slot) readyAt() time.Time {
	if s.lastSend.IsZero() {
		return time.Time{}
	}
	return s.lastSend.Add(s.delay)
}

func (s *slot) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// SlotStat is a point-in-time view of one origin slot.
type SlotStat struct {
	Origin      string        `json:"origin"`
	Active      int           `json:"active"`
	Queued      int           `json:"queued"`
	Concurrency int           `json:"concurrency"`
	Delay       time.Duration `json:"delay"`
	LastSend    time.Time     `json:"lastSend"`
}

func (s *slot) stat() SlotStat {
	return SlotStat{
		Origin:      s.origin,
		Active:      s.active,
		Queued:      s.queue.Size(),
		Concurrency: s.concurrency,
		Delay:       s.delay,
		LastSend:    s.lastSend,
	}
}
