package scraper

import (
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/frontier"
)

// minResponseSize is what every outcome is charged at least, so floods of
// empty responses and failures still add up.
const minResponseSize = 1024

type work struct {
	outcome crawl.Outcome
	size    int
	done    func()
}

// slot holds the scrape work of one origin. Guarded by the Scraper's mutex.
type slot struct {
	origin     string
	queue      *frontier.FIFOQueue[*work]
	active     int
	activeSize int
}

func newSlot(origin string) *slot {
	return &slot{
		origin: origin,
		queue:  frontier.NewFIFOQueue[*work](),
	}
}

func (s *slot) idle() bool {
	return s.active == 0 && s.queue.Size() == 0
}

// SlotStat is a point-in-time view of one origin's scrape work.
type SlotStat struct {
	Origin       string `json:"origin"`
	Active       int    `json:"active"`
	Queued       int    `json:"queued"`
	ActiveSize   int    `json:"activeSize"`
	NeedsBackout bool   `json:"needsBackout"`
}
