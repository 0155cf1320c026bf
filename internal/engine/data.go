package engine

import (
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/stats"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateClosing State = "closing"
	StateStopped State = "stopped"
)

type OriginState string

const (
	OriginOpening OriginState = "opening"
	OriginRunning OriginState = "running"
	OriginClosing OriginState = "closing"
	OriginClosed  OriginState = "closed"
)

// Stop reasons reported in the Summary.
const (
	ReasonFinished = "finished"
	ReasonShutdown = "shutdown"
	ReasonForced   = "forced"
)

type origin struct {
	key   string
	state OriginState
	// set by CloseOrigin; requests are discarded until OpenOrigin
	held bool
}

// Status is a point-in-time view of the engine, the global idle tests and
// every known origin.
type Status struct {
	CrawlID                string           `json:"crawlId"`
	State                  State            `json:"state"`
	StartedAt              time.Time        `json:"startedAt"`
	Elapsed                time.Duration    `json:"elapsed"`
	SchedulerPending       int              `json:"schedulerPending"`
	DownloaderActive       int              `json:"downloaderActive"`
	DownloaderQueued       int              `json:"downloaderQueued"`
	DownloaderNeedsBackout bool             `json:"downloaderNeedsBackout"`
	ScraperIdle            bool             `json:"scraperIdle"`
	Outstanding            int              `json:"outstanding"`
	Origins                []OriginStatus   `json:"origins"`
	Stats                  map[string]int64 `json:"stats"`
}

type OriginStatus struct {
	Key             string      `json:"key"`
	State           OriginState `json:"state"`
	Held            bool        `json:"held"`
	Pending         int         `json:"pending"`
	ActiveDownloads int         `json:"activeDownloads"`
	QueuedDownloads int         `json:"queuedDownloads"`
	ActiveScrapes   int         `json:"activeScrapes"`
	QueuedScrapes   int         `json:"queuedScrapes"`
	ActiveSize      int         `json:"activeSize"`
	NeedsBackout    bool        `json:"needsBackout"`
}

// Summary is the final account of a crawl.
type Summary struct {
	CrawlID       string           `json:"crawlId"`
	Reason        string           `json:"reason"`
	StartedAt     time.Time        `json:"startedAt"`
	FinishedAt    time.Time        `json:"finishedAt"`
	Duration      time.Duration    `json:"duration"`
	Accepted      int64            `json:"accepted"`
	Filtered      int64            `json:"filtered"`
	EnqueueFailed int64            `json:"enqueueFailed"`
	Stats         map[string]int64 `json:"stats"`
}

func newSummary(counts map[string]int64) Summary {
	return Summary{
		Accepted:      counts[stats.Enqueued] + counts[stats.Resumed],
		Filtered:      counts[stats.Filtered],
		EnqueueFailed: counts[stats.EnqueueFailed],
		Stats:         counts,
	}
}

// Disposition returns the count of one disposition key, e.g. stats.Processed.
func (s Summary) Disposition(key string) int64 {
	return s.Stats[key]
}

// Dispositions sums every disposition counter.
func (s Summary) Dispositions() int64 {
	var total int64
	for _, key := range stats.Dispositions {
		total += s.Stats[key]
	}
	return total
}

// Balanced reports whether every accepted request ended in exactly one disposition.
func (s Summary) Balanced() bool {
	return s.Dispositions() == s.Accepted
}
