package engine

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/stats"
)

// Status snapshots the engine. Once stopped, pending counts come from the
// final summary because the scheduler store is closed.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := Status{
		CrawlID:                e.crawlID,
		State:                  e.state,
		StartedAt:              e.startedAt,
		DownloaderActive:       e.downloader.Active(),
		DownloaderQueued:       e.downloader.Queued(),
		DownloaderNeedsBackout: e.downloader.NeedsBackout(),
		ScraperIdle:            e.scraper.IsIdle(),
		Outstanding:            e.outstandingTotal(),
		Stats:                  e.stats.Snapshot(),
	}
	stopped := e.state == StateStopped || e.flushing
	switch {
	case e.state == StateStopped:
		st.Elapsed = e.summary.Duration
		st.SchedulerPending = int(e.summary.Stats[stats.PendingRemaining])
	case stopped:
		st.Elapsed = time.Since(e.startedAt)
	case !e.startedAt.IsZero():
		st.Elapsed = time.Since(e.startedAt)
		st.SchedulerPending = e.scheduler.Pending()
	}

	keys := make([]string, 0, len(e.origins))
	for key := range e.origins {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	st.Origins = make([]OriginStatus, 0, len(keys))
	for _, key := range keys {
		o := e.origins[key]
		os := OriginStatus{
			Key:   key,
			State: o.state,
			Held:  o.held,
		}
		if !stopped && !e.startedAt.IsZero() {
			os.Pending = e.scheduler.PendingFor(key)
		}
		if dl, ok := e.downloader.SlotStat(key); ok {
			os.ActiveDownloads = dl.Active
			os.QueuedDownloads = dl.Queued
		}
		if sc, ok := e.scraper.SlotStat(key); ok {
			os.ActiveScrapes = sc.Active
			os.QueuedScrapes = sc.Queued
			os.ActiveSize = sc.ActiveSize
		}
		os.NeedsBackout = e.downloader.OriginNeedsBackout(key) || e.scraper.NeedsBackout(key)
		st.Origins = append(st.Origins, os)
	}
	return st
}

const statusLabelWidth = 32

// FormatStatus renders st as an aligned plain-text report.
func FormatStatus(st Status) string {
	var b strings.Builder
	line := func(indent, label string, value any) {
		fmt.Fprintf(&b, "%s%-*s : %v\n", indent, statusLabelWidth-len(indent), label, value)
	}

	b.WriteString("Execution engine status\n\n")
	line("", "engine.crawl_id", st.CrawlID)
	line("", "engine.state", st.State)
	line("", "engine.elapsed", st.Elapsed.Round(time.Millisecond))
	line("", "engine.outstanding", st.Outstanding)
	line("", "scheduler.pending", st.SchedulerPending)
	line("", "downloader.active", st.DownloaderActive)
	line("", "downloader.queued", st.DownloaderQueued)
	line("", "downloader.needs_backout", st.DownloaderNeedsBackout)
	line("", "scraper.is_idle", st.ScraperIdle)

	for _, o := range st.Origins {
		fmt.Fprintf(&b, "\norigin %s\n", o.Key)
		line("  ", "state", o.State)
		if o.Held {
			line("  ", "held", o.Held)
		}
		line("  ", "pending", o.Pending)
		line("  ", "downloads.active", o.ActiveDownloads)
		line("  ", "downloads.queued", o.QueuedDownloads)
		line("  ", "scrapes.active", o.ActiveScrapes)
		line("  ", "scrapes.queued", o.QueuedScrapes)
		line("  ", "scrapes.active_size", o.ActiveSize)
		line("  ", "needs_backout", o.NeedsBackout)
	}

	dispositions := make([]string, 0, len(stats.Dispositions))
	for _, key := range stats.Dispositions {
		if v, ok := st.Stats[key]; ok {
			dispositions = append(dispositions, fmt.Sprintf("%s=%d", strings.TrimPrefix(key, stats.DispositionPrefix), v))
		}
	}
	if len(dispositions) > 0 {
		b.WriteString("\n")
		line("", "dispositions", strings.Join(dispositions, " "))
	}
	return b.String()
}
