package metadata

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

/*
Metadata Collected
- Fetch outcomes (status, latency, referer)
- Scraped and dropped items
- Recoverable errors per package and action
- Engine and origin lifecycle transitions
- A final crawl summary

Metadata is write-only.
No component may read metadata to influence crawl decisions.
*/

/*
Recorder captures structured crawl events and writes them through slog.
It must not:
- perform I/O decisions
- affect control flow
Ordering guarantees:
- Events are recorded synchronously in the order they are received by a single goroutine.
- No global ordering across goroutines is guaranteed.
*/
type Recorder struct {
	crawlId string
	logger  *slog.Logger
}

func NewRecorder(crawlId string, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		crawlId: crawlId,
		logger:  logger.With(slog.String("crawl_id", crawlId)),
	}
}

func (r *Recorder) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
	args := []any{
		slog.Time("observed_at", observedAt),
		slog.String("package", packageName),
		slog.String("action", action),
		slog.String("cause", cause.String()),
		slog.String("details", details),
	}
	r.logger.Warn("error", append(args, toSlog(attrs)...)...)
}

// RecordFetch logs a "crawled" line for every response that reached the scraper.
func (r *Recorder) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	referer string,
) {
	if referer == "" {
		referer = "None"
	}
	r.logger.Debug("crawled",
		slog.String(string(AttrURL), fetchUrl),
		slog.Int(string(AttrHTTPStatus), httpStatus),
		slog.Duration("duration", duration),
		slog.String("content_type", contentType),
		slog.Int(string(AttrRetryTimes), retryCount),
		slog.String("referer", referer),
	)
}

func (r *Recorder) RecordItem(kind string, sourceUrl string, attrs []Attribute) {
	args := []any{
		slog.String(string(AttrItemKind), kind),
		slog.String(string(AttrURL), sourceUrl),
	}
	r.logger.Debug("scraped", append(args, toSlog(attrs)...)...)
}

func (r *Recorder) RecordDrop(kind string, sourceUrl string, reason string) {
	r.logger.Warn("dropped",
		slog.String(string(AttrItemKind), kind),
		slog.String(string(AttrURL), sourceUrl),
		slog.String(string(AttrReason), reason),
	)
}

func (r *Recorder) RecordLifecycle(event string, attrs []Attribute) {
	r.logger.Info(event, toSlog(attrs)...)
}

/*
RecordFinalCrawlStats records a terminal, derived summary of a completed crawl.

Contract:
  - MUST be called exactly once per crawl execution, after the engine stopped.
  - Recorded stats MUST NOT influence control flow or scheduling.
*/
func (r *Recorder) RecordFinalCrawlStats(counts map[string]int64, duration time.Duration) {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	attrs := make([]slog.Attr, 0, len(keys)+1)
	attrs = append(attrs, slog.Int64("duration_ms", duration.Milliseconds()))
	for _, k := range keys {
		attrs = append(attrs, slog.Int64(k, counts[k]))
	}
	r.logger.LogAttrs(context.Background(), slog.LevelInfo, "crawl finished", attrs...)
}

func toSlog(attrs []Attribute) []any {
	out := make([]any, 0, len(attrs))
	for _, a := range attrs {
		out = append(out, slog.String(string(a.Key), a.Value))
	}
	return out
}

type MetadataSink interface {
	RecordError(
		observedAt time.Time,
		packageName string,
		action string,
		cause ErrorCause,
		details string,
		attrs []Attribute,
	)

	RecordFetch(
		fetchUrl string,
		httpStatus int,
		duration time.Duration,
		contentType string,
		retryCount int,
		referer string,
	)
	RecordItem(kind string, sourceUrl string, attrs []Attribute)
	RecordDrop(kind string, sourceUrl string, reason string)
	RecordLifecycle(event string, attrs []Attribute)
}

type CrawlFinalizer interface {
	RecordFinalCrawlStats(counts map[string]int64, duration time.Duration)
}

// NoopSink, struct that implements metadata.MetadataSink but does nothing
// Engine (or Test) can decide whether to inject Recorder or NoopSink
// Purpose is to make metadata orthogonal
type NoopSink struct{}

func (n *NoopSink) RecordError(
	observedAt time.Time,
	packageName string,
	action string,
	cause ErrorCause,
	details string,
	attrs []Attribute,
) {
}

func (n *NoopSink) RecordFetch(
	fetchUrl string,
	httpStatus int,
	duration time.Duration,
	contentType string,
	retryCount int,
	referer string,
) {
}

func (n *NoopSink) RecordItem(kind string, sourceUrl string, attrs []Attribute) {}

func (n *NoopSink) RecordDrop(kind string, sourceUrl string, reason string) {}

func (n *NoopSink) RecordLifecycle(event string, attrs []Attribute) {}

func (n *NoopSink) RecordFinalCrawlStats(counts map[string]int64, duration time.Duration) {}
