package stats

import (
	"maps"
	"strings"
	"sync"
)

// Counter keys shared by the engine components.
const (
	Enqueued        = "scheduler/enqueued"
	Dequeued        = "scheduler/dequeued"
	Filtered        = "dupefilter/filtered"
	EnqueueFailed   = "scheduler/enqueue_failed"
	Resumed         = "scheduler/resumed"
	Requests        = "downloader/request_count"
	Responses       = "downloader/response_count"
	Exceptions      = "downloader/exception_count"
	ExceptionPrefix = "downloader/exception_type_count/"
	StatusPrefix    = "downloader/response_status_count/"
	Retried         = "retry/count"
	RetryMaxReached = "retry/max_reached"
	ItemsScraped    = "item_scraped_count"
	ItemsDropped    = "item_dropped_count"
	ItemErrors      = "item_error_count"
	ExtractorErrors = "extractor/exception_count"
	URLTooLong      = "urllength/request_ignored_count"
	ClosedOrigin    = "closed_origin/request_discarded_count"
)

// Terminal dispositions. Every accepted request ends in exactly one of them.
const (
	DispositionPrefix = "disposition/"
	Processed         = DispositionPrefix + "processed"
	ExtractionFailed  = DispositionPrefix + "extraction_failed"
	HTTPErrorIgnored  = DispositionPrefix + "http_error"
	FetchFailed       = DispositionPrefix + "fetch_failed"
	RetryScheduled    = DispositionPrefix + "retried"
	Ignored           = DispositionPrefix + "ignored"
	Discarded         = DispositionPrefix + "discarded"
	PendingRemaining  = DispositionPrefix + "pending_remaining"
)

var Dispositions = []string{
	Processed,
	ExtractionFailed,
	HTTPErrorIgnored,
	FetchFailed,
	RetryScheduled,
	Ignored,
	Discarded,
	PendingRemaining,
}

// Collector is a concurrency-safe bag of counters.
type Collector struct {
	mu     sync.Mutex
	values map[string]int64
}

func NewCollector() *Collector {
	return &Collector{values: make(map[string]int64)}
}

func (c *Collector) Inc(key string) {
	c.Add(key, 1)
}

func (c *Collector) Add(key string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] += n
}

func (c *Collector) Set(key string, v int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = v
}

func (c *Collector) Get(key string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *Collector) Snapshot() map[string]int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return maps.Clone(c.values)
}

// SumPrefix adds up every counter whose key starts with prefix.
func (c *Collector) SumPrefix(prefix string) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total int64
	for k, v := range c.values {
		if strings.HasPrefix(k, prefix) {
			total += v
		}
	}
	return total
}
