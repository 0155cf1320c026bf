package limiter

import "time"

// per-origin politeness state; the slot that owns dispatch timing keeps lastSend itself
type originTiming struct {
	backoffDelay time.Duration
	crawlDelay   time.Duration
	backoffCount int
}

func (o originTiming) CrawlDelay() time.Duration {
	return o.crawlDelay
}

func (o originTiming) BackoffDelay() time.Duration {
	return o.backoffDelay
}

func (o originTiming) BackoffCount() int {
	return o.backoffCount
}
