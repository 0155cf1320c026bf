package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/frontier"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
)

/*
 Scheduler decides which requests enter the pending set and which one
 leaves it next.

 Admission guarantees:
 - Every request passes the dedup filter before it reaches the store.
 - A request filtered as duplicate is counted, never stored.
 - A request the store cannot serialize is counted, reported and dropped;
   the store is left untouched.
 - has_pending_requests is true iff the store is non-empty.

 The scheduler never dispatches anything itself; the engine pulls.
*/
type Scheduler struct {
	metadataSink metadata.MetadataSink
	dupefilter   *frontier.DupeFilter
	store        frontier.Store
	stats        *stats.Collector
}

func NewScheduler(
	dupefilter *frontier.DupeFilter,
	store frontier.Store,
	metadataSink metadata.MetadataSink,
	collector *stats.Collector,
) *Scheduler {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	return &Scheduler{
		metadataSink: metadataSink,
		dupefilter:   dupefilter,
		store:        store,
		stats:        collector,
	}
}

// Open restores the persisted seen set, if any.
func (s *Scheduler) Open(ctx context.Context) error {
	if err := s.dupefilter.Open(ctx); err != nil {
		return &SchedulerError{Message: err.Error(), Cause: ErrCauseOpenFailed}
	}
	// requests left pending by an earlier run count as accepted in this one
	if n := s.store.Len(); n > 0 {
		s.stats.Add(stats.Resumed, int64(n))
	}
	return nil
}

// Enqueue returns true when req was accepted, false when it was filtered as a
// duplicate. An error means the request was dropped.
func (s *Scheduler) Enqueue(req *crawl.Request) (bool, error) {
	dup, err := s.dupefilter.Seen(req)
	if err != nil {
		s.stats.Inc(stats.EnqueueFailed)
		s.reportError(req, "DupeFilter.Seen", err)
		return false, &SchedulerError{Message: err.Error(), Cause: ErrCauseFingerprintFailed}
	}
	if dup {
		s.stats.Inc(stats.Filtered)
		return false, nil
	}

	if err := s.store.Push(req); err != nil {
		s.stats.Inc(stats.EnqueueFailed)
		s.reportError(req, "Scheduler.Enqueue", err)
		var serr *crawl.SerializationError
		if errors.As(err, &serr) {
			return false, serr
		}
		return false, &SchedulerError{Message: err.Error(), Cause: ErrCauseStoreFailed}
	}
	s.stats.Inc(stats.Enqueued)
	return true, nil
}

// NextRequest pops the globally highest-priority request.
func (s *Scheduler) NextRequest() (*crawl.Request, bool) {
	req, ok := s.store.Pop()
	if ok {
		s.stats.Inc(stats.Dequeued)
	}
	return req, ok
}

// NextRequestFor pops the highest-priority request of one origin.
func (s *Scheduler) NextRequestFor(origin string) (*crawl.Request, bool) {
	req, ok := s.store.PopOrigin(origin)
	if ok {
		s.stats.Inc(stats.Dequeued)
	}
	return req, ok
}

func (s *Scheduler) HasPendingRequests() bool {
	return s.store.Len() > 0
}

func (s *Scheduler) Pending() int {
	return s.store.Len()
}

func (s *Scheduler) PendingFor(origin string) int {
	return s.store.LenOrigin(origin)
}

// Origins lists origins with pending requests.
func (s *Scheduler) Origins() []string {
	return s.store.Origins()
}

// DiscardOrigin pops and drops every pending request of origin, returning how many.
func (s *Scheduler) DiscardOrigin(origin string) int {
	n := 0
	for {
		if _, ok := s.store.PopOrigin(origin); !ok {
			return n
		}
		n++
	}
}

// Close flushes the store. Pending requests stay in a persistent store.
func (s *Scheduler) Close() error {
	if err := s.store.Close(); err != nil {
		return &SchedulerError{Message: err.Error(), Cause: ErrCauseStoreFailed}
	}
	return nil
}

func (s *Scheduler) reportError(req *crawl.Request, action string, err error) {
	u := req.URL()
	s.metadataSink.RecordError(
		time.Now(),
		"scheduler",
		action,
		mapSchedulerErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, u.String()),
			metadata.NewAttr(metadata.AttrOrigin, req.OriginKey()),
		},
	)
}
