package scraper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
	"github.com/rohmanhakim/crawl-engine/pkg/retry"
)

/*
 Scraper turns outcomes into follow-up requests and items, per origin:
 - at most scraperConcurrency outcomes are processed at once
 - the rest wait in the origin's FIFO queue
 - queued plus active work at or above scraperQueueCeiling, or more than
   scraperMaxActiveSize bytes held, makes the origin back out

 Every outcome handed in ends in exactly one disposition counter. A failing
 outcome never affects the others queued behind it.
*/

// Extractors resolves the callback name of a request.
type Extractors interface {
	Lookup(name string) (crawl.Extractor, bool)
}

// Enqueuer accepts follow-up requests and retry copies.
type Enqueuer interface {
	Enqueue(req *crawl.Request) (bool, error)
}

type Scraper struct {
	mu           sync.Mutex
	extractors   Extractors
	pipeline     crawl.ItemPipeline
	enqueuer     Enqueuer
	filters      []RequestFilter
	retryPolicy  retry.Policy
	allowedCodes map[int]struct{}
	metadataSink metadata.MetadataSink
	stats        *stats.Collector

	concurrency   int
	queueCeiling  int
	maxActiveSize int

	slots map[string]*slot

	ctx    context.Context
	cancel context.CancelFunc
}

func NewScraper(
	cfg config.Config,
	extractors Extractors,
	pipeline crawl.ItemPipeline,
	enqueuer Enqueuer,
	metadataSink metadata.MetadataSink,
	collector *stats.Collector,
) *Scraper {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	if pipeline == nil {
		pipeline = passThrough{}
	}
	allowed := make(map[int]struct{})
	for _, code := range cfg.AllowedHTTPCodes() {
		allowed[code] = struct{}{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scraper{
		extractors:    extractors,
		pipeline:      pipeline,
		enqueuer:      enqueuer,
		filters:       DefaultFilters(cfg),
		retryPolicy:   cfg.RetryPolicy(),
		allowedCodes:  allowed,
		metadataSink:  metadataSink,
		stats:         collector,
		concurrency:   cfg.ScraperConcurrency(),
		queueCeiling:  cfg.ScraperQueueCeiling(),
		maxActiveSize: cfg.ScraperMaxActiveSize(),
		slots:         make(map[string]*slot),
		ctx:           ctx,
		cancel:        cancel,
	}
}

// Use appends request filters after the configured ones. Call before the crawl starts.
func (s *Scraper) Use(filters ...RequestFilter) {
	s.filters = append(s.filters, filters...)
}

// EnqueueScrape queues outcome on its origin. done, if set, runs once the
// outcome is fully processed and its capacity released.
func (s *Scraper) EnqueueScrape(outcome crawl.Outcome, done func()) {
	w := &work{
		outcome: outcome,
		size:    max(outcome.Size(), minResponseSize),
		done:    done,
	}

	s.mu.Lock()
	sl := s.slotFor(outcome.Request().OriginKey())
	sl.queue.Enqueue(w)
	sl.activeSize += w.size
	s.process(sl)
	s.mu.Unlock()
}

func (s *Scraper) slotFor(origin string) *slot {
	sl, ok := s.slots[origin]
	if !ok {
		sl = newSlot(origin)
		s.slots[origin] = sl
	}
	return sl
}

// process starts queued work while the slot has capacity. Caller holds s.mu.
func (s *Scraper) process(sl *slot) {
	for sl.active < s.concurrency && sl.queue.Size() > 0 {
		w, _ := sl.queue.Dequeue()
		sl.active++
		go s.run(sl, w)
	}
}

func (s *Scraper) run(sl *slot, w *work) {
	s.scrape(w.outcome)

	s.mu.Lock()
	sl.active--
	sl.activeSize -= w.size
	s.process(sl)
	s.mu.Unlock()

	if w.done != nil {
		w.done()
	}
}

func (s *Scraper) scrape(outcome crawl.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			req := outcome.Request()
			s.stats.Inc(stats.ExtractionFailed)
			s.recordError(req, "Scraper.scrape", metadata.CauseInvariantViolation, fmt.Sprintf("scrape panicked: %v", r))
		}
	}()

	if outcome.Failure != nil {
		s.handleFailure(outcome.Failure)
		return
	}
	s.handleResponse(outcome.Response)
}

func (s *Scraper) handleFailure(f *crawl.Failure) {
	switch f.Kind() {
	case crawl.KindIgnored:
		s.stats.Inc(stats.Ignored)
		return
	case crawl.KindCancelled:
		s.stats.Inc(stats.Discarded)
		return
	}
	if f.Err().IsRetryable() && s.retry(f.Request()) {
		return
	}
	s.stats.Inc(stats.FetchFailed)
}

func (s *Scraper) handleResponse(resp *crawl.Response) {
	req := resp.Request()
	status := resp.Status()

	if s.retryPolicy.RetryStatus(status) && s.retry(req) {
		return
	}
	if !s.statusAllowed(status) {
		s.stats.Inc(stats.HTTPErrorIgnored)
		u := resp.URL()
		s.metadataSink.RecordDrop("response", u.String(), "http status "+strconv.Itoa(status)+" is not handled or not allowed")
		return
	}

	results, extErr := s.extract(resp)
	s.emit(results)
	if extErr != nil {
		s.stats.Inc(stats.ExtractionFailed)
		return
	}
	s.stats.Inc(stats.Processed)
}

func (s *Scraper) statusAllowed(status int) bool {
	if status >= 200 && status < 300 {
		return true
	}
	_, ok := s.allowedCodes[status]
	return ok
}

// retry schedules a retry copy of req and reports whether it was accepted.
func (s *Scraper) retry(req *crawl.Request) bool {
	if !s.retryPolicy.Allows(req.RetryTimes()) {
		s.stats.Inc(stats.RetryMaxReached)
		return false
	}
	accepted, err := s.enqueuer.Enqueue(req.RetryCopy(s.retryPolicy.PriorityAdjust()))
	if err != nil || !accepted {
		return false
	}
	s.stats.Inc(stats.Retried)
	s.stats.Inc(stats.RetryScheduled)
	return true
}

// extract runs the extractor named by the request callback. Results produced
// before an error are still returned.
func (s *Scraper) extract(resp *crawl.Response) (results []crawl.Result, extErr *crawl.ExtractionError) {
	req := resp.Request()
	extractor, ok := s.extractors.Lookup(req.Callback())
	if !ok {
		extErr = &crawl.ExtractionError{
			Message: fmt.Sprintf("no extractor named %q", req.Callback()),
			Cause:   crawl.ErrCauseUnknownExtractor,
		}
		s.reportExtraction(req, extErr)
		return nil, extErr
	}

	defer func() {
		if r := recover(); r != nil {
			results = nil
			extErr = &crawl.ExtractionError{
				Message: fmt.Sprintf("%v", r),
				Cause:   crawl.ErrCauseExtractorPanic,
			}
			s.reportExtraction(req, extErr)
		}
	}()

	results, err := extractor.Parse(s.ctx, resp)
	if err != nil {
		extErr = &crawl.ExtractionError{
			Message: err.Error(),
			Cause:   crawl.ErrCauseExtractorFailed,
		}
		s.reportExtraction(req, extErr)
	}
	return results, extErr
}

func (s *Scraper) reportExtraction(req *crawl.Request, err *crawl.ExtractionError) {
	s.stats.Inc(stats.ExtractorErrors)
	s.recordError(req, "Scraper.extract", mapExtractionErrorToMetadataCause(err), err.Error())
}

// emit routes results in emission order: requests to the enqueuer through
// the filters, items through the pipeline one at a time.
func (s *Scraper) emit(results []crawl.Result) {
	for _, result := range results {
		switch r := result.(type) {
		case *crawl.Request:
			s.enqueueChild(r)
		case crawl.Item:
			s.processItem(r)
		}
	}
}

func (s *Scraper) enqueueChild(req *crawl.Request) {
	for _, filter := range s.filters {
		if ok, reason := filter.Allow(req); !ok {
			s.stats.Inc(filter.Name() + "/request_ignored_count")
			u := req.URL()
			s.metadataSink.RecordDrop("request", u.String(), reason)
			return
		}
	}
	// rejections and failures are counted by the scheduler
	_, _ = s.enqueuer.Enqueue(req)
}

func (s *Scraper) processItem(item crawl.Item) {
	err := s.runPipeline(item)
	if err == nil {
		s.stats.Inc(stats.ItemsScraped)
		return
	}
	if drop, ok := crawl.IsDrop(err); ok {
		s.stats.Inc(stats.ItemsDropped)
		s.metadataSink.RecordDrop(item.Kind, item.SourceURL, drop.Reason)
		return
	}
	s.stats.Inc(stats.ItemErrors)
	var pipelineErr *crawl.PipelineError
	if errors.As(err, &pipelineErr) && pipelineErr.Stage != "" {
		// recorded by the chain that named the stage
		return
	}
	s.metadataSink.RecordError(
		time.Now(),
		"scraper",
		"Scraper.processItem",
		metadata.CauseContentInvalid,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, item.SourceURL),
			metadata.NewAttr(metadata.AttrItemKind, item.Kind),
		},
	)
}

func (s *Scraper) runPipeline(item crawl.Item) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &crawl.PipelineError{
				Message: fmt.Sprintf("%v", r),
				Cause:   crawl.ErrCauseStagePanic,
			}
		}
	}()
	_, err = s.pipeline.Process(s.ctx, item)
	return err
}

func (s *Scraper) recordError(req *crawl.Request, action string, cause metadata.ErrorCause, details string) {
	u := req.URL()
	s.metadataSink.RecordError(
		time.Now(),
		"scraper",
		action,
		cause,
		details,
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, u.String()),
			metadata.NewAttr(metadata.AttrOrigin, req.OriginKey()),
		},
	)
}

// NeedsBackout is true when origin holds as much work as its ceiling allows
// or more response bytes than maxActiveSize.
func (s *Scraper) NeedsBackout(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[origin]
	return ok && s.needsBackout(sl)
}

func (s *Scraper) needsBackout(sl *slot) bool {
	return sl.queue.Size()+sl.active >= s.queueCeiling || sl.activeSize > s.maxActiveSize
}

func (s *Scraper) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		if !sl.idle() {
			return false
		}
	}
	return true
}

func (s *Scraper) OriginIdle(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[origin]
	return !ok || sl.idle()
}

// CloseSlot forgets an idle origin. It returns false while work remains.
func (s *Scraper) CloseSlot(origin string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[origin]
	if !ok {
		return true
	}
	if !sl.idle() {
		return false
	}
	delete(s.slots, origin)
	return true
}

// DiscardQueued drops every outcome still waiting, counting each as discarded
// and running its done callback. Work already running finishes normally.
func (s *Scraper) DiscardQueued() int {
	s.mu.Lock()
	var dropped []*work
	for _, sl := range s.slots {
		for _, w := range sl.queue.Drain() {
			sl.activeSize -= w.size
			dropped = append(dropped, w)
		}
	}
	s.mu.Unlock()

	for _, w := range dropped {
		s.stats.Inc(stats.Discarded)
		if w.done != nil {
			w.done()
		}
	}
	return len(dropped)
}

// Close cancels the context handed to extractors and the pipeline.
func (s *Scraper) Close() {
	s.cancel()
}

func (s *Scraper) SlotStats() []SlotStat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotStat, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, s.stat(sl))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

func (s *Scraper) SlotStat(origin string) (SlotStat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[origin]
	if !ok {
		return SlotStat{}, false
	}
	return s.stat(sl), true
}

func (s *Scraper) stat(sl *slot) SlotStat {
	return SlotStat{
		Origin:       sl.origin,
		Active:       sl.active,
		Queued:       sl.queue.Size(),
		ActiveSize:   sl.activeSize,
		NeedsBackout: s.needsBackout(sl),
	}
}

type passThrough struct{}

func (passThrough) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	return item, nil
}

func (passThrough) Close(ctx context.Context) error {
	return nil
}
