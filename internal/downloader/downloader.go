package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
	"github.com/rohmanhakim/crawl-engine/pkg/limiter"
	"golang.org/x/time/rate"
)

/*
 Downloader hands requests to the Transport while enforcing, per origin:
 - at most concurrentRequestsPerOrigin fetches in flight
 - a rest of at least the resolved delay between two dispatches
 - the optional token bucket

 and globally at most concurrentRequests fetches in flight.

 Requests that cannot go out yet wait in their slot's FIFO queue. A timer
 wakes a slot held back by its delay or bucket; a completion re-examines its
 own slot first, then every waiting slot in round-robin order.

 Transport errors never escape: they complete the Future as a Failure.
*/
type Downloader struct {
	mu           sync.Mutex
	transport    crawl.Transport
	delays       limiter.DelayResolver
	metadataSink metadata.MetadataSink
	stats        *stats.Collector

	concurrency       int
	originConcurrency int
	timeout           time.Duration
	queueCeiling      int
	rateLimit         rate.Limit
	rateBurst         int

	slots map[string]*slot
	// round-robin order of slots waiting on global capacity
	order []string
	next  int
	// readiness of closed slots, so a reopened origin still honors its delay
	cooldown map[string]time.Time
	active   int
	queued   int

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

func NewDownloader(
	cfg config.Config,
	transport crawl.Transport,
	delays limiter.DelayResolver,
	metadataSink metadata.MetadataSink,
	collector *stats.Collector,
) *Downloader {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	if collector == nil {
		collector = stats.NewCollector()
	}
	if delays == nil {
		delays = NewDelayResolver(cfg)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Downloader{
		transport:         transport,
		delays:            delays,
		metadataSink:      metadataSink,
		stats:             collector,
		concurrency:       cfg.ConcurrentRequests(),
		originConcurrency: cfg.ConcurrentRequestsPerOrigin(),
		timeout:           cfg.DownloadTimeout(),
		queueCeiling:      cfg.DownloaderQueueCeiling(),
		rateLimit:         rate.Limit(cfg.RateLimit()),
		rateBurst:         cfg.RateBurst(),
		slots:             make(map[string]*slot),
		cooldown:          make(map[string]time.Time),
		ctx:               ctx,
		cancel:            cancel,
	}
}

// NewDelayResolver builds the per-origin delay policy described by cfg.
func NewDelayResolver(cfg config.Config) *limiter.ConcurrentRateLimiter {
	l := limiter.NewConcurrentRateLimiter()
	l.SetBaseDelay(cfg.DownloadDelay())
	l.SetJitter(cfg.Jitter())
	l.SetRandomize(cfg.RandomizeDelay())
	l.SetBackoffParam(cfg.BackoffParam())
	l.SetRandomSeed(cfg.RandomSeed())
	return l
}

// Fetch queues req on its origin slot and dispatches it as soon as the slot allows.
func (d *Downloader) Fetch(req *crawl.Request) *Future {
	f := newFuture(req, d)

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		f.complete(cancelledOutcome(req))
		return f
	}
	s := d.slotFor(req.OriginKey())
	s.queue.Enqueue(f)
	d.queued++
	d.process(s)
	d.mu.Unlock()

	return f
}

func (d *Downloader) slotFor(origin string) *slot {
	if s, ok := d.slots[origin]; ok {
		return s
	}
	var bucket *rate.Limiter
	if d.rateLimit > 0 {
		bucket = rate.NewLimiter(d.rateLimit, d.rateBurst)
	}
	s := newSlot(origin, d.originConcurrency, bucket)
	if until, ok := d.cooldown[origin]; ok {
		now := time.Now()
		if until.After(now) {
			s.lastSend = now
			s.delay = until.Sub(now)
		}
		delete(d.cooldown, origin)
	}
	d.slots[origin] = s
	d.order = append(d.order, origin)
	return s
}

// process dispatches from s while every ceiling allows. Caller holds d.mu.
func (d *Downloader) process(s *slot) {
	for s.queue.Size() > 0 && s.hasCapacity() && d.active < d.concurrency {
		now := time.Now()
		if wait := s.readyAt().Sub(now); wait > 0 {
			d.wake(s, wait)
			return
		}
		if s.bucket != nil {
			r := s.bucket.ReserveN(now, 1)
			if wait := r.DelayFrom(now); wait > 0 {
				r.CancelAt(now)
				d.wake(s, wait)
				return
			}
		}
		f, _ := s.queue.Dequeue()
		d.queued--
		d.dispatch(s, f, now)
	}
}

// processWaiting re-examines slots with queued requests in round-robin order.
func (d *Downloader) processWaiting() {
	n := len(d.order)
	for i := 0; i < n && d.active < d.concurrency; i++ {
		idx := (d.next + i) % n
		s := d.slots[d.order[idx]]
		if s.queue.Size() == 0 {
			continue
		}
		before := d.active
		d.process(s)
		if d.active > before {
			d.next = (idx + 1) % n
		}
	}
}

func (d *Downloader) wake(s *slot, wait time.Duration) {
	if s.timer != nil {
		return
	}
	s.timer = time.AfterFunc(wait, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.slots[s.origin] != s {
			return
		}
		s.timer = nil
		d.process(s)
	})
}

func (d *Downloader) dispatch(s *slot, f *Future, now time.Time) {
	s.active++
	d.active++
	s.inflight[f] = struct{}{}
	s.lastSend = now
	s.delay = d.delays.NextDelay(s.origin)
	d.stats.Inc(stats.Requests)

	ctx, cancel := context.WithTimeout(d.ctx, d.timeout)
	if !f.attach(cancel) {
		cancel()
	}
	go d.send(ctx, cancel, s, f)
}

func (d *Downloader) send(ctx context.Context, cancel context.CancelFunc, s *slot, f *Future) {
	defer cancel()

	start := time.Now()
	resp, err := d.roundTrip(ctx, f.req)
	outcome := toOutcome(ctx, f.req, resp, err)

	d.finish(s, f, outcome, time.Since(start))
	f.complete(outcome)
}

// roundTrip runs the transport, turning a panic into an error of kind other.
func (d *Downloader) roundTrip(ctx context.Context, req *crawl.Request) (resp *crawl.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = nil
			err = crawl.NewTransportError(crawl.KindOther, fmt.Errorf("transport panicked: %v", r))
		}
	}()
	return d.transport.Send(ctx, req)
}

func toOutcome(ctx context.Context, req *crawl.Request, resp *crawl.Response, err error) crawl.Outcome {
	if err != nil {
		return crawl.Outcome{Failure: crawl.NewFailure(req, Classify(ctx, err))}
	}
	if resp == nil {
		return crawl.Outcome{
			Failure: crawl.NewFailure(req, crawl.NewTransportError(crawl.KindOther, errors.New("transport returned no response"))),
		}
	}
	return crawl.Outcome{Response: resp}
}

// finish releases capacity before the future completes, so a caller woken by
// Done already sees the slot freed.
func (d *Downloader) finish(s *slot, f *Future, outcome crawl.Outcome, elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s.active--
	d.active--
	delete(s.inflight, f)
	d.observe(s, f.req, outcome, elapsed)
	// the transport may have learned a crawl-delay while this request ran
	if next := d.delays.NextDelay(s.origin); next > s.delay {
		s.delay = next
	}

	d.process(s)
	d.processWaiting()
}

func (d *Downloader) observe(s *slot, req *crawl.Request, outcome crawl.Outcome, elapsed time.Duration) {
	u := req.URL()
	if outcome.Failure != nil {
		err := outcome.Failure.Err()
		d.stats.Inc(stats.Exceptions)
		d.stats.Inc(stats.ExceptionPrefix + string(err.Kind))
		if err.Kind == crawl.KindCancelled || err.Kind == crawl.KindIgnored {
			return
		}
		d.metadataSink.RecordError(
			time.Now(),
			"downloader",
			"Downloader.Fetch",
			crawl.MapTransportErrorToMetadataCause(err),
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, u.String()),
				metadata.NewAttr(metadata.AttrOrigin, s.origin),
				metadata.NewAttr(metadata.AttrErrorKind, string(err.Kind)),
			},
		)
		return
	}

	resp := outcome.Response
	status := resp.Status()
	d.stats.Inc(stats.Responses)
	d.stats.Inc(stats.StatusPrefix + strconv.Itoa(status))
	switch {
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		d.delays.Backoff(s.origin)
		s.delay = d.delays.NextDelay(s.origin)
	case status < 400:
		d.delays.ResetBackoff(s.origin)
	}
	d.metadataSink.RecordFetch(
		u.String(),
		status,
		elapsed,
		resp.ContentType(),
		req.RetryTimes(),
		req.Header("Referer"),
	)
}

func (d *Downloader) dequeueCancelled(f *Future) {
	d.mu.Lock()
	removed := false
	if s, ok := d.slots[f.req.OriginKey()]; ok {
		if _, removed = s.queue.RemoveFunc(func(q *Future) bool { return q == f }); removed {
			d.queued--
		}
	}
	d.mu.Unlock()

	if removed {
		f.complete(cancelledOutcome(f.req))
	}
}

// NeedsBackout is true once queued-but-undispatched requests reach the ceiling.
func (d *Downloader) NeedsBackout() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued >= d.queueCeiling
}

// OriginNeedsBackout is true when origin already has as many requests waiting
// as it may run at once; pulling more would only park them here.
func (d *Downloader) OriginNeedsBackout(origin string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[origin]
	return ok && s.queue.Size() >= s.concurrency
}

func (d *Downloader) IsIdle() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active == 0 && d.queued == 0
}

func (d *Downloader) OriginIdle(origin string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[origin]
	return !ok || s.idle()
}

func (d *Downloader) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *Downloader) Queued() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.queued
}

// CloseSlot tears down an idle origin slot. It returns false while the slot
// still has queued or in-flight work.
func (d *Downloader) CloseSlot(origin string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.slots[origin]
	if !ok {
		return true
	}
	if !s.idle() {
		return false
	}
	s.stopTimer()
	now := time.Now()
	for o, until := range d.cooldown {
		if !until.After(now) {
			delete(d.cooldown, o)
		}
	}
	if until := s.readyAt(); until.After(now) {
		d.cooldown[origin] = until
	}
	delete(d.slots, origin)
	for i, o := range d.order {
		if o == origin {
			d.order = append(d.order[:i], d.order[i+1:]...)
			if d.next > i {
				d.next--
			}
			break
		}
	}
	if len(d.order) == 0 || d.next >= len(d.order) {
		d.next = 0
	}
	d.delays.Forget(origin)
	return true
}

// CancelAll completes every queued request as Cancelled and asks the transport
// to abort every in-flight one. It returns how many futures were affected.
func (d *Downloader) CancelAll() int {
	d.mu.Lock()
	var queued, inflight []*Future
	for _, s := range d.slots {
		queued = append(queued, s.queue.Drain()...)
		for f := range s.inflight {
			inflight = append(inflight, f)
		}
		s.stopTimer()
	}
	d.queued = 0
	d.mu.Unlock()

	for _, f := range queued {
		f.complete(cancelledOutcome(f.req))
	}
	for _, f := range inflight {
		f.Cancel()
	}
	return len(queued) + len(inflight)
}

// Close refuses further fetches and cancels whatever is still running.
func (d *Downloader) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	d.CancelAll()
	d.cancel()
}

// SlotStats lists every open slot, sorted by origin.
func (d *Downloader) SlotStats() []SlotStat {
	d.mu.Lock()
	defer d.mu.Unlock()

	out := make([]SlotStat, 0, len(d.slots))
	for _, s := range d.slots {
		out = append(out, s.stat())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Origin < out[j].Origin })
	return out
}

// SlotStat returns the stats of one slot, if it is open.
func (d *Downloader) SlotStat(origin string) (SlotStat, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.slots[origin]
	if !ok {
		return SlotStat{}, false
	}
	return s.stat(), true
}
