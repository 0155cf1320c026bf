package engine

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/downloader"
	"github.com/rohmanhakim/crawl-engine/internal/extractor"
	"github.com/rohmanhakim/crawl-engine/internal/fetcher"
	"github.com/rohmanhakim/crawl-engine/internal/fingerprint"
	"github.com/rohmanhakim/crawl-engine/internal/frontier"
	"github.com/rohmanhakim/crawl-engine/internal/jobstore"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/pipeline"
	"github.com/rohmanhakim/crawl-engine/internal/robots"
	"github.com/rohmanhakim/crawl-engine/internal/scheduler"
	"github.com/rohmanhakim/crawl-engine/internal/scraper"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
	"github.com/rohmanhakim/crawl-engine/pkg/urlutil"
)

// DefaultHeartbeat is how often the control loop wakes up without a kick.
const DefaultHeartbeat = time.Second

/*
 Engine is the control plane of a crawl.

 Control guarantees:
 - Only the engine loop pulls from the scheduler.
 - An origin is pulled from only while neither the downloader nor the
   scraper asks for backout.
 - Every dispatched request produces exactly one completion event; the
   engine is idle only when the scheduler is empty, both downstream
   components are idle and no completion event is outstanding.
 - Stopping never loses an accepted request: it is processed, discarded
   or left pending, and counted as such.
*/
type Engine struct {
	cfg          config.Config
	crawlID      string
	metadataSink metadata.MetadataSink
	finalizer    metadata.CrawlFinalizer
	stats        *stats.Collector
	scheduler    *scheduler.Scheduler
	downloader   *downloader.Downloader
	scraper      *scraper.Scraper
	pipeline     crawl.ItemPipeline
	heartbeat    time.Duration

	mu        sync.Mutex
	state     State
	reason    string
	forced    bool
	flushing  bool
	origins   map[string]*origin
	order     []string
	next      int
	startedAt time.Time
	summary   Summary

	// completion events not yet posted back, per origin
	trackMu     sync.Mutex
	inflight    map[string]int
	outstanding int

	kick chan struct{}
	done chan struct{}
}

// Deps overrides the collaborators NewEngine would otherwise build from cfg.
// Zero fields fall back to the defaults.
type Deps struct {
	CrawlID      string
	MetadataSink metadata.MetadataSink
	Finalizer    metadata.CrawlFinalizer
	Stats        *stats.Collector
	Transport    crawl.Transport
	Extractors   scraper.Extractors
	Pipeline     crawl.ItemPipeline
	Heartbeat    time.Duration
}

func NewEngine(cfg config.Config, metadataSink metadata.MetadataSink) (*Engine, error) {
	return NewEngineWithDeps(cfg, Deps{MetadataSink: metadataSink})
}

// NewEngineWithDeps wires the scheduler, downloader and scraper around the
// given collaborators. The transport is always wrapped by the robots guard
// when cfg obeys robots.txt.
func NewEngineWithDeps(cfg config.Config, deps Deps) (*Engine, error) {
	sink := deps.MetadataSink
	if sink == nil {
		sink = &metadata.NoopSink{}
	}
	finalizer := deps.Finalizer
	if finalizer == nil {
		if f, ok := sink.(metadata.CrawlFinalizer); ok {
			finalizer = f
		}
	}
	collector := deps.Stats
	if collector == nil {
		collector = stats.NewCollector()
	}
	crawlID := deps.CrawlID
	if crawlID == "" {
		crawlID = uuid.NewString()
	}
	heartbeat := deps.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	sched, err := newScheduler(cfg, sink, collector)
	if err != nil {
		return nil, err
	}

	delays := downloader.NewDelayResolver(cfg)
	transport := deps.Transport
	if transport == nil {
		transport = fetcher.NewHTTPTransport(cfg, sink)
	}
	transport = robots.Wrap(cfg, transport, delays, sink)

	extractors := deps.Extractors
	if extractors == nil {
		extractors = extractor.NewDefaultRegistry(cfg, sink)
	}
	items := deps.Pipeline
	if items == nil {
		items = pipeline.NewDefaultChain(sink)
	}

	e := &Engine{
		cfg:          cfg,
		crawlID:      crawlID,
		metadataSink: sink,
		finalizer:    finalizer,
		stats:        collector,
		scheduler:    sched,
		pipeline:     items,
		heartbeat:    heartbeat,
		state:        StateIdle,
		origins:      make(map[string]*origin),
		inflight:     make(map[string]int),
		kick:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	e.downloader = downloader.NewDownloader(cfg, transport, delays, sink, collector)
	e.scraper = scraper.NewScraper(cfg, extractors, items, e, sink, collector)
	return e, nil
}

// newScheduler backs the scheduler with the job directory when one is
// configured, otherwise with memory.
func newScheduler(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
	collector *stats.Collector,
) (*scheduler.Scheduler, error) {
	fp := fingerprint.New(
		fingerprint.WithAlgo(cfg.FingerprintAlgo()),
		fingerprint.WithHeaders(cfg.FingerprintHeaders()...),
	)
	onError := func(action string, err error) {
		metadataSink.RecordError(
			time.Now(),
			"frontier",
			action,
			metadata.CauseStorageFailure,
			err.Error(),
			[]metadata.Attribute{
				metadata.NewAttr(metadata.AttrPath, cfg.JobDir()),
			},
		)
	}

	if cfg.JobDir() == "" {
		return scheduler.NewScheduler(
			frontier.NewDupeFilter(fp, nil, onError),
			frontier.NewMemoryStore(),
			metadataSink,
			collector,
		), nil
	}

	js, err := jobstore.Open(context.Background(), cfg.JobDir())
	if err != nil {
		return nil, &EngineError{Message: err.Error(), Cause: ErrCauseSetupFailed}
	}
	pending := frontier.NewDiskStore(js, onError, js.Close)
	pending.OnDiscard(func() { collector.Inc(stats.Discarded) })
	return scheduler.NewScheduler(
		frontier.NewDupeFilter(fp, js, onError),
		pending,
		metadataSink,
		collector,
	), nil
}

func (e *Engine) CrawlID() string {
	return e.crawlID
}

func (e *Engine) Stats() *stats.Collector {
	return e.stats
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Start restores the job directory, enqueues seeds and starts the control
// loop. Without seeds the configured seed URLs are used. Cancelling ctx is
// the same as Stop(false).
func (e *Engine) Start(ctx context.Context, seeds ...*crawl.Request) error {
	e.mu.Lock()
	if e.state != StateIdle {
		state := e.state
		e.mu.Unlock()
		return &EngineError{Message: fmt.Sprintf("engine is %s", state), Cause: ErrCauseAlreadyStarted}
	}
	if err := e.scheduler.Open(ctx); err != nil {
		e.recordError("Engine.Start", err, nil)
		e.state = StateStopped
		e.reason = ReasonShutdown
		e.summary = Summary{CrawlID: e.crawlID, Reason: ReasonShutdown}
		e.mu.Unlock()
		_ = e.scheduler.Close()
		close(e.done)
		return &EngineError{Message: err.Error(), Cause: ErrCauseStartFailed}
	}
	e.state = StateRunning
	e.startedAt = time.Now()
	e.mu.Unlock()

	e.metadataSink.RecordLifecycle("engine started", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrState, string(StateRunning)),
	})

	if len(seeds) == 0 {
		seeds = e.seedRequests()
	}
	for _, seed := range seeds {
		// failures are counted and recorded by the scheduler
		_, _ = e.Enqueue(seed)
	}

	go e.loop(ctx)
	e.signal()
	return nil
}

func (e *Engine) seedRequests() []*crawl.Request {
	urls := e.cfg.SeedURLs()
	seeds := make([]*crawl.Request, 0, len(urls))
	for _, u := range urls {
		req, err := crawl.NewRequestFromURL(u)
		if err != nil {
			e.recordError("Engine.seedRequests", err, []metadata.Attribute{
				metadata.NewAttr(metadata.AttrURL, u.String()),
			})
			continue
		}
		seeds = append(seeds, req)
	}
	return seeds
}

// Crawl runs a whole crawl and returns its summary.
func (e *Engine) Crawl(ctx context.Context, seeds ...*crawl.Request) (Summary, error) {
	if err := e.Start(ctx, seeds...); err != nil {
		return Summary{}, err
	}
	return e.Wait(), nil
}

// Wait blocks until the engine stopped and returns the final summary.
func (e *Engine) Wait() Summary {
	<-e.done
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.summary
}

// Done is closed once the engine is stopped and flushed.
func (e *Engine) Done() <-chan struct{} {
	return e.done
}

// Enqueue hands req to the scheduler. Requests for an origin closed with
// CloseOrigin are discarded and counted; they were never accepted.
func (e *Engine) Enqueue(req *crawl.Request) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateIdle || e.state == StateStopped || e.flushing {
		return false, &EngineError{Message: fmt.Sprintf("engine is %s", e.state), Cause: ErrCauseNotRunning}
	}
	if o, ok := e.origins[req.OriginKey()]; ok && o.held {
		e.stats.Inc(stats.ClosedOrigin)
		u := req.URL()
		e.metadataSink.RecordDrop("request", u.String(), "origin closed")
		return false, nil
	}

	accepted, err := e.scheduler.Enqueue(req)
	if accepted {
		e.signal()
	}
	return accepted, err
}

/*
Stop ends the crawl.

Stop(false) stops pulling and lets every in-flight fetch and scrape finish.
Stop(true) additionally cancels in-flight fetches and discards outcomes still
waiting for the scraper. Requests left in the scheduler are counted as
pending_remaining either way. Stop can be called again with force=true to
escalate a graceful stop.
*/
func (e *Engine) Stop(force bool) {
	e.mu.Lock()
	switch e.state {
	case StateStopped:
		e.mu.Unlock()
		return
	case StateIdle:
		e.state = StateStopped
		e.reason = ReasonShutdown
		e.summary = Summary{CrawlID: e.crawlID, Reason: ReasonShutdown}
		e.mu.Unlock()
		_ = e.scheduler.Close()
		close(e.done)
		return
	case StateRunning:
		e.state = StateClosing
		e.reason = ReasonShutdown
		e.metadataSink.RecordLifecycle("engine closing", []metadata.Attribute{
			metadata.NewAttr(metadata.AttrState, string(StateClosing)),
			metadata.NewAttr(metadata.AttrReason, ReasonShutdown),
		})
	}
	escalate := force && !e.forced
	if escalate {
		e.forced = true
		if e.reason != ReasonFinished {
			e.reason = ReasonForced
		}
	}
	e.mu.Unlock()

	if escalate {
		cancelled := e.downloader.CancelAll()
		discarded := e.scraper.DiscardQueued()
		e.metadataSink.RecordLifecycle("engine force stop", []metadata.Attribute{
			metadata.NewAttr(metadata.AttrReason, fmt.Sprintf("cancelled %d fetches, discarded %d outcomes", cancelled, discarded)),
		})
	}
	e.signal()
}

// OpenOrigin lifts a CloseOrigin hold. Opening an unknown origin registers it
// so it shows up in Status until it goes idle.
func (e *Engine) OpenOrigin(raw string) error {
	key, err := ParseOriginKey(raw)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return &EngineError{Message: "engine is stopped", Cause: ErrCauseNotRunning}
	}

	o, ok := e.origins[key]
	if !ok {
		e.addOrigin(key)
	} else {
		o.held = false
		if o.state == OriginClosed || o.state == OriginClosing {
			o.state = OriginOpening
		}
	}
	e.metadataSink.RecordLifecycle("origin opened", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrOrigin, key),
	})
	e.signal()
	return nil
}

// CloseOrigin discards the origin's pending requests and refuses new ones
// until OpenOrigin. In-flight work for it drains normally.
func (e *Engine) CloseOrigin(raw string) error {
	key, err := ParseOriginKey(raw)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateStopped {
		return &EngineError{Message: "engine is stopped", Cause: ErrCauseNotRunning}
	}

	o, ok := e.origins[key]
	if !ok {
		o = e.addOrigin(key)
	}
	o.held = true
	if o.state != OriginClosed {
		o.state = OriginClosing
	}
	if n := e.scheduler.DiscardOrigin(key); n > 0 {
		e.stats.Add(stats.Discarded, int64(n))
	}
	e.metadataSink.RecordLifecycle("origin closing", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrOrigin, key),
		metadata.NewAttr(metadata.AttrReason, "closed by request"),
	})
	e.signal()
	return nil
}

// ParseOriginKey accepts an origin key, a URL or a bare host and returns the
// canonical scheme://host:port key. A bare host is taken as https.
func ParseOriginKey(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", &EngineError{Message: "empty origin", Cause: ErrCauseInvalidOrigin}
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", &EngineError{Message: err.Error(), Cause: ErrCauseInvalidOrigin}
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &EngineError{Message: fmt.Sprintf("not an http(s) origin: %q", raw), Cause: ErrCauseInvalidOrigin}
	}
	return urlutil.OriginKey(*u), nil
}

func (e *Engine) signal() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context) {
	ticker := time.NewTicker(e.heartbeat)
	defer ticker.Stop()

	cancelled := ctx.Done()
	for {
		select {
		case <-e.kick:
		case <-ticker.C:
		case <-cancelled:
			cancelled = nil
			e.Stop(false)
		}
		if e.step() {
			e.finish()
			return
		}
	}
}

// step runs one control round and reports whether the engine may flush.
func (e *Engine) step() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == StateRunning {
		e.admitOrigins()
		e.pull()
		e.closeIdleOrigins()
		if e.idle() {
			e.state = StateClosing
			e.reason = ReasonFinished
			e.metadataSink.RecordLifecycle("engine closing", []metadata.Attribute{
				metadata.NewAttr(metadata.AttrState, string(StateClosing)),
				metadata.NewAttr(metadata.AttrReason, ReasonFinished),
			})
		}
	}
	return e.state == StateClosing && e.drained()
}

func (e *Engine) addOrigin(key string) *origin {
	o := &origin{key: key, state: OriginOpening}
	e.origins[key] = o
	e.order = append(e.order, key)
	return o
}

func (e *Engine) removeOrigin(idx int) {
	delete(e.origins, e.order[idx])
	e.order = append(e.order[:idx], e.order[idx+1:]...)
	if e.next > idx {
		e.next--
	}
	if e.next >= len(e.order) {
		e.next = 0
	}
}

// admitOrigins opens every origin the scheduler holds requests for.
// Caller holds e.mu.
func (e *Engine) admitOrigins() {
	for _, key := range e.scheduler.Origins() {
		o, ok := e.origins[key]
		if !ok {
			e.addOrigin(key)
			e.metadataSink.RecordLifecycle("origin opened", []metadata.Attribute{
				metadata.NewAttr(metadata.AttrOrigin, key),
			})
			continue
		}
		if o.held {
			if n := e.scheduler.DiscardOrigin(key); n > 0 {
				e.stats.Add(stats.Discarded, int64(n))
			}
		}
	}
}

// pull hands requests to the downloader, one origin at a time in round-robin
// order, until something asks for backout. Caller holds e.mu.
func (e *Engine) pull() {
	n := len(e.order)
	if n == 0 {
		return
	}
	start := e.next
	e.next = (e.next + 1) % n
	for i := 0; i < n; i++ {
		if e.downloader.NeedsBackout() {
			return
		}
		o := e.origins[e.order[(start+i)%n]]
		if o.held {
			continue
		}
		if o.state == OriginOpening {
			o.state = OriginRunning
		}
		if o.state != OriginRunning {
			continue
		}
		for !e.downloader.NeedsBackout() &&
			!e.downloader.OriginNeedsBackout(o.key) &&
			!e.scraper.NeedsBackout(o.key) {
			req, ok := e.scheduler.NextRequestFor(o.key)
			if !ok {
				break
			}
			e.dispatch(req)
		}
	}
}

func (e *Engine) dispatch(req *crawl.Request) {
	origin := req.OriginKey()
	e.track(origin, 1)
	f := e.downloader.Fetch(req)
	go e.watch(origin, f)
}

// watch routes the outcome of f to the scraper and posts the completion
// event once the scraper is done with it.
func (e *Engine) watch(origin string, f *downloader.Future) {
	<-f.Done()
	e.scraper.EnqueueScrape(f.Outcome(), func() {
		e.track(origin, -1)
		e.signal()
	})
}

func (e *Engine) track(origin string, delta int) {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	e.outstanding += delta
	e.inflight[origin] += delta
	if e.inflight[origin] <= 0 {
		delete(e.inflight, origin)
	}
}

func (e *Engine) outstandingFor(origin string) int {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	return e.inflight[origin]
}

func (e *Engine) outstandingTotal() int {
	e.trackMu.Lock()
	defer e.trackMu.Unlock()
	return e.outstanding
}

func (e *Engine) originIdle(key string) bool {
	return e.scheduler.PendingFor(key) == 0 &&
		e.outstandingFor(key) == 0 &&
		e.downloader.OriginIdle(key) &&
		e.scraper.OriginIdle(key)
}

// closeIdleOrigins tears down the slots of every origin without work. An
// origin closed by request stays listed, closed, until OpenOrigin.
// Caller holds e.mu.
func (e *Engine) closeIdleOrigins() {
	for i := 0; i < len(e.order); {
		key := e.order[i]
		o := e.origins[key]
		if o.state == OriginClosed || !e.originIdle(key) {
			i++
			continue
		}
		o.state = OriginClosing
		if !e.downloader.CloseSlot(key) || !e.scraper.CloseSlot(key) {
			if !o.held {
				o.state = OriginRunning
			}
			i++
			continue
		}
		o.state = OriginClosed
		e.metadataSink.RecordLifecycle("origin closed", []metadata.Attribute{
			metadata.NewAttr(metadata.AttrOrigin, key),
		})
		if o.held {
			i++
			continue
		}
		e.removeOrigin(i)
	}
}

func (e *Engine) idle() bool {
	return !e.scheduler.HasPendingRequests() && e.drained()
}

func (e *Engine) drained() bool {
	return e.outstandingTotal() == 0 && e.downloader.IsIdle() && e.scraper.IsIdle()
}

// finish flushes every component and moves the engine to Stopped. It runs
// on the loop goroutine once nothing is in flight.
func (e *Engine) finish() {
	e.mu.Lock()
	e.flushing = true
	reason := e.reason
	startedAt := e.startedAt
	e.mu.Unlock()

	e.stats.Set(stats.PendingRemaining, int64(e.scheduler.Pending()))
	if err := e.scheduler.Close(); err != nil {
		e.recordError("Scheduler.Close", err, nil)
	}
	e.downloader.Close()
	e.scraper.Close()
	if err := e.pipeline.Close(context.Background()); err != nil {
		e.recordError("ItemPipeline.Close", &EngineError{Message: err.Error(), Cause: ErrCauseFlushFailed}, nil)
	}

	finishedAt := time.Now()
	counts := e.stats.Snapshot()
	summary := newSummary(counts)
	summary.CrawlID = e.crawlID
	summary.Reason = reason
	summary.StartedAt = startedAt
	summary.FinishedAt = finishedAt
	summary.Duration = finishedAt.Sub(startedAt)
	if e.finalizer != nil {
		e.finalizer.RecordFinalCrawlStats(counts, summary.Duration)
	}

	e.mu.Lock()
	e.state = StateStopped
	e.summary = summary
	e.mu.Unlock()

	e.metadataSink.RecordLifecycle("engine stopped", []metadata.Attribute{
		metadata.NewAttr(metadata.AttrState, string(StateStopped)),
		metadata.NewAttr(metadata.AttrReason, reason),
	})
	close(e.done)
}

func (e *Engine) recordError(action string, err error, attrs []metadata.Attribute) {
	e.metadataSink.RecordError(
		time.Now(),
		"engine",
		action,
		mapEngineErrorToMetadataCause(err),
		err.Error(),
		attrs,
	)
}
