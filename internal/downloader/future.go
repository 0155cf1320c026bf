package downloader

import (
	"context"
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

// Future is the completion signal of one Fetch. Done is closed exactly once,
// after which Outcome holds either a Response or a Failure.
type Future struct {
	req     *crawl.Request
	owner   *Downloader
	done    chan struct{}
	once    sync.Once
	outcome crawl.Outcome

	mu        sync.Mutex
	cancelFn  context.CancelFunc
	cancelled bool
}

func newFuture(req *crawl.Request, owner *Downloader) *Future {
	return &Future{
		req:   req,
		owner: owner,
		done:  make(chan struct{}),
	}
}

func (f *Future) Request() *crawl.Request {
	return f.req
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Outcome blocks until the future completes.
func (f *Future) Outcome() crawl.Outcome {
	<-f.done
	return f.outcome
}

// Cancel aborts the fetch best-effort. A queued request completes right away
// as a Cancelled failure; a dispatched one has its transport context cancelled.
func (f *Future) Cancel() {
	f.mu.Lock()
	f.cancelled = true
	cancel := f.cancelFn
	f.mu.Unlock()

	if cancel != nil {
		cancel()
		return
	}
	if f.owner != nil {
		f.owner.dequeueCancelled(f)
	}
}

// attach binds the transport context's cancel func. It returns false when the
// future was cancelled before dispatch.
func (f *Future) attach(cancel context.CancelFunc) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelFn = cancel
	return !f.cancelled
}

func (f *Future) complete(outcome crawl.Outcome) {
	f.once.Do(func() {
		f.outcome = outcome
		close(f.done)
	})
}

func cancelledOutcome(req *crawl.Request) crawl.Outcome {
	return crawl.Outcome{
		Failure: crawl.NewFailure(req, crawl.NewTransportError(crawl.KindCancelled, context.Canceled)),
	}
}
