package frontier

import (
	"context"
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

// PendingPersistence is the durable backing of a DiskStore.
type PendingPersistence interface {
	Push(ctx context.Context, origin string, priority int, payload []byte) error
	Pop(ctx context.Context, origin string) ([]byte, bool, error)
	Len(ctx context.Context, origin string) (int, error)
	Origins(ctx context.Context) ([]string, error)
}

// ErrorReporter receives failures the Store interface cannot return.
type ErrorReporter func(action string, err error)

// DiskStore serializes every request into the job directory on push and reads
// it back on pop, so killing the process loses nothing that was accepted.
type DiskStore struct {
	mu      sync.Mutex
	backing PendingPersistence
	onError ErrorReporter
	discard func()
	closer  func() error
}

func NewDiskStore(backing PendingPersistence, onError ErrorReporter, closer func() error) *DiskStore {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &DiskStore{backing: backing, onError: onError, discard: func() {}, closer: closer}
}

// OnDiscard registers fn to run for every row dropped because it could not be
// decoded. The request was accepted once, so the caller owes it a disposition.
func (d *DiskStore) OnDiscard(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if fn == nil {
		fn = func() {}
	}
	d.discard = fn
}

// Push fails with a *crawl.SerializationError when req cannot be encoded; nothing is written then.
func (d *DiskStore) Push(req *crawl.Request) error {
	payload, err := crawl.EncodeRequest(req)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.backing.Push(context.Background(), req.OriginKey(), req.Priority(), payload)
}

func (d *DiskStore) Pop() (*crawl.Request, bool) {
	return d.pop("")
}

func (d *DiskStore) PopOrigin(origin string) (*crawl.Request, bool) {
	return d.pop(origin)
}

func (d *DiskStore) pop(origin string) (*crawl.Request, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for {
		payload, ok, err := d.backing.Pop(context.Background(), origin)
		if err != nil {
			d.onError("DiskStore.Pop", err)
			return nil, false
		}
		if !ok {
			return nil, false
		}
		req, err := crawl.DecodeRequest(payload)
		if err != nil {
			// a corrupt row is reported and skipped
			d.onError("DiskStore.Pop", err)
			d.discard()
			continue
		}
		return req, true
	}
}

func (d *DiskStore) Len() int {
	return d.LenOrigin("")
}

func (d *DiskStore) LenOrigin(origin string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, err := d.backing.Len(context.Background(), origin)
	if err != nil {
		d.onError("DiskStore.Len", err)
		return 0
	}
	return n
}

func (d *DiskStore) Origins() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	origins, err := d.backing.Origins(context.Background())
	if err != nil {
		d.onError("DiskStore.Origins", err)
		return nil
	}
	return origins
}

func (d *DiskStore) Close() error {
	if d.closer == nil {
		return nil
	}
	return d.closer()
}
