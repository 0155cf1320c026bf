package frontier

import (
	"context"
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/fingerprint"
)

// SeenPersistence stores fingerprints beyond the life of the process.
type SeenPersistence interface {
	AddSeen(ctx context.Context, fp string) (bool, error)
	Seen(ctx context.Context) ([]string, error)
}

// DupeFilter answers "was this request scheduled before". The seen set only
// grows during a crawl.
// Write-through failures go to onError: the fingerprint stays recorded in
// memory and only a resumed crawl may revisit the request.
type DupeFilter struct {
	mu          sync.Mutex
	fp          fingerprint.Fingerprinter
	seen        Set[string]
	persistence SeenPersistence
	onError     ErrorReporter
}

func NewDupeFilter(fp fingerprint.Fingerprinter, persistence SeenPersistence, onError ErrorReporter) *DupeFilter {
	if onError == nil {
		onError = func(string, error) {}
	}
	return &DupeFilter{
		fp:          fp,
		seen:        NewSet[string](),
		persistence: persistence,
		onError:     onError,
	}
}

// Open loads previously persisted fingerprints.
func (d *DupeFilter) Open(ctx context.Context) error {
	if d.persistence == nil {
		return nil
	}
	fps, err := d.persistence.Seen(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, fp := range fps {
		d.seen.Add(fp)
	}
	return nil
}

// Seen records req and reports whether it is a duplicate. Requests marked
// DontFilter are never duplicates and are not recorded. The only error is a
// failure to compute the fingerprint.
func (d *DupeFilter) Seen(req *crawl.Request) (bool, error) {
	if req.DontFilter() {
		return false, nil
	}
	fp, err := d.fp.Fingerprint(req)
	if err != nil {
		return false, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.seen.Add(fp) {
		return true, nil
	}
	if d.persistence != nil {
		if _, err := d.persistence.AddSeen(context.Background(), fp); err != nil {
			d.onError("DupeFilter.Seen", err)
		}
	}
	return false, nil
}

func (d *DupeFilter) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Size()
}
