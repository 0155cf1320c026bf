package scheduler_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/fingerprint"
	"github.com/rohmanhakim/crawl-engine/internal/frontier"
	"github.com/rohmanhakim/crawl-engine/internal/jobstore"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/scheduler"
	"github.com/rohmanhakim/crawl-engine/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type metadataSinkMock struct {
	mock.Mock
}

func (m *metadataSinkMock) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, details string, attrs []metadata.Attribute) {
	m.Called(packageName, action, cause)
}
func (m *metadataSinkMock) RecordFetch(string, int, time.Duration, string, int, string) {}
func (m *metadataSinkMock) RecordItem(string, string, []metadata.Attribute)             {}
func (m *metadataSinkMock) RecordDrop(string, string, string)                           {}
func (m *metadataSinkMock) RecordLifecycle(string, []metadata.Attribute)                {}

func newMemorySchedulerForTest(t *testing.T) (*scheduler.Scheduler, *stats.Collector) {
	t.Helper()
	collector := stats.NewCollector()
	s := scheduler.NewScheduler(
		frontier.NewDupeFilter(fingerprint.New(), nil, nil),
		frontier.NewMemoryStore(),
		&metadata.NoopSink{},
		collector,
	)
	require.NoError(t, s.Open(context.Background()))
	return s, collector
}

// newDiskSchedulerForTest wires a scheduler whose dedup filter and store share
// one job directory, as the engine does when a job dir is configured.
func newDiskSchedulerForTest(t *testing.T, dir string) (*scheduler.Scheduler, func()) {
	t.Helper()
	js, err := jobstore.Open(context.Background(), dir)
	require.NoError(t, err)
	s := scheduler.NewScheduler(
		frontier.NewDupeFilter(fingerprint.New(), js, nil),
		frontier.NewDiskStore(js, nil, js.Close),
		&metadata.NoopSink{},
		nil,
	)
	require.NoError(t, s.Open(context.Background()))
	return s, func() { _ = s.Close() }
}

func TestEnqueue_RejectsDuplicates(t *testing.T) {
	s, collector := newMemorySchedulerForTest(t)

	accepted, err := s.Enqueue(crawl.MustRequest("https://example.com/a"))
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = s.Enqueue(crawl.MustRequest("https://example.com/a"))
	require.NoError(t, err)
	assert.False(t, accepted)

	accepted, err = s.Enqueue(crawl.MustRequest("https://example.com/a", crawl.WithDontFilter(true)))
	require.NoError(t, err)
	assert.True(t, accepted, "dont_filter bypasses dedup")

	assert.EqualValues(t, 2, collector.Get(stats.Enqueued))
	assert.EqualValues(t, 1, collector.Get(stats.Filtered))
	assert.Equal(t, 2, s.Pending())
}

// TestEnqueue_DedupProperty checks, over a sequence with repeats, that every
// repeat is rejected and every dont_filter copy accepted.
func TestEnqueue_DedupProperty(t *testing.T) {
	s, _ := newMemorySchedulerForTest(t)
	seen := map[string]bool{}
	urls := []string{"/a", "/b", "/a", "/c", "/b", "/a", "/d", "/c"}

	for _, p := range urls {
		r := crawl.MustRequest("https://example.com" + p)
		accepted, err := s.Enqueue(r)
		require.NoError(t, err)
		assert.Equal(t, !seen[p], accepted, "path %s", p)
		seen[p] = true

		accepted, err = s.Enqueue(r.Replace(crawl.WithDontFilter(true)))
		require.NoError(t, err)
		assert.True(t, accepted)
	}
}

func TestNextRequest_DelegatesToStore(t *testing.T) {
	s, collector := newMemorySchedulerForTest(t)
	assert.False(t, s.HasPendingRequests())
	_, ok := s.NextRequest()
	assert.False(t, ok)

	for i, p := range []int{3, 1, 3, 2} {
		_, err := s.Enqueue(crawl.MustRequest(fmt.Sprintf("https://example.com/%d", i), crawl.WithPriority(p)))
		require.NoError(t, err)
	}
	assert.True(t, s.HasPendingRequests())

	var order []int
	for s.HasPendingRequests() {
		r, ok := s.NextRequest()
		require.True(t, ok)
		order = append(order, r.Priority())
	}
	assert.Equal(t, []int{3, 3, 2, 1}, order)
	assert.EqualValues(t, 4, collector.Get(stats.Dequeued))
}

func TestNextRequestFor_Origin(t *testing.T) {
	s, _ := newMemorySchedulerForTest(t)
	_, _ = s.Enqueue(crawl.MustRequest("https://a.example/1"))
	_, _ = s.Enqueue(crawl.MustRequest("https://b.example/1"))

	assert.Equal(t, 1, s.PendingFor("https://a.example:443"))
	r, ok := s.NextRequestFor("https://b.example:443")
	require.True(t, ok)
	assert.Equal(t, "https://b.example:443", r.OriginKey())
	assert.ElementsMatch(t, []string{"https://a.example:443"}, s.Origins())
}

func TestDiscardOrigin(t *testing.T) {
	s, _ := newMemorySchedulerForTest(t)
	_, _ = s.Enqueue(crawl.MustRequest("https://a.example/1"))
	_, _ = s.Enqueue(crawl.MustRequest("https://a.example/2"))
	_, _ = s.Enqueue(crawl.MustRequest("https://b.example/1"))

	assert.Equal(t, 2, s.DiscardOrigin("https://a.example:443"))
	assert.Equal(t, 1, s.Pending())
}

func TestEnqueue_SerializationErrorDropsRequest(t *testing.T) {
	dir := t.TempDir()
	js, err := jobstore.Open(context.Background(), dir)
	require.NoError(t, err)
	sink := &metadataSinkMock{}
	sink.On("RecordError", "scheduler", "Scheduler.Enqueue", metadata.CauseStorageFailure).Once()
	collector := stats.NewCollector()
	s := scheduler.NewScheduler(
		frontier.NewDupeFilter(fingerprint.New(), js, nil),
		frontier.NewDiskStore(js, nil, js.Close),
		sink,
		collector,
	)
	defer s.Close()

	accepted, err := s.Enqueue(crawl.MustRequest("https://example.com/", crawl.WithMeta("fn", func() {})))
	assert.False(t, accepted)
	var serr *crawl.SerializationError
	require.True(t, errors.As(err, &serr))
	assert.False(t, s.HasPendingRequests())
	assert.EqualValues(t, 1, collector.Get(stats.EnqueueFailed))
	sink.AssertExpectations(t)
}

func TestEnqueue_FingerprintErrorDropsRequest(t *testing.T) {
	broken := fingerprint.Func(func(*crawl.Request) (string, error) { return "", errors.New("nope") })
	s := scheduler.NewScheduler(frontier.NewDupeFilter(broken, nil, nil), frontier.NewMemoryStore(), nil, nil)

	accepted, err := s.Enqueue(crawl.MustRequest("https://example.com/"))
	assert.False(t, accepted)
	assert.ErrorIs(t, err, &scheduler.SchedulerError{})
	assert.False(t, s.HasPendingRequests())
}

// TestPersistence_RoundTrip enqueues 5 distinct requests plus a duplicate,
// closes the scheduler, and reopens the same job directory with a fresh dedup
// filter: exactly those 5 come back and the old fingerprints are still known.
func TestPersistence_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	first, closeFirst := newDiskSchedulerForTest(t, dir)
	want := map[string]bool{}
	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("https://example.com/page/%d", i)
		accepted, err := first.Enqueue(crawl.MustRequest(u))
		require.NoError(t, err)
		require.True(t, accepted)
		want[u] = true
	}
	accepted, err := first.Enqueue(crawl.MustRequest("https://example.com/page/0"))
	require.NoError(t, err)
	require.False(t, accepted)
	closeFirst()

	second, closeSecond := newDiskSchedulerForTest(t, dir)
	defer closeSecond()

	assert.True(t, second.HasPendingRequests())
	got := map[string]bool{}
	for {
		r, ok := second.NextRequest()
		if !ok {
			break
		}
		u := r.URL()
		got[u.String()] = true
	}
	assert.Equal(t, want, got)

	accepted, err = second.Enqueue(crawl.MustRequest("https://example.com/page/3"))
	require.NoError(t, err)
	assert.False(t, accepted, "seen set survives the restart")
}

func TestSchedulerError_Severity(t *testing.T) {
	assert.Equal(t, "fatal", (&scheduler.SchedulerError{Cause: scheduler.ErrCauseOpenFailed}).Severity().String())
	assert.Equal(t, "recoverable", (&scheduler.SchedulerError{Cause: scheduler.ErrCauseStoreFailed}).Severity().String())
}
