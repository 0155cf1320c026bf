package robots_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/robots"
	"github.com/rohmanhakim/crawl-engine/pkg/limiter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const robotsBody = `
User-agent: *
Disallow: /private/
Crawl-delay: 2

User-agent: crawl-engine
Disallow: /admin
Allow: /admin/public
`

// siteForTest serves robots.txt with the given status and body and counts
// every request by path.
type siteForTest struct {
	mu           sync.Mutex
	robotsStatus int
	robotsBody   string
	robotsErr    error
	hits         map[string]int
	robotsCalls  atomic.Int32
}

func newSiteForTest(status int, body string) *siteForTest {
	return &siteForTest{robotsStatus: status, robotsBody: body, hits: map[string]int{}}
}

func (s *siteForTest) Send(ctx context.Context, req *crawl.Request) (*crawl.Response, error) {
	u := req.URL()
	s.mu.Lock()
	s.hits[u.Path]++
	s.mu.Unlock()
	if u.Path == "/robots.txt" {
		s.robotsCalls.Add(1)
		if s.robotsErr != nil {
			return nil, s.robotsErr
		}
		return crawl.NewResponseForTest(req, s.robotsStatus, s.robotsBody), nil
	}
	return crawl.NewResponseForTest(req, 200, "ok"), nil
}

func (s *siteForTest) hitsFor(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

func newGuardForTest(t *testing.T, next crawl.Transport, delays limiter.DelayResolver) *robots.Guard {
	t.Helper()
	cfg, err := config.WithDefault(nil).
		WithUserAgent("crawl-engine/1.0").
		WithRobotsMaxAttempt(2).
		WithBackoff(time.Millisecond, 1, time.Millisecond).
		Build()
	require.NoError(t, err)
	return robots.NewGuard(cfg, next, nil, delays, nil)
}

func TestGuard_DisallowedIsIgnored(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	guard := newGuardForTest(t, site, nil)

	_, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/admin/users"))

	var transportErr *crawl.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.Equal(t, crawl.KindIgnored, transportErr.Kind)
	assert.Equal(t, 0, site.hitsFor("/admin/users"))
}

func TestGuard_Decide(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	guard := newGuardForTest(t, site, nil)

	tests := []struct {
		url     string
		allowed bool
		reason  robots.DecisionReason
	}{
		{"https://example.com/", true, robots.AllowedByRobots},
		{"https://example.com/admin", false, robots.DisallowedByRobots},
		{"https://example.com/admin/public", true, robots.AllowedByRobots},
		// the specific group replaces the wildcard one
		{"https://example.com/private/x", true, robots.AllowedByRobots},
		{"https://example.com/robots.txt", true, robots.NotObeyed},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			d := guard.Decide(context.Background(), crawl.MustRequest(tt.url))
			assert.Equal(t, tt.allowed, d.Allowed)
			assert.Equal(t, tt.reason, d.Reason)
		})
	}
	assert.EqualValues(t, 1, site.robotsCalls.Load())
}

func TestGuard_AllowedPassesThroughAndFetchesRobotsOnce(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	guard := newGuardForTest(t, site, nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/docs"))
			assert.NoError(t, err)
			assert.Equal(t, 200, resp.Status())
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, site.robotsCalls.Load())
	assert.Equal(t, 10, site.hitsFor("/docs"))
}

func TestGuard_RulesArePerOrigin(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	guard := newGuardForTest(t, site, nil)

	_, _ = guard.Send(context.Background(), crawl.MustRequest("https://a.example/"))
	_, _ = guard.Send(context.Background(), crawl.MustRequest("https://b.example/"))
	_, _ = guard.Send(context.Background(), crawl.MustRequest("http://a.example/"))

	assert.EqualValues(t, 3, site.robotsCalls.Load())
}

func TestGuard_MissingRobotsAllowsAll(t *testing.T) {
	site := newSiteForTest(404, "")
	guard := newGuardForTest(t, site, nil)

	_, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/admin"))
	assert.NoError(t, err)
}

func TestGuard_GarbageRobotsAllowsAll(t *testing.T) {
	site := newSiteForTest(200, "\x00\x01<html>not robots</html>")
	guard := newGuardForTest(t, site, nil)

	_, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/admin"))
	assert.NoError(t, err)
}

func TestGuard_ServerErrorIsRetriedThenAllowsAll(t *testing.T) {
	site := newSiteForTest(503, "")
	guard := newGuardForTest(t, site, nil)

	decision := guard.Decide(context.Background(), crawl.MustRequest("https://example.com/admin"))
	assert.True(t, decision.Allowed)
	assert.Equal(t, robots.RulesUnavailable, decision.Reason)
	assert.EqualValues(t, 2, site.robotsCalls.Load(), "one retry")
}

func TestGuard_UnreachableRobotsAllowsAll(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	site.robotsErr = errors.New("connection reset")
	guard := newGuardForTest(t, site, nil)

	_, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/admin"))
	assert.NoError(t, err)
}

func TestGuard_DontObeyMetaSkipsCheck(t *testing.T) {
	site := newSiteForTest(200, robotsBody)
	guard := newGuardForTest(t, site, nil)

	req := crawl.MustRequest("https://example.com/admin", crawl.WithMeta(crawl.MetaDontObeyRobotsTxt, true))
	_, err := guard.Send(context.Background(), req)

	assert.NoError(t, err)
	assert.EqualValues(t, 0, site.robotsCalls.Load())
}

func TestGuard_CrawlDelayReachesResolver(t *testing.T) {
	site := newSiteForTest(200, "User-agent: *\nCrawl-delay: 3\n")
	delays := limiter.NewConcurrentRateLimiter()
	guard := newGuardForTest(t, site, delays)

	_, err := guard.Send(context.Background(), crawl.MustRequest("https://example.com/"))
	require.NoError(t, err)

	timing, ok := delays.Timing("https://example.com:443")
	require.True(t, ok)
	assert.Equal(t, 3*time.Second, timing.CrawlDelay())
	assert.GreaterOrEqual(t, delays.NextDelay("https://example.com:443"), 3*time.Second)
}

func TestWrap_DisabledReturnsNext(t *testing.T) {
	cfg, err := config.WithDefault(nil).WithObeyRobots(false).Build()
	require.NoError(t, err)
	site := newSiteForTest(200, robotsBody)

	transport := robots.Wrap(cfg, site, nil, nil)
	_, isGuard := transport.(*robots.Guard)
	assert.False(t, isGuard)
}
