package robots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/robots/cache"
	"github.com/rohmanhakim/crawl-engine/pkg/failure"
	"github.com/rohmanhakim/crawl-engine/pkg/limiter"
	"github.com/rohmanhakim/crawl-engine/pkg/retry"
	"github.com/temoto/robotstxt"
	"golang.org/x/sync/singleflight"
)

/*
Guard is a Transport decorator enforcing robots.txt.

Responsibilities

- Fetch robots.txt once per origin through the wrapped transport
- Cache parsed rules for the crawl session
- Refuse disallowed requests with an Ignored failure
- Push the matched group's crawl-delay into the delay resolver

A missing, empty, garbage or unreachable robots.txt allows everything.
Requests carrying Meta["dont_obey_robotstxt"] skip the check.
*/
type Guard struct {
	next         crawl.Transport
	rules        cache.Cache[*robotstxt.RobotsData]
	delays       limiter.DelayResolver
	metadataSink metadata.MetadataSink
	userAgent    string
	retryParam   retry.RetryParam
	fetches      singleflight.Group
}

// RulesTTL bounds how long parsed rules are trusted within one run.
const RulesTTL = 24 * time.Hour

func NewGuard(
	cfg config.Config,
	next crawl.Transport,
	rules cache.Cache[*robotstxt.RobotsData],
	delays limiter.DelayResolver,
	metadataSink metadata.MetadataSink,
) *Guard {
	if rules == nil {
		rules = cache.NewMemoryCache[*robotstxt.RobotsData](RulesTTL)
	}
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &Guard{
		next:         next,
		rules:        rules,
		delays:       delays,
		metadataSink: metadataSink,
		userAgent:    cfg.UserAgent(),
		retryParam:   cfg.RobotsRetryParam(),
	}
}

// Wrap decorates next with a Guard when cfg obeys robots.txt.
func Wrap(
	cfg config.Config,
	next crawl.Transport,
	delays limiter.DelayResolver,
	metadataSink metadata.MetadataSink,
) crawl.Transport {
	if !cfg.ObeyRobots() {
		return next
	}
	return NewGuard(cfg, next, nil, delays, metadataSink)
}

func (g *Guard) Send(ctx context.Context, req *crawl.Request) (*crawl.Response, error) {
	decision := g.Decide(ctx, req)
	if decision.CrawlDelay > 0 && g.delays != nil {
		g.delays.SetCrawlDelay(req.OriginKey(), decision.CrawlDelay)
	}
	if !decision.Allowed {
		g.metadataSink.RecordDrop("request", decision.Url.String(), string(decision.Reason))
		return nil, crawl.IgnoreRequest("forbidden by robots.txt")
	}
	return g.next.Send(ctx, req)
}

// Decide resolves whether req may be fetched.
func (g *Guard) Decide(ctx context.Context, req *crawl.Request) Decision {
	u := req.URL()
	decision := Decision{Url: u, Allowed: true, Reason: NotObeyed}
	if req.MetaBool(crawl.MetaDontObeyRobotsTxt) || u.Path == "/robots.txt" {
		return decision
	}

	data := g.rulesFor(ctx, req.OriginKey())
	if data == nil {
		decision.Reason = RulesUnavailable
		return decision
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	decision.Allowed = data.TestAgent(path, g.userAgent)
	if decision.Allowed {
		decision.Reason = AllowedByRobots
	} else {
		decision.Reason = DisallowedByRobots
	}
	if group := data.FindGroup(g.userAgent); group != nil {
		decision.CrawlDelay = group.CrawlDelay
	}
	return decision
}

type robotsFile struct {
	status int
	body   []byte
}

// rulesFor returns the cached rules of origin, fetching them at most once at a time.
// nil means allow everything.
func (g *Guard) rulesFor(ctx context.Context, origin string) *robotstxt.RobotsData {
	if data, ok := g.rules.Get(origin); ok {
		return data
	}
	v, _, _ := g.fetches.Do(origin, func() (any, error) {
		if data, ok := g.rules.Get(origin); ok {
			return data, nil
		}
		data := g.fetch(ctx, origin)
		// a cancelled caller must not pin allow-all for everyone else
		if ctx.Err() == nil {
			g.rules.Put(origin, data)
		}
		return data, nil
	})
	data, _ := v.(*robotstxt.RobotsData)
	return data
}

func (g *Guard) fetch(ctx context.Context, origin string) *robotstxt.RobotsData {
	robotsURL := origin + "/robots.txt"
	req, err := crawl.NewRequest(
		robotsURL,
		crawl.WithDontFilter(true),
		crawl.WithPriority(1),
		crawl.WithMeta(crawl.MetaDontObeyRobotsTxt, true),
	)
	if err != nil {
		return nil
	}

	result := retry.Retry(ctx, g.retryParam, func() (robotsFile, failure.ClassifiedError) {
		resp, err := g.next.Send(ctx, req)
		if err != nil {
			return robotsFile{}, &RobotsError{
				Message:   err.Error(),
				Retryable: ctx.Err() == nil,
				Cause:     ErrCauseFetchFailed,
			}
		}
		if resp.Status() >= 500 {
			return robotsFile{}, &RobotsError{
				Message:   fmt.Sprintf("status %d", resp.Status()),
				Retryable: true,
				Cause:     ErrCauseServerError,
			}
		}
		return robotsFile{status: resp.Status(), body: resp.Body()}, nil
	})

	if result.IsFailure() {
		g.recordError(robotsURL, result.Err())
		return nil
	}
	file := result.Value()
	data, err := robotstxt.FromStatusAndBytes(file.status, file.body)
	if err != nil {
		return nil
	}
	return data
}

func (g *Guard) recordError(robotsURL string, err failure.ClassifiedError) {
	cause := metadata.CauseNetworkFailure
	var robotsErr *RobotsError
	if errors.As(err, &robotsErr) {
		cause = mapRobotsErrorToMetadataCause(robotsErr)
	}
	g.metadataSink.RecordError(
		time.Now(),
		"robots",
		"Guard.fetch",
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, robotsURL),
		},
	)
}

