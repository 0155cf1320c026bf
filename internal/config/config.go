package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/rohmanhakim/crawl-engine/pkg/hashutil"
	"github.com/rohmanhakim/crawl-engine/pkg/retry"
	"github.com/rohmanhakim/crawl-engine/pkg/timeutil"
)

const AppName = "crawl-engine"

// Config is immutable once built. Every component receives it at construction
// and reads it through getters only.
type Config struct {
	//===============
	//  Crawl scope
	//===============
	// Requests the crawl starts from when none are given to Start.
	seedURLs []url.URL
	// Requests whose URL is longer than this are dropped at extraction time. 0 disables the check.
	urlLengthLimit int
	// Whether robots.txt rules are fetched and honored.
	obeyRobots bool
	// Links deeper than this many hops from a seed are not followed. 0 means unlimited.
	maxDepth int
	// Follow links leaving the origin of the page they were found on.
	followExternal bool
	// Extra selectors tried when locating the main content of a page.
	contentSelectors []string

	//===============
	// Downloader
	//===============
	// Ceiling on fetches in flight across all origins.
	concurrentRequests int
	// Ceiling on fetches in flight for a single origin.
	concurrentRequestsPerOrigin int
	// Minimum rest between two dispatches to the same origin.
	downloadDelay time.Duration
	// Draw every delay from [0.5, 1.5) * downloadDelay instead of using it verbatim.
	randomizeDelay bool
	// Extra random variation in [0, jitter) added on top of every delay.
	jitter time.Duration
	// Seeds the generator behind randomized delay, jitter and backoff.
	randomSeed int64
	// Deadline of a single fetch.
	downloadTimeout time.Duration
	// Queued but undispatched fetches at which the engine stops pulling.
	downloaderQueueCeiling int
	// Per-origin token bucket, requests per second. 0 disables it.
	rateLimit float64
	rateBurst int
	// Exponential backoff applied to an origin answering 429 or 503.
	backoffInitialDuration time.Duration
	backoffMultiplier      float64
	backoffMaxDuration     time.Duration

	//===============
	// Fetch
	//===============
	userAgent string
	// Responses whose decoded body exceeds this many bytes fail.
	maxBodyBytes int64
	// Attempts at fetching robots.txt before allowing everything.
	robotsMaxAttempt int

	//===============
	// Scraper
	//===============
	// Responses processed at once for a single origin.
	scraperConcurrency int
	// Queued plus active responses at which an origin backs out.
	scraperQueueCeiling int
	// Bytes of response bodies held by an origin's scraper slot before it backs out.
	scraperMaxActiveSize int
	// Retry copies allowed per request.
	maxRetries int
	// Statuses answered with a retry copy.
	retryHTTPCodes []int
	// Non-2xx statuses still handed to extractors.
	allowedHTTPCodes []int

	//===============
	// Dedup and persistence
	//===============
	fingerprintAlgo    hashutil.HashAlgo
	fingerprintHeaders []string
	// Directory holding the seen set and pending set. Empty means in-memory.
	jobDir string

	//===============
	// Observability
	//===============
	logLevel   string
	logFormat  string
	statusAddr string
}

// WithDefault creates a new Config with the provided seed URLs and default values for all other fields.
func WithDefault(seedUrls []url.URL) *Config {
	defaultConfig := Config{
		seedURLs:                    seedUrls,
		urlLengthLimit:              2083,
		obeyRobots:                  true,
		maxDepth:                    0,
		followExternal:              false,
		contentSelectors:            []string{},
		concurrentRequests:          16,
		concurrentRequestsPerOrigin: 8,
		downloadDelay:               0,
		randomizeDelay:              true,
		jitter:                      0,
		randomSeed:                  time.Now().UnixNano(),
		downloadTimeout:             180 * time.Second,
		downloaderQueueCeiling:      100,
		rateLimit:                   0,
		rateBurst:                   1,
		backoffInitialDuration:      time.Second,
		backoffMultiplier:           2.0,
		backoffMaxDuration:          30 * time.Second,
		userAgent:                   "crawl-engine/1.0",
		maxBodyBytes:                10 << 20,
		robotsMaxAttempt:            3,
		scraperConcurrency:          4,
		scraperQueueCeiling:         32,
		scraperMaxActiveSize:        5_000_000,
		maxRetries:                  2,
		retryHTTPCodes:              retry.DefaultRetryStatuses(),
		allowedHTTPCodes:            []int{},
		fingerprintAlgo:             hashutil.HashAlgoSHA256,
		fingerprintHeaders:          []string{},
		jobDir:                      "",
		logLevel:                    "info",
		logFormat:                   "text",
		statusAddr:                  "",
	}
	return &defaultConfig
}

// DefaultJobDir is where a named job keeps its state unless a directory is given.
// On Linux: ~/.local/share/crawl-engine/jobs/<name>
func DefaultJobDir(name string) string {
	return filepath.Join(xdg.DataHome, AppName, "jobs", name)
}

func (c *Config) WithSeedUrls(urls []url.URL) *Config {
	c.seedURLs = urls
	return c
}

func (c *Config) WithURLLengthLimit(limit int) *Config {
	c.urlLengthLimit = limit
	return c
}

func (c *Config) WithObeyRobots(obey bool) *Config {
	c.obeyRobots = obey
	return c
}

func (c *Config) WithMaxDepth(depth int) *Config {
	c.maxDepth = depth
	return c
}

func (c *Config) WithFollowExternal(follow bool) *Config {
	c.followExternal = follow
	return c
}

func (c *Config) WithContentSelectors(selectors []string) *Config {
	c.contentSelectors = selectors
	return c
}

func (c *Config) WithConcurrentRequests(n int) *Config {
	c.concurrentRequests = n
	return c
}

func (c *Config) WithConcurrentRequestsPerOrigin(n int) *Config {
	c.concurrentRequestsPerOrigin = n
	return c
}

func (c *Config) WithDownloadDelay(delay time.Duration) *Config {
	c.downloadDelay = delay
	return c
}

func (c *Config) WithRandomizeDelay(randomize bool) *Config {
	c.randomizeDelay = randomize
	return c
}

func (c *Config) WithJitter(jitter time.Duration) *Config {
	c.jitter = jitter
	return c
}

func (c *Config) WithRandomSeed(seed int64) *Config {
	c.randomSeed = seed
	return c
}

func (c *Config) WithDownloadTimeout(timeout time.Duration) *Config {
	c.downloadTimeout = timeout
	return c
}

func (c *Config) WithDownloaderQueueCeiling(n int) *Config {
	c.downloaderQueueCeiling = n
	return c
}

func (c *Config) WithRateLimit(perSecond float64, burst int) *Config {
	c.rateLimit = perSecond
	c.rateBurst = burst
	return c
}

func (c *Config) WithBackoff(initial time.Duration, multiplier float64, max time.Duration) *Config {
	c.backoffInitialDuration = initial
	c.backoffMultiplier = multiplier
	c.backoffMaxDuration = max
	return c
}

func (c *Config) WithUserAgent(agent string) *Config {
	c.userAgent = agent
	return c
}

func (c *Config) WithMaxBodyBytes(n int64) *Config {
	c.maxBodyBytes = n
	return c
}

func (c *Config) WithRobotsMaxAttempt(n int) *Config {
	c.robotsMaxAttempt = n
	return c
}

func (c *Config) WithScraperConcurrency(n int) *Config {
	c.scraperConcurrency = n
	return c
}

func (c *Config) WithScraperQueueCeiling(n int) *Config {
	c.scraperQueueCeiling = n
	return c
}

func (c *Config) WithScraperMaxActiveSize(n int) *Config {
	c.scraperMaxActiveSize = n
	return c
}

func (c *Config) WithMaxRetries(n int) *Config {
	c.maxRetries = n
	return c
}

func (c *Config) WithRetryHTTPCodes(codes []int) *Config {
	c.retryHTTPCodes = codes
	return c
}

func (c *Config) WithAllowedHTTPCodes(codes []int) *Config {
	c.allowedHTTPCodes = codes
	return c
}

func (c *Config) WithFingerprintAlgo(algo hashutil.HashAlgo) *Config {
	c.fingerprintAlgo = algo
	return c
}

func (c *Config) WithFingerprintHeaders(names []string) *Config {
	c.fingerprintHeaders = names
	return c
}

func (c *Config) WithJobDir(dir string) *Config {
	c.jobDir = dir
	return c
}

func (c *Config) WithLogLevel(level string) *Config {
	c.logLevel = level
	return c
}

func (c *Config) WithLogFormat(format string) *Config {
	c.logFormat = format
	return c
}

func (c *Config) WithStatusAddr(addr string) *Config {
	c.statusAddr = addr
	return c
}

// Build validates the settings and returns an immutable copy.
// Every failure is a *ConfigurationError wrapping ErrInvalidConfig.
func (c *Config) Build() (Config, error) {
	if err := c.validate(); err != nil {
		return Config{}, err
	}
	built := *c
	built.seedURLs = append([]url.URL(nil), c.seedURLs...)
	built.retryHTTPCodes = append([]int(nil), c.retryHTTPCodes...)
	built.allowedHTTPCodes = append([]int(nil), c.allowedHTTPCodes...)
	built.fingerprintHeaders = append([]string(nil), c.fingerprintHeaders...)
	built.contentSelectors = append([]string(nil), c.contentSelectors...)
	return built, nil
}

func (c *Config) validate() error {
	for _, u := range c.seedURLs {
		if u.Scheme != "http" && u.Scheme != "https" {
			return invalid("seedUrls", "unsupported scheme in %q", u.String())
		}
		if u.Host == "" {
			return invalid("seedUrls", "missing host in %q", u.String())
		}
	}
	positives := []struct {
		field string
		value int
	}{
		{"concurrentRequests", c.concurrentRequests},
		{"concurrentRequestsPerOrigin", c.concurrentRequestsPerOrigin},
		{"downloaderQueueCeiling", c.downloaderQueueCeiling},
		{"scraperConcurrency", c.scraperConcurrency},
		{"scraperQueueCeiling", c.scraperQueueCeiling},
		{"scraperMaxActiveSize", c.scraperMaxActiveSize},
		{"robotsMaxAttempt", c.robotsMaxAttempt},
	}
	for _, p := range positives {
		if p.value < 1 {
			return invalid(p.field, "must be at least 1, got %d", p.value)
		}
	}
	if c.concurrentRequestsPerOrigin > c.concurrentRequests {
		return invalid("concurrentRequestsPerOrigin", "%d exceeds concurrentRequests %d", c.concurrentRequestsPerOrigin, c.concurrentRequests)
	}
	if c.downloadDelay < 0 {
		return invalid("downloadDelay", "must not be negative, got %s", c.downloadDelay)
	}
	if c.jitter < 0 {
		return invalid("jitter", "must not be negative, got %s", c.jitter)
	}
	if c.downloadTimeout <= 0 {
		return invalid("downloadTimeout", "must be positive, got %s", c.downloadTimeout)
	}
	if c.rateLimit < 0 {
		return invalid("rateLimit", "must not be negative, got %v", c.rateLimit)
	}
	if c.rateLimit > 0 && c.rateBurst < 1 {
		return invalid("rateBurst", "must be at least 1 when rateLimit is set, got %d", c.rateBurst)
	}
	if c.backoffInitialDuration <= 0 || c.backoffMaxDuration < c.backoffInitialDuration {
		return invalid("backoff", "initial %s must be positive and not above max %s", c.backoffInitialDuration, c.backoffMaxDuration)
	}
	if c.backoffMultiplier < 1 {
		return invalid("backoffMultiplier", "must be at least 1, got %v", c.backoffMultiplier)
	}
	if c.maxBodyBytes < 1 {
		return invalid("maxBodyBytes", "must be at least 1, got %d", c.maxBodyBytes)
	}
	if c.maxRetries < 0 {
		return invalid("maxRetries", "must not be negative, got %d", c.maxRetries)
	}
	if c.maxDepth < 0 {
		return invalid("maxDepth", "must not be negative, got %d", c.maxDepth)
	}
	if c.urlLengthLimit < 0 {
		return invalid("urlLengthLimit", "must not be negative, got %d", c.urlLengthLimit)
	}
	if err := validateStatuses("retryHTTPCodes", c.retryHTTPCodes); err != nil {
		return err
	}
	if err := validateStatuses("allowedHTTPCodes", c.allowedHTTPCodes); err != nil {
		return err
	}
	if !hashutil.Supported(c.fingerprintAlgo) {
		return invalid("fingerprintAlgo", "unsupported algorithm %q", c.fingerprintAlgo)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logLevel", "unknown level %q", c.logLevel)
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return invalid("logFormat", "unknown format %q", c.logFormat)
	}
	return nil
}

func validateStatuses(field string, codes []int) error {
	for _, code := range codes {
		if code < 100 || code > 599 {
			return invalid(field, "%d is not an HTTP status", code)
		}
	}
	return nil
}

func (c Config) SeedURLs() []url.URL {
	urls := make([]url.URL, len(c.seedURLs))
	copy(urls, c.seedURLs)
	return urls
}

func (c Config) URLLengthLimit() int {
	return c.urlLengthLimit
}

func (c Config) ObeyRobots() bool {
	return c.obeyRobots
}

func (c Config) MaxDepth() int {
	return c.maxDepth
}

func (c Config) FollowExternal() bool {
	return c.followExternal
}

func (c Config) ContentSelectors() []string {
	return append([]string(nil), c.contentSelectors...)
}

func (c Config) ConcurrentRequests() int {
	return c.concurrentRequests
}

func (c Config) ConcurrentRequestsPerOrigin() int {
	return c.concurrentRequestsPerOrigin
}

func (c Config) DownloadDelay() time.Duration {
	return c.downloadDelay
}

func (c Config) RandomizeDelay() bool {
	return c.randomizeDelay
}

func (c Config) Jitter() time.Duration {
	return c.jitter
}

func (c Config) RandomSeed() int64 {
	return c.randomSeed
}

func (c Config) DownloadTimeout() time.Duration {
	return c.downloadTimeout
}

func (c Config) DownloaderQueueCeiling() int {
	return c.downloaderQueueCeiling
}

func (c Config) RateLimit() float64 {
	return c.rateLimit
}

func (c Config) RateBurst() int {
	return c.rateBurst
}

func (c Config) BackoffParam() timeutil.BackoffParam {
	return timeutil.NewBackoffParam(c.backoffInitialDuration, c.backoffMultiplier, c.backoffMaxDuration)
}

func (c Config) UserAgent() string {
	return c.userAgent
}

func (c Config) MaxBodyBytes() int64 {
	return c.maxBodyBytes
}

func (c Config) RobotsMaxAttempt() int {
	return c.robotsMaxAttempt
}

// RobotsRetryParam drives the blocking retry around a robots.txt fetch.
func (c Config) RobotsRetryParam() retry.RetryParam {
	return retry.NewRetryParam(c.jitter, c.randomSeed, c.robotsMaxAttempt, c.BackoffParam())
}

func (c Config) ScraperConcurrency() int {
	return c.scraperConcurrency
}

func (c Config) ScraperQueueCeiling() int {
	return c.scraperQueueCeiling
}

func (c Config) ScraperMaxActiveSize() int {
	return c.scraperMaxActiveSize
}

func (c Config) MaxRetries() int {
	return c.maxRetries
}

func (c Config) RetryHTTPCodes() []int {
	return append([]int(nil), c.retryHTTPCodes...)
}

func (c Config) AllowedHTTPCodes() []int {
	return append([]int(nil), c.allowedHTTPCodes...)
}

// RetryPolicy lowers the priority of each retry copy by one.
func (c Config) RetryPolicy() retry.Policy {
	return retry.NewPolicy(c.maxRetries, c.retryHTTPCodes, -1)
}

func (c Config) FingerprintAlgo() hashutil.HashAlgo {
	return c.fingerprintAlgo
}

func (c Config) FingerprintHeaders() []string {
	return append([]string(nil), c.fingerprintHeaders...)
}

func (c Config) JobDir() string {
	return c.jobDir
}

func (c Config) LogLevel() string {
	return c.logLevel
}

func (c Config) LogFormat() string {
	return c.logFormat
}

func (c Config) StatusAddr() string {
	return c.statusAddr
}

func (c Config) String() string {
	return fmt.Sprintf(
		"concurrency=%d/%d delay=%s randomize=%t timeout=%s robots=%t jobDir=%q",
		c.concurrentRequests, c.concurrentRequestsPerOrigin, c.downloadDelay,
		c.randomizeDelay, c.downloadTimeout, c.obeyRobots, c.jobDir,
	)
}
