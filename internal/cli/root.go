package cmd

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/pkg/hashutil"
)

var (
	cfgFile                     string
	seedURLs                    []string
	maxDepth                    int
	followExternal              bool
	contentSelectors            []string
	concurrentRequests          int
	concurrentRequestsPerOrigin int
	downloadDelay               time.Duration
	fixedDelay                  bool
	jitter                      time.Duration
	randomSeed                  int64
	downloadTimeout             time.Duration
	rateLimit                   float64
	rateBurst                   int
	userAgent                   string
	ignoreRobots                bool
	urlLengthLimit              int
	scraperConcurrency          int
	maxRetries                  int
	retryHTTPCodes              []int
	allowedHTTPCodes            []int
	fingerprintAlgo             string
	jobDir                      string
	jobName                     string
	logLevel                    string
	logFormat                   string
	statusAddr                  string
)

// parseSeedURLs converts a string slice of URLs to []url.URL
func parseSeedURLs(urlStrings []string) ([]url.URL, error) {
	var urls []url.URL
	for _, urlStr := range urlStrings {
		parsedURL, err := url.Parse(urlStr)
		if err != nil {
			return nil, fmt.Errorf("error parsing seed URL %s: %w", urlStr, err)
		}
		urls = append(urls, *parsedURL)
	}
	return urls, nil
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "crawl-engine",
	Short: "A concurrent, polite web crawl engine.",
	Long: `crawl-engine fetches resources over HTTP starting from seed URLs,
extracts follow-up requests and items from every response, and runs the crawl
to completion while respecting per-origin concurrency, politeness delays,
robots.txt and deduplication.

A crawl started with --job-dir or --job-name can be interrupted and resumed.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(crawlCmd)
	rootCmd.AddCommand(versionCmd)

	flags := crawlCmd.Flags()
	flags.StringVar(&cfgFile, "config-file", "", "config file path, JSON or YAML (e.g., /home/myuser/crawl.yaml)")
	flags.StringArrayVar(&seedURLs, "seed-url", []string{}, "one or more starting URLs (can be repeated)")
	flags.IntVar(&maxDepth, "max-depth", 0, "maximum link depth from a seed (0 for unlimited)")
	flags.BoolVar(&followExternal, "follow-external", false, "follow links to other origins")
	flags.StringArrayVar(&contentSelectors, "content-selector", []string{}, "CSS selector of the main content container (can be repeated)")
	flags.IntVar(&concurrentRequests, "concurrent-requests", 0, "maximum in-flight requests overall")
	flags.IntVar(&concurrentRequestsPerOrigin, "concurrent-requests-per-origin", 0, "maximum in-flight requests per origin")
	flags.DurationVar(&downloadDelay, "download-delay", 0, "delay between requests to the same origin")
	flags.BoolVar(&fixedDelay, "fixed-delay", false, "do not randomize the download delay")
	flags.DurationVar(&jitter, "jitter", 0, "random jitter added to the download delay")
	flags.Int64Var(&randomSeed, "random-seed", 0, "seed for delay randomization (0 for current time)")
	flags.DurationVar(&downloadTimeout, "download-timeout", 0, "timeout of a single request")
	flags.Float64Var(&rateLimit, "rate-limit", 0, "requests per second per origin (0 for no token bucket)")
	flags.IntVar(&rateBurst, "rate-burst", 0, "token bucket burst per origin")
	flags.StringVar(&userAgent, "user-agent", "", "user agent string for HTTP requests")
	flags.BoolVar(&ignoreRobots, "ignore-robots", false, "do not fetch or obey robots.txt")
	flags.IntVar(&urlLengthLimit, "url-length-limit", 0, "drop extracted requests with longer URLs")
	flags.IntVar(&scraperConcurrency, "scraper-concurrency", 0, "responses processed at once per origin")
	flags.IntVar(&maxRetries, "max-retries", -1, "retries per request (-1 keeps the default)")
	flags.IntSliceVar(&retryHTTPCodes, "retry-http-code", []int{}, "HTTP statuses that are retried (can be repeated)")
	flags.IntSliceVar(&allowedHTTPCodes, "allowed-http-code", []int{}, "non-2xx HTTP statuses still handed to extractors (can be repeated)")
	flags.StringVar(&fingerprintAlgo, "fingerprint-algo", "", "request fingerprint hash: sha256 or blake3")
	flags.StringVar(&jobDir, "job-dir", "", "directory persisting the crawl state for resumption")
	flags.StringVar(&jobName, "job-name", "", "keep the crawl state in the default data directory under this name")
	flags.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", "", "text or json")
	flags.StringVar(&statusAddr, "status-addr", "", "serve the status endpoint on this address (e.g., 127.0.0.1:6023)")
}

// InitConfigWithError builds the crawl config from the config file, if one
// was given, or from the flags on top of the defaults.
// Seeds may only be empty when a job directory is resumed.
func InitConfigWithError(seedUrls []url.URL) (config.Config, error) {
	if cfgFile != "" {
		cfg, err := config.WithConfigFile(cfgFile)
		if err != nil {
			return cfg, fmt.Errorf("error initializing config from file: %w", err)
		}
		if len(cfg.SeedURLs()) == 0 && cfg.JobDir() == "" {
			return config.Config{}, fmt.Errorf("%w: config file has no seedUrls", config.ErrInvalidConfig)
		}
		return cfg, nil
	}

	if len(seedUrls) == 0 && jobDir == "" && jobName == "" {
		return config.Config{}, fmt.Errorf("%w: seedUrls cannot be empty", config.ErrInvalidConfig)
	}

	configBuilder := config.WithDefault(seedUrls)

	if maxDepth > 0 {
		configBuilder = configBuilder.WithMaxDepth(maxDepth)
	}
	if followExternal {
		configBuilder = configBuilder.WithFollowExternal(true)
	}
	if len(contentSelectors) > 0 {
		configBuilder = configBuilder.WithContentSelectors(contentSelectors)
	}
	if concurrentRequests > 0 {
		configBuilder = configBuilder.WithConcurrentRequests(concurrentRequests)
	}
	if concurrentRequestsPerOrigin > 0 {
		configBuilder = configBuilder.WithConcurrentRequestsPerOrigin(concurrentRequestsPerOrigin)
	}
	if downloadDelay > 0 {
		configBuilder = configBuilder.WithDownloadDelay(downloadDelay)
	}
	if fixedDelay {
		configBuilder = configBuilder.WithRandomizeDelay(false)
	}
	if jitter > 0 {
		configBuilder = configBuilder.WithJitter(jitter)
	}
	if randomSeed != 0 {
		configBuilder = configBuilder.WithRandomSeed(randomSeed)
	}
	if downloadTimeout > 0 {
		configBuilder = configBuilder.WithDownloadTimeout(downloadTimeout)
	}
	if rateLimit > 0 {
		burst := rateBurst
		if burst < 1 {
			burst = 1
		}
		configBuilder = configBuilder.WithRateLimit(rateLimit, burst)
	}
	if userAgent != "" {
		configBuilder = configBuilder.WithUserAgent(userAgent)
	}
	if ignoreRobots {
		configBuilder = configBuilder.WithObeyRobots(false)
	}
	if urlLengthLimit > 0 {
		configBuilder = configBuilder.WithURLLengthLimit(urlLengthLimit)
	}
	if scraperConcurrency > 0 {
		configBuilder = configBuilder.WithScraperConcurrency(scraperConcurrency)
	}
	if maxRetries >= 0 {
		configBuilder = configBuilder.WithMaxRetries(maxRetries)
	}
	if len(retryHTTPCodes) > 0 {
		configBuilder = configBuilder.WithRetryHTTPCodes(retryHTTPCodes)
	}
	if len(allowedHTTPCodes) > 0 {
		configBuilder = configBuilder.WithAllowedHTTPCodes(allowedHTTPCodes)
	}
	if fingerprintAlgo != "" {
		configBuilder = configBuilder.WithFingerprintAlgo(hashutil.HashAlgo(fingerprintAlgo))
	}
	switch {
	case jobDir != "":
		configBuilder = configBuilder.WithJobDir(jobDir)
	case jobName != "":
		configBuilder = configBuilder.WithJobDir(config.DefaultJobDir(jobName))
	}
	if logLevel != "" {
		configBuilder = configBuilder.WithLogLevel(logLevel)
	}
	if logFormat != "" {
		configBuilder = configBuilder.WithLogFormat(logFormat)
	}
	if statusAddr != "" {
		configBuilder = configBuilder.WithStatusAddr(statusAddr)
	}

	cfg, err := configBuilder.Build()
	if err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func ResetFlags() {
	cfgFile = ""
	seedURLs = []string{}
	maxDepth = 0
	followExternal = false
	contentSelectors = []string{}
	concurrentRequests = 0
	concurrentRequestsPerOrigin = 0
	downloadDelay = 0
	fixedDelay = false
	jitter = 0
	randomSeed = 0
	downloadTimeout = 0
	rateLimit = 0
	rateBurst = 0
	userAgent = ""
	ignoreRobots = false
	urlLengthLimit = 0
	scraperConcurrency = 0
	maxRetries = -1
	retryHTTPCodes = []int{}
	allowedHTTPCodes = []int{}
	fingerprintAlgo = ""
	jobDir = ""
	jobName = ""
	logLevel = ""
	logFormat = ""
	statusAddr = ""
}

// Test helper functions to set flag values from tests
func SetConfigFileForTest(path string) {
	cfgFile = path
}

func SetSeedURLsForTest(urls []string) {
	seedURLs = urls
}

func SetMaxDepthForTest(depth int) {
	maxDepth = depth
}

func SetConcurrentRequestsForTest(n int) {
	concurrentRequests = n
}

func SetConcurrentRequestsPerOriginForTest(n int) {
	concurrentRequestsPerOrigin = n
}

func SetDownloadDelayForTest(delay time.Duration) {
	downloadDelay = delay
}

func SetFixedDelayForTest(fixed bool) {
	fixedDelay = fixed
}

func SetRateLimitForTest(perSecond float64, burst int) {
	rateLimit = perSecond
	rateBurst = burst
}

func SetUserAgentForTest(agent string) {
	userAgent = agent
}

func SetIgnoreRobotsForTest(ignore bool) {
	ignoreRobots = ignore
}

func SetMaxRetriesForTest(n int) {
	maxRetries = n
}

func SetRetryHTTPCodesForTest(codes []int) {
	retryHTTPCodes = codes
}

func SetFingerprintAlgoForTest(algo string) {
	fingerprintAlgo = algo
}

func SetJobDirForTest(dir string) {
	jobDir = dir
}

func SetJobNameForTest(name string) {
	jobName = name
}

func SetLogForTest(level, format string) {
	logLevel = level
	logFormat = format
}
