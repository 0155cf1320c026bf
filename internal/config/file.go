package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/rohmanhakim/crawl-engine/pkg/fileutil"
	"github.com/rohmanhakim/crawl-engine/pkg/hashutil"
	"gopkg.in/yaml.v3"
)

// Duration accepts "250ms"-style strings or a number of nanoseconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	return d.set(raw)
}

func (d *Duration) set(raw any) error {
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	case int:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration %v", raw)
	}
	return nil
}

// configDTO mirrors Config for files. Pointers mark settings whose zero value
// is meaningful, so leaving them out keeps the default.
type configDTO struct {
	SeedURLs                    []string  `json:"seedUrls" yaml:"seedUrls"`
	URLLengthLimit              *int      `json:"urlLengthLimit,omitempty" yaml:"urlLengthLimit,omitempty"`
	ObeyRobots                  *bool     `json:"obeyRobots,omitempty" yaml:"obeyRobots,omitempty"`
	MaxDepth                    int       `json:"maxDepth,omitempty" yaml:"maxDepth,omitempty"`
	FollowExternal              bool      `json:"followExternal,omitempty" yaml:"followExternal,omitempty"`
	ContentSelectors            []string  `json:"contentSelectors,omitempty" yaml:"contentSelectors,omitempty"`
	ConcurrentRequests          int       `json:"concurrentRequests,omitempty" yaml:"concurrentRequests,omitempty"`
	ConcurrentRequestsPerOrigin int       `json:"concurrentRequestsPerOrigin,omitempty" yaml:"concurrentRequestsPerOrigin,omitempty"`
	DownloadDelay               *Duration `json:"downloadDelay,omitempty" yaml:"downloadDelay,omitempty"`
	RandomizeDelay              *bool     `json:"randomizeDelay,omitempty" yaml:"randomizeDelay,omitempty"`
	Jitter                      *Duration `json:"jitter,omitempty" yaml:"jitter,omitempty"`
	RandomSeed                  int64     `json:"randomSeed,omitempty" yaml:"randomSeed,omitempty"`
	DownloadTimeout             *Duration `json:"downloadTimeout,omitempty" yaml:"downloadTimeout,omitempty"`
	DownloaderQueueCeiling      int       `json:"downloaderQueueCeiling,omitempty" yaml:"downloaderQueueCeiling,omitempty"`
	RateLimit                   float64   `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty"`
	RateBurst                   int       `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty"`
	BackoffInitialDuration      *Duration `json:"backoffInitialDuration,omitempty" yaml:"backoffInitialDuration,omitempty"`
	BackoffMultiplier           float64   `json:"backoffMultiplier,omitempty" yaml:"backoffMultiplier,omitempty"`
	BackoffMaxDuration          *Duration `json:"backoffMaxDuration,omitempty" yaml:"backoffMaxDuration,omitempty"`
	UserAgent                   string    `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
	MaxBodyBytes                int64     `json:"maxBodyBytes,omitempty" yaml:"maxBodyBytes,omitempty"`
	RobotsMaxAttempt            int       `json:"robotsMaxAttempt,omitempty" yaml:"robotsMaxAttempt,omitempty"`
	ScraperConcurrency          int       `json:"scraperConcurrency,omitempty" yaml:"scraperConcurrency,omitempty"`
	ScraperQueueCeiling         int       `json:"scraperQueueCeiling,omitempty" yaml:"scraperQueueCeiling,omitempty"`
	ScraperMaxActiveSize        int       `json:"scraperMaxActiveSize,omitempty" yaml:"scraperMaxActiveSize,omitempty"`
	MaxRetries                  *int      `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	RetryHTTPCodes              []int     `json:"retryHttpCodes,omitempty" yaml:"retryHttpCodes,omitempty"`
	AllowedHTTPCodes            []int     `json:"allowedHttpCodes,omitempty" yaml:"allowedHttpCodes,omitempty"`
	FingerprintAlgo             string    `json:"fingerprintAlgo,omitempty" yaml:"fingerprintAlgo,omitempty"`
	FingerprintHeaders          []string  `json:"fingerprintHeaders,omitempty" yaml:"fingerprintHeaders,omitempty"`
	JobDir                      string    `json:"jobDir,omitempty" yaml:"jobDir,omitempty"`
	LogLevel                    string    `json:"logLevel,omitempty" yaml:"logLevel,omitempty"`
	LogFormat                   string    `json:"logFormat,omitempty" yaml:"logFormat,omitempty"`
	StatusAddr                  string    `json:"statusAddr,omitempty" yaml:"statusAddr,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	seeds := make([]url.URL, 0, len(dto.SeedURLs))
	for _, raw := range dto.SeedURLs {
		u, err := url.Parse(raw)
		if err != nil {
			return Config{}, invalid("seedUrls", "%s", err.Error())
		}
		seeds = append(seeds, *u)
	}

	// Start with default config, only override what the file sets
	cfg := WithDefault(seeds)

	if dto.URLLengthLimit != nil {
		cfg.urlLengthLimit = *dto.URLLengthLimit
	}
	if dto.ObeyRobots != nil {
		cfg.obeyRobots = *dto.ObeyRobots
	}
	if dto.MaxDepth != 0 {
		cfg.maxDepth = dto.MaxDepth
	}
	if dto.FollowExternal {
		cfg.followExternal = true
	}
	if len(dto.ContentSelectors) > 0 {
		cfg.contentSelectors = dto.ContentSelectors
	}
	if dto.ConcurrentRequests != 0 {
		cfg.concurrentRequests = dto.ConcurrentRequests
	}
	if dto.ConcurrentRequestsPerOrigin != 0 {
		cfg.concurrentRequestsPerOrigin = dto.ConcurrentRequestsPerOrigin
	}
	if dto.DownloadDelay != nil {
		cfg.downloadDelay = time.Duration(*dto.DownloadDelay)
	}
	if dto.RandomizeDelay != nil {
		cfg.randomizeDelay = *dto.RandomizeDelay
	}
	if dto.Jitter != nil {
		cfg.jitter = time.Duration(*dto.Jitter)
	}
	if dto.RandomSeed != 0 {
		cfg.randomSeed = dto.RandomSeed
	}
	if dto.DownloadTimeout != nil {
		cfg.downloadTimeout = time.Duration(*dto.DownloadTimeout)
	}
	if dto.DownloaderQueueCeiling != 0 {
		cfg.downloaderQueueCeiling = dto.DownloaderQueueCeiling
	}
	if dto.RateLimit != 0 {
		cfg.rateLimit = dto.RateLimit
	}
	if dto.RateBurst != 0 {
		cfg.rateBurst = dto.RateBurst
	}
	if dto.BackoffInitialDuration != nil {
		cfg.backoffInitialDuration = time.Duration(*dto.BackoffInitialDuration)
	}
	if dto.BackoffMultiplier != 0 {
		cfg.backoffMultiplier = dto.BackoffMultiplier
	}
	if dto.BackoffMaxDuration != nil {
		cfg.backoffMaxDuration = time.Duration(*dto.BackoffMaxDuration)
	}
	if dto.UserAgent != "" {
		cfg.userAgent = dto.UserAgent
	}
	if dto.MaxBodyBytes != 0 {
		cfg.maxBodyBytes = dto.MaxBodyBytes
	}
	if dto.RobotsMaxAttempt != 0 {
		cfg.robotsMaxAttempt = dto.RobotsMaxAttempt
	}
	if dto.ScraperConcurrency != 0 {
		cfg.scraperConcurrency = dto.ScraperConcurrency
	}
	if dto.ScraperQueueCeiling != 0 {
		cfg.scraperQueueCeiling = dto.ScraperQueueCeiling
	}
	if dto.ScraperMaxActiveSize != 0 {
		cfg.scraperMaxActiveSize = dto.ScraperMaxActiveSize
	}
	if dto.MaxRetries != nil {
		cfg.maxRetries = *dto.MaxRetries
	}
	if dto.RetryHTTPCodes != nil {
		cfg.retryHTTPCodes = dto.RetryHTTPCodes
	}
	if dto.AllowedHTTPCodes != nil {
		cfg.allowedHTTPCodes = dto.AllowedHTTPCodes
	}
	if dto.FingerprintAlgo != "" {
		cfg.fingerprintAlgo = hashutil.HashAlgo(dto.FingerprintAlgo)
	}
	if dto.FingerprintHeaders != nil {
		cfg.fingerprintHeaders = dto.FingerprintHeaders
	}
	if dto.JobDir != "" {
		cfg.jobDir = dto.JobDir
	}
	if dto.LogLevel != "" {
		cfg.logLevel = dto.LogLevel
	}
	if dto.LogFormat != "" {
		cfg.logFormat = dto.LogFormat
	}
	if dto.StatusAddr != "" {
		cfg.statusAddr = dto.StatusAddr
	}

	return cfg.Build()
}

// WithConfigFile loads a JSON or YAML file, chosen by extension, on top of the defaults.
func WithConfigFile(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		return Config{}, &ConfigurationError{
			Message: err.Error(),
			Cause:   ErrCauseFileMissing,
			Err:     ErrFileDoesNotExist,
		}
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &ConfigurationError{
			Message: err.Error(),
			Cause:   ErrCauseReadFailed,
			Err:     ErrReadConfigFail,
		}
	}

	cfgDTO := configDTO{}
	switch ext := fileutil.GetFileExtension(path); ext {
	case "yaml", "yml":
		err = yaml.Unmarshal(configContent, &cfgDTO)
	case "json", "":
		err = json.Unmarshal(configContent, &cfgDTO)
	default:
		err = errors.New("unsupported extension " + ext)
	}
	if err != nil {
		return Config{}, &ConfigurationError{
			Message: err.Error(),
			Cause:   ErrCauseParseFailed,
			Err:     ErrConfigParsingFail,
		}
	}

	return newConfigFromDTO(cfgDTO)
}
