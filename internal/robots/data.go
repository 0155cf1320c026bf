package robots

import (
	"net/url"
	"time"
)

type DecisionReason string

const (
	AllowedByRobots    DecisionReason = "allowed_by_robots"
	DisallowedByRobots DecisionReason = "disallowed_by_robots"
	RulesUnavailable   DecisionReason = "rules_unavailable"
	NotObeyed          DecisionReason = "not_obeyed"
)

type Decision struct {
	Url url.URL

	Allowed bool

	// Why this decision was made (for logging/debugging)
	Reason DecisionReason

	// Crawl-delay of the matched group, zero when absent
	CrawlDelay time.Duration
}
