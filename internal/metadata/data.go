package metadata

/*
	ErrorCause is a closed, canonical classification used exclusively for
	observability (logging, reporting).

	Rules:
	 - ErrorCause MUST NOT influence control flow.
	 - ErrorCause MUST NOT be used for retry, continuation, or abort decisions.
	 - ErrorCause values MUST have stable, package-agnostic semantics.
	 - Packages MAY map their local errors to ErrorCause,
	   but MUST NOT invent new meanings.

If a failure does not clearly match a defined cause, CauseUnknown MUST be used.
*/
type ErrorCause int

/*
Canonical ErrorCause Table

# CauseUnknown
  - The failure does not map cleanly to any known category.

# CauseNetworkFailure
  - Failure caused by network transport or remote availability.
  - timeouts, DNS resolution, refused connections, TLS handshakes

# CausePolicyDisallow
  - Crawling was disallowed by an explicit policy or rule.
  - robots.txt disallow, URL length limit, closed origin

# CauseContentInvalid
  - Content was fetched but could not be processed meaningfully.
  - extractor failures, rejected HTTP statuses, pipeline failures

# CauseStorageFailure
  - Failure while persisting crawl state.
  - unserializable requests, job directory I/O

# CauseInvariantViolation
  - A system-level invariant was violated.
*/
const (
	CauseUnknown ErrorCause = iota
	CauseNetworkFailure
	CausePolicyDisallow
	CauseContentInvalid
	CauseStorageFailure
	CauseInvariantViolation
)

func (c ErrorCause) String() string {
	switch c {
	case CauseNetworkFailure:
		return "network_failure"
	case CausePolicyDisallow:
		return "policy_disallow"
	case CauseContentInvalid:
		return "content_invalid"
	case CauseStorageFailure:
		return "storage_failure"
	case CauseInvariantViolation:
		return "invariant_violation"
	default:
		return "unknown"
	}
}

type Attribute struct {
	Key   AttributeKey
	Value string
}

func NewAttr(key AttributeKey, val string) Attribute {
	return Attribute{
		Key:   key,
		Value: val,
	}
}

type AttributeKey string

const (
	AttrURL        AttributeKey = "url"
	AttrOrigin     AttributeKey = "origin"
	AttrMethod     AttributeKey = "method"
	AttrField      AttributeKey = "field"
	AttrHTTPStatus AttributeKey = "http_status"
	AttrErrorKind  AttributeKey = "error_kind"
	AttrReason     AttributeKey = "reason"
	AttrItemKind   AttributeKey = "item_kind"
	AttrRetryTimes AttributeKey = "retry_times"
	AttrState      AttributeKey = "state"
	AttrPath       AttributeKey = "path"
	AttrTitle      AttributeKey = "title"
)
