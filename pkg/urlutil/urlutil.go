package urlutil

import (
	"net"
	"net/url"
	"sort"
	"strings"
)

// Policy selects which parts of a URL survive canonicalization.
type Policy struct {
	// KeepQuery keeps query parameters, re-encoded in sorted key/value order.
	KeepQuery bool
	// KeepFragment keeps the fragment (anchor).
	KeepFragment bool
	// StripTrailingSlash removes trailing slashes from non-root paths.
	StripTrailingSlash bool
}

// DefaultPolicy keeps sorted query parameters and drops fragments.
var DefaultPolicy = Policy{KeepQuery: true}

// Canonicalize applies DefaultPolicy.
func Canonicalize(sourceUrl url.URL) url.URL {
	return CanonicalizeWith(sourceUrl, DefaultPolicy)
}

// CanonicalizeWith applies a deterministic normalization to a URL, producing a canonical form.
// It maps equivalent URL spellings to a single canonical representation.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Empty path becomes "/"
//   - Query parameters are sorted by key then value, or removed
//   - Fragments are removed unless the policy keeps them
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: CanonicalizeWith(CanonicalizeWith(u, p), p) == CanonicalizeWith(u, p)
func CanonicalizeWith(sourceUrl url.URL, policy Policy) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl
	canonical.User = nil

	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	if host, port := canonical.Hostname(), canonical.Port(); port != "" && port == defaultPort(canonical.Scheme) {
		canonical.Host = bracketIPv6(host)
	}

	if canonical.Path == "" && canonical.Opaque == "" {
		canonical.Path = "/"
		canonical.RawPath = ""
	}
	if policy.StripTrailingSlash && len(canonical.Path) > 1 {
		canonical.Path = stripTrailingSlash(canonical.Path)
		canonical.RawPath = ""
	}

	if policy.KeepQuery {
		canonical.RawQuery = sortedQuery(canonical.RawQuery)
	} else {
		canonical.RawQuery = ""
	}
	canonical.ForceQuery = false

	if !policy.KeepFragment {
		canonical.Fragment = ""
		canonical.RawFragment = ""
	}

	return canonical
}

// OriginKey returns scheme://host:port with the port always explicit,
// the partition key for per-origin concurrency and politeness.
func OriginKey(u url.URL) string {
	scheme := lowerASCII(u.Scheme)
	host := lowerASCII(u.Hostname())
	port := u.Port()
	if port == "" {
		port = defaultPort(scheme)
	}
	if port == "" {
		return scheme + "://" + bracketIPv6(host)
	}
	return scheme + "://" + net.JoinHostPort(host, port)
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

func bracketIPv6(host string) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]"
	}
	return host
}

// sortedQuery re-encodes a raw query with keys sorted and, for repeated keys,
// values sorted. Blank values are kept.
func sortedQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		// malformed escapes: keep the pairs as written, only reorder them
		pairs := strings.Split(rawQuery, "&")
		sort.Strings(pairs)
		return strings.Join(pairs, "&")
	}
	for _, v := range values {
		sort.Strings(v)
	}
	// url.Values.Encode sorts by key
	return values.Encode()
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}

// stripTrailingSlash removes trailing slashes from a path.
func stripTrailingSlash(path string) string {
	for len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}
	return path
}
