package crawl

import (
	"fmt"
	"maps"
	"net/http"
	"net/url"

	"github.com/rohmanhakim/crawl-engine/pkg/urlutil"
)

// Meta keys understood by the engine and its built-in collaborators.
const (
	MetaRetryTimes        = "retry_times"
	MetaDontObeyRobotsTxt = "dont_obey_robotstxt"
	MetaReferer           = "referer"
)

// Request is a unit of crawl work. It is immutable once built; Replace and
// RetryCopy return modified copies.
type Request struct {
	url        url.URL
	method     string
	headers    http.Header
	body       []byte
	priority   int
	dontFilter bool
	callback   string
	meta       map[string]any
	origin     string
}

type RequestOption func(*Request)

func WithMethod(method string) RequestOption {
	return func(r *Request) { r.method = method }
}

func WithHeader(key, value string) RequestOption {
	return func(r *Request) { r.headers.Set(key, value) }
}

func WithHeaders(h http.Header) RequestOption {
	return func(r *Request) {
		for k, vs := range h {
			for _, v := range vs {
				r.headers.Add(k, v)
			}
		}
	}
}

func WithBody(body []byte) RequestOption {
	return func(r *Request) { r.body = append([]byte(nil), body...) }
}

func WithPriority(priority int) RequestOption {
	return func(r *Request) { r.priority = priority }
}

func WithDontFilter(dontFilter bool) RequestOption {
	return func(r *Request) { r.dontFilter = dontFilter }
}

// WithCallback names the extractor that parses the response.
func WithCallback(name string) RequestOption {
	return func(r *Request) { r.callback = name }
}

func WithMeta(key string, value any) RequestOption {
	return func(r *Request) { r.meta[key] = value }
}

// NewRequest parses rawURL and builds a GET request unless options say otherwise.
func NewRequest(rawURL string, opts ...RequestOption) (*Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse request url %q: %w", rawURL, err)
	}
	return NewRequestFromURL(*parsed, opts...)
}

func NewRequestFromURL(u url.URL, opts ...RequestOption) (*Request, error) {
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("request url %q must be absolute", u.String())
	}
	r := &Request{
		url:     u,
		method:  http.MethodGet,
		headers: make(http.Header),
		meta:    make(map[string]any),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.origin = urlutil.OriginKey(r.url)
	return r, nil
}

// MustRequest is NewRequest for literals known to be valid.
func MustRequest(rawURL string, opts ...RequestOption) *Request {
	r, err := NewRequest(rawURL, opts...)
	if err != nil {
		panic(err)
	}
	return r
}

// Replace returns a copy of r with opts applied on top.
func (r *Request) Replace(opts ...RequestOption) *Request {
	c := &Request{
		url:        r.url,
		method:     r.method,
		headers:    r.headers.Clone(),
		body:       r.body,
		priority:   r.priority,
		dontFilter: r.dontFilter,
		callback:   r.callback,
		meta:       maps.Clone(r.meta),
	}
	if c.headers == nil {
		c.headers = make(http.Header)
	}
	if c.meta == nil {
		c.meta = make(map[string]any)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.origin = urlutil.OriginKey(c.url)
	return c
}

// RetryCopy returns the copy scheduled for the next attempt: it bypasses the
// dedup filter, counts the attempt and shifts priority by adjust.
func (r *Request) RetryCopy(adjust int) *Request {
	return r.Replace(
		WithDontFilter(true),
		WithPriority(r.priority+adjust),
		WithMeta(MetaRetryTimes, r.RetryTimes()+1),
	)
}

func (r *Request) URL() url.URL {
	return r.url
}

func (r *Request) String() string {
	return fmt.Sprintf("<%s %s>", r.method, r.url.String())
}

func (r *Request) Method() string {
	return r.method
}

// Headers returns a copy of the request headers.
func (r *Request) Headers() http.Header {
	return r.headers.Clone()
}

func (r *Request) Header(key string) string {
	return r.headers.Get(key)
}

func (r *Request) Body() []byte {
	return r.body
}

func (r *Request) Priority() int {
	return r.priority
}

func (r *Request) DontFilter() bool {
	return r.dontFilter
}

func (r *Request) Callback() string {
	return r.callback
}

func (r *Request) Meta(key string) (any, bool) {
	v, ok := r.meta[key]
	return v, ok
}

// MetaMap returns a shallow copy of the request meta.
func (r *Request) MetaMap() map[string]any {
	return maps.Clone(r.meta)
}

// OriginKey is the scheme://host:port partition key of the request.
func (r *Request) OriginKey() string {
	return r.origin
}

// RetryTimes reads the retry counter. JSON round trips turn it into float64.
func (r *Request) RetryTimes() int {
	switch v := r.meta[MetaRetryTimes].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (r *Request) MetaBool(key string) bool {
	v, _ := r.meta[key].(bool)
	return v
}

func (r *Request) isResult() {}
