package fingerprint

import (
	"encoding/hex"
	"net/http"
	"sort"
	"strings"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/pkg/hashutil"
	"github.com/rohmanhakim/crawl-engine/pkg/urlutil"
)

// Fingerprinter computes the dedup identity of a request. Implementations must
// be deterministic across processes when job persistence is used.
type Fingerprinter interface {
	Fingerprint(req *crawl.Request) (string, error)
}

// Default hashes method, canonical URL, body and a configured header subset.
type Default struct {
	algo    hashutil.HashAlgo
	policy  urlutil.Policy
	headers []string
}

type Option func(*Default)

func WithAlgo(algo hashutil.HashAlgo) Option {
	return func(d *Default) { d.algo = algo }
}

func WithPolicy(policy urlutil.Policy) Option {
	return func(d *Default) { d.policy = policy }
}

// WithHeaders includes the named headers in the fingerprint. Names are
// case-insensitive and order does not matter.
func WithHeaders(names ...string) Option {
	return func(d *Default) {
		seen := make(map[string]struct{}, len(names))
		d.headers = d.headers[:0]
		for _, n := range names {
			key := http.CanonicalHeaderKey(strings.TrimSpace(n))
			if key == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			d.headers = append(d.headers, key)
		}
		sort.Strings(d.headers)
	}
}

func New(opts ...Option) *Default {
	d := &Default{
		algo:   hashutil.HashAlgoSHA256,
		policy: urlutil.DefaultPolicy,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Default) Fingerprint(req *crawl.Request) (string, error) {
	h, err := hashutil.NewHasher(d.algo)
	if err != nil {
		return "", err
	}
	canonical := urlutil.CanonicalizeWith(req.URL(), d.policy)

	write := func(field []byte) {
		// length prefix keeps field boundaries unambiguous
		h.Write([]byte{byte(len(field) >> 24), byte(len(field) >> 16), byte(len(field) >> 8), byte(len(field))})
		h.Write(field)
	}
	write([]byte(strings.ToUpper(req.Method())))
	write([]byte(canonical.String()))
	write(req.Body())
	for _, name := range d.headers {
		values := req.Headers().Values(name)
		write([]byte(strings.ToLower(name)))
		write([]byte(strings.Join(values, ",")))
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Func adapts a function to Fingerprinter.
type Func func(req *crawl.Request) (string, error)

func (f Func) Fingerprint(req *crawl.Request) (string, error) {
	return f(req)
}
