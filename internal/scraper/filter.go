package scraper

import (
	"fmt"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

// RequestFilter vets requests produced by extractors before they reach the
// scheduler. A rejected request is counted under "<Name>/request_ignored_count".
type RequestFilter interface {
	Name() string
	Allow(req *crawl.Request) (bool, string)
}

// DefaultFilters returns the filters cfg enables, in the order they run.
func DefaultFilters(cfg config.Config) []RequestFilter {
	var filters []RequestFilter
	if limit := cfg.URLLengthLimit(); limit > 0 {
		filters = append(filters, NewURLLengthFilter(limit))
	}
	return filters
}

// URLLengthFilter rejects requests whose URL is longer than limit bytes.
type URLLengthFilter struct {
	limit int
}

func NewURLLengthFilter(limit int) *URLLengthFilter {
	return &URLLengthFilter{limit: limit}
}

func (f *URLLengthFilter) Name() string {
	return "urllength"
}

func (f *URLLengthFilter) Allow(req *crawl.Request) (bool, string) {
	u := req.URL()
	if n := len(u.String()); n > f.limit {
		return false, fmt.Sprintf("url length %d exceeds limit %d", n, f.limit)
	}
	return true, ""
}
