package extractor

import (
	"context"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/pkg/urlutil"
)

// LinkExtractor follows the anchors of an HTML page. Child requests inherit
// the callback of the page request, carry it as Referer and are one level deeper.
type LinkExtractor struct {
	metadataSink   metadata.MetadataSink
	maxDepth       int
	followExternal bool
}

var _ crawl.Extractor = (*LinkExtractor)(nil)

func NewLinkExtractor(cfg config.Config, metadataSink metadata.MetadataSink) *LinkExtractor {
	return &LinkExtractor{
		metadataSink:   metadataSink,
		maxDepth:       cfg.MaxDepth(),
		followExternal: cfg.FollowExternal(),
	}
}

func (l *LinkExtractor) Parse(ctx context.Context, resp *crawl.Response) ([]crawl.Result, error) {
	if !isHTML(resp.ContentType()) {
		return nil, nil
	}
	doc, err := parseDocument(resp.Body(), nil)
	if err != nil {
		recordParseError(l.metadataSink, "LinkExtractor.Parse", resp, err)
		return nil, err
	}
	links := l.links(resp, goquery.NewDocumentFromNode(doc.Root))
	results := make([]crawl.Result, 0, len(links))
	for _, link := range links {
		results = append(results, link)
	}
	return results, nil
}

// links returns the followable requests of a page in document order,
// without repeats.
func (l *LinkExtractor) links(resp *crawl.Response, doc *goquery.Document) []*crawl.Request {
	depth := Depth(resp.Request()) + 1
	if l.maxDepth > 0 && depth > l.maxDepth {
		return nil
	}

	page := resp.URL()
	base := &page
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if resolved, err := page.Parse(strings.TrimSpace(href)); err == nil {
			base = resolved
		}
	}
	pageOrigin := urlutil.OriginKey(page)
	referer := page.String()

	var requests []*crawl.Request
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		target, err := base.Parse(href)
		if err != nil {
			return
		}
		if target.Scheme != "http" && target.Scheme != "https" {
			return
		}
		target.Fragment = ""
		target.RawFragment = ""
		if !l.followExternal && urlutil.OriginKey(*target) != pageOrigin {
			return
		}
		key := target.String()
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		req, err := crawl.NewRequestFromURL(*target,
			crawl.WithHeader("Referer", referer),
			crawl.WithCallback(resp.Request().Callback()),
			crawl.WithMeta(crawl.MetaReferer, referer),
			crawl.WithMeta(MetaDepth, depth),
		)
		if err != nil {
			return
		}
		requests = append(requests, req)
	})
	return requests
}

// Depth reads the link depth of req. JSON round trips turn it into float64.
func Depth(req *crawl.Request) int {
	v, _ := req.Meta(MetaDepth)
	switch d := v.(type) {
	case int:
		return d
	case int64:
		return int(d)
	case float64:
		return int(d)
	default:
		return 0
	}
}

func recordParseError(sink metadata.MetadataSink, action string, resp *crawl.Response, err *ParseError) {
	source := resp.Request().URL()
	sink.RecordError(
		time.Now(),
		"extractor",
		action,
		mapParseErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, source.String()),
		},
	)
}
