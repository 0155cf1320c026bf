package extractor

import (
	"bytes"
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

// PageExtractor emits one page item per HTML response followed by the
// requests for its links.
//
// Title, text, excerpt and language come from readability. The html field is
// the located content container, falling back to the readability article and
// then to the whole body.
type PageExtractor struct {
	links        *LinkExtractor
	selectors    []string
	metadataSink metadata.MetadataSink
}

var _ crawl.Extractor = (*PageExtractor)(nil)

func NewPageExtractor(cfg config.Config, metadataSink metadata.MetadataSink) *PageExtractor {
	return &PageExtractor{
		links:        NewLinkExtractor(cfg, metadataSink),
		selectors:    mergeSelectors(contentSelectors, cfg.ContentSelectors()),
		metadataSink: metadataSink,
	}
}

func (p *PageExtractor) Parse(ctx context.Context, resp *crawl.Response) ([]crawl.Result, error) {
	if !isHTML(resp.ContentType()) {
		return nil, nil
	}
	doc, err := parseDocument(resp.Body(), p.selectors)
	if err != nil {
		recordParseError(p.metadataSink, "PageExtractor.Parse", resp, err)
		return nil, err
	}
	gq := goquery.NewDocumentFromNode(doc.Root)

	item := p.page(resp, doc, gq)
	links := p.links.links(resp, gq)

	results := make([]crawl.Result, 0, len(links)+1)
	results = append(results, item)
	for _, link := range links {
		results = append(results, link)
	}
	return results, nil
}

func (p *PageExtractor) page(resp *crawl.Response, doc Document, gq *goquery.Document) crawl.Item {
	finalURL := resp.URL()
	item := crawl.NewItem(KindPage, finalURL.String())
	item.Fields[FieldURL] = finalURL.String()
	item.Fields[FieldStatus] = resp.Status()

	var article readability.Article
	parsed, err := readability.FromReader(bytes.NewReader(resp.Body()), &finalURL)
	if err == nil {
		article = parsed
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		title = strings.TrimSpace(gq.Find("title").First().Text())
	}
	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		text = strings.TrimSpace(gq.Find("body").Text())
	}

	var content string
	switch {
	case doc.Content != nil:
		content = renderNode(doc.Content)
	case strings.TrimSpace(article.Content) != "":
		content = article.Content
	default:
		content = string(resp.Body())
	}

	item.Fields[FieldTitle] = title
	item.Fields[FieldText] = text
	item.Fields[FieldHTML] = content
	if article.Excerpt != "" {
		item.Fields[FieldExcerpt] = article.Excerpt
	}
	if article.Language != "" {
		item.Fields[FieldLang] = article.Language
	}
	return item
}
