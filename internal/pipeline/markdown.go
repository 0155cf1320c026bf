package pipeline

import (
	"context"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"golang.org/x/net/html"
)

// Item fields written by the stages.
const (
	FieldHTML        = "html"
	FieldMarkdown    = "markdown"
	FieldLinkRefs    = "link_refs"
	FieldOutline     = "outline"
	FieldContentHash = "content_hash"
	FieldStructure   = "structure"
)

/*
Conversion rules
- Headings map directly (h1-h6 to # - ######)
- Code blocks preserved verbatim
- Tables converted structurally (GFM)
- Links and images preserved as-is (no resolution)
- DOM order preserved
*/

// MarkdownStage converts the html field of an item to markdown and lists
// the link and image references it contains. Items without html pass through.
type MarkdownStage struct {
	conv *converter.Converter
}

func NewMarkdownStage() *MarkdownStage {
	return &MarkdownStage{
		conv: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}
}

func (m *MarkdownStage) Name() string {
	return "markdown"
}

func (m *MarkdownStage) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	raw := item.Text(FieldHTML)
	if strings.TrimSpace(raw) == "" {
		return item, nil
	}
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return item, &StageError{Message: err.Error(), Cause: ErrCauseConversionFailure}
	}
	markdown, err := m.conv.ConvertNode(node)
	if err != nil {
		return item, &StageError{Message: err.Error(), Cause: ErrCauseConversionFailure}
	}
	return item.
		With(FieldMarkdown, string(markdown)).
		With(FieldLinkRefs, extractLinkRefs(node)), nil
}

type LinkKind string

const (
	KindNavigation LinkKind = "navigation"
	KindImage      LinkKind = "image"
	KindAnchor     LinkKind = "anchor"
)

type LinkRef struct {
	Raw  string   `json:"raw"`
	Kind LinkKind `json:"kind"`
}

// extractLinkRefs returns the a[href] and img[src] references in document order.
func extractLinkRefs(node *html.Node) []LinkRef {
	refs := []LinkRef{}
	goquery.NewDocumentFromNode(node).Find("a[href], img[src]").Each(func(_ int, s *goquery.Selection) {
		switch goquery.NodeName(s) {
		case "a":
			href, _ := s.Attr("href")
			kind := KindNavigation
			if strings.HasPrefix(href, "#") {
				kind = KindAnchor
			}
			refs = append(refs, LinkRef{Raw: href, Kind: kind})
		case "img":
			src, _ := s.Attr("src")
			refs = append(refs, LinkRef{Raw: src, Kind: KindImage})
		}
	})
	return refs
}
