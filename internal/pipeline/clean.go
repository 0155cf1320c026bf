package pipeline

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/sanitizer"
	"golang.org/x/net/html"
)

// CleanStage strips empty and repeated blocks from the html field and
// records the structure verdict. The html field keeps only the body.
type CleanStage struct{}

func NewCleanStage() *CleanStage {
	return &CleanStage{}
}

func (c *CleanStage) Name() string {
	return "clean"
}

func (c *CleanStage) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	raw := item.Text(FieldHTML)
	if strings.TrimSpace(raw) == "" {
		return item, nil
	}
	node, err := html.Parse(strings.NewReader(raw))
	if err != nil {
		return item, &StageError{Message: err.Error(), Cause: ErrCauseConversionFailure}
	}
	report := sanitizer.Clean(node)
	body, err := goquery.NewDocumentFromNode(node).Find("body").Html()
	if err != nil {
		return item, &StageError{Message: err.Error(), Cause: ErrCauseConversionFailure}
	}
	return item.
		With(FieldHTML, body).
		With(FieldStructure, string(report.Structure)), nil
}
