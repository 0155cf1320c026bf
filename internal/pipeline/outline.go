package pipeline

import (
	"bytes"
	"context"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/ast"
	"github.com/gomarkdown/markdown/parser"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
)

type Heading struct {
	Level int    `json:"level"`
	Text  string `json:"text"`
}

// OutlineStage lists the headings of the markdown field in document order.
type OutlineStage struct{}

func NewOutlineStage() *OutlineStage {
	return &OutlineStage{}
}

func (o *OutlineStage) Name() string {
	return "outline"
}

func (o *OutlineStage) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	md := item.Text(FieldMarkdown)
	if md == "" {
		return item, nil
	}
	return item.With(FieldOutline, outline([]byte(md))), nil
}

func outline(md []byte) []Heading {
	// a parser must not be reused across documents
	p := parser.NewWithExtensions(parser.CommonExtensions)
	doc := markdown.Parse(md, p)

	headings := []Heading{}
	ast.WalkFunc(doc, func(node ast.Node, entering bool) ast.WalkStatus {
		heading, ok := node.(*ast.Heading)
		if !ok || !entering {
			return ast.GoToNext
		}
		headings = append(headings, Heading{
			Level: heading.Level,
			Text:  headingText(heading),
		})
		return ast.SkipChildren
	})
	return headings
}

func headingText(heading *ast.Heading) string {
	var buf bytes.Buffer
	ast.WalkFunc(heading, func(node ast.Node, entering bool) ast.WalkStatus {
		if leaf := node.AsLeaf(); entering && leaf != nil {
			buf.Write(leaf.Literal)
		}
		return ast.GoToNext
	})
	return strings.TrimSpace(buf.String())
}
