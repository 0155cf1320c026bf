package extractor

import (
	"bytes"
	"mime"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

/*
Content location
- Semantic containers first: <main>, <article>, [role="main"]
- Then the known content selectors, plus any configured ones
- A container only qualifies when it holds meaningful content

Nothing is stripped from the located node; it is handed on as-is.
*/

// isHTML reports whether a response content type may be parsed as HTML.
// An absent content type is given the benefit of the doubt.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// parseDocument parses body and locates its main content node.
func parseDocument(body []byte, selectors []string) (Document, *ParseError) {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return Document{}, &ParseError{
			Message: err.Error(),
			Cause:   ErrCauseNotHTML,
		}
	}
	return Document{
		Root:    root,
		Content: locateContent(goquery.NewDocumentFromNode(root), selectors),
	}, nil
}

// locateContent returns the first meaningful content container, or nil.
func locateContent(doc *goquery.Document, selectors []string) *html.Node {
	for _, selector := range []string{"main", "article", "[role='main']"} {
		if node := firstMeaningful(doc, selector); node != nil {
			return node
		}
	}
	for _, selector := range selectors {
		if node := firstMeaningful(doc, selector); node != nil {
			return node
		}
	}
	return nil
}

func firstMeaningful(doc *goquery.Document, selector string) *html.Node {
	sel := doc.Find(selector).First()
	if sel.Length() == 0 {
		return nil
	}
	if node := sel.Nodes[0]; isMeaningful(node) {
		return node
	}
	return nil
}

// isMeaningful checks if a node holds real content rather than chrome.
// A node qualifies with enough non-whitespace text and at least a paragraph,
// a code block or a heading, unless it is mostly link text.
func isMeaningful(node *html.Node) bool {
	if node == nil {
		return false
	}

	var stats struct {
		textLength     int
		nonWhitespace  int
		headings       int
		paragraphs     int
		codeBlocks     int
		links          int
		linkTextLength int
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			stats.textLength += len(n.Data)
			for _, r := range n.Data {
				if !unicode.IsSpace(r) {
					stats.nonWhitespace++
				}
			}
		case html.ElementNode:
			switch n.Data {
			case "h1", "h2", "h3", "h4", "h5", "h6":
				stats.headings++
			case "p":
				stats.paragraphs++
			case "pre", "code":
				stats.codeBlocks++
			case "a":
				stats.links++
				for c := n.FirstChild; c != nil; c = c.NextSibling {
					if c.Type == html.TextNode {
						stats.linkTextLength += len(strings.TrimSpace(c.Data))
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(node)

	const minNonWhitespace = 50
	const maxLinkDensity = 0.8

	if stats.nonWhitespace < minNonWhitespace {
		return false
	}
	if stats.textLength > 0 && stats.links > 2 {
		if float64(stats.linkTextLength)/float64(stats.textLength) > maxLinkDensity {
			return false
		}
	}
	return stats.paragraphs > 0 || stats.codeBlocks > 0 || stats.headings > 0
}

// renderNode serializes n back to HTML.
func renderNode(n *html.Node) string {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return ""
	}
	return buf.String()
}
