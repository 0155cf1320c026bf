/*
Package sanitizer cleans page html before it is converted to markdown.

  - Empty elements are removed innermost first
  - Repeated sibling blocks keep their first occurrence
  - Headings and sectioning elements are never removed as duplicates
*/
package sanitizer

import (
	"fmt"
	"hash/fnv"
	"io"
	"strings"

	"golang.org/x/net/html"
)

type Report struct {
	EmptyRemoved      int
	DuplicatesRemoved int
	Structure         Verdict
}

// Clean modifies root in place and reports what it removed.
func Clean(root *html.Node) Report {
	if root == nil {
		return Report{Structure: VerdictOK}
	}
	report := Report{}
	report.EmptyRemoved = removeEmpty(root)
	report.DuplicatesRemoved = removeDuplicates(root)
	report.Structure = Inspect(root)
	return report
}

// elements that are meaningful without children
var keepWhenEmpty = map[string]bool{
	"html": true, "head": true, "body": true, "main": true,
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
	"td": true, "th": true, "iframe": true, "video": true, "audio": true,
	"canvas": true, "svg": true, "object": true, "textarea": true,
}

func removeEmpty(node *html.Node) int {
	removed := 0
	for _, child := range children(node) {
		removed += removeEmpty(child)
	}
	if node.Type != html.ElementNode || keepWhenEmpty[node.Data] || node.Parent == nil {
		return removed
	}
	// an empty element with an id may still be a fragment target
	if hasAttr(node, "id") || !isEmpty(node) {
		return removed
	}
	node.Parent.RemoveChild(node)
	return removed + 1
}

func isEmpty(node *html.Node) bool {
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		switch child.Type {
		case html.ElementNode:
			return false
		case html.TextNode:
			if strings.TrimSpace(child.Data) != "" {
				return false
			}
		}
	}
	return true
}

func removeDuplicates(node *html.Node) int {
	removed := 0
	seen := make(map[uint64]bool)
	for _, child := range children(node) {
		if child.Type == html.ElementNode && dedupable(child.Data) {
			sig := signature(child)
			if seen[sig] {
				node.RemoveChild(child)
				removed++
				continue
			}
			seen[sig] = true
		}
		removed += removeDuplicates(child)
	}
	return removed
}

func dedupable(tag string) bool {
	if isHeading(tag) {
		return false
	}
	switch tag {
	case "main", "article", "section", "header", "footer", "nav", "aside",
		"li", "tr", "td", "th", "br", "hr", "img", "wbr":
		return false
	}
	return true
}

// signature hashes the tag, attributes and trimmed text of a subtree.
func signature(node *html.Node) uint64 {
	h := fnv.New64a()
	writeSignature(h, node)
	return h.Sum64()
}

func writeSignature(w io.Writer, node *html.Node) {
	switch node.Type {
	case html.ElementNode:
		fmt.Fprintf(w, "<%s", node.Data)
		for _, attr := range node.Attr {
			fmt.Fprintf(w, " %s=%q", attr.Key, attr.Val)
		}
		_, _ = w.Write([]byte(">"))
	case html.TextNode:
		_, _ = w.Write([]byte(strings.TrimSpace(node.Data)))
	default:
		return
	}
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		writeSignature(w, child)
	}
	_, _ = w.Write([]byte("</>"))
}

func children(node *html.Node) []*html.Node {
	var out []*html.Node
	for child := node.FirstChild; child != nil; child = child.NextSibling {
		out = append(out, child)
	}
	return out
}

func hasAttr(node *html.Node, key string) bool {
	for _, attr := range node.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}
