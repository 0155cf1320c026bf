package sanitizer

import (
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Verdict classifies the document structure left after cleaning. Anything
// but VerdictOK means the markdown outline may not reflect a single document.
type Verdict string

const (
	VerdictOK Verdict = "ok"
	// more than one main, or sibling articles
	VerdictCompetingRoots Verdict = "competing_roots"
	// no headings and no main, article or section
	VerdictNoAnchor Verdict = "no_structural_anchor"
	// several h1 outside of any article
	VerdictMultipleH1 Verdict = "multiple_h1_no_root"
)

func Inspect(root *html.Node) Verdict {
	doc := goquery.NewDocumentFromNode(root)

	if doc.Find("main").Length() > 1 || hasSiblingArticles(doc) {
		return VerdictCompetingRoots
	}

	headings := doc.Find("h1, h2, h3, h4, h5, h6").Length()
	anchors := doc.Find("main, article, section").Length()
	if headings == 0 && anchors == 0 {
		return VerdictNoAnchor
	}

	looseH1 := doc.Find("h1").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered("article").Length() == 0
	}).Length()
	if looseH1 > 1 {
		return VerdictMultipleH1
	}
	return VerdictOK
}

func hasSiblingArticles(doc *goquery.Document) bool {
	perParent := make(map[*html.Node]int)
	found := false
	doc.Find("article").Each(func(_ int, s *goquery.Selection) {
		node := s.Get(0)
		if node.Parent == nil {
			return
		}
		perParent[node.Parent]++
		if perParent[node.Parent] > 1 {
			found = true
		}
	})
	return found
}
