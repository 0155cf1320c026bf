package extractor

import "golang.org/x/net/html"

// Item kinds and fields emitted by the built-in extractors.
const (
	KindPage = "page"

	FieldURL     = "url"
	FieldStatus  = "status"
	FieldTitle   = "title"
	FieldText    = "text"
	FieldHTML    = "html"
	FieldExcerpt = "excerpt"
	FieldLang    = "lang"
)

// Meta key carrying the link depth of a request. Seeds have depth 0.
const MetaDepth = "depth"

// Document is a parsed HTML response.
// Root is the parsed document, Content the node holding the main content
// (nil when no container qualified).
type Document struct {
	Root    *html.Node
	Content *html.Node
}
