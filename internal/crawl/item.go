package crawl

import "maps"

// Item is a unit of scraped data.
type Item struct {
	Kind      string
	SourceURL string
	Fields    map[string]any
}

func NewItem(kind, sourceURL string) Item {
	return Item{Kind: kind, SourceURL: sourceURL, Fields: make(map[string]any)}
}

func (i Item) Get(key string) (any, bool) {
	v, ok := i.Fields[key]
	return v, ok
}

func (i Item) Text(key string) string {
	v, _ := i.Fields[key].(string)
	return v
}

// With returns a copy of i with key set.
func (i Item) With(key string, value any) Item {
	fields := maps.Clone(i.Fields)
	if fields == nil {
		fields = make(map[string]any)
	}
	fields[key] = value
	return Item{Kind: i.Kind, SourceURL: i.SourceURL, Fields: fields}
}

func (i Item) isResult() {}

// Result is what an Extractor emits: *Request or Item.
type Result interface {
	isResult()
}
