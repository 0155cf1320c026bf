package pipeline

import (
	"context"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

// LogStage records every item reaching it as scraped. It belongs last.
type LogStage struct {
	metadataSink metadata.MetadataSink
}

func NewLogStage(metadataSink metadata.MetadataSink) *LogStage {
	return &LogStage{metadataSink: metadataSink}
}

func (l *LogStage) Name() string {
	return "log"
}

func (l *LogStage) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	var attrs []metadata.Attribute
	if title := item.Text("title"); title != "" {
		attrs = append(attrs, metadata.NewAttr(metadata.AttrTitle, title))
	}
	l.metadataSink.RecordItem(item.Kind, item.SourceURL, attrs)
	return item, nil
}
