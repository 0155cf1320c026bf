package pipeline

import (
	"context"
	"strings"
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/frontier"
	"github.com/rohmanhakim/crawl-engine/pkg/hashutil"
)

// ContentDedupStage drops items whose content was already delivered under
// another URL, such as the same page reached through two paths. Content is
// the markdown field, else text, else html; items without any pass through.
type ContentDedupStage struct {
	algo hashutil.HashAlgo
	mu   sync.Mutex
	seen frontier.Set[string]
}

func NewContentDedupStage() *ContentDedupStage {
	return &ContentDedupStage{
		algo: hashutil.HashAlgoBLAKE3,
		seen: frontier.NewSet[string](),
	}
}

func (d *ContentDedupStage) Name() string {
	return "content_dedup"
}

func (d *ContentDedupStage) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	content := contentOf(item)
	if content == "" {
		return item, nil
	}
	sum, err := hashutil.HashBytes([]byte(item.Kind+"\x00"+content), d.algo)
	if err != nil {
		return item, &StageError{Message: err.Error(), Cause: ErrCauseHashFailure}
	}

	d.mu.Lock()
	added := d.seen.Add(sum)
	d.mu.Unlock()
	if !added {
		return item, crawl.Drop("duplicate content")
	}
	return item.With(FieldContentHash, sum), nil
}

func (d *ContentDedupStage) Seen() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.seen.Size()
}

func contentOf(item crawl.Item) string {
	for _, field := range []string{FieldMarkdown, "text", FieldHTML} {
		if v := strings.TrimSpace(item.Text(field)); v != "" {
			return v
		}
	}
	return ""
}
