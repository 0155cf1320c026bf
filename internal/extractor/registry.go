package extractor

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

// Names of the built-in extractors.
const (
	NamePage  = "page"
	NameLinks = "links"
)

var (
	ErrDuplicateExtractor = errors.New("extractor already registered")
	ErrUnknownExtractor   = errors.New("unknown extractor")
)

// Registry maps Request.Callback names to extractors. It is filled at
// startup; an empty callback resolves to the default entry.
type Registry struct {
	mu          sync.RWMutex
	extractors  map[string]crawl.Extractor
	defaultName string
}

func NewRegistry() *Registry {
	return &Registry{extractors: make(map[string]crawl.Extractor)}
}

// NewDefaultRegistry holds the page and links extractors, page being the default.
func NewDefaultRegistry(cfg config.Config, metadataSink metadata.MetadataSink) *Registry {
	r := NewRegistry()
	_ = r.Register(NamePage, NewPageExtractor(cfg, metadataSink))
	_ = r.Register(NameLinks, NewLinkExtractor(cfg, metadataSink))
	_ = r.SetDefault(NamePage)
	return r
}

func (r *Registry) Register(name string, extractor crawl.Extractor) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extractors[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateExtractor, name)
	}
	r.extractors[name] = extractor
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

func (r *Registry) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.extractors[name]; !exists {
		return fmt.Errorf("%w: %q", ErrUnknownExtractor, name)
	}
	r.defaultName = name
	return nil
}

// Lookup resolves a callback name. The empty name means the default extractor.
func (r *Registry) Lookup(name string) (crawl.Extractor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if name == "" {
		name = r.defaultName
	}
	extractor, ok := r.extractors[name]
	return extractor, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.extractors))
	for name := range r.extractors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
