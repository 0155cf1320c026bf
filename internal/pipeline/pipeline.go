package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

// Stage is one step of the item pipeline. Returning a *crawl.DropError drops
// the item; the stages after it never see it.
type Stage interface {
	Name() string
	Process(ctx context.Context, item crawl.Item) (crawl.Item, error)
}

// Closer is implemented by stages holding state to release when the crawl ends.
type Closer interface {
	Close(ctx context.Context) error
}

// Chain runs stages in order and is the crawl.ItemPipeline handed to the scraper.
// Stage failures surface as *crawl.PipelineError naming the stage.
type Chain struct {
	stages       []Stage
	metadataSink metadata.MetadataSink
}

var _ crawl.ItemPipeline = (*Chain)(nil)

func NewChain(metadataSink metadata.MetadataSink, stages ...Stage) *Chain {
	return &Chain{
		stages:       stages,
		metadataSink: metadataSink,
	}
}

// NewDefaultChain cleans page html, converts it to markdown, outlines it,
// drops repeated content and logs what is left.
func NewDefaultChain(metadataSink metadata.MetadataSink) *Chain {
	return NewChain(metadataSink,
		NewCleanStage(),
		NewMarkdownStage(),
		NewOutlineStage(),
		NewContentDedupStage(),
		NewLogStage(metadataSink),
	)
}

func (c *Chain) Stages() []string {
	names := make([]string, 0, len(c.stages))
	for _, stage := range c.stages {
		names = append(names, stage.Name())
	}
	return names
}

// Process runs item through every stage. Failures are recorded here and
// returned as *crawl.PipelineError; drops are returned as they are.
func (c *Chain) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	for _, stage := range c.stages {
		next, err := c.run(ctx, stage, item)
		if err == nil {
			item = next
			continue
		}
		if _, dropped := crawl.IsDrop(err); dropped {
			return item, err
		}
		c.record(stage.Name(), err, item)
		return item, asPipelineError(stage.Name(), err)
	}
	return item, nil
}

func (c *Chain) run(ctx context.Context, stage Stage, item crawl.Item) (out crawl.Item, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = item
			err = &crawl.PipelineError{
				Message: fmt.Sprintf("%v", r),
				Cause:   crawl.ErrCauseStagePanic,
				Stage:   stage.Name(),
			}
		}
	}()
	return stage.Process(ctx, item)
}

func asPipelineError(stageName string, err error) *crawl.PipelineError {
	var pipelineErr *crawl.PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr
	}
	return &crawl.PipelineError{
		Message: err.Error(),
		Cause:   crawl.ErrCauseStageFailed,
		Stage:   stageName,
	}
}

// Close closes every stage implementing Closer, in order, even when one fails.
func (c *Chain) Close(ctx context.Context) error {
	var errs []error
	for _, stage := range c.stages {
		closer, ok := stage.(Closer)
		if !ok {
			continue
		}
		if err := closer.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", stage.Name(), err))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &crawl.PipelineError{
		Message: errors.Join(errs...).Error(),
		Cause:   crawl.ErrCauseCloseFailed,
	}
}

func (c *Chain) record(stageName string, err error, item crawl.Item) {
	cause := metadata.CauseContentInvalid
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		cause = mapStageErrorToMetadataCause(stageErr)
	}
	c.metadataSink.RecordError(
		time.Now(),
		"pipeline",
		"Chain.Process",
		cause,
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, item.SourceURL),
			metadata.NewAttr(metadata.AttrItemKind, item.Kind),
			metadata.NewAttr(metadata.AttrField, stageName),
		},
	)
}
