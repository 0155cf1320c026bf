package pipeline_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
	"github.com/rohmanhakim/crawl-engine/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type metadataSinkMock struct {
	mock.Mock
}

func (m *metadataSinkMock) RecordError(observedAt time.Time, packageName string, action string, cause metadata.ErrorCause, details string, attrs []metadata.Attribute) {
	m.Called(packageName, action, cause)
}
func (m *metadataSinkMock) RecordFetch(string, int, time.Duration, string, int, string) {}
func (m *metadataSinkMock) RecordItem(kind string, sourceURL string, attrs []metadata.Attribute) {
	m.Called(kind, sourceURL)
}
func (m *metadataSinkMock) RecordDrop(string, string, string)            {}
func (m *metadataSinkMock) RecordLifecycle(string, []metadata.Attribute) {}

func newMetadataSinkMockForTest(t *testing.T) *metadataSinkMock {
	t.Helper()
	m := new(metadataSinkMock)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// stageFunc adapts a function to pipeline.Stage.
type stageFunc struct {
	name string
	fn   func(ctx context.Context, item crawl.Item) (crawl.Item, error)
}

func (s stageFunc) Name() string { return s.name }
func (s stageFunc) Process(ctx context.Context, item crawl.Item) (crawl.Item, error) {
	return s.fn(ctx, item)
}

type closingStage struct {
	stageFunc
	closed bool
	err    error
}

func (c *closingStage) Close(ctx context.Context) error {
	c.closed = true
	return c.err
}

func setField(name, key string, value any) pipeline.Stage {
	return stageFunc{name: name, fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
		return item.With(key, value), nil
	}}
}

func pageItem(url, html string) crawl.Item {
	item := crawl.NewItem("page", url)
	item.Fields["html"] = html
	item.Fields["title"] = "A page"
	return item
}

func TestChain_RunsStagesInOrder(t *testing.T) {
	var order []string
	record := func(name string) pipeline.Stage {
		return stageFunc{name: name, fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
			order = append(order, name)
			return item.With(name, true), nil
		}}
	}
	chain := pipeline.NewChain(&metadata.NoopSink{}, record("a"), record("b"), record("c"))

	out, err := chain.Process(context.Background(), crawl.NewItem("k", "https://example.com"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, order)
	assert.Equal(t, []string{"a", "b", "c"}, chain.Stages())
	assert.Len(t, out.Fields, 3)
}

func TestChain_DropStopsLaterStages(t *testing.T) {
	reached := false
	chain := pipeline.NewChain(&metadata.NoopSink{},
		stageFunc{name: "drop", fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
			return item, crawl.Drop("not wanted")
		}},
		stageFunc{name: "after", fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
			reached = true
			return item, nil
		}},
	)

	_, err := chain.Process(context.Background(), crawl.NewItem("k", "u"))
	drop, ok := crawl.IsDrop(err)
	require.True(t, ok)
	assert.Equal(t, "not wanted", drop.Reason)
	assert.False(t, reached)
}

func TestChain_StageFailureBecomesPipelineError(t *testing.T) {
	sink := newMetadataSinkMockForTest(t)
	sink.On("RecordError", "pipeline", "Chain.Process", metadata.CauseContentInvalid).Once()

	chain := pipeline.NewChain(sink,
		setField("first", "x", 1),
		stageFunc{name: "broken", fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
			return item, errors.New("boom")
		}},
	)

	out, err := chain.Process(context.Background(), crawl.NewItem("k", "u"))
	var pipelineErr *crawl.PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, "broken", pipelineErr.Stage)
	assert.Equal(t, crawl.ErrCauseStageFailed, pipelineErr.Cause)
	assert.Contains(t, pipelineErr.Message, "boom")
	assert.Len(t, out.Fields, 1, "the item as it entered the failing stage is returned")
}

func TestChain_RecoversStagePanic(t *testing.T) {
	sink := newMetadataSinkMockForTest(t)
	sink.On("RecordError", "pipeline", "Chain.Process", metadata.CauseContentInvalid).Once()

	chain := pipeline.NewChain(sink,
		stageFunc{name: "panicky", fn: func(ctx context.Context, item crawl.Item) (crawl.Item, error) {
			panic("stage exploded")
		}},
	)

	_, err := chain.Process(context.Background(), crawl.NewItem("k", "u"))
	var pipelineErr *crawl.PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, crawl.ErrCauseStagePanic, pipelineErr.Cause)
	assert.Equal(t, "panicky", pipelineErr.Stage)
}

func TestChain_CloseClosesEveryCloser(t *testing.T) {
	first := &closingStage{stageFunc: stageFunc{name: "first"}, err: errors.New("flush failed")}
	second := &closingStage{stageFunc: stageFunc{name: "second"}}
	chain := pipeline.NewChain(&metadata.NoopSink{}, first, setField("plain", "k", 1), second)

	err := chain.Close(context.Background())
	require.Error(t, err)
	assert.True(t, first.closed)
	assert.True(t, second.closed, "a failing closer does not stop the others")

	var pipelineErr *crawl.PipelineError
	require.True(t, errors.As(err, &pipelineErr))
	assert.Equal(t, crawl.ErrCauseCloseFailed, pipelineErr.Cause)
	assert.Contains(t, pipelineErr.Message, "first: flush failed")
}

func TestMarkdownStage(t *testing.T) {
	stage := pipeline.NewMarkdownStage()
	item := pageItem("https://example.com/p", `<main>
<h1>Install</h1>
<p>Run the <strong>installer</strong>, then see <a href="/docs">docs</a> and <a href="#usage">usage</a>.</p>
<img src="/logo.png" alt="logo">
<pre><code class="language-go">fmt.Println("hi")</code></pre>
</main>`)

	out, err := stage.Process(context.Background(), item)
	require.NoError(t, err)

	md := out.Text(pipeline.FieldMarkdown)
	assert.Contains(t, md, "# Install")
	assert.Contains(t, md, "**installer**")
	assert.Contains(t, md, `fmt.Println("hi")`)

	refs, ok := out.Fields[pipeline.FieldLinkRefs].([]pipeline.LinkRef)
	require.True(t, ok)
	assert.Equal(t, []pipeline.LinkRef{
		{Raw: "/docs", Kind: pipeline.KindNavigation},
		{Raw: "#usage", Kind: pipeline.KindAnchor},
		{Raw: "/logo.png", Kind: pipeline.KindImage},
	}, refs)

	_, touched := item.Fields[pipeline.FieldMarkdown]
	assert.False(t, touched, "the input item is not modified")
}

func TestMarkdownStage_PassesItemsWithoutHTML(t *testing.T) {
	item := crawl.NewItem("record", "https://example.com/api")
	out, err := pipeline.NewMarkdownStage().Process(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, item, out)
}

func TestCleanStage(t *testing.T) {
	stage := pipeline.NewCleanStage()
	item := pageItem("https://example.com/a", `<html><head><title>x</title></head><body><main><h1>Hi</h1><div> </div><p>a</p><p>a</p></main></body></html>`)

	out, err := stage.Process(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, `<main><h1>Hi</h1><p>a</p></main>`, out.Text(pipeline.FieldHTML))
	assert.Equal(t, "ok", out.Text(pipeline.FieldStructure))
}

func TestCleanStage_ReportsStructure(t *testing.T) {
	stage := pipeline.NewCleanStage()

	out, err := stage.Process(context.Background(), pageItem("https://example.com/a", `<div><h1>A</h1><h1>B</h1></div>`))
	require.NoError(t, err)
	assert.Equal(t, "multiple_h1_no_root", out.Text(pipeline.FieldStructure))
}

func TestOutlineStage(t *testing.T) {
	item := crawl.NewItem("page", "u").With(pipeline.FieldMarkdown, "# Guide\n\nintro\n\n## Install `cli`\n\ntext\n\n### On *Linux*\n\n## Usage\n")

	out, err := pipeline.NewOutlineStage().Process(context.Background(), item)
	require.NoError(t, err)
	assert.Equal(t, []pipeline.Heading{
		{Level: 1, Text: "Guide"},
		{Level: 2, Text: "Install cli"},
		{Level: 3, Text: "On Linux"},
		{Level: 2, Text: "Usage"},
	}, out.Fields[pipeline.FieldOutline])
}

func TestContentDedupStage(t *testing.T) {
	stage := pipeline.NewContentDedupStage()
	ctx := context.Background()

	first, err := stage.Process(ctx, crawl.NewItem("page", "https://example.com/a").With(pipeline.FieldMarkdown, "# Same"))
	require.NoError(t, err)
	assert.Len(t, first.Text(pipeline.FieldContentHash), 64)

	_, err = stage.Process(ctx, crawl.NewItem("page", "https://example.com/a?ref=nav").With(pipeline.FieldMarkdown, "# Same\n"))
	_, dropped := crawl.IsDrop(err)
	assert.True(t, dropped, "surrounding whitespace does not make content new")

	_, err = stage.Process(ctx, crawl.NewItem("summary", "https://example.com/a").With(pipeline.FieldMarkdown, "# Same"))
	assert.NoError(t, err, "another item kind with the same content is kept")

	empty := crawl.NewItem("page", "https://example.com/empty")
	_, err = stage.Process(ctx, empty)
	assert.NoError(t, err)
	_, err = stage.Process(ctx, empty)
	assert.NoError(t, err, "items without content are never dropped")

	assert.Equal(t, 2, stage.Seen())
}

// TestContentDedupStage_Concurrent checks only one of many identical items survives.
// Run with -race.
func TestContentDedupStage_Concurrent(t *testing.T) {
	stage := pipeline.NewContentDedupStage()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		kept int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := stage.Process(context.Background(), crawl.NewItem("page", "u").With("text", "identical body"))
			if err == nil {
				mu.Lock()
				kept++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, kept)
}

func TestDefaultChain(t *testing.T) {
	sink := newMetadataSinkMockForTest(t)
	sink.On("RecordItem", "page", "https://example.com/a").Once()
	chain := pipeline.NewDefaultChain(sink)
	ctx := context.Background()

	out, err := chain.Process(ctx, pageItem("https://example.com/a", "<h1>Hello</h1><p>World</p>"))
	require.NoError(t, err)
	assert.Contains(t, out.Text(pipeline.FieldMarkdown), "# Hello")
	assert.Equal(t, []pipeline.Heading{{Level: 1, Text: "Hello"}}, out.Fields[pipeline.FieldOutline])
	assert.NotEmpty(t, out.Text(pipeline.FieldContentHash))

	_, err = chain.Process(ctx, pageItem("https://example.com/b", "<h1>Hello</h1><p>World</p>"))
	_, dropped := crawl.IsDrop(err)
	assert.True(t, dropped, "the log stage never sees the duplicate")

	assert.NoError(t, chain.Close(ctx))
}
