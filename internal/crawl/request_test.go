package crawl_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest_Defaults(t *testing.T) {
	req, err := crawl.NewRequest("https://Example.com/docs?b=2&a=1")
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method())
	assert.Equal(t, 0, req.Priority())
	assert.False(t, req.DontFilter())
	assert.Equal(t, "https://example.com:443", req.OriginKey())
	assert.Equal(t, 0, req.RetryTimes())
}

func TestNewRequest_RejectsRelative(t *testing.T) {
	_, err := crawl.NewRequest("/relative/path")
	assert.Error(t, err)
}

func TestRequest_ReplaceDoesNotMutateOriginal(t *testing.T) {
	orig := crawl.MustRequest("https://example.com/a",
		crawl.WithHeader("X-Trace", "1"),
		crawl.WithMeta("k", "v"),
	)
	clone := orig.Replace(crawl.WithHeader("X-Trace", "2"), crawl.WithMeta("k", "w"), crawl.WithPriority(5))

	assert.Equal(t, "1", orig.Header("X-Trace"))
	assert.Equal(t, "2", clone.Header("X-Trace"))
	v, _ := orig.Meta("k")
	assert.Equal(t, "v", v)
	assert.Equal(t, 0, orig.Priority())
	assert.Equal(t, 5, clone.Priority())
	assert.Equal(t, orig.OriginKey(), clone.OriginKey())
}

func TestRequest_HeadersReturnsCopy(t *testing.T) {
	req := crawl.MustRequest("https://example.com/", crawl.WithHeader("Accept", "text/html"))
	h := req.Headers()
	h.Set("Accept", "changed")
	assert.Equal(t, "text/html", req.Header("Accept"))
}

func TestRequest_RetryCopy(t *testing.T) {
	req := crawl.MustRequest("https://example.com/", crawl.WithPriority(3))

	first := req.RetryCopy(-1)
	second := first.RetryCopy(-1)

	assert.True(t, first.DontFilter())
	assert.Equal(t, 1, first.RetryTimes())
	assert.Equal(t, 2, first.Priority())
	assert.Equal(t, 2, second.RetryTimes())
	assert.Equal(t, 1, second.Priority())
	assert.Equal(t, 0, req.RetryTimes())
}

func TestEncodeDecodeRequest(t *testing.T) {
	req := crawl.MustRequest("https://example.com/search?q=go",
		crawl.WithMethod(http.MethodPost),
		crawl.WithBody([]byte(`{"q":"go"}`)),
		crawl.WithHeader("Content-Type", "application/json"),
		crawl.WithPriority(7),
		crawl.WithCallback("search"),
		crawl.WithMeta(crawl.MetaRetryTimes, 2),
	)

	data, err := crawl.EncodeRequest(req)
	require.NoError(t, err)

	got, err := crawl.DecodeRequest(data)
	require.NoError(t, err)

	u1, u2 := req.URL(), got.URL()
	assert.Equal(t, u1.String(), u2.String())
	assert.Equal(t, http.MethodPost, got.Method())
	assert.Equal(t, req.Body(), got.Body())
	assert.Equal(t, "application/json", got.Header("Content-Type"))
	assert.Equal(t, 7, got.Priority())
	assert.Equal(t, "search", got.Callback())
	assert.Equal(t, 2, got.RetryTimes())
}

func TestEncodeRequest_UnserializableMeta(t *testing.T) {
	req := crawl.MustRequest("https://example.com/", crawl.WithMeta("cb", func() {}))

	_, err := crawl.EncodeRequest(req)
	require.Error(t, err)

	var serr *crawl.SerializationError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, crawl.ErrCauseEncodeFailed, serr.Cause)
}

func TestDecodeRequest_Garbage(t *testing.T) {
	_, err := crawl.DecodeRequest([]byte("not json"))
	assert.ErrorIs(t, err, &crawl.SerializationError{})
}
