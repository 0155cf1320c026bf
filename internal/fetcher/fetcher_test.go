package fetcher_test

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/fetcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = "<html><body><h1>Hello</h1></body></html>"

func newTransportForTest(t *testing.T, modify func(c *config.Config)) *fetcher.HTTPTransport {
	t.Helper()
	builder := config.WithDefault(nil).WithUserAgent("crawl-engine-test/1.0")
	if modify != nil {
		modify(builder)
	}
	cfg, err := builder.Build()
	require.NoError(t, err)
	return fetcher.NewHTTPTransport(cfg, nil)
}

func encode(t *testing.T, encoding string, data string) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	}
	_, err := w.Write([]byte(data))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSend_DecodesBodies(t *testing.T) {
	for _, encoding := range []string{"", "gzip", "br", "deflate"} {
		t.Run("encoding="+encoding, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "text/html")
				if encoding == "" {
					_, _ = w.Write([]byte(page))
					return
				}
				w.Header().Set("Content-Encoding", encoding)
				_, _ = w.Write(encode(t, encoding, page))
			}))
			defer server.Close()

			resp, err := newTransportForTest(t, nil).Send(context.Background(), crawl.MustRequest(server.URL+"/"))
			require.NoError(t, err)
			assert.Equal(t, 200, resp.Status())
			assert.Equal(t, page, string(resp.Body()))
			assert.Empty(t, resp.Header("Content-Encoding"))
			assert.Equal(t, "text/html", resp.ContentType())
		})
	}
}

func TestSend_AppliesHeadersMethodAndBody(t *testing.T) {
	var got *http.Request
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	req := crawl.MustRequest(server.URL+"/submit",
		crawl.WithMethod(http.MethodPost),
		crawl.WithBody([]byte("q=go")),
		crawl.WithHeader("Accept-Language", "id-ID"),
		crawl.WithHeader("Referer", "https://example.com/"),
	)
	resp, err := newTransportForTest(t, nil).Send(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status())
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "q=go", string(gotBody))
	assert.Equal(t, "crawl-engine-test/1.0", got.Header.Get("User-Agent"))
	assert.Equal(t, "id-ID", got.Header.Get("Accept-Language"))
	assert.Equal(t, "https://example.com/", got.Header.Get("Referer"))
	assert.Same(t, req, resp.Request())
}

func TestSend_ErrorStatusIsStillAResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer server.Close()

	resp, err := newTransportForTest(t, nil).Send(context.Background(), crawl.MustRequest(server.URL+"/missing"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status())
}

func TestSend_FollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(page))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := newTransportForTest(t, nil).Send(context.Background(), crawl.MustRequest(server.URL+"/old"))
	require.NoError(t, err)
	finalURL := resp.URL()
	assert.Equal(t, "/new", finalURL.Path)
}

func TestSend_BodyTooLarge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("a"), 64))
	}))
	defer server.Close()

	transport := newTransportForTest(t, func(c *config.Config) { c.WithMaxBodyBytes(16) })
	_, err := transport.Send(context.Background(), crawl.MustRequest(server.URL+"/"))

	var fetchErr *fetcher.FetchError
	require.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, fetcher.ErrCauseBodyTooLarge, fetchErr.Cause)
	assert.False(t, fetchErr.IsRetryable())
}

func TestSend_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := newTransportForTest(t, nil).Send(ctx, crawl.MustRequest(server.URL+"/"))

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.ErrorIs(t, err, &fetcher.FetchError{})
}
