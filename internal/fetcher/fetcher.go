package fetcher

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/rohmanhakim/crawl-engine/internal/config"
	"github.com/rohmanhakim/crawl-engine/internal/crawl"
	"github.com/rohmanhakim/crawl-engine/internal/metadata"
)

/*
Responsibilities

- Perform HTTP requests
- Apply default headers on top of the request's own
- Decode gzip, deflate and br bodies
- Bound the body size

The fetcher never parses content and never judges a status code; every
completed exchange is returned as a Response. Deadlines and cancellation come
from the context handed to Send.
*/
type HTTPTransport struct {
	metadataSink metadata.MetadataSink
	httpClient   *http.Client
	userAgent    string
	maxBodyBytes int64
}

func NewHTTPTransport(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
) *HTTPTransport {
	return NewHTTPTransportWithClient(cfg, metadataSink, newHTTPClient())
}

// NewHTTPTransportWithClient is used by tests and by callers that need a
// custom client (proxies, TLS roots).
func NewHTTPTransportWithClient(
	cfg config.Config,
	metadataSink metadata.MetadataSink,
	client *http.Client,
) *HTTPTransport {
	if metadataSink == nil {
		metadataSink = &metadata.NoopSink{}
	}
	return &HTTPTransport{
		metadataSink: metadataSink,
		httpClient:   client,
		userAgent:    cfg.UserAgent(),
		maxBodyBytes: cfg.MaxBodyBytes(),
	}
}

func newHTTPClient() *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		// bodies are decoded here so br is handled alongside gzip
		DisableCompression: true,
	}
	return &http.Client{Transport: transport}
}

// Send performs req. The returned error, if any, is a *FetchError wrapping
// the net/http cause.
func (h *HTTPTransport) Send(ctx context.Context, req *crawl.Request) (*crawl.Response, error) {
	callerMethod := "HTTPTransport.Send"
	u := req.URL()

	var body io.Reader
	if len(req.Body()) > 0 {
		body = bytes.NewReader(req.Body())
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), u.String(), body)
	if err != nil {
		fetchErr := &FetchError{
			Message: err.Error(),
			Cause:   ErrCauseBuildRequestFailed,
			Err:     err,
		}
		h.recordFetchError(callerMethod, req, fetchErr)
		return nil, fetchErr
	}

	for key, value := range requestHeaders(h.userAgent) {
		httpReq.Header.Set(key, value)
	}
	for key, values := range req.Headers() {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	start := time.Now()
	resp, err := h.httpClient.Do(httpReq)
	if err != nil {
		// classification happens upstream from the wrapped error and ctx
		return nil, &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseRequestFailed,
			Err:       err,
		}
	}
	defer resp.Body.Close()

	payload, err := h.readBody(resp)
	if err != nil {
		var fetchErr *FetchError
		if errors.As(err, &fetchErr) {
			h.recordFetchError(callerMethod, req, fetchErr)
		}
		return nil, err
	}

	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = *resp.Request.URL
	}
	headers := resp.Header.Clone()
	// body is decoded; the stored headers must not claim otherwise
	headers.Del("Content-Encoding")
	headers.Del("Content-Length")

	return crawl.NewResponse(req, resp.StatusCode, headers, payload, finalURL, time.Since(start)), nil
}

func (h *HTTPTransport) readBody(resp *http.Response) ([]byte, error) {
	reader := io.Reader(resp.Body)
	var closers []io.Closer

	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, &FetchError{Message: err.Error(), Cause: ErrCauseDecodeFailed, Err: err}
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	limited := io.LimitReader(reader, h.maxBodyBytes+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, &FetchError{
			Message:   err.Error(),
			Retryable: true,
			Cause:     ErrCauseReadBodyFailed,
			Err:       err,
		}
	}
	if int64(len(body)) > h.maxBodyBytes {
		return nil, &FetchError{
			Message: fmt.Sprintf("exceeds limit of %d bytes", h.maxBodyBytes),
			Cause:   ErrCauseBodyTooLarge,
		}
	}
	return body, nil
}

func (h *HTTPTransport) recordFetchError(callerMethod string, req *crawl.Request, err *FetchError) {
	u := req.URL()
	h.metadataSink.RecordError(
		time.Now(),
		"fetcher",
		callerMethod,
		mapFetchErrorToMetadataCause(err),
		err.Error(),
		[]metadata.Attribute{
			metadata.NewAttr(metadata.AttrURL, u.String()),
		},
	)
}

func requestHeaders(userAgent string) map[string]string {
	return map[string]string{
		"User-Agent":      userAgent,
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
		"Accept-Language": "en-US,en;q=0.5",
		"Accept-Encoding": "gzip, deflate, br",
	}
}
