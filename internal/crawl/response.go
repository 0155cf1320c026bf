package crawl

import (
	"net/http"
	"net/url"
	"time"
)

// Response is a completed fetch.
type Response struct {
	request  *Request
	status   int
	headers  http.Header
	body     []byte
	finalURL url.URL
	latency  time.Duration
}

func NewResponse(
	request *Request,
	status int,
	headers http.Header,
	body []byte,
	finalURL url.URL,
	latency time.Duration,
) *Response {
	if headers == nil {
		headers = make(http.Header)
	}
	return &Response{
		request:  request,
		status:   status,
		headers:  headers,
		body:     body,
		finalURL: finalURL,
		latency:  latency,
	}
}

// NewResponseForTest creates a Response with the request URL as final URL.
func NewResponseForTest(request *Request, status int, body string) *Response {
	headers := make(http.Header)
	headers.Set("Content-Type", "text/html; charset=utf-8")
	return NewResponse(request, status, headers, []byte(body), request.URL(), 0)
}

func (r *Response) Request() *Request {
	return r.request
}

func (r *Response) Status() int {
	return r.status
}

func (r *Response) Headers() http.Header {
	return r.headers
}

func (r *Response) Header(key string) string {
	return r.headers.Get(key)
}

func (r *Response) Body() []byte {
	return r.body
}

func (r *Response) URL() url.URL {
	return r.finalURL
}

func (r *Response) Latency() time.Duration {
	return r.latency
}

func (r *Response) ContentType() string {
	return r.headers.Get("Content-Type")
}

// Failure is a fetch that produced no response.
type Failure struct {
	request *Request
	err     *TransportError
}

func NewFailure(request *Request, err *TransportError) *Failure {
	return &Failure{request: request, err: err}
}

func (f *Failure) Request() *Request {
	return f.request
}

func (f *Failure) Err() *TransportError {
	return f.err
}

func (f *Failure) Kind() ErrorKind {
	return f.err.Kind
}

// Outcome carries exactly one of Response or Failure for a dispatched request.
type Outcome struct {
	Response *Response
	Failure  *Failure
}

func (o Outcome) Request() *Request {
	if o.Response != nil {
		return o.Response.Request()
	}
	if o.Failure != nil {
		return o.Failure.Request()
	}
	return nil
}

func (o Outcome) IsFailure() bool {
	return o.Failure != nil
}

// Size is the number of body bytes the outcome holds.
func (o Outcome) Size() int {
	if o.Response != nil {
		return len(o.Response.Body())
	}
	return 0
}
