package crawl

import "context"

// Transport performs one fetch. The deadline and cancellation travel in ctx.
// A non-nil error is classified into an ErrorKind by the downloader.
type Transport interface {
	Send(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

func (f TransportFunc) Send(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// Extractor turns a response into follow-up requests and items, in emission order.
type Extractor interface {
	Parse(ctx context.Context, resp *Response) ([]Result, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, resp *Response) ([]Result, error)

func (f ExtractorFunc) Parse(ctx context.Context, resp *Response) ([]Result, error) {
	return f(ctx, resp)
}

// ItemPipeline processes one item at a time. Returning a *DropError drops the item;
// any other error is a pipeline failure. Neither stops the crawl.
type ItemPipeline interface {
	Process(ctx context.Context, item Item) (Item, error)
	Close(ctx context.Context) error
}
