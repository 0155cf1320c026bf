package crawl

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// requestDTO is the persisted form of a Request.
type requestDTO struct {
	URL        string         `json:"url"`
	Method     string         `json:"method"`
	Headers    http.Header    `json:"headers,omitempty"`
	Body       []byte         `json:"body,omitempty"`
	Priority   int            `json:"priority"`
	DontFilter bool           `json:"dont_filter,omitempty"`
	Callback   string         `json:"callback,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// EncodeRequest serializes r. Meta values that JSON cannot represent
// (funcs, channels, cyclic values) yield a SerializationError.
func EncodeRequest(r *Request) ([]byte, error) {
	u := r.URL()
	dto := requestDTO{
		URL:        u.String(),
		Method:     r.method,
		Headers:    r.headers,
		Body:       r.body,
		Priority:   r.priority,
		DontFilter: r.dontFilter,
		Callback:   r.callback,
		Meta:       r.meta,
	}
	if len(dto.Meta) == 0 {
		dto.Meta = nil
	}
	data, err := json.Marshal(dto)
	if err != nil {
		return nil, &SerializationError{
			Message: fmt.Sprintf("%s: %v", r, err),
			Cause:   ErrCauseEncodeFailed,
		}
	}
	return data, nil
}

// DecodeRequest is the inverse of EncodeRequest. Numbers in Meta come back as float64.
func DecodeRequest(data []byte) (*Request, error) {
	var dto requestDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, &SerializationError{Message: err.Error(), Cause: ErrCauseDecodeFailed}
	}
	opts := []RequestOption{
		WithMethod(dto.Method),
		WithHeaders(dto.Headers),
		WithPriority(dto.Priority),
		WithDontFilter(dto.DontFilter),
		WithCallback(dto.Callback),
	}
	if len(dto.Body) > 0 {
		opts = append(opts, WithBody(dto.Body))
	}
	for k, v := range dto.Meta {
		opts = append(opts, WithMeta(k, v))
	}
	req, err := NewRequest(dto.URL, opts...)
	if err != nil {
		return nil, &SerializationError{Message: err.Error(), Cause: ErrCauseDecodeFailed}
	}
	return req, nil
}
