package interaction

import (
	"context"
	"strings"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/observe"
)

// Request is an inbound CoAP request as seen by the handlers.
type Request struct {
	// Method is the request code (GET, PUT, ...).
	Method codes.Code

	// Path holds the Uri-Path segments in order.
	Path []string

	// Observe is the Observe option value, valid if HasObserve is set.
	Observe    uint32
	HasObserve bool

	// Token is the request token.
	Token []byte

	// Payload is the request body.
	Payload []byte

	// Peer identifies the remote endpoint for Observe bookkeeping.
	Peer string

	// Sink delivers notifications to the peer if it registers as observer.
	// A nil Sink means the transport cannot carry notifications.
	Sink observe.Sink
}

// PathString returns the request path with a leading slash.
func (r *Request) PathString() string {
	return "/" + strings.Join(r.Path, "/")
}

// SplitPath splits a slash-separated path into non-empty segments.
func SplitPath(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Response is the reply produced by a handler.
type Response struct {
	Code codes.Code

	// ContentFormat is the payload media type, valid if HasContentFormat is set.
	ContentFormat    message.MediaType
	HasContentFormat bool

	Payload []byte

	// Observe is the Observe option value, valid if HasObserve is set.
	Observe    uint32
	HasObserve bool

	// MaxAge is the Max-Age option value in seconds, valid if HasMaxAge is set.
	MaxAge    uint32
	HasMaxAge bool
}

// Outcome reports whether a handler claimed a request.
type Outcome uint8

const (
	// Pass leaves the request to the next handler.
	Pass Outcome = iota

	// Handled means the handler produced the final response.
	Handled
)

// String returns the outcome name.
func (o Outcome) String() string {
	switch o {
	case Pass:
		return "PASS"
	case Handled:
		return "HANDLED"
	default:
		return "UNKNOWN"
	}
}

// Handler processes a request or passes it on.
type Handler interface {
	Handle(ctx context.Context, req *Request) (*Response, Outcome)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, Outcome)

// Handle calls f(ctx, req).
func (f HandlerFunc) Handle(ctx context.Context, req *Request) (*Response, Outcome) {
	return f(ctx, req)
}

// envelopeResponse returns a 2.05 response carrying an encoded envelope.
func envelopeResponse(payload []byte) *Response {
	return &Response{
		Code:             codes.Content,
		ContentFormat:    message.AppCBOR,
		HasContentFormat: true,
		Payload:          payload,
	}
}

// codeResponse returns a response with only a code.
func codeResponse(code codes.Code) *Response {
	return &Response{Code: code}
}
