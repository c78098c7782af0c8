package interaction

import (
	"context"

	"github.com/plgd-dev/go-coap/v3/message/codes"
)

// Chain tries its handlers in order until one claims the request.
type Chain struct {
	handlers []Handler
}

// NewChain creates a chain. Nil handlers are skipped.
func NewChain(handlers ...Handler) *Chain {
	c := &Chain{}
	for _, h := range handlers {
		if h != nil {
			c.handlers = append(c.handlers, h)
		}
	}
	return c
}

// Dispatch returns the response of the first handler that claims req.
// If none does, the response is 4.04 Not Found. Every call yields a response.
func (c *Chain) Dispatch(ctx context.Context, req *Request) *Response {
	for _, h := range c.handlers {
		resp, outcome := h.Handle(ctx, req)
		if outcome != Handled {
			continue
		}
		if resp == nil {
			return codeResponse(codes.InternalServerError)
		}
		return resp
	}
	return codeResponse(codes.NotFound)
}

// Len returns the number of handlers in the chain.
func (c *Chain) Len() int {
	return len(c.handlers)
}
