package transport

import (
	"context"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
)

type resetCall struct {
	peer  string
	token []byte
}

// fakeHandler records requests and resets and answers with a fixed response.
type fakeHandler struct {
	mu       sync.Mutex
	requests []*interaction.Request
	resets   []resetCall
	response *interaction.Response
}

func (h *fakeHandler) HandleRequest(_ context.Context, req *interaction.Request) *interaction.Response {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.requests = append(h.requests, req)
	if h.response != nil {
		return h.response
	}
	return &interaction.Response{
		Code:             codes.Content,
		ContentFormat:    message.TextPlain,
		HasContentFormat: true,
		Payload:          []byte("ok"),
	}
}

func (h *fakeHandler) Reset(_ context.Context, peer string, token []byte) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resets = append(h.resets, resetCall{peer: peer, token: token})
	return 1
}

func (h *fakeHandler) lastRequest() *interaction.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.requests) == 0 {
		return nil
	}
	return h.requests[len(h.requests)-1]
}

func (h *fakeHandler) resetCalls() []resetCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]resetCall(nil), h.resets...)
}
