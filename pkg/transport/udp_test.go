package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/message/pool"
	"github.com/plgd-dev/go-coap/v3/udp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/observe"
)

func startUDPServer(t *testing.T, h Handler) *UDPServer {
	t.Helper()

	s := NewUDPServer(UDPConfig{Address: "127.0.0.1:0"}, h)
	require.NoError(t, s.Listen())
	assert.ErrorIs(t, s.Listen(), ErrServerRunning)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Serve()
	}()
	t.Cleanup(func() {
		s.Stop()
		<-done
	})
	return s
}

func TestUDPServerGet(t *testing.T) {
	h := &fakeHandler{response: &interaction.Response{
		Code:             codes.Content,
		ContentFormat:    message.AppCBOR,
		HasContentFormat: true,
		Payload:          []byte{0xA0},
	}}
	s := startUDPServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cc, err := udp.Dial(s.Addr().String())
	require.NoError(t, err)
	defer cc.Close()

	resp, err := cc.Get(ctx, "/temp")
	require.NoError(t, err)
	assert.Equal(t, codes.Content, resp.Code())

	body, err := resp.ReadBody()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xA0}, body)

	cf, err := resp.ContentFormat()
	require.NoError(t, err)
	assert.Equal(t, message.AppCBOR, cf)

	req := h.lastRequest()
	require.NotNil(t, req)
	assert.Equal(t, []string{"temp"}, req.Path)
	assert.NotEmpty(t, req.Peer)
	assert.NotNil(t, req.Sink)
}

func TestUDPServerNotFound(t *testing.T) {
	s := startUDPServer(t, &fakeHandler{response: &interaction.Response{Code: codes.NotFound}})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cc, err := udp.Dial(s.Addr().String())
	require.NoError(t, err)
	defer cc.Close()

	resp, err := cc.Get(ctx, "/nope")
	require.NoError(t, err)
	assert.Equal(t, codes.NotFound, resp.Code())
}

// observingHandler accepts Observe registrations and keeps the sink.
type observingHandler struct {
	fakeHandler

	mu   sync.Mutex
	sink observe.Sink
	tok  []byte
}

func (h *observingHandler) HandleRequest(ctx context.Context, req *interaction.Request) *interaction.Response {
	h.fakeHandler.HandleRequest(ctx, req)
	if !req.HasObserve || req.Observe != 0 {
		return &interaction.Response{Code: codes.Content, Payload: []byte("plain")}
	}
	h.mu.Lock()
	h.sink, h.tok = req.Sink, req.Token
	h.mu.Unlock()
	return &interaction.Response{
		Code:             codes.Content,
		ContentFormat:    message.AppCBOR,
		HasContentFormat: true,
		Payload:          []byte{0x01},
		Observe:          1,
		HasObserve:       true,
		MaxAge:           90,
		HasMaxAge:        true,
	}
}

func (h *observingHandler) registered() (observe.Sink, []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sink, h.tok
}

func TestUDPServerObserve(t *testing.T) {
	h := &observingHandler{}
	s := startUDPServer(t, h)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cc, err := udp.Dial(s.Addr().String())
	require.NoError(t, err)
	defer cc.Close()

	payloads := make(chan []byte, 8)
	obs, err := cc.Observe(ctx, "/temp", func(m *pool.Message) {
		body, err := m.ReadBody()
		if err == nil {
			payloads <- body
		}
	})
	require.NoError(t, err)
	defer func() { _ = obs.Cancel(ctx) }()

	select {
	case p := <-payloads:
		assert.Equal(t, []byte{0x01}, p)
	case <-ctx.Done():
		t.Fatal("no registration response")
	}

	sink, token := h.registered()
	require.NotNil(t, sink)

	require.NoError(t, sink.Notify(ctx, observe.Notification{
		DeviceType:    "temp",
		Token:         token,
		Sequence:      2,
		MaxAge:        90,
		ContentFormat: message.AppCBOR,
		Payload:       []byte{0x02},
	}))

	select {
	case p := <-payloads:
		assert.Equal(t, []byte{0x02}, p)
	case <-ctx.Done():
		t.Fatal("no notification")
	}
}
