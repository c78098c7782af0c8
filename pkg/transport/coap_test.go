package transport

import (
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/observe"
)

func pathOptions(segments ...string) message.Options {
	var opts message.Options
	for _, s := range segments {
		opts = opts.Add(message.Option{ID: message.URIPath, Value: []byte(s)})
	}
	return opts
}

func TestIsRequest(t *testing.T) {
	assert.True(t, isRequest(codes.GET))
	assert.True(t, isRequest(codes.PUT))
	assert.False(t, isRequest(codes.Empty))
	assert.False(t, isRequest(codes.Content))
}

func TestNewRequest(t *testing.T) {
	token := []byte{0xA1, 0xB2}
	opts := pathOptions("arduino", "temp").Add(uint32Option(message.Observe, 0))

	req := newRequest(codes.GET, opts, token, nil, "peer-1", nil)
	token[0] = 0

	assert.Equal(t, codes.GET, req.Method)
	assert.Equal(t, []string{"arduino", "temp"}, req.Path)
	assert.True(t, req.HasObserve)
	assert.Equal(t, uint32(0), req.Observe)
	assert.Equal(t, []byte{0xA1, 0xB2}, req.Token)
	assert.Equal(t, "peer-1", req.Peer)
}

func TestNewRequestPlainGet(t *testing.T) {
	req := newRequest(codes.GET, pathOptions("temp"), nil, nil, "p", nil)
	assert.False(t, req.HasObserve)
	assert.Equal(t, "/temp", req.PathString())
}

func TestResponseMessage(t *testing.T) {
	resp := &interaction.Response{
		Code:             codes.Content,
		ContentFormat:    message.AppCBOR,
		HasContentFormat: true,
		Payload:          []byte{0xA0},
		Observe:          3,
		HasObserve:       true,
		MaxAge:           90,
		HasMaxAge:        true,
	}

	t.Run("confirmable gets piggy-backed ack", func(t *testing.T) {
		req := message.Message{Type: message.Confirmable, MessageID: 0x1234, Token: []byte{7}}
		out := responseMessage(req, resp, 99)

		assert.Equal(t, message.Acknowledgement, out.Type)
		assert.Equal(t, int32(0x1234), out.MessageID)
		assert.Equal(t, []byte{7}, out.Token)
	})

	t.Run("non-confirmable gets non", func(t *testing.T) {
		req := message.Message{Type: message.NonConfirmable, MessageID: 0x1234, Token: []byte{7}}
		out := responseMessage(req, resp, 99)

		assert.Equal(t, message.NonConfirmable, out.Type)
		assert.Equal(t, int32(99), out.MessageID)
	})

	t.Run("options survive encoding", func(t *testing.T) {
		req := message.Message{Type: message.Confirmable, MessageID: 1, Token: []byte{7}}
		data, err := encodeMessage(responseMessage(req, resp, 0))
		require.NoError(t, err)

		got, err := decodeMessage(data)
		require.NoError(t, err)
		assert.Equal(t, codes.Content, got.Code)
		assert.Equal(t, []byte{0xA0}, got.Payload)

		obs, err := got.Options.Observe()
		require.NoError(t, err)
		assert.Equal(t, uint32(3), obs)

		cf, err := got.Options.ContentFormat()
		require.NoError(t, err)
		assert.Equal(t, message.AppCBOR, cf)

		maxAge, err := got.Options.GetUint32(message.MaxAge)
		require.NoError(t, err)
		assert.Equal(t, uint32(90), maxAge)
	})

	t.Run("bare code", func(t *testing.T) {
		req := message.Message{Type: message.Confirmable, MessageID: 1}
		out := responseMessage(req, &interaction.Response{Code: codes.NotFound}, 0)
		assert.Empty(t, out.Options)
		assert.Empty(t, out.Payload)
	})
}

func TestNotificationMessage(t *testing.T) {
	n := observe.Notification{
		DeviceType:    "temp",
		Token:         []byte{1, 2, 3},
		Sequence:      0x1000005,
		MaxAge:        90,
		ContentFormat: message.AppCBOR,
		Payload:       []byte{0xA0},
	}

	data, err := encodeMessage(notificationMessage(n, 42))
	require.NoError(t, err)
	got, err := decodeMessage(data)
	require.NoError(t, err)

	assert.Equal(t, message.NonConfirmable, got.Type)
	assert.Equal(t, int32(42), got.MessageID)
	assert.Equal(t, codes.Content, got.Code)
	assert.Equal(t, []byte{1, 2, 3}, got.Token)

	obs, err := got.Options.Observe()
	require.NoError(t, err)
	assert.Equal(t, uint32(5), obs, "sequence is 24 bits on the wire")
}

func TestDecodeMessageGarbage(t *testing.T) {
	_, err := decodeMessage([]byte{0xFF})
	assert.ErrorIs(t, err, errDecode)
}
