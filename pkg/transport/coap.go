package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/udp/coder"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/observe"
)

// Handler serves requests arriving on a transport. The device service
// implements it.
type Handler interface {
	// HandleRequest returns the response to req. It never returns nil.
	HandleRequest(ctx context.Context, req *interaction.Request) *interaction.Response

	// Reset cancels the Observe relation a CoAP Reset from peer refers to.
	Reset(ctx context.Context, peer string, token []byte) int
}

// isRequest reports whether code is a request method.
func isRequest(code codes.Code) bool {
	return code >= codes.GET && code <= codes.DELETE
}

// newRequest converts the parts of an inbound CoAP request.
func newRequest(code codes.Code, opts message.Options, token, payload []byte, peer string, sink observe.Sink) *interaction.Request {
	req := &interaction.Request{
		Method:  code,
		Token:   append([]byte(nil), token...),
		Payload: payload,
		Peer:    peer,
		Sink:    sink,
	}
	if p, err := opts.Path(); err == nil {
		req.Path = interaction.SplitPath(p)
	}
	if obs, err := opts.Observe(); err == nil {
		req.Observe = obs
		req.HasObserve = true
	}
	return req
}

// uint32Option returns a CoAP option carrying v in minimal encoding.
func uint32Option(id message.OptionID, v uint32) message.Option {
	buf := make([]byte, 4)
	n, _ := message.EncodeUint32(buf, v)
	return message.Option{ID: id, Value: buf[:n]}
}

// responseOptions returns the Observe and Max-Age options of resp.
// Content-Format is left to the caller.
func responseOptions(resp *interaction.Response) message.Options {
	var opts message.Options
	if resp.HasObserve {
		opts = opts.Add(uint32Option(message.Observe, resp.Observe&observe.SequenceMask))
	}
	if resp.HasMaxAge {
		opts = opts.Add(uint32Option(message.MaxAge, resp.MaxAge))
	}
	return opts
}

// responseMessage builds the reply to an inbound request: a piggy-backed
// ACK for a CON request, a NON with mid for anything else.
func responseMessage(req message.Message, resp *interaction.Response, mid uint16) message.Message {
	out := message.Message{
		Token:     req.Token,
		Code:      resp.Code,
		Payload:   resp.Payload,
		MessageID: int32(mid),
		Type:      message.NonConfirmable,
	}
	if req.Type == message.Confirmable {
		out.Type = message.Acknowledgement
		out.MessageID = req.MessageID
	}

	var opts message.Options
	if resp.HasObserve {
		opts = opts.Add(uint32Option(message.Observe, resp.Observe&observe.SequenceMask))
	}
	if resp.HasContentFormat {
		opts = opts.Add(uint32Option(message.ContentFormat, uint32(resp.ContentFormat)))
	}
	if resp.HasMaxAge {
		opts = opts.Add(uint32Option(message.MaxAge, resp.MaxAge))
	}
	out.Options = opts
	return out
}

// notificationMessage builds a NON notification.
func notificationMessage(n observe.Notification, mid uint16) message.Message {
	return message.Message{
		Token:     n.Token,
		Code:      codes.Content,
		Payload:   n.Payload,
		MessageID: int32(mid),
		Type:      message.NonConfirmable,
		Options: message.Options{}.
			Add(uint32Option(message.Observe, n.Sequence&observe.SequenceMask)).
			Add(uint32Option(message.ContentFormat, uint32(n.ContentFormat))).
			Add(uint32Option(message.MaxAge, n.MaxAge)),
	}
}

// resetMessage builds an empty RST for mid.
func resetMessage(mid int32) message.Message {
	return message.Message{Code: codes.Empty, MessageID: mid, Type: message.Reset}
}

// errDecode wraps CoAP decoding failures.
var errDecode = errors.New("decode coap message")

// decodeMessage parses a CoAP message in UDP format.
func decodeMessage(data []byte) (message.Message, error) {
	var m message.Message
	if _, err := coder.DefaultCoder.Decode(data, &m); err != nil {
		return message.Message{}, fmt.Errorf("%w: %w", errDecode, err)
	}
	return m, nil
}

// encodeMessage serializes m in UDP format.
func encodeMessage(m message.Message) ([]byte, error) {
	size, err := coder.DefaultCoder.Size(m)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := coder.DefaultCoder.Encode(m, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// messageEvent describes m for the protocol log.
func messageEvent(m message.Message, typ log.MessageType, elapsed time.Duration) *log.MessageEvent {
	ev := &log.MessageEvent{
		Type:      typ,
		MessageID: uint16(m.MessageID),
		Code:      uint8(m.Code),
		Token:     m.Token,
		Payload:   m.Payload,
	}
	if p, err := m.Options.Path(); err == nil {
		ev.Path = p
	}
	if obs, err := m.Options.Observe(); err == nil {
		ev.Observe = &obs
	}
	if cf, err := m.Options.ContentFormat(); err == nil {
		v := uint16(cf)
		ev.ContentFormat = &v
	}
	if elapsed > 0 {
		ev.ProcessingTime = &elapsed
	}
	return ev
}
