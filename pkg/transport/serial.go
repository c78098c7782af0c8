package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"go.bug.st/serial"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/observe"
)

// Serial defaults.
const (
	DefaultBaudRate    = 115200
	DefaultReadTimeout = 2 * time.Second

	// notifyHistory is how many notification message IDs are remembered
	// to match a Reset to its relation.
	notifyHistory = 8
)

// ErrLinkClosed is returned by operations on a closed link.
var ErrLinkClosed = errors.New("link closed")

// SerialConfig configures a SerialLink.
type SerialConfig struct {
	// Port is the serial device (e.g. /dev/ttyACM0).
	Port string

	// BaudRate defaults to 115200.
	BaudRate int

	// ReadTimeout bounds a UART read; a partial frame older than this is
	// dropped. Defaults to 2s.
	ReadTimeout time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger receives frame and message events (optional).
	ProtocolLogger log.Logger
}

func (c *SerialConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = DefaultReadTimeout
	}
}

// SerialLink serves CoAP over an HDLC-framed serial line. The radio module
// on the other end is the only peer.
type SerialLink struct {
	config  SerialConfig
	handler Handler
	linkID  string
	peer    string

	port   io.ReadWriter
	closer io.Closer
	reader *FrameReader
	writer *FrameWriter

	nextMID atomic.Uint32

	mu       sync.Mutex
	notified []sentNotification
	closed   bool
}

type sentNotification struct {
	mid   uint16
	token []byte
}

// OpenSerial opens the configured port and returns a link serving handler.
func OpenSerial(config SerialConfig, handler Handler) (*SerialLink, error) {
	config.applyDefaults()

	port, err := serial.Open(config.Port, &serial.Mode{
		BaudRate: config.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", config.Port, err)
	}
	if err := port.SetReadTimeout(config.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", config.Port, err)
	}

	l := NewSerialLink(port, config, handler)
	l.closer = port
	return l, nil
}

// NewSerialLink creates a link over an already open port. If port is an
// io.Closer, Close closes it.
func NewSerialLink(port io.ReadWriter, config SerialConfig, handler Handler) *SerialLink {
	config.applyDefaults()

	l := &SerialLink{
		config:  config,
		handler: handler,
		linkID:  uuid.NewString(),
		peer:    "serial",
		port:    port,
		reader:  NewFrameReader(port),
		writer:  NewFrameWriter(port),
	}
	if config.Port != "" {
		l.peer = "serial:" + config.Port
	}
	if c, ok := port.(io.Closer); ok {
		l.closer = c
	}
	l.nextMID.Store(uint32(time.Now().UnixNano()) & 0xFFFF)

	if config.ProtocolLogger != nil {
		l.reader.SetLogger(config.ProtocolLogger, l.linkID)
		l.writer.SetLogger(config.ProtocolLogger, l.linkID)
	}
	return l
}

// LinkID returns the link's identifier in protocol logs.
func (l *SerialLink) LinkID() string {
	return l.linkID
}

// Serve reads frames until ctx is cancelled or the port fails.
func (l *SerialLink) Serve(ctx context.Context) error {
	l.debugLog("serial link up", "port", l.config.Port, "link_id", l.linkID)
	l.logState("", "UP")
	defer l.logState("UP", "DOWN")

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		frame, err := l.reader.ReadFrame()
		switch {
		case err == nil:
			l.handleFrame(ctx, frame)
		case errors.Is(err, ErrReadTimeout),
			errors.Is(err, ErrBadFCS),
			errors.Is(err, ErrMessageTooLarge),
			errors.Is(err, ErrFrameTruncated):
			l.debugLog("serial frame dropped", "error", err)
		default:
			if l.isClosed() {
				return ErrLinkClosed
			}
			return fmt.Errorf("serial read: %w", err)
		}
	}
}

// handleFrame processes one inbound CoAP message.
func (l *SerialLink) handleFrame(ctx context.Context, frame []byte) {
	start := time.Now()

	m, err := decodeMessage(frame)
	if err != nil {
		l.debugLog("serial: undecodable frame", "error", err, "len", len(frame))
		l.logError(log.LayerCoAP, err, "decode")
		return
	}

	switch {
	case m.Type == message.Reset:
		l.logMessage(log.DirectionIn, m, log.MessageTypeReset, 0)
		token := l.notificationToken(uint16(m.MessageID))
		n := l.handler.Reset(ctx, l.peer, token)
		l.debugLog("serial: reset", "mid", m.MessageID, "cancelled", n)
		return

	case m.Type == message.Acknowledgement:
		return

	case m.Code == codes.Empty:
		// CoAP ping: answer with RST.
		if m.Type == message.Confirmable {
			l.write(resetMessage(m.MessageID), log.MessageTypeReset, 0)
		}
		return

	case !isRequest(m.Code):
		l.debugLog("serial: ignoring non-request", "code", m.Code.String())
		return
	}

	l.logMessage(log.DirectionIn, m, log.MessageTypeRequest, 0)

	req := newRequest(m.Code, m.Options, m.Token, m.Payload, l.peer, l)
	resp := l.handler.HandleRequest(ctx, req)

	out := responseMessage(m, resp, l.mid())
	if err := l.write(out, log.MessageTypeResponse, time.Since(start)); err != nil {
		l.debugLog("serial: response not sent", "error", err)
		if errors.Is(err, ErrMessageTooLarge) {
			fallback := responseMessage(m, &interaction.Response{Code: codes.InternalServerError}, l.mid())
			_ = l.write(fallback, log.MessageTypeResponse, time.Since(start))
		}
	}
}

// Notify implements observe.Sink.
func (l *SerialLink) Notify(ctx context.Context, n observe.Notification) error {
	if l.isClosed() {
		return ErrLinkClosed
	}

	mid := l.mid()
	if err := l.write(notificationMessage(n, mid), log.MessageTypeNotification, 0); err != nil {
		return err
	}

	l.mu.Lock()
	l.notified = append(l.notified, sentNotification{mid: mid, token: append([]byte(nil), n.Token...)})
	if len(l.notified) > notifyHistory {
		l.notified = l.notified[len(l.notified)-notifyHistory:]
	}
	l.mu.Unlock()
	return nil
}

// notificationToken returns the token of the notification sent with mid.
// An unknown mid yields nil, which matches every relation of the peer.
func (l *SerialLink) notificationToken(mid uint16) []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.notified) - 1; i >= 0; i-- {
		if l.notified[i].mid == mid {
			return l.notified[i].token
		}
	}
	return nil
}

func (l *SerialLink) mid() uint16 {
	return uint16(l.nextMID.Add(1))
}

// write encodes m and sends it as one frame.
func (l *SerialLink) write(m message.Message, typ log.MessageType, elapsed time.Duration) error {
	data, err := encodeMessage(m)
	if err != nil {
		l.logError(log.LayerCoAP, err, "encode")
		return err
	}
	if err := l.writer.WriteFrame(data); err != nil {
		l.logError(log.LayerLink, err, "write frame")
		return err
	}
	l.logMessage(log.DirectionOut, m, typ, elapsed)
	return nil
}

// Close closes the port. Serve returns ErrLinkClosed afterwards.
func (l *SerialLink) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	l.mu.Unlock()

	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

func (l *SerialLink) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func (l *SerialLink) logMessage(dir log.Direction, m message.Message, typ log.MessageType, elapsed time.Duration) {
	if l.config.ProtocolLogger == nil {
		return
	}
	l.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		LinkID:    l.linkID,
		Direction: dir,
		Layer:     log.LayerCoAP,
		Category:  log.CategoryMessage,
		Transport: log.TransportSerial,
		Remote:    l.config.Port,
		Message:   messageEvent(m, typ, elapsed),
	})
}

func (l *SerialLink) logError(layer log.Layer, err error, op string) {
	if l.config.ProtocolLogger == nil {
		return
	}
	l.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		LinkID:    l.linkID,
		Layer:     layer,
		Category:  log.CategoryError,
		Transport: log.TransportSerial,
		Remote:    l.config.Port,
		Error:     &log.ErrorEventData{Layer: layer, Message: err.Error(), Context: op},
	})
}

func (l *SerialLink) logState(oldState, newState string) {
	if l.config.ProtocolLogger == nil {
		return
	}
	l.config.ProtocolLogger.Log(log.Event{
		Timestamp:   time.Now(),
		LinkID:      l.linkID,
		Layer:       log.LayerLink,
		Category:    log.CategoryState,
		Transport:   log.TransportSerial,
		Remote:      l.config.Port,
		StateChange: &log.StateChangeEvent{Entity: log.StateEntityLink, OldState: oldState, NewState: newState},
	})
}

// debugLog logs a debug message if logging is enabled.
func (l *SerialLink) debugLog(msg string, args ...any) {
	if l.config.Logger != nil {
		l.config.Logger.Debug(msg, args...)
	}
}

// Compile-time interface satisfaction check.
var _ observe.Sink = (*SerialLink)(nil)
