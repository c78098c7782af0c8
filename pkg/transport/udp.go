package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/plgd-dev/go-coap/v3/mux"
	coapnet "github.com/plgd-dev/go-coap/v3/net"
	"github.com/plgd-dev/go-coap/v3/options"
	"github.com/plgd-dev/go-coap/v3/udp"
	udpServer "github.com/plgd-dev/go-coap/v3/udp/server"

	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/observe"
)

// DefaultUDPAddress is the standard CoAP port on all interfaces.
const DefaultUDPAddress = ":5683"

// ErrServerRunning is returned when Listen is called twice.
var ErrServerRunning = errors.New("server already listening")

// UDPConfig configures a UDPServer.
type UDPConfig struct {
	// Address to listen on (default ":5683").
	Address string

	// Logger is the optional logger for debug output.
	Logger *slog.Logger

	// ProtocolLogger receives message events (optional).
	ProtocolLogger log.Logger
}

// UDPServer serves CoAP over UDP.
type UDPServer struct {
	mu sync.Mutex

	config  UDPConfig
	handler Handler
	linkID  string
	nextMID atomic.Uint32

	router   *mux.Router
	server   *udpServer.Server
	listener *coapnet.UDPConn
}

// NewUDPServer creates a server that hands every request to handler.
func NewUDPServer(config UDPConfig, handler Handler) *UDPServer {
	if config.Address == "" {
		config.Address = DefaultUDPAddress
	}

	s := &UDPServer{
		config:  config,
		handler: handler,
		linkID:  uuid.NewString(),
		router:  mux.NewRouter(),
	}
	s.nextMID.Store(uint32(time.Now().UnixNano()) & 0xFFFF)
	// Every path is resolved by the dispatcher chain, not the router.
	s.router.DefaultHandle(mux.HandlerFunc(s.handle))
	return s
}

// Listen opens the UDP socket.
func (s *UDPServer) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrServerRunning
	}

	l, err := coapnet.NewListenUDP("udp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.config.Address, err)
	}
	s.listener = l
	s.server = udp.NewServer(
		options.WithMux(s.router),
		options.WithErrors(func(err error) {
			s.debugLog("coap udp error", "error", err)
		}),
	)
	return nil
}

// Addr returns the bound address, or nil before Listen.
func (s *UDPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.LocalAddr()
}

// Serve blocks serving requests until Stop is called.
func (s *UDPServer) Serve() error {
	s.mu.Lock()
	server, l := s.server, s.listener
	s.mu.Unlock()

	if server == nil {
		return errors.New("udp server: Listen not called")
	}
	s.debugLog("udp server listening", "addr", l.LocalAddr().String(), "link_id", s.linkID)
	return server.Serve(l)
}

// ListenAndServe listens and serves until ctx is cancelled.
func (s *UDPServer) ListenAndServe(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	stopped := make(chan struct{})
	defer close(stopped)
	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-stopped:
		}
	}()

	err := s.Serve()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Stop stops the server and closes the socket.
func (s *UDPServer) Stop() {
	s.mu.Lock()
	server, l := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		server.Stop()
	}
	if l != nil {
		_ = l.Close()
	}
}

// handle is the router's default handler.
func (s *UDPServer) handle(w mux.ResponseWriter, r *mux.Message) {
	start := time.Now()
	peer := w.Conn().RemoteAddr().String()

	body, err := r.ReadBody()
	if err != nil {
		body = nil
	}
	in := message.Message{
		Token:     r.Token(),
		Options:   r.Options(),
		Code:      r.Code(),
		Payload:   body,
		MessageID: r.MessageID(),
		Type:      r.Type(),
	}

	if !isRequest(in.Code) {
		return
	}
	s.logMessage(log.DirectionIn, peer, in, log.MessageTypeRequest, 0)

	req := newRequest(in.Code, in.Options, in.Token, body, peer, &udpSink{conn: w.Conn(), server: s, peer: peer})
	resp := s.handler.HandleRequest(r.Context(), req)

	var payload io.ReadSeeker
	if len(resp.Payload) > 0 {
		payload = bytes.NewReader(resp.Payload)
	}
	cf := message.TextPlain
	if resp.HasContentFormat {
		cf = resp.ContentFormat
	}
	opts := responseOptions(resp)
	if err := w.SetResponse(resp.Code, cf, payload, opts...); err != nil {
		s.debugLog("udp: set response failed", "peer", peer, "error", err)
		return
	}

	out := message.Message{Token: in.Token, Code: resp.Code, Payload: resp.Payload, Options: opts}
	if resp.HasContentFormat {
		out.Options = out.Options.Add(uint32Option(message.ContentFormat, uint32(resp.ContentFormat)))
	}
	s.logMessage(log.DirectionOut, peer, out, log.MessageTypeResponse, time.Since(start))
}

func (s *UDPServer) logMessage(dir log.Direction, peer string, m message.Message, typ log.MessageType, elapsed time.Duration) {
	if s.config.ProtocolLogger == nil {
		return
	}
	s.config.ProtocolLogger.Log(log.Event{
		Timestamp: time.Now(),
		LinkID:    s.linkID,
		Direction: dir,
		Layer:     log.LayerCoAP,
		Category:  log.CategoryMessage,
		Transport: log.TransportUDP,
		Remote:    peer,
		Message:   messageEvent(m, typ, elapsed),
	})
}

// debugLog logs a debug message if logging is enabled.
func (s *UDPServer) debugLog(msg string, args ...any) {
	if s.config.Logger != nil {
		s.config.Logger.Debug(msg, args...)
	}
}

// udpSink sends notifications on the connection the registration came in on.
type udpSink struct {
	conn   mux.Conn
	server *UDPServer
	peer   string
}

// Notify implements observe.Sink.
func (u *udpSink) Notify(ctx context.Context, n observe.Notification) error {
	m := u.conn.AcquireMessage(ctx)
	defer u.conn.ReleaseMessage(m)

	mid := uint16(u.server.nextMID.Add(1))
	seq := n.Sequence & observe.SequenceMask
	m.SetMessageID(int32(mid))
	m.SetCode(codes.Content)
	m.SetToken(n.Token)
	m.SetType(message.NonConfirmable)
	m.SetObserve(seq)
	m.SetContentFormat(n.ContentFormat)
	m.SetOptionUint32(message.MaxAge, n.MaxAge)
	m.SetBody(bytes.NewReader(n.Payload))

	if err := u.conn.WriteMessage(m); err != nil {
		return fmt.Errorf("notify %s: %w", u.peer, err)
	}

	u.server.logMessage(log.DirectionOut, u.peer, notificationMessage(n, mid), log.MessageTypeNotification, 0)
	return nil
}

// Compile-time interface satisfaction check.
var _ observe.Sink = (*udpSink)(nil)
