package interaction

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/observe"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
	"github.com/sapi-coap/sapi-go/pkg/wire"
)

// ObserverChange describes an Observe registration or cancellation.
type ObserverChange struct {
	DeviceType string
	SensorID   sensor.ID
	ObserverID uint8
	Peer       string
	Registered bool
	Sequence   uint32
	Reason     string
}

// ObserverHandler is called after an observer is registered or cancelled.
type ObserverHandler func(change ObserverChange)

// Dispatcher is the primary SAPI handler. It claims every request whose URI
// leaf names a registered sensor and passes everything else.
type Dispatcher struct {
	mu sync.RWMutex

	registry  *sensor.Registry
	observers *observe.Table
	builder   *Builder
	logger    *slog.Logger

	onObserver ObserverHandler
}

// NewDispatcher creates a dispatcher. logger may be nil.
func NewDispatcher(registry *sensor.Registry, observers *observe.Table, builder *Builder, logger *slog.Logger) *Dispatcher {
	if builder == nil {
		builder = NewBuilder()
	}
	return &Dispatcher{
		registry:  registry,
		observers: observers,
		builder:   builder,
		logger:    logger,
	}
}

// SetObserverHandler sets the callback for observer changes.
func (d *Dispatcher) SetObserverHandler(handler ObserverHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onObserver = handler
}

// resolve extracts the sensor leaf from a path. config is set when the
// request targets the leaf's config sub-resource.
func resolve(path []string) (leaf string, config bool, ok bool) {
	n := len(path)
	switch {
	case n == 0:
		return "", false, false
	case n >= 2 && path[n-1] == sensor.ConfigSegment:
		return path[n-2], true, true
	default:
		return path[n-1], false, true
	}
}

// Handle implements Handler.
func (d *Dispatcher) Handle(ctx context.Context, req *Request) (*Response, Outcome) {
	leaf, config, ok := resolve(req.Path)
	if !ok {
		return nil, Pass
	}
	id, err := d.registry.LookupByURI(leaf)
	if err != nil {
		d.debugLog("dispatch: unresolved leaf", "path", req.PathString())
		return nil, Pass
	}
	entry, err := d.registry.Get(id)
	if err != nil {
		return nil, Pass
	}

	if config {
		return d.handleConfig(ctx, req, entry), Handled
	}

	switch req.Method {
	case codes.GET:
		return d.handleGet(ctx, req, entry), Handled
	default:
		return codeResponse(codes.MethodNotAllowed), Handled
	}
}

// handleGet serves a value read, Observe registration or deregistration.
func (d *Dispatcher) handleGet(ctx context.Context, req *Request, entry sensor.Entry) *Response {
	if req.HasObserve && req.Observe == observe.Register {
		return d.handleRegister(ctx, req, entry)
	}

	if req.HasObserve && req.Observe == observe.Deregister {
		d.Cancel(entry.ID, "deregister")
	} else if rel, _, ok := d.observers.Lookup(entry.ID); ok && req.Peer != "" && rel.Matches(req.Peer, req.Token) {
		// A repeated GET without Observe ends the relationship.
		d.Cancel(entry.ID, "get without observe")
	}

	payload, err := d.builder.Build(ctx, entry)
	if err != nil {
		return d.failure("read", entry, err)
	}
	return envelopeResponse(payload)
}

// handleRegister builds the first response and only then installs the
// observer, so a failed read leaves the Observe state untouched.
func (d *Dispatcher) handleRegister(ctx context.Context, req *Request, entry sensor.Entry) *Response {
	payload, err := d.builder.Build(ctx, entry)
	if err != nil {
		return d.failure("observe", entry, err)
	}
	resp := envelopeResponse(payload)

	if req.Sink == nil {
		d.debugLog("dispatch: transport cannot notify, serving plain GET", "device_type", entry.DeviceType)
		return resp
	}

	observerID, seq, err := d.observers.Register(entry.ID, observe.Relation{
		Peer:  req.Peer,
		Token: append([]byte(nil), req.Token...),
		Sink:  req.Sink,
	})
	if err != nil {
		// RFC 7641: a server unable to add an observer answers without Observe.
		d.warnLog("dispatch: observe registration refused", "device_type", entry.DeviceType, "error", err)
		return resp
	}
	if err := d.registry.SetObserver(entry.ID, observerID); err != nil {
		d.observers.Cancel(entry.ID)
		return d.failure("observe", entry, err)
	}

	resp.Observe = seq
	resp.HasObserve = true
	resp.MaxAge = observe.MaxAge
	resp.HasMaxAge = true

	d.emit(ObserverChange{
		DeviceType: entry.DeviceType,
		SensorID:   entry.ID,
		ObserverID: observerID,
		Peer:       req.Peer,
		Registered: true,
		Sequence:   seq,
	})
	return resp
}

// handleConfig serves the config sub-resource.
func (d *Dispatcher) handleConfig(ctx context.Context, req *Request, entry sensor.Entry) *Response {
	switch req.Method {
	case codes.GET:
		payload, err := d.builder.BuildConfig(ctx, entry)
		if err != nil {
			return d.failure("read config", entry, err)
		}
		return envelopeResponse(payload)

	case codes.PUT:
		if len(req.Payload) > wire.MaxPayloadLen {
			return codeResponse(codes.RequestEntityTooLarge)
		}
		if err := entry.WriteConfig(ctx, req.Payload); err != nil {
			return d.failure("write config", entry, err)
		}
		d.debugLog("dispatch: config written", "device_type", entry.DeviceType, "len", len(req.Payload))
		return codeResponse(codes.Changed)

	default:
		return codeResponse(codes.MethodNotAllowed)
	}
}

// failure maps a handler error to a CoAP error response.
func (d *Dispatcher) failure(op string, entry sensor.Entry, err error) *Response {
	if errors.Is(err, sensor.ErrNotSupported) {
		return codeResponse(codes.MethodNotAllowed)
	}
	d.warnLog("dispatch: "+op+" failed", "device_type", entry.DeviceType, "error", err)
	return codeResponse(codes.InternalServerError)
}

// Cancel ends the sensor's Observe relationship, if any.
func (d *Dispatcher) Cancel(id sensor.ID, reason string) bool {
	rel, ok := d.observers.Cancel(id)
	observerID, _ := d.registry.ClearObserver(id)
	if !ok {
		return false
	}

	entry, _ := d.registry.Get(id)
	d.emit(ObserverChange{
		DeviceType: entry.DeviceType,
		SensorID:   id,
		ObserverID: observerID,
		Peer:       rel.Peer,
		Reason:     reason,
	})
	return true
}

// Reset cancels the relation a CoAP Reset from peer refers to.
// An empty token cancels every relation held by the peer.
func (d *Dispatcher) Reset(peer string, token []byte) int {
	n := 0
	for {
		id, ok := d.observers.FindByToken(peer, token)
		if !ok {
			return n
		}
		if d.Cancel(id, "reset") {
			n++
		}
	}
}

func (d *Dispatcher) emit(change ObserverChange) {
	d.mu.RLock()
	handler := d.onObserver
	d.mu.RUnlock()

	if handler != nil {
		handler(change)
	}
}

// debugLog logs a debug message if logging is enabled.
func (d *Dispatcher) debugLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Debug(msg, args...)
	}
}

func (d *Dispatcher) warnLog(msg string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(msg, args...)
	}
}
