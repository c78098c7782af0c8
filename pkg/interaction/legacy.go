package interaction

import (
	"context"
	"log/slog"
	"sync"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// LegacyBase is the path segment served by sketches built before the sensor
// API existed (/arduino/<resource>).
const LegacyBase = "arduino"

// LegacyFunc serves one legacy resource. Returning nil yields 5.00.
type LegacyFunc func(ctx context.Context, req *Request) *Response

// Legacy is the fallback dispatcher kept for deployed sketches. It claims
// /<base>/<name> for every registered name and passes everything else. It
// holds no reference to the sensor registry.
type Legacy struct {
	mu sync.RWMutex

	base   string
	routes map[string]LegacyFunc
	logger *slog.Logger
}

// NewLegacy creates a legacy dispatcher rooted at base.
func NewLegacy(base string) *Legacy {
	if base == "" {
		base = LegacyBase
	}
	return &Legacy{
		base:   base,
		routes: make(map[string]LegacyFunc),
	}
}

// SetLogger sets the optional debug logger.
func (l *Legacy) SetLogger(logger *slog.Logger) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger = logger
}

// HandleFunc registers fn for /<base>/<name>. A later registration for the
// same name replaces the earlier one.
func (l *Legacy) HandleFunc(name string, fn LegacyFunc) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.routes[name] = fn
}

// Routes returns the number of registered legacy resources.
func (l *Legacy) Routes() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.routes)
}

// Handle implements Handler.
func (l *Legacy) Handle(ctx context.Context, req *Request) (*Response, Outcome) {
	if len(req.Path) != 2 || req.Path[0] != l.base {
		return nil, Pass
	}

	l.mu.RLock()
	fn, ok := l.routes[req.Path[1]]
	logger := l.logger
	l.mu.RUnlock()
	if !ok {
		return nil, Pass
	}

	if logger != nil {
		logger.Debug("legacy: handling request", "path", req.PathString())
	}
	resp := fn(ctx, req)
	if resp == nil {
		resp = codeResponse(codes.InternalServerError)
	}
	return resp, Handled
}

// LegacyReading serves a driver reading the old way: GET only, plain text,
// no envelope.
func LegacyReading(d sensor.Driver) LegacyFunc {
	return func(ctx context.Context, req *Request) *Response {
		if req.Method != codes.GET {
			return codeResponse(codes.MethodNotAllowed)
		}
		payload, err := d.Read(ctx)
		if err != nil {
			return codeResponse(codes.InternalServerError)
		}
		return TextResponse(string(payload))
	}
}

// TextResponse is a 2.05 Content response with a text/plain payload.
func TextResponse(text string) *Response {
	return &Response{
		Code:             codes.Content,
		ContentFormat:    message.TextPlain,
		HasContentFormat: true,
		Payload:          []byte(text),
	}
}
