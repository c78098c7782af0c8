package interaction

import (
	"context"

	"github.com/sapi-coap/sapi-go/pkg/sensor"
	"github.com/sapi-coap/sapi-go/pkg/wire"
)

// Builder turns a sensor read into an encoded envelope.
type Builder struct {
	maxLen int
}

// NewBuilder creates a builder limited to wire.MaxPayloadLen.
func NewBuilder() *Builder {
	return &Builder{maxLen: wire.MaxPayloadLen}
}

// Build reads the sensor and wraps the reading in an envelope.
// A driver error is returned unchanged and the encoder is not called.
func (b *Builder) Build(ctx context.Context, e sensor.Entry) ([]byte, error) {
	payload, err := e.Read(ctx)
	if err != nil {
		return nil, err
	}
	return wire.Encode(e.DeviceType, payload, b.maxLen)
}

// BuildConfig reads the sensor configuration and wraps it in an envelope.
func (b *Builder) BuildConfig(ctx context.Context, e sensor.Entry) ([]byte, error) {
	payload, err := e.ReadConfig(ctx)
	if err != nil {
		return nil, err
	}
	return wire.Encode(e.DeviceType, payload, b.maxLen)
}
