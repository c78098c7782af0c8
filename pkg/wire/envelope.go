package wire

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Envelope limits.
const (
	// MaxPayloadLen is the largest encoded envelope the device will emit.
	MaxPayloadLen = 256

	// MaxDeviceTypeLen is the longest device type label.
	MaxDeviceTypeLen = 20
)

// Envelope map keys.
const (
	KeyDeviceType = 0
	KeyPayload    = 1
)

// Envelope errors.
var (
	// ErrPayloadTooLarge indicates the encoded envelope would exceed the size limit.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrInvalidDeviceType indicates an empty or over-long device type label.
	ErrInvalidDeviceType = errors.New("invalid device type")

	// ErrMalformedEnvelope indicates data that is not a two-entry SAPI envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Envelope is the decoded form of a sensor payload wrapper.
type Envelope struct {
	// Type is the device type label (map key 0).
	Type string

	// Payload is the raw sensor payload (map key 1).
	Payload []byte

	// Text reports whether the payload was carried as a CBOR text string.
	Text bool
}

// String renders the envelope the way the firmware documentation does:
// {0:"temp",1:"23.5"}.
func (e Envelope) String() string {
	if e.Text {
		return fmt.Sprintf("{0:%q,1:%q}", e.Type, string(e.Payload))
	}
	return fmt.Sprintf("{0:%q,1:h'%x'}", e.Type, e.Payload)
}

// envelopeWire is the on-the-wire layout. Payload holds a string or []byte.
type envelopeWire struct {
	Type    string `cbor:"0,keyasint"`
	Payload any    `cbor:"1,keyasint"`
}

// Encode wraps a sensor payload in a SAPI envelope.
//
// The returned buffer is at most maxLen bytes; a maxLen of zero or less means
// MaxPayloadLen. If the envelope does not fit, Encode returns
// ErrPayloadTooLarge and no output.
func Encode(deviceType string, payload []byte, maxLen int) ([]byte, error) {
	if deviceType == "" || len(deviceType) > MaxDeviceTypeLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDeviceType, deviceType)
	}
	if maxLen <= 0 {
		maxLen = MaxPayloadLen
	}

	size := EncodedSize(deviceType, payload)
	if size > maxLen {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, size, maxLen)
	}

	w := envelopeWire{Type: deviceType}
	if utf8.Valid(payload) {
		w.Payload = string(payload)
	} else {
		w.Payload = append([]byte(nil), payload...)
	}

	data, err := marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return data, nil
}

// Decode parses a SAPI envelope.
func Decode(data []byte) (Envelope, error) {
	var w envelopeWire
	if err := unmarshal(data, &w); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if w.Type == "" {
		return Envelope{}, fmt.Errorf("%w: missing device type", ErrMalformedEnvelope)
	}

	switch p := w.Payload.(type) {
	case string:
		return Envelope{Type: w.Type, Payload: []byte(p), Text: true}, nil
	case []byte:
		return Envelope{Type: w.Type, Payload: p}, nil
	case nil:
		return Envelope{}, fmt.Errorf("%w: missing payload", ErrMalformedEnvelope)
	default:
		return Envelope{}, fmt.Errorf("%w: payload has type %T", ErrMalformedEnvelope, p)
	}
}

// EncodedSize returns the exact number of bytes Encode produces for the inputs.
//
// Layout: map(2) header, key 0, text header + label, key 1, string header +
// payload. Text and byte strings share header sizes.
func EncodedSize(deviceType string, payload []byte) int {
	return 1 + 1 + headerSize(len(deviceType)) + len(deviceType) +
		1 + headerSize(len(payload)) + len(payload)
}

// headerSize returns the size of a CBOR major-type header for length n.
func headerSize(n int) int {
	switch {
	case n < 24:
		return 1
	case n <= 0xff:
		return 2
	case n <= 0xffff:
		return 3
	case n <= 0xffffffff:
		return 5
	default:
		return 9
	}
}
