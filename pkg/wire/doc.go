// Package wire defines the CBOR envelope used for every SAPI sensor payload.
//
// Each response or Observe notification produced by the device carries a
// two-entry CBOR map with integer keys:
//
//	{0: "<device type>", 1: <sensor payload>}
//
// The device type lets the gateway route the payload (for example onto an
// MQTT topic) without knowing anything about the sensor's own format. The
// payload is the sensor driver's read output, carried verbatim: as a CBOR
// text string when it is valid UTF-8, otherwise as a byte string.
//
// # Size Limits
//
// The encoded envelope must fit in MaxPayloadLen bytes. Encode refuses to
// produce output that would exceed the limit instead of truncating it.
//
// # Determinism
//
// Encoding uses canonical key ordering and definite lengths, so the same
// inputs always yield the same bytes. Request-time and notification-time
// payloads for an unchanged sensor are therefore byte-identical.
package wire
