// Package observe tracks CoAP Observe relationships for SAPI sensors.
//
// The device supports one observer per sensor. A new registration for a
// sensor that is already observed replaces the previous relation and keeps
// its observer slot.
//
// # Sequence Numbers
//
// Every registration response and every notification carries an Observe
// option value taken from a per-sensor counter. The counter is 24 bits wide
// (RFC 7641 section 4.4) and wraps to zero after 0xFFFFFF. It is never reset
// by cancellation, so a client re-registering sees values strictly greater
// than the ones it saw before (modulo wrap).
//
// # Freshness
//
// Notifications carry Max-Age 90 seconds (RFC 7252 section 5.10.5).
//
// # Scheduling
//
// The Scheduler fires a trigger for every sensor with a non-zero polling
// frequency. It does not build or send anything itself; the caller decides
// whether the sensor is observed at the time the trigger runs.
package observe
