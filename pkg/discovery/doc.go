// Package discovery advertises SAPI devices over mDNS/DNS-SD and finds them.
//
// A device registers one _coap._udp instance. TXT records:
//   - rt: comma-separated device types served by the device
//   - ver: SAPI version ("1.0.0")
//   - name: optional human readable device name
//
// Instance names are limited to 63 bytes (one DNS label).
package discovery
