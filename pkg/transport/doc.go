// Package transport carries SAPI requests and notifications over the wire.
//
// Two transports are provided:
//   - UDPServer: CoAP over UDP, served by go-coap's mux router
//   - SerialLink: CoAP over an HDLC-framed UART to the radio module
//
// # Serial Protocol Stack
//
//	┌────────────────────────────────┐
//	│   CoAP (RFC 7252 UDP format)   │
//	├────────────────────────────────┤
//	│ HDLC framing, CRC-16/X.25 FCS  │
//	├────────────────────────────────┤
//	│     UART 115200 8N1            │
//	└────────────────────────────────┘
//
// Frames are delimited by 0x7E flags. 0x7E and 0x7D inside a frame are
// escaped as 0x7D followed by the byte XOR 0x20. A frame carries at most 255
// payload bytes. A partial frame is dropped when the UART read times out.
//
// Both transports hand requests to a Handler (normally the device service)
// and act as the Observe sink for the relations registered over them.
package transport
