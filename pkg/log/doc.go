// Package log provides structured protocol logging for SAPI devices.
//
// This package defines the Logger interface and Event types for capturing
// protocol-level events at multiple layers (link, CoAP, service).
// It is separate from operational logging (slog) - protocol capture provides
// a complete machine-readable event trace for debugging and analysis.
//
// # Basic Usage
//
// Applications configure logging by providing a Logger implementation:
//
//	// For development: log to console via slog
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// For production: write to binary file
//	cfg.ProtocolLogger, _ = log.NewFileLogger("/var/log/sapi/device.sapilog")
//
//	// Both: use MultiLogger
//	cfg.ProtocolLogger = log.NewMultiLogger(
//	    log.NewSlogAdapter(slog.Default()),
//	    log.NewFileLogger("/var/log/sapi/device.sapilog"),
//	)
//
// # Event Types
//
// Events are captured at multiple layers:
//   - Link: Raw HDLC frames and UDP datagrams (FrameEvent)
//   - CoAP: Decoded messages (MessageEvent)
//   - Service: Observe relations (ObserveEvent) and state changes (StateChangeEvent)
//
// Errors at any layer have a dedicated event type.
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events. NewRotatingFileLogger
// rotates them by size. The sapi-log CLI tool provides viewing, filtering
// and statistics.
package log
