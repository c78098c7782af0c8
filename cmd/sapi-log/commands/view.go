// Package commands implements the sapi-log CLI commands.
package commands

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fxamacker/cbor/v2"
	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/log"
)

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event log.Event) {
	// Header line: timestamp [link:id] DIRECTION TRANSPORT LAYER Type
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")

	var typeLabel string
	switch {
	case event.Frame != nil:
		typeLabel = "Frame"
	case event.Message != nil:
		typeLabel = event.Message.Type.String()
	case event.Observe != nil:
		typeLabel = "Observe"
	case event.StateChange != nil:
		typeLabel = "State"
	case event.Error != nil:
		typeLabel = "Error"
	default:
		typeLabel = "Unknown"
	}

	fmt.Fprintf(w, "%s [link:%s] %-3s %s %s %s", ts, shortenLinkID(event.LinkID),
		event.Direction.String(), event.Transport.String(), event.Layer.String(), typeLabel)
	if event.Remote != "" {
		fmt.Fprintf(w, " %s", event.Remote)
	}
	fmt.Fprintln(w)

	if event.DeviceType != "" {
		fmt.Fprintf(w, "  Sensor: %s\n", event.DeviceType)
	}

	switch {
	case event.Frame != nil:
		formatFrameDetails(w, event.Frame)
	case event.Message != nil:
		formatMessageDetails(w, event.Message)
	case event.Observe != nil:
		formatObserveDetails(w, event.Observe)
	case event.StateChange != nil:
		formatStateChangeDetails(w, event.StateChange)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w)
}

// shortenLinkID returns the first 8 characters of the link ID.
func shortenLinkID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatFrameDetails(w io.Writer, frame *log.FrameEvent) {
	fmt.Fprintf(w, "  Size: %d bytes\n", frame.Size)
	if len(frame.Data) > 0 {
		fmt.Fprintf(w, "  Data: %s", hex.EncodeToString(frame.Data))
		if frame.Truncated {
			fmt.Fprintf(w, " (truncated)")
		}
		fmt.Fprintln(w)
	}
}

func formatMessageDetails(w io.Writer, msg *log.MessageEvent) {
	fmt.Fprintf(w, "  MID: %d  Code: %s", msg.MessageID, codeString(msg.Code))
	if len(msg.Token) > 0 {
		fmt.Fprintf(w, "  Token: %s", hex.EncodeToString(msg.Token))
	}
	fmt.Fprintln(w)

	if msg.Path != "" {
		fmt.Fprintf(w, "  Path: %s\n", msg.Path)
	}
	if msg.Observe != nil {
		fmt.Fprintf(w, "  Observe: %d\n", *msg.Observe)
	}
	if msg.ProcessingTime != nil {
		fmt.Fprintf(w, "  Duration: %s\n", formatDuration(*msg.ProcessingTime))
	}
	if len(msg.Payload) > 0 {
		fmt.Fprintf(w, "  Payload: %s\n", formatPayload(msg.Payload, msg.ContentFormat))
	}
}

// codeString renders a method by name and any other code as "c.dd Name".
func codeString(c uint8) string {
	code := codes.Code(c)
	if c>>5 == 0 {
		return code.String()
	}
	return fmt.Sprintf("%d.%02d %s", c>>5, c&0x1f, code.String())
}

// formatPayload renders CBOR in diagnostic notation, text as a quoted
// string and anything else as hex.
func formatPayload(payload []byte, contentFormat *uint16) string {
	if contentFormat != nil && message.MediaType(*contentFormat) == message.AppCBOR {
		if diag, err := cbor.Diagnose(payload); err == nil {
			return diag
		}
	}
	if utf8.Valid(payload) {
		return fmt.Sprintf("%q", payload)
	}
	return hex.EncodeToString(payload)
}

func formatObserveDetails(w io.Writer, obs *log.ObserveEvent) {
	action := "cancelled"
	if obs.Registered {
		action = "registered"
	}
	fmt.Fprintf(w, "  Sensor %d observer %d %s", obs.SensorID, obs.ObserverID, action)
	if obs.Registered {
		fmt.Fprintf(w, " (seq %d)", obs.Sequence)
	}
	if obs.Reason != "" {
		fmt.Fprintf(w, ": %s", obs.Reason)
	}
	fmt.Fprintln(w)
}

func formatStateChangeDetails(w io.Writer, sc *log.StateChangeEvent) {
	fmt.Fprintf(w, "  Entity: %s\n", sc.Entity.String())
	if sc.OldState != "" {
		fmt.Fprintf(w, "  %s -> %s\n", sc.OldState, sc.NewState)
	} else {
		fmt.Fprintf(w, "  -> %s\n", sc.NewState)
	}
	if sc.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", sc.Reason)
	}
}

func formatErrorDetails(w io.Writer, err *log.ErrorEventData) {
	fmt.Fprintf(w, "  Layer: %s\n", err.Layer.String())
	fmt.Fprintf(w, "  Message: %s\n", err.Message)
	if err.Code != nil {
		fmt.Fprintf(w, "  Code: %d\n", *err.Code)
	}
	if err.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", err.Context)
	}
}

// formatDuration formats a duration for display.
func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%.3fus", float64(d.Nanoseconds())/1000)
	}
	if d < time.Second {
		return fmt.Sprintf("%.3fms", float64(d.Microseconds())/1000)
	}
	return fmt.Sprintf("%.3fs", d.Seconds())
}

// ParseLayerFlag parses a layer name (case-insensitive).
func ParseLayerFlag(s string) (log.Layer, error) {
	switch strings.ToLower(s) {
	case "link":
		return log.LayerLink, nil
	case "coap":
		return log.LayerCoAP, nil
	case "service":
		return log.LayerService, nil
	default:
		return 0, fmt.Errorf("invalid layer: %s (must be link, coap, or service)", s)
	}
}

// ParseDirectionFlag parses a direction name (case-insensitive).
func ParseDirectionFlag(s string) (log.Direction, error) {
	switch strings.ToLower(s) {
	case "in":
		return log.DirectionIn, nil
	case "out":
		return log.DirectionOut, nil
	default:
		return 0, fmt.Errorf("invalid direction: %s (must be in or out)", s)
	}
}

// ParseCategoryFlag parses a category name (case-insensitive).
func ParseCategoryFlag(s string) (log.Category, error) {
	switch strings.ToLower(s) {
	case "message":
		return log.CategoryMessage, nil
	case "observe":
		return log.CategoryObserve, nil
	case "state":
		return log.CategoryState, nil
	case "error":
		return log.CategoryError, nil
	default:
		return 0, fmt.Errorf("invalid category: %s (must be message, observe, state, or error)", s)
	}
}

// ParseTransportFlag parses a transport name (case-insensitive).
func ParseTransportFlag(s string) (log.Transport, error) {
	switch strings.ToLower(s) {
	case "udp":
		return log.TransportUDP, nil
	case "serial":
		return log.TransportSerial, nil
	default:
		return 0, fmt.Errorf("invalid transport: %s (must be udp or serial)", s)
	}
}

// FilterOptions holds filter flags shared by view and filter.
type FilterOptions struct {
	LinkID     string
	DeviceType string
	Remote     string
	TimeStart  string
	TimeEnd    string
	Layer      string
	Direction  string
	Category   string
	Transport  string
}

// BuildFilter converts flag values into a log.Filter.
func (o FilterOptions) BuildFilter() (log.Filter, error) {
	filter := log.Filter{
		LinkID:     o.LinkID,
		DeviceType: o.DeviceType,
		Remote:     o.Remote,
	}

	if o.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, o.TimeStart)
		if err != nil {
			return filter, fmt.Errorf("invalid time-start format: %w", err)
		}
		filter.TimeStart = &t
	}
	if o.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, o.TimeEnd)
		if err != nil {
			return filter, fmt.Errorf("invalid time-end format: %w", err)
		}
		filter.TimeEnd = &t
	}
	if o.Layer != "" {
		l, err := ParseLayerFlag(o.Layer)
		if err != nil {
			return filter, err
		}
		filter.Layer = &l
	}
	if o.Direction != "" {
		d, err := ParseDirectionFlag(o.Direction)
		if err != nil {
			return filter, err
		}
		filter.Direction = &d
	}
	if o.Category != "" {
		c, err := ParseCategoryFlag(o.Category)
		if err != nil {
			return filter, err
		}
		filter.Category = &c
	}
	if o.Transport != "" {
		t, err := ParseTransportFlag(o.Transport)
		if err != nil {
			return filter, err
		}
		filter.Transport = &t
	}
	return filter, nil
}

// RunView prints every event matching filter.
func RunView(path string, filter log.Filter, output io.Writer) error {
	reader, err := log.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(output, event)
	}
	return nil
}
