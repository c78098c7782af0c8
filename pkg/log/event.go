package log

import (
	"time"
)

// Event represents a protocol log event captured at any layer.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// LinkID identifies the link the event was seen on (UUID).
	LinkID string `cbor:"2,keyasint"`

	// Direction indicates message flow.
	Direction Direction `cbor:"3,keyasint"`

	// Layer where the event was captured.
	Layer Layer `cbor:"4,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"5,keyasint"`

	// Transport is the kind of link (UDP or serial).
	Transport Transport `cbor:"6,keyasint,omitempty"`

	// Remote is the peer address (IP:port or serial port name).
	Remote string `cbor:"7,keyasint,omitempty"`

	// DeviceType is the sensor the event refers to, if any.
	DeviceType string `cbor:"8,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	Frame       *FrameEvent       `cbor:"10,keyasint,omitempty"` // Link layer
	Message     *MessageEvent     `cbor:"11,keyasint,omitempty"` // CoAP layer
	Observe     *ObserveEvent     `cbor:"12,keyasint,omitempty"` // Observe relation changes
	StateChange *StateChangeEvent `cbor:"13,keyasint,omitempty"` // Service/link state
	Error       *ErrorEventData   `cbor:"14,keyasint,omitempty"` // Errors at any layer
}

// Direction indicates the direction of message flow.
type Direction uint8

const (
	// DirectionIn indicates an incoming message.
	DirectionIn Direction = 0
	// DirectionOut indicates an outgoing message.
	DirectionOut Direction = 1
)

// String returns the direction name.
func (d Direction) String() string {
	switch d {
	case DirectionIn:
		return "IN"
	case DirectionOut:
		return "OUT"
	default:
		return "UNKNOWN"
	}
}

// Layer indicates which protocol layer captured the event.
type Layer uint8

const (
	// LayerLink is the framing layer (HDLC frames, UDP datagrams).
	LayerLink Layer = 0
	// LayerCoAP is the decoded CoAP message layer.
	LayerCoAP Layer = 1
	// LayerService is the dispatcher/service layer.
	LayerService Layer = 2
)

// String returns the layer name.
func (l Layer) String() string {
	switch l {
	case LayerLink:
		return "LINK"
	case LayerCoAP:
		return "COAP"
	case LayerService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryMessage indicates a CoAP message (request/response/notification).
	CategoryMessage Category = 0
	// CategoryObserve indicates an Observe registration or cancellation.
	CategoryObserve Category = 1
	// CategoryState indicates a state change.
	CategoryState Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryMessage:
		return "MESSAGE"
	case CategoryObserve:
		return "OBSERVE"
	case CategoryState:
		return "STATE"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Transport indicates the kind of link an event was captured on.
type Transport uint8

const (
	// TransportNone is used for events not tied to a link.
	TransportNone Transport = 0
	// TransportUDP is CoAP over UDP.
	TransportUDP Transport = 1
	// TransportSerial is CoAP over HDLC-framed UART.
	TransportSerial Transport = 2
)

// String returns the transport name.
func (t Transport) String() string {
	switch t {
	case TransportNone:
		return "NONE"
	case TransportUDP:
		return "UDP"
	case TransportSerial:
		return "SERIAL"
	default:
		return "UNKNOWN"
	}
}

// FrameEvent captures raw frame data at the link layer.
type FrameEvent struct {
	// Size is the frame size in bytes on the wire.
	Size int `cbor:"1,keyasint"`

	// Data is the unframed payload (may be truncated for large frames).
	Data []byte `cbor:"2,keyasint,omitempty"`

	// Truncated indicates if Data was truncated.
	Truncated bool `cbor:"3,keyasint,omitempty"`
}

// MessageEvent captures a decoded CoAP message.
type MessageEvent struct {
	// Type distinguishes request/response/notification.
	Type MessageType `cbor:"1,keyasint"`

	// MessageID is the CoAP message ID.
	MessageID uint16 `cbor:"2,keyasint"`

	// Code is the raw CoAP code (e.g. 0x01 GET, 0x45 2.05).
	Code uint8 `cbor:"3,keyasint"`

	// Token is the CoAP token.
	Token []byte `cbor:"4,keyasint,omitempty"`

	// Path is the Uri-Path joined with slashes (requests only).
	Path string `cbor:"5,keyasint,omitempty"`

	// Observe is the Observe option value, if present.
	Observe *uint32 `cbor:"6,keyasint,omitempty"`

	// ContentFormat is the Content-Format option value, if present.
	ContentFormat *uint16 `cbor:"7,keyasint,omitempty"`

	// Payload is the raw message payload.
	Payload []byte `cbor:"8,keyasint,omitempty"`

	// ProcessingTime is the duration from request receipt to response send (response only).
	// Stored as nanoseconds.
	ProcessingTime *time.Duration `cbor:"9,keyasint,omitempty"`
}

// MessageType distinguishes request/response/notification.
type MessageType uint8

const (
	// MessageTypeRequest indicates a request message.
	MessageTypeRequest MessageType = 0
	// MessageTypeResponse indicates a response message.
	MessageTypeResponse MessageType = 1
	// MessageTypeNotification indicates an Observe notification.
	MessageTypeNotification MessageType = 2
	// MessageTypeReset indicates a CoAP Reset.
	MessageTypeReset MessageType = 3
)

// String returns the message type name.
func (m MessageType) String() string {
	switch m {
	case MessageTypeRequest:
		return "REQUEST"
	case MessageTypeResponse:
		return "RESPONSE"
	case MessageTypeNotification:
		return "NOTIFICATION"
	case MessageTypeReset:
		return "RESET"
	default:
		return "UNKNOWN"
	}
}

// ObserveEvent captures an Observe registration or cancellation.
type ObserveEvent struct {
	// SensorID is the registry ID of the observed sensor.
	SensorID uint8 `cbor:"1,keyasint"`

	// ObserverID is the observer slot (1-based).
	ObserverID uint8 `cbor:"2,keyasint"`

	// Registered is true for a registration, false for a cancellation.
	Registered bool `cbor:"3,keyasint"`

	// Sequence is the Observe value of the registration response.
	Sequence uint32 `cbor:"4,keyasint,omitempty"`

	// Reason explains a cancellation.
	Reason string `cbor:"5,keyasint,omitempty"`
}

// StateChangeEvent captures service and link lifecycle events.
type StateChangeEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityService indicates a device service state change.
	StateEntityService StateEntity = 0
	// StateEntityLink indicates a transport link state change.
	StateEntityLink StateEntity = 1
	// StateEntitySensor indicates a sensor registry change.
	StateEntitySensor StateEntity = 2
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityService:
		return "SERVICE"
	case StateEntityLink:
		return "LINK"
	case StateEntitySensor:
		return "SENSOR"
	default:
		return "UNKNOWN"
	}
}

// ErrorEventData captures errors at any layer.
type ErrorEventData struct {
	// Layer where the error occurred.
	Layer Layer `cbor:"1,keyasint"`

	// Message is the error message.
	Message string `cbor:"2,keyasint"`

	// Code is the error code (if applicable).
	Code *int `cbor:"3,keyasint,omitempty"`

	// Context describes what operation was being performed.
	Context string `cbor:"4,keyasint,omitempty"`
}

// MaxFrameDataSize is the maximum frame data size kept in a FrameEvent.
const MaxFrameDataSize = 512

// NewFrameEvent returns a FrameEvent for a frame of size bytes on the wire
// carrying data, truncating data to MaxFrameDataSize.
func NewFrameEvent(size int, data []byte) *FrameEvent {
	fe := &FrameEvent{Size: size, Data: data}
	if len(data) > MaxFrameDataSize {
		fe.Data = data[:MaxFrameDataSize]
		fe.Truncated = true
	}
	return fe
}
