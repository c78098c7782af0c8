package service

import (
	"errors"
	"log/slog"
	"time"

	"github.com/plgd-dev/go-coap/v3/message/codes"

	"github.com/sapi-coap/sapi-go/pkg/interaction"
	"github.com/sapi-coap/sapi-go/pkg/log"
	"github.com/sapi-coap/sapi-go/pkg/sensor"
)

// Service errors.
var (
	ErrNotStarted     = errors.New("service not started")
	ErrAlreadyStarted = errors.New("service already started")
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrQueueFull      = errors.New("task queue full")
)

// ServiceState represents the service state.
type ServiceState uint8

const (
	// StateIdle - service created but not started.
	StateIdle ServiceState = iota

	// StateStarting - drivers are being initialized.
	StateStarting

	// StateRunning - service is running normally.
	StateRunning

	// StateStopping - service is shutting down.
	StateStopping

	// StateStopped - service has stopped. It cannot be restarted.
	StateStopped
)

// String returns the state name.
func (s ServiceState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// DeviceConfig configures a DeviceService.
type DeviceConfig struct {
	// MaxSensors is the registry capacity (default: sensor.MaxSensors).
	MaxSensors int

	// FrequencyUnit is the length of one scheduler frequency unit (default: 1s).
	FrequencyUnit time.Duration

	// QueueSize is the task loop queue length (default: 16).
	QueueSize int

	// Legacy is the optional fallback dispatcher for /arduino/<name>.
	// If nil, unknown resources are answered with 4.04 directly.
	Legacy *interaction.Legacy

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger

	// ProtocolLogger receives Observe and state events (optional).
	ProtocolLogger log.Logger
}

// DefaultDeviceConfig returns a DeviceConfig with sensible defaults.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		MaxSensors:    sensor.MaxSensors,
		FrequencyUnit: time.Second,
		QueueSize:     16,
	}
}

// Validate checks if the device config is valid.
func (c *DeviceConfig) Validate() error {
	if c.MaxSensors < 1 || c.MaxSensors > 255 {
		return ErrInvalidConfig
	}
	if c.FrequencyUnit <= 0 {
		return ErrInvalidConfig
	}
	if c.QueueSize < 1 {
		return ErrInvalidConfig
	}
	return nil
}

// EventType identifies a service event.
type EventType uint8

const (
	// EventStarted - the service is running.
	EventStarted EventType = iota

	// EventStopped - the service has stopped.
	EventStopped

	// EventRequestHandled - a request was answered.
	EventRequestHandled

	// EventNotificationSent - an Observe notification was delivered.
	EventNotificationSent

	// EventNotificationFailed - building or sending a notification failed.
	EventNotificationFailed

	// EventObserverRegistered - a client registered as observer.
	EventObserverRegistered

	// EventObserverCancelled - an Observe relationship ended.
	EventObserverCancelled
)

// String returns the event type name.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "STARTED"
	case EventStopped:
		return "STOPPED"
	case EventRequestHandled:
		return "REQUEST_HANDLED"
	case EventNotificationSent:
		return "NOTIFICATION_SENT"
	case EventNotificationFailed:
		return "NOTIFICATION_FAILED"
	case EventObserverRegistered:
		return "OBSERVER_REGISTERED"
	case EventObserverCancelled:
		return "OBSERVER_CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Event represents a service event.
type Event struct {
	// Type is the event type.
	Type EventType

	// DeviceType is the sensor the event refers to, if any.
	DeviceType string

	// SensorID is the registry ID of the sensor, if any.
	SensorID sensor.ID

	// Peer is the remote endpoint (request and observer events).
	Peer string

	// Path is the request path (request events).
	Path string

	// Code is the response code (request events).
	Code codes.Code

	// Sequence is the Observe sequence (registration events).
	Sequence uint32

	// Reason explains a cancellation.
	Reason string

	// Error is set if the event is an error.
	Error error
}

// EventHandler handles service events.
type EventHandler func(Event)
