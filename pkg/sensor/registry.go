package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/sapi-coap/sapi-go/pkg/wire"
)

// MaxSensors is the number of sensors the device can register.
const MaxSensors = 4

// ConfigSegment is the URI segment addressing a sensor's config sub-resource.
// It is reserved and cannot be used as a device type.
const ConfigSegment = "config"

// Registry errors.
var (
	ErrCapacity          = errors.New("sensor registry full")
	ErrDuplicate         = errors.New("duplicate device type")
	ErrNotFound          = errors.New("sensor not found")
	ErrInvalidDeviceType = errors.New("invalid device type")
	ErrNoDriver          = errors.New("sensor driver missing")
	ErrSealed            = errors.New("sensor registry sealed")
	ErrClosed            = errors.New("sensor registry closed")
	ErrNotSupported      = errors.New("capability not supported by driver")
)

// ID identifies a registered sensor. IDs are dense, starting at 0.
type ID uint8

// Registration describes a sensor to register.
type Registration struct {
	// DeviceType is the URI leaf and envelope type tag, e.g. "temp".
	DeviceType string

	// Driver provides the sensor capabilities.
	Driver Driver

	// Frequency is the observation polling period in seconds (0 = not polled).
	Frequency uint32
}

// Entry is a snapshot of a registered sensor.
type Entry struct {
	ID         ID
	DeviceType string
	Driver     Driver
	Frequency  uint32

	// Observer is set while a CoAP Observe relationship is active.
	Observer bool

	// ObserverID is the observer slot, valid only if Observer is set.
	ObserverID uint8
}

// Interval returns the polling period, or zero if the sensor is not polled.
func (e Entry) Interval() time.Duration {
	return time.Duration(e.Frequency) * time.Second
}

// Read invokes the driver's Read capability.
func (e Entry) Read(ctx context.Context) ([]byte, error) {
	data, err := e.Driver.Read(ctx)
	if err != nil {
		return nil, wrapDriverErr(e.DeviceType, OpRead, err)
	}
	return data, nil
}

// ReadConfig invokes the driver's ReadConfig capability.
// Returns ErrNotSupported if the driver has none.
func (e Entry) ReadConfig(ctx context.Context) ([]byte, error) {
	r, ok := e.Driver.(ConfigReader)
	if !ok {
		return nil, ErrNotSupported
	}
	data, err := r.ReadConfig(ctx)
	if err != nil {
		return nil, wrapDriverErr(e.DeviceType, OpReadConfig, err)
	}
	return data, nil
}

// WriteConfig invokes the driver's WriteConfig capability.
// Returns ErrNotSupported if the driver has none.
func (e Entry) WriteConfig(ctx context.Context, data []byte) error {
	w, ok := e.Driver.(ConfigWriter)
	if !ok {
		return ErrNotSupported
	}
	return wrapDriverErr(e.DeviceType, OpWriteConfig, w.WriteConfig(ctx, data))
}

// Registry is the fixed-capacity sensor table.
type Registry struct {
	mu sync.RWMutex

	capacity int
	entries  []Entry
	sealed   bool
	closed   bool
}

// NewRegistry creates an empty registry. A capacity of zero or less, or above
// MaxSensors, is clamped to MaxSensors.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 || capacity > MaxSensors {
		capacity = MaxSensors
	}
	return &Registry{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
	}
}

// ValidateDeviceType checks that a device type can serve as a URI leaf.
func ValidateDeviceType(deviceType string) error {
	switch {
	case deviceType == "":
		return fmt.Errorf("%w: empty", ErrInvalidDeviceType)
	case len(deviceType) > wire.MaxDeviceTypeLen:
		return fmt.Errorf("%w: %q longer than %d bytes", ErrInvalidDeviceType, deviceType, wire.MaxDeviceTypeLen)
	case strings.ContainsRune(deviceType, '/'):
		return fmt.Errorf("%w: %q contains '/'", ErrInvalidDeviceType, deviceType)
	case deviceType == ConfigSegment:
		return fmt.Errorf("%w: %q is reserved", ErrInvalidDeviceType, deviceType)
	}
	return nil
}

// Register adds a sensor and returns its ID.
// On error the registry is left unchanged.
func (r *Registry) Register(reg Registration) (ID, error) {
	if err := ValidateDeviceType(reg.DeviceType); err != nil {
		return 0, err
	}
	if reg.Driver == nil {
		return 0, fmt.Errorf("%w: %q", ErrNoDriver, reg.DeviceType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.closed:
		return 0, ErrClosed
	case r.sealed:
		return 0, ErrSealed
	}

	for i := range r.entries {
		if r.entries[i].DeviceType == reg.DeviceType {
			return 0, fmt.Errorf("%w: %q", ErrDuplicate, reg.DeviceType)
		}
	}
	if len(r.entries) >= r.capacity {
		return 0, fmt.Errorf("%w: capacity %d", ErrCapacity, r.capacity)
	}

	id := ID(len(r.entries))
	r.entries = append(r.entries, Entry{
		ID:         id,
		DeviceType: reg.DeviceType,
		Driver:     reg.Driver,
		Frequency:  reg.Frequency,
	})
	return id, nil
}

// LookupByURI resolves a URI leaf to a sensor ID by exact, case-sensitive match.
func (r *Registry) LookupByURI(leaf string) (ID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.entries {
		if r.entries[i].DeviceType == leaf {
			return r.entries[i].ID, nil
		}
	}
	return 0, ErrNotFound
}

// Get returns a snapshot of the sensor entry.
func (r *Registry) Get(id ID) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if int(id) >= len(r.entries) {
		return Entry{}, ErrNotFound
	}
	return r.entries[id], nil
}

// Count returns the number of registered sensors.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Capacity returns the maximum number of sensors.
func (r *Registry) Capacity() int {
	return r.capacity
}

// Entries returns snapshots of all sensors in registration order.
func (r *Registry) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// DeviceTypes returns all registered device types in registration order.
func (r *Registry) DeviceTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, len(r.entries))
	for i := range r.entries {
		out[i] = r.entries[i].DeviceType
	}
	return out
}

// Init runs every driver's Init hook once and seals the registry against
// further registration. The first failure aborts initialization.
func (r *Registry) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrClosed
	}
	if r.sealed {
		return nil
	}

	for _, e := range r.entries {
		in, ok := e.Driver.(Initializer)
		if !ok {
			continue
		}
		if err := in.Init(ctx); err != nil {
			return wrapDriverErr(e.DeviceType, OpInit, err)
		}
	}
	r.sealed = true
	return nil
}

// Sealed reports whether Init has completed.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// SetObserver records an active Observe relationship for the sensor.
func (r *Registry) SetObserver(id ID, observerID uint8) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.entries) {
		return ErrNotFound
	}
	r.entries[id].Observer = true
	r.entries[id].ObserverID = observerID
	return nil
}

// ClearObserver ends the sensor's Observe relationship and returns the
// released observer ID. ok is false if no observer was active.
func (r *Registry) ClearObserver(id ID) (observerID uint8, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if int(id) >= len(r.entries) || !r.entries[id].Observer {
		return 0, false
	}
	observerID = r.entries[id].ObserverID
	r.entries[id].Observer = false
	r.entries[id].ObserverID = 0
	return observerID, true
}

// Close tears down the registry. Drivers implementing io.Closer are closed;
// all errors are joined.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}

	var errs []error
	for _, e := range r.entries {
		if c, ok := e.Driver.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close %q: %w", e.DeviceType, err))
			}
		}
	}
	r.entries = nil
	r.closed = true
	return errors.Join(errs...)
}
