package sensor

import (
	"context"
	"errors"
	"fmt"
)

// ErrSensor matches every error raised by a sensor driver callback.
var ErrSensor = errors.New("sensor error")

// Driver is the mandatory capability of a sensor driver.
// Read returns the sensor's current value in the driver's own format.
type Driver interface {
	Read(ctx context.Context) ([]byte, error)
}

// Initializer is implemented by drivers that need one-time setup.
type Initializer interface {
	Init(ctx context.Context) error
}

// ConfigReader is implemented by drivers with a readable configuration.
type ConfigReader interface {
	ReadConfig(ctx context.Context) ([]byte, error)
}

// ConfigWriter is implemented by drivers with a writable configuration.
type ConfigWriter interface {
	WriteConfig(ctx context.Context, data []byte) error
}

// Op names a driver capability.
type Op uint8

const (
	OpInit Op = iota
	OpRead
	OpReadConfig
	OpWriteConfig
)

// String returns the capability name.
func (o Op) String() string {
	switch o {
	case OpInit:
		return "init"
	case OpRead:
		return "read"
	case OpReadConfig:
		return "read_config"
	case OpWriteConfig:
		return "write_config"
	default:
		return "unknown"
	}
}

// DriverError reports a failed driver callback.
type DriverError struct {
	DeviceType string
	Op         Op
	Err        error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("sensor %q: %s failed: %v", e.DeviceType, e.Op, e.Err)
}

func (e *DriverError) Unwrap() error { return e.Err }

// Is reports ErrSensor as a match so callers can classify driver failures.
func (e *DriverError) Is(target error) bool { return target == ErrSensor }

// wrapDriverErr wraps err in a DriverError unless it is nil.
func wrapDriverErr(deviceType string, op Op, err error) error {
	if err == nil {
		return nil
	}
	return &DriverError{DeviceType: deviceType, Op: op, Err: err}
}
