// Package sensortest provides in-memory sensor drivers for tests.
package sensortest

import (
	"context"
	"sync"
)

// Driver is a programmable sensor driver implementing every capability.
// The zero value reads an empty payload.
type Driver struct {
	mu sync.Mutex

	value     []byte
	config    []byte
	readErr   error
	configErr error
	writeErr  error
	initErr   error

	reads  int
	inits  int
	writes [][]byte
	closed bool
}

// New creates a driver that reads value.
func New(value string) *Driver {
	return &Driver{value: []byte(value)}
}

// SetValue changes the value returned by Read.
func (d *Driver) SetValue(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.value = []byte(v)
}

// SetConfig changes the value returned by ReadConfig.
func (d *Driver) SetConfig(v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config = []byte(v)
}

// FailRead makes Read return err (nil clears it).
func (d *Driver) FailRead(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readErr = err
}

// FailReadConfig makes ReadConfig return err (nil clears it).
func (d *Driver) FailReadConfig(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.configErr = err
}

// FailWrite makes WriteConfig return err (nil clears it).
func (d *Driver) FailWrite(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writeErr = err
}

// FailInit makes Init return err (nil clears it).
func (d *Driver) FailInit(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initErr = err
}

// Init implements sensor.Initializer.
func (d *Driver) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inits++
	return d.initErr
}

// Read implements sensor.Driver.
func (d *Driver) Read(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reads++
	if d.readErr != nil {
		return nil, d.readErr
	}
	return append([]byte(nil), d.value...), nil
}

// ReadConfig implements sensor.ConfigReader.
func (d *Driver) ReadConfig(ctx context.Context) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.configErr != nil {
		return nil, d.configErr
	}
	return append([]byte(nil), d.config...), nil
}

// WriteConfig implements sensor.ConfigWriter. A successful write replaces
// the config returned by ReadConfig.
func (d *Driver) WriteConfig(ctx context.Context, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, append([]byte(nil), data...))
	if d.writeErr != nil {
		return d.writeErr
	}
	d.config = append([]byte(nil), data...)
	return nil
}

// Close implements io.Closer.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// Reads returns the number of Read calls.
func (d *Driver) Reads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reads
}

// Inits returns the number of Init calls.
func (d *Driver) Inits() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inits
}

// Writes returns the payloads passed to WriteConfig.
func (d *Driver) Writes() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.writes))
	copy(out, d.writes)
	return out
}

// Closed reports whether Close was called.
func (d *Driver) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// ReadOnly is a driver with only the mandatory Read capability.
type ReadOnly struct {
	Value []byte
}

// Read implements sensor.Driver.
func (r ReadOnly) Read(ctx context.Context) ([]byte, error) {
	return r.Value, nil
}
