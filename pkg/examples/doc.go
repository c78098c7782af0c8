// Package examples provides simulated sensor drivers demonstrating how to
// plug sensors into the SAPI registry.
//
// Each driver implements every capability:
//   - Init: seeds the simulated value
//   - Read: returns the current value as text, e.g. "21.5"
//   - ReadConfig / WriteConfig: "key=value" pairs separated by ';'
//
// Available drivers:
//   - Temperature ("temp"): degrees Celsius
//   - Humidity ("humidity"): relative humidity in percent
//   - Light ("light"): illuminance in lux
//
// New creates a driver by kind, so a configuration file can list sensors by
// name.
package examples
