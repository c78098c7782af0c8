// Package sensor implements the SAPI sensor registry.
//
// The registry is a fixed-capacity arena of sensor entries indexed by small
// integer IDs. Entries are registered once at startup, before the device
// begins serving CoAP requests, and live for the rest of the process:
//
//	reg := sensor.NewRegistry(sensor.MaxSensors)
//	id, err := reg.Register(sensor.Registration{
//	    DeviceType: "temp",
//	    Driver:     examples.NewTemperature(),
//	    Frequency:  60,
//	})
//	...
//	err = reg.Init(ctx) // calls driver Init hooks and seals the table
//
// # Driver Capabilities
//
// Every sensor driver must implement Driver (Read). Init, ReadConfig and
// WriteConfig are optional: a driver opts in by implementing Initializer,
// ConfigReader or ConfigWriter.
//
// # Routing Key
//
// The device type doubles as the URI leaf of the sensor resource and as the
// type tag of its envelope, so it is unique, at most 20 bytes long and may
// not contain a path separator.
package sensor
