// Package service provides high-level orchestration for SAPI devices.
//
// DeviceService ties the lower-level components together:
//   - the sensor registry and its driver lifecycle
//   - the Observe table and the periodic notification scheduler
//   - the dispatcher chain (sensor dispatcher, then the legacy bridge)
//   - a single task loop on which every request and notification runs
//
// Transports hand requests to HandleRequest and relay CoAP Resets through
// Reset. Because all work is serialized on the task loop, a registry entry is
// never read and mutated in overlapping steps.
//
// Example usage:
//
//	svc, err := service.NewDeviceService(service.DefaultDeviceConfig())
//	svc.Register(sensor.Registration{DeviceType: "temp", Driver: drv, Frequency: 60})
//	svc.Start(ctx)
//	defer svc.Stop()
//
//	resp := svc.HandleRequest(ctx, req)
package service
