// Package interaction implements the SAPI request path.
//
// A CoAP request passes through an ordered Chain of Handlers. The primary
// handler is the Dispatcher, which resolves the URI leaf against the sensor
// registry; requests it does not recognize fall through to the Legacy bridge,
// and requests nobody claims are answered with 4.04 Not Found:
//
//	disp := interaction.NewDispatcher(registry, observers, interaction.NewBuilder(), logger)
//	legacy := interaction.NewLegacy(interaction.LegacyBase)
//	chain := interaction.NewChain(disp, legacy)
//
//	resp := chain.Dispatch(ctx, req)
//
// # Resources
//
// For a sensor registered as "temp":
//
//	GET /temp                 read, reply 2.05 with {0:"temp",1:<reading>}
//	GET /temp   Observe: 0    register observer, reply 2.05 + Observe + Max-Age
//	GET /temp   Observe: 1    deregister, reply 2.05
//	GET /temp/config          read config, reply 2.05 with {0:"temp",1:<config>}
//	PUT /temp/config          write config, reply 2.04
//
// Only the leaf matters; /sensor/arduino/temp routes the same as /temp.
//
// # Notifications
//
// The Notifier builds Observe notifications with the same Builder used for
// GET, so a notification and a GET for an unchanged sensor carry identical
// bytes.
package interaction
