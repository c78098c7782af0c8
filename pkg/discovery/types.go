package discovery

import (
	"errors"
	"time"
)

// Service and domain names.
const (
	// ServiceType is the DNS-SD service type for CoAP over UDP.
	ServiceType = "_coap._udp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultPort is the standard CoAP port.
	DefaultPort = 5683

	// MaxInstanceNameLen is the longest instance name (one DNS label).
	MaxInstanceNameLen = 63

	// BrowseTimeout is the default duration of a browse.
	BrowseTimeout = 3 * time.Second
)

// TXT record keys.
const (
	TXTKeyResourceTypes = "rt"
	TXTKeyVersion       = "ver"
	TXTKeyName          = "name"
)

// Errors.
var (
	// ErrMissingRequired indicates a required TXT key is absent.
	ErrMissingRequired = errors.New("missing required TXT record")

	// ErrNotAdvertising is returned by Update before Advertise.
	ErrNotAdvertising = errors.New("not advertising")
)

// DeviceInfo describes what a device advertises.
type DeviceInfo struct {
	// Instance is the service instance name. Truncated to MaxInstanceNameLen.
	Instance string

	// Name is an optional human readable name.
	Name string

	// Port is the CoAP UDP port (default 5683).
	Port int

	// DeviceTypes lists the registered sensors.
	DeviceTypes []string

	// Version is the SAPI version.
	Version string
}

// Service is a device found while browsing.
type Service struct {
	Instance  string
	Host      string
	Port      int
	Addresses []string
	DeviceInfo
}
