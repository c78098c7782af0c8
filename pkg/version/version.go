// Package version provides the SAPI version, parsing and the startup banner.
package version

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Number is the SAPI version implemented by this library.
const Number = "1.0.0"

// Name prefixes the version in the startup banner.
const Name = "SAPI"

// Version represents a parsed "major.minor.patch" version.
type Version struct {
	Major uint16
	Minor uint16
	Patch uint16
}

// Parse parses a "major.minor.patch" version string.
func Parse(s string) (Version, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Version{}, fmt.Errorf("invalid version %q: expected major.minor.patch", s)
	}

	var nums [3]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil || p == "" {
			return Version{}, fmt.Errorf("invalid version %q: bad component %q", s, p)
		}
		nums[i] = uint16(n)
	}
	return Version{Major: nums[0], Minor: nums[1], Patch: nums[2]}, nil
}

// Current returns the parsed Number.
func Current() Version {
	v, _ := Parse(Number)
	return v
}

// String returns the version as "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compatible returns true if the other version has the same major version.
func (v Version) Compatible(other Version) bool {
	return v.Major == other.Major
}

// String returns the banner text, e.g. "SAPI: 1.0.0".
func String() string {
	return Name + ": " + Number
}

// Banner logs the startup banner with the registered device types.
func Banner(logger *slog.Logger, deviceTypes []string) {
	if logger == nil {
		return
	}
	logger.Info(String(), "version", Number, "sensors", deviceTypes)
}
