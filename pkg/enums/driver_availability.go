package enums

import "fmt"

// DriverAvailability is the self-reported availability of a driver.
type DriverAvailability string

const (
	DriverAvailable  DriverAvailability = "available"
	DriverOnDelivery DriverAvailability = "on_delivery"
	DriverPaused     DriverAvailability = "paused"
)

var validDriverAvailabilities = []DriverAvailability{
	DriverAvailable,
	DriverOnDelivery,
	DriverPaused,
}

// String implements fmt.Stringer.
func (a DriverAvailability) String() string {
	return string(a)
}

// IsValid reports whether the value is a known DriverAvailability.
func (a DriverAvailability) IsValid() bool {
	for _, candidate := range validDriverAvailabilities {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseDriverAvailability converts raw input into a DriverAvailability.
func ParseDriverAvailability(value string) (DriverAvailability, error) {
	for _, candidate := range validDriverAvailabilities {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid driver availability %q", value)
}
