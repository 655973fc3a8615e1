package enums

import "fmt"

// AcceptanceDecision records how a driver responded to a listing.
type AcceptanceDecision string

const (
	AcceptanceAccepted AcceptanceDecision = "accepted"
	AcceptanceDeclined AcceptanceDecision = "declined"
)

// IsValid reports whether the value is a known AcceptanceDecision.
func (d AcceptanceDecision) IsValid() bool {
	return d == AcceptanceAccepted || d == AcceptanceDeclined
}

// ParseAcceptanceDecision converts raw input into an AcceptanceDecision.
func ParseAcceptanceDecision(value string) (AcceptanceDecision, error) {
	switch AcceptanceDecision(value) {
	case AcceptanceAccepted:
		return AcceptanceAccepted, nil
	case AcceptanceDeclined:
		return AcceptanceDeclined, nil
	}
	return "", fmt.Errorf("invalid acceptance decision %q", value)
}
