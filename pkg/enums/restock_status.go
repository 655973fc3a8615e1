package enums

import "fmt"

// RestockStatus tracks the lifecycle of a replenishment request.
type RestockStatus string

const (
	RestockStatusPending   RestockStatus = "pending"
	RestockStatusApproved  RestockStatus = "approved"
	RestockStatusFulfilled RestockStatus = "fulfilled"
	RestockStatusRejected  RestockStatus = "rejected"
)

var validRestockStatuses = []RestockStatus{
	RestockStatusPending,
	RestockStatusApproved,
	RestockStatusFulfilled,
	RestockStatusRejected,
}

var restockTransitions = map[RestockStatus][]RestockStatus{
	RestockStatusPending:  {RestockStatusApproved, RestockStatusRejected},
	RestockStatusApproved: {RestockStatusFulfilled},
}

// String implements fmt.Stringer.
func (s RestockStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known RestockStatus.
func (s RestockStatus) IsValid() bool {
	for _, candidate := range validRestockStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the request can no longer transition.
func (s RestockStatus) IsTerminal() bool {
	return s == RestockStatusFulfilled || s == RestockStatusRejected
}

// CanTransitionTo reports whether the state machine permits s -> next.
func (s RestockStatus) CanTransitionTo(next RestockStatus) bool {
	for _, candidate := range restockTransitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseRestockStatus converts raw input into a RestockStatus.
func ParseRestockStatus(value string) (RestockStatus, error) {
	for _, candidate := range validRestockStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid restock status %q", value)
}
