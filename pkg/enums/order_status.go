package enums

import "fmt"

// OrderStatus tracks the lifecycle of a delivery order.
type OrderStatus string

const (
	OrderStatusNew            OrderStatus = "new"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusPreparing      OrderStatus = "preparing"
	OrderStatusReady          OrderStatus = "ready"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusNew,
	OrderStatusConfirmed,
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// orderStatusSuccessors holds the forward edge of the status chain.
var orderStatusSuccessors = map[OrderStatus]OrderStatus{
	OrderStatusNew:            OrderStatusConfirmed,
	OrderStatusConfirmed:      OrderStatusPreparing,
	OrderStatusPreparing:      OrderStatusReady,
	OrderStatusReady:          OrderStatusOutForDelivery,
	OrderStatusOutForDelivery: OrderStatusDelivered,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition is allowed.
func (o OrderStatus) IsTerminal() bool {
	return o == OrderStatusDelivered || o == OrderStatusCancelled
}

// CanTransitionTo reports whether the forward chain (or a cancellation before
// delivery) permits moving from o to next.
func (o OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !next.IsValid() || o.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return true
	}
	return orderStatusSuccessors[o] == next
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}
