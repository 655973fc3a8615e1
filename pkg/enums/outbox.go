package enums

// OutboxEventType identifies a domain event queued in the outbox table.
type OutboxEventType string

const (
	EventInventoryChanged  OutboxEventType = "inventory.changed"
	EventInventoryLowStock OutboxEventType = "inventory.low_stock"
	EventOrderCreated      OutboxEventType = "order.created"
	EventOrderCancelled    OutboxEventType = "order.cancelled"
	EventOrderStatusMoved  OutboxEventType = "order.status_changed"
	EventRestockSubmitted  OutboxEventType = "restock.submitted"
	EventRestockApproved   OutboxEventType = "restock.approved"
	EventRestockFulfilled  OutboxEventType = "restock.fulfilled"
	EventRestockRejected   OutboxEventType = "restock.rejected"
	EventListingPublished  OutboxEventType = "listing.published"
	EventListingAccepted   OutboxEventType = "listing.accepted"
	EventListingDeclined   OutboxEventType = "listing.declined"
)

var validOutboxEventTypes = []OutboxEventType{
	EventInventoryChanged,
	EventInventoryLowStock,
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderStatusMoved,
	EventRestockSubmitted,
	EventRestockApproved,
	EventRestockFulfilled,
	EventRestockRejected,
	EventListingPublished,
	EventListingAccepted,
	EventListingDeclined,
}

// IsValid reports whether the value is a known OutboxEventType.
func (t OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// OutboxAggregateType names the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	AggregateProduct        OutboxAggregateType = "product"
	AggregateOrder          OutboxAggregateType = "order"
	AggregateRestockRequest OutboxAggregateType = "restock_request"
	AggregateListing        OutboxAggregateType = "listing"
)

// IsValid reports whether the value is a known OutboxAggregateType.
func (t OutboxAggregateType) IsValid() bool {
	switch t {
	case AggregateProduct, AggregateOrder, AggregateRestockRequest, AggregateListing:
		return true
	}
	return false
}
