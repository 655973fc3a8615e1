package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
)

// RestockRequest is a replenishment request moving through the
// pending -> approved -> fulfilled (or pending -> rejected) state machine.
type RestockRequest struct {
	ID           uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	ProductID    uuid.UUID           `gorm:"column:product_id;type:uuid;not null"`
	RequestedQty int                 `gorm:"column:requested_qty;not null"`
	Status       enums.RestockStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	RequestedBy  uuid.UUID           `gorm:"column:requested_by;type:uuid;not null"`
	ApprovedBy   *uuid.UUID          `gorm:"column:approved_by;type:uuid"`
	ApprovedQty  *int                `gorm:"column:approved_qty"`
	FulfilledBy  *uuid.UUID          `gorm:"column:fulfilled_by;type:uuid"`
	FulfilledQty *int                `gorm:"column:fulfilled_qty"`
	Notes        *string             `gorm:"column:notes"`
	CreatedAt    time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
