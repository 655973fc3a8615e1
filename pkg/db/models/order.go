package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
)

// Order is a customer delivery order. Stock for its items is reserved when
// the order is created and consumed or released as the order progresses.
type Order struct {
	ID               uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Status           enums.OrderStatus `gorm:"column:status;type:text;not null;default:'new'"`
	CustomerName     string            `gorm:"column:customer_name;not null"`
	DeliveryAddress  string            `gorm:"column:delivery_address;not null"`
	TotalCents       int               `gorm:"column:total_cents;not null"`
	AssignedDriverID *uuid.UUID        `gorm:"column:assigned_driver_id;type:uuid"`
	CreatedBy        uuid.UUID         `gorm:"column:created_by;type:uuid;not null"`
	Notes            *string           `gorm:"column:notes"`
	Items            []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CancelledAt      *time.Time        `gorm:"column:cancelled_at"`
	DeliveredAt      *time.Time        `gorm:"column:delivered_at"`
	CreatedAt        time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
