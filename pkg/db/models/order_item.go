package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderItem snapshots one product line within an order.
type OrderItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int       `gorm:"column:unit_price_cents;not null"`
	TotalCents     int       `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
