package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MarketplaceListing offers one order to eligible drivers for a bounded time.
// AssignedDriverID is set by exactly one winning conditional update; once it
// is non-null, IsActive must be false.
type MarketplaceListing struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	IsActive         bool            `gorm:"column:is_active;not null;default:true"`
	AssignedDriverID *uuid.UUID      `gorm:"column:assigned_driver_id;type:uuid"`
	DriverEarnings   decimal.Decimal `gorm:"column:driver_earnings;type:numeric(10,2);not null"`
	ExpiresAt        time.Time       `gorm:"column:expires_at;not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
