package models

import (
	"time"

	"github.com/google/uuid"
)

// DriverInventoryRecord tracks the stock a driver physically carries, one row
// per driver and product. Qty must never go negative.
type DriverInventoryRecord struct {
	DriverID  uuid.UUID `gorm:"column:driver_id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	Qty       int       `gorm:"column:qty;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
