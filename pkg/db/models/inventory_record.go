package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryRecord is the authoritative per-product stock state at the central
// warehouse. CentralQty and ReservedQty must never go negative; mutations run
// as guarded conditional updates.
type InventoryRecord struct {
	ProductID         uuid.UUID `gorm:"column:product_id;type:uuid;primaryKey"`
	CentralQty        int       `gorm:"column:central_qty;not null;default:0"`
	ReservedQty       int       `gorm:"column:reserved_qty;not null;default:0"`
	LowStockThreshold int       `gorm:"column:low_stock_threshold;not null;default:0"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
