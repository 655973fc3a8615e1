package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a sellable item. StockQuantity is a denormalized read-model
// column (central + reserved + all driver holdings) refreshed after every
// ledger mutation; the authoritative counts live in InventoryRecord and
// DriverInventoryRecord.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	Category      string    `gorm:"column:category;not null"`
	PriceCents    int       `gorm:"column:price_cents;not null"`
	StockQuantity int       `gorm:"column:stock_quantity;not null;default:0"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
