package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
)

// InventoryLogEntry is the append-only system of record for every
// quantity-changing event. Rows are immutable once written.
type InventoryLogEntry struct {
	ID             uuid.UUID                 `gorm:"column:id;type:uuid;primaryKey"`
	ProductID      uuid.UUID                 `gorm:"column:product_id;type:uuid;not null"`
	ChangeType     enums.InventoryChangeType `gorm:"column:change_type;type:text;not null"`
	QuantityChange int                       `gorm:"column:quantity_change;not null"`
	FromLocation   enums.StockLocation       `gorm:"column:from_location;type:text;not null"`
	ToLocation     enums.StockLocation       `gorm:"column:to_location;type:text;not null"`
	ReferenceID    *uuid.UUID                `gorm:"column:reference_id;type:uuid"`
	CreatedBy      uuid.UUID                 `gorm:"column:created_by;type:uuid;not null"`
	Metadata       json.RawMessage           `gorm:"column:metadata;type:jsonb"`
	CreatedAt      time.Time                 `gorm:"column:created_at;autoCreateTime"`
}
