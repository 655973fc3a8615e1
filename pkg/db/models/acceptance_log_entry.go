package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
)

// AcceptanceLogEntry is the immutable record of one accept/decline attempt
// against a listing, including the driver's state at attempt time for audit
// and dispute resolution.
type AcceptanceLogEntry struct {
	ID               uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ListingID        uuid.UUID                `gorm:"column:listing_id;type:uuid;not null"`
	OrderID          uuid.UUID                `gorm:"column:order_id;type:uuid;not null"`
	DriverID         uuid.UUID                `gorm:"column:driver_id;type:uuid;not null"`
	Decision         enums.AcceptanceDecision `gorm:"column:decision;type:text;not null"`
	Reason           *string                  `gorm:"column:reason"`
	DriverZone       *string                  `gorm:"column:driver_zone"`
	DriverOrderCount int                      `gorm:"column:driver_order_count;not null;default:0"`
	DriverSnapshot   json.RawMessage          `gorm:"column:driver_snapshot;type:jsonb"`
	CreatedAt        time.Time                `gorm:"column:created_at;autoCreateTime"`
}
