package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
)

// DriverStatusRecord is the dispatcher-facing view of one driver: declared
// availability, served zones and order load. The online flag is derived from
// the presence heartbeat in Redis, not stored here.
type DriverStatusRecord struct {
	DriverID          uuid.UUID                `gorm:"column:driver_id;type:uuid;primaryKey"`
	Availability      enums.DriverAvailability `gorm:"column:availability;type:text;not null;default:'paused'"`
	Zones             pq.StringArray           `gorm:"column:zones;type:text[]"`
	CurrentOrderCount int                      `gorm:"column:current_order_count;not null;default:0"`
	MaxOrdersCapacity int                      `gorm:"column:max_orders_capacity;not null;default:3"`
	LastSeenAt        *time.Time               `gorm:"column:last_seen_at"`
	UpdatedAt         time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}
