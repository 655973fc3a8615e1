package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// OutboxDLQ stores outbox rows that exhausted their delivery attempts.
type OutboxDLQ struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	EventID      uuid.UUID       `gorm:"column:event_id;type:uuid;not null;uniqueIndex"`
	EventType    string          `gorm:"column:event_type;not null"`
	Payload      json.RawMessage `gorm:"column:payload;type:jsonb"`
	ErrorMessage *string         `gorm:"column:error_message"`
	AttemptCount int             `gorm:"column:attempt_count;not null;default:0"`
	FailedAt     time.Time       `gorm:"column:failed_at;autoCreateTime"`
}
