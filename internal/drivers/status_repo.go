package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
)

// StatusRepository manages dispatcher-facing driver state. Order-count
// mutations are guarded conditional updates so capacity can never be
// overcommitted.
type StatusRepository interface {
	WithTx(tx *gorm.DB) StatusRepository
	Get(ctx context.Context, driverID uuid.UUID) (*models.DriverStatusRecord, error)
	Upsert(ctx context.Context, record *models.DriverStatusRecord) error
	SetAvailability(ctx context.Context, driverID uuid.UUID, availability enums.DriverAvailability, zones pq.StringArray, maxCapacity int) error
	IncrementOrderCount(ctx context.Context, driverID uuid.UUID) error
	DecrementOrderCount(ctx context.Context, driverID uuid.UUID) error
	TouchLastSeen(ctx context.Context, driverID uuid.UUID, at time.Time) error
	ListAvailable(ctx context.Context) ([]models.DriverStatusRecord, error)
}

type statusRepository struct {
	db *gorm.DB
}

// NewStatusRepository returns a driver status repository bound to the
// provided database.
func NewStatusRepository(db *gorm.DB) StatusRepository {
	return &statusRepository{db: db}
}

func (r *statusRepository) WithTx(tx *gorm.DB) StatusRepository {
	if tx == nil {
		return r
	}
	return &statusRepository{db: tx}
}

func (r *statusRepository) Get(ctx context.Context, driverID uuid.UUID) (*models.DriverStatusRecord, error) {
	var record models.DriverStatusRecord
	err := r.db.WithContext(ctx).Where("driver_id = ?", driverID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver status not found")
		}
		return nil, err
	}
	return &record, nil
}

func (r *statusRepository) Upsert(ctx context.Context, record *models.DriverStatusRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "driver_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"availability", "zones", "max_orders_capacity", "updated_at",
		}),
	}).Create(record).Error
}

func (r *statusRepository) SetAvailability(ctx context.Context, driverID uuid.UUID, availability enums.DriverAvailability, zones pq.StringArray, maxCapacity int) error {
	record := &models.DriverStatusRecord{
		DriverID:          driverID,
		Availability:      availability,
		Zones:             zones,
		MaxOrdersCapacity: maxCapacity,
	}
	return r.Upsert(ctx, record)
}

// IncrementOrderCount claims one slot of the driver's capacity. Zero rows
// affected means the driver is already at capacity.
func (r *statusRepository) IncrementOrderCount(ctx context.Context, driverID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.DriverStatusRecord{}).
		Where("driver_id = ? AND current_order_count < max_orders_capacity", driverID).
		Update("current_order_count", gorm.Expr("current_order_count + 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.DriverStatusRecord{}).
			Where("driver_id = ?", driverID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "driver status not found")
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "driver is at order capacity")
	}
	return nil
}

func (r *statusRepository) DecrementOrderCount(ctx context.Context, driverID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.DriverStatusRecord{}).
		Where("driver_id = ? AND current_order_count > 0", driverID).
		Update("current_order_count", gorm.Expr("current_order_count - 1"))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeConflict, "driver has no active orders to release")
	}
	return nil
}

func (r *statusRepository) TouchLastSeen(ctx context.Context, driverID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.DriverStatusRecord{}).
		Where("driver_id = ?", driverID).
		Update("last_seen_at", at).Error
}

func (r *statusRepository) ListAvailable(ctx context.Context) ([]models.DriverStatusRecord, error) {
	var records []models.DriverStatusRecord
	if err := r.db.WithContext(ctx).
		Where("availability = ? AND current_order_count < max_orders_capacity", enums.DriverAvailable).
		Order("last_seen_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}
