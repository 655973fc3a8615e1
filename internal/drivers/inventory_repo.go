package drivers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
)

// InventoryRepository manages the per-driver stock holdings. Decrements are
// guarded so a driver's quantity can never go negative.
type InventoryRepository interface {
	WithTx(tx *gorm.DB) InventoryRepository
	IncrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error
	DecrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error
	Holdings(ctx context.Context, driverID uuid.UUID) ([]models.DriverInventoryRecord, error)
	Holding(ctx context.Context, driverID, productID uuid.UUID) (*models.DriverInventoryRecord, error)
}

type inventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository returns a driver inventory repository bound to the
// provided database.
func NewInventoryRepository(db *gorm.DB) InventoryRepository {
	return &inventoryRepository{db: db}
}

func (r *inventoryRepository) WithTx(tx *gorm.DB) InventoryRepository {
	if tx == nil {
		return r
	}
	return &inventoryRepository{db: tx}
}

func (r *inventoryRepository) IncrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	db := r.db
	if tx != nil {
		db = tx
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "driver_id"}, {Name: "product_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"qty": gorm.Expr("qty + ?", qty),
		}),
	}).Create(&models.DriverInventoryRecord{
		DriverID:  driverID,
		ProductID: productID,
		Qty:       qty,
	}).Error
}

func (r *inventoryRepository) DecrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	db := r.db
	if tx != nil {
		db = tx
	}
	result := db.WithContext(ctx).Model(&models.DriverInventoryRecord{}).
		Where("driver_id = ? AND product_id = ? AND qty >= ?", driverID, productID, qty).
		Update("qty", gorm.Expr("qty - ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "driver does not hold enough stock")
	}
	return nil
}

func (r *inventoryRepository) Holdings(ctx context.Context, driverID uuid.UUID) ([]models.DriverInventoryRecord, error) {
	var records []models.DriverInventoryRecord
	if err := r.db.WithContext(ctx).
		Where("driver_id = ?", driverID).
		Order("product_id ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *inventoryRepository) Holding(ctx context.Context, driverID, productID uuid.UUID) (*models.DriverInventoryRecord, error) {
	var record models.DriverInventoryRecord
	err := r.db.WithContext(ctx).
		Where("driver_id = ? AND product_id = ?", driverID, productID).
		First(&record).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "driver holding not found")
		}
		return nil, err
	}
	return &record, nil
}
