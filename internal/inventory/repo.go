package inventory

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// RecordList is one page of inventory records.
type RecordList struct {
	Records    []models.InventoryRecord
	NextCursor string
	HasMore    bool
}

// Repository manages the authoritative per-product stock counters. Every
// mutation is a guarded conditional update; a guard that matches zero rows
// means the invariant would have been violated and nothing was changed.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	GetRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error)
	EnsureRecord(ctx context.Context, productID uuid.UUID) error
	Reserve(ctx context.Context, productID uuid.UUID, qty int) error
	ReleaseToCentral(ctx context.Context, productID uuid.UUID, qty int) error
	ConsumeReserved(ctx context.Context, productID uuid.UUID, qty int) error
	AdjustCentral(ctx context.Context, productID uuid.UUID, delta int) error
	AdjustReserved(ctx context.Context, productID uuid.UUID, delta int) error
	AdjustReservedClamped(ctx context.Context, productID uuid.UUID, delta int) error
	DecrementCentral(ctx context.Context, productID uuid.UUID, qty int) error
	SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int) error
	List(ctx context.Context, params pagination.Params) (*RecordList, error)
	ListLowStock(ctx context.Context) ([]models.InventoryRecord, error)
	RecomputeCachedStock(ctx context.Context, productID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) GetRecord(ctx context.Context, productID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
		}
		return nil, err
	}
	return &record, nil
}

func (r *repository) EnsureRecord(ctx context.Context, productID uuid.UUID) error {
	record := models.InventoryRecord{ProductID: productID}
	err := r.db.WithContext(ctx).Where("product_id = ?", productID).FirstOrCreate(&record).Error
	return err
}

// Reserve moves qty from central into reserved in one guarded update.
func (r *repository) Reserve(ctx context.Context, productID uuid.UUID, qty int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND central_qty >= ?", productID, qty).
		Updates(map[string]any{
			"central_qty":  gorm.Expr("central_qty - ?", qty),
			"reserved_qty": gorm.Expr("reserved_qty + ?", qty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, productID, pkgerrors.CodeInsufficientStock, "not enough central stock to reserve")
	}
	return nil
}

// ReleaseToCentral moves qty back from reserved into central.
func (r *repository) ReleaseToCentral(ctx context.Context, productID uuid.UUID, qty int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		Updates(map[string]any{
			"central_qty":  gorm.Expr("central_qty + ?", qty),
			"reserved_qty": gorm.Expr("reserved_qty - ?", qty),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, productID, pkgerrors.CodeInvalidQuantity, "not enough reserved stock to release")
	}
	return nil
}

// ConsumeReserved removes qty from reserved without returning it to central.
func (r *repository) ConsumeReserved(ctx context.Context, productID uuid.UUID, qty int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_qty >= ?", productID, qty).
		Update("reserved_qty", gorm.Expr("reserved_qty - ?", qty))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, productID, pkgerrors.CodeInvalidQuantity, "not enough reserved stock to consume")
	}
	return nil
}

// AdjustCentral applies a signed delta to central stock; the guard rejects a
// delta that would take the counter negative.
func (r *repository) AdjustCentral(ctx context.Context, productID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND central_qty + ? >= 0", productID, delta).
		Update("central_qty", gorm.Expr("central_qty + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, productID, pkgerrors.CodeInsufficientStock, "central stock cannot go negative")
	}
	return nil
}

// AdjustReserved applies a signed delta to reserved stock with the same
// non-negative guard.
func (r *repository) AdjustReserved(ctx context.Context, productID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ? AND reserved_qty + ? >= 0", productID, delta).
		Update("reserved_qty", gorm.Expr("reserved_qty + ?", delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.guardFailure(ctx, productID, pkgerrors.CodeInvalidQuantity, "reserved stock cannot go negative")
	}
	return nil
}

// AdjustReservedClamped applies a signed delta to reserved stock, flooring the
// result at zero instead of rejecting an over-release. Used by the restock
// workflow when it drops a provisional commitment.
func (r *repository) AdjustReservedClamped(ctx context.Context, productID uuid.UUID, delta int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("reserved_qty", gorm.Expr(
			"CASE WHEN reserved_qty + ? < 0 THEN 0 ELSE reserved_qty + ? END", delta, delta))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return nil
}

// DecrementCentral removes qty from central stock, used for transfers out of
// the warehouse.
func (r *repository) DecrementCentral(ctx context.Context, productID uuid.UUID, qty int) error {
	return r.AdjustCentral(ctx, productID, -qty)
}

func (r *repository) SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int) error {
	result := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("low_stock_threshold", threshold)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return nil
}

// List pages over every inventory record, most recently touched first. The
// cursor rides on (updated_at, product_id).
func (r *repository) List(ctx context.Context, params pagination.Params) (*RecordList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Order("updated_at DESC, product_id DESC").
		Limit(limit + 1)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"updated_at < ? OR (updated_at = ? AND product_id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var records []models.InventoryRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	list := &RecordList{Records: records}
	if len(records) > limit {
		list.Records = records[:limit]
		last := list.Records[len(list.Records)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.UpdatedAt, ID: last.ProductID})
		list.HasMore = true
	}
	return list, nil
}

// ListLowStock returns every record whose combined central and reserved stock
// has fallen to or below its alert threshold.
func (r *repository) ListLowStock(ctx context.Context) ([]models.InventoryRecord, error) {
	var records []models.InventoryRecord
	if err := r.db.WithContext(ctx).
		Where("low_stock_threshold > 0 AND central_qty + reserved_qty <= low_stock_threshold").
		Order("central_qty + reserved_qty ASC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// RecomputeCachedStock refreshes the denormalized product counter from the
// authoritative ledger rows: central + reserved + every driver holding.
func (r *repository) RecomputeCachedStock(ctx context.Context, productID uuid.UUID) error {
	return r.db.WithContext(ctx).Exec(`
		UPDATE products SET stock_quantity = (
			SELECT ir.central_qty + ir.reserved_qty + COALESCE((
				SELECT SUM(d.qty) FROM driver_inventory_records d
				WHERE d.product_id = products.id
			), 0)
			FROM inventory_records ir
			WHERE ir.product_id = products.id
		)
		WHERE id = ?`, productID).Error
}

// guardFailure distinguishes a missing record from a quantity guard miss.
// Central-availability guards miss as insufficient stock; reserved-side guards
// miss as an invalid quantity, since the caller asked to move more than the
// hold ever contained.
func (r *repository) guardFailure(ctx context.Context, productID uuid.UUID, code pkgerrors.Code, message string) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "inventory record not found")
	}
	return pkgerrors.New(code, message)
}
