package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// OrderList is one page of orders.
type OrderList struct {
	Orders     []models.Order
	NextCursor string
	HasMore    bool
}

// Filters narrows order listings.
type Filters struct {
	Status   *enums.OrderStatus
	DriverID *uuid.UUID
}

// Repository manages order persistence. Status flips are conditional updates
// keyed on the expected current status.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) error
	AssignDriver(ctx context.Context, id uuid.UUID, driverID uuid.UUID) error
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an orders repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Preload("Items").Where("id = ?", id).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.Order{}).
		Preload("Items").
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.DriverID != nil {
		query = query.Where("assigned_driver_id = ?", *filters.DriverID)
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where(
			"created_at < ? OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}

	list := &OrderList{Orders: orders}
	if len(orders) > limit {
		list.Orders = orders[:limit]
		last := list.Orders[len(list.Orders)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		list.HasMore = true
	}
	return list, nil
}

// TransitionStatus flips status from -> to in one conditional update. Zero
// rows affected means the order was not in the expected state.
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to
	switch to {
	case enums.OrderStatusCancelled:
		updates["cancelled_at"] = time.Now()
	case enums.OrderStatusDelivered:
		updates["delivered_at"] = time.Now()
	}

	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not in status "+from.String())
	}
	return nil
}

// ProductsByIDs loads active products for order pricing, keyed by id.
func (r *repository) ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error) {
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ? AND is_active", ids).
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, product := range products {
		byID[product.ID] = product
	}
	return byID, nil
}

// AssignDriver sets the driver only when the order has none yet.
func (r *repository) AssignDriver(ctx context.Context, id uuid.UUID, driverID uuid.UUID) error {
	result := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND assigned_driver_id IS NULL", id).
		Update("assigned_driver_id", driverID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Order{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return pkgerrors.New(pkgerrors.CodeRaceLost, "order already has a driver")
	}
	return nil
}
