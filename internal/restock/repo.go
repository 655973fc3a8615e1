package restock

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// RequestList is one page of restock requests.
type RequestList struct {
	Requests   []models.RestockRequest
	NextCursor string
	HasMore    bool
}

// Filters narrows restock request listings.
type Filters struct {
	Status    *enums.RestockStatus
	ProductID *uuid.UUID
}

// Repository manages restock request persistence. Status flips are
// conditional updates keyed on the expected current status, so two
// conflicting approvals cannot both win.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.RestockRequest) error
	Find(ctx context.Context, id uuid.UUID) (*models.RestockRequest, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*RequestList, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.RestockStatus, updates map[string]any) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a restock repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.RestockRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.RestockRequest, error) {
	var request models.RestockRequest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restock request not found")
		}
		return nil, err
	}
	return &request, nil
}

func (r *repository) List(ctx context.Context, params pagination.Params, filters Filters) (*RequestList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.RestockRequest{}).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.ProductID != nil {
		query = query.Where("product_id = ?", *filters.ProductID)
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

	var requests []models.RestockRequest
	if err := query.Find(&requests).Error; err != nil {
		return nil, err
	}

	list := &RequestList{Requests: requests}
	if len(requests) > limit {
		list.Requests = requests[:limit]
		last := list.Requests[len(list.Requests)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		list.HasMore = true
	}
	return list, nil
}

// TransitionStatus flips status from -> to plus any extra column updates in
// one conditional update. Zero rows affected means the request was not in the
// expected state (or does not exist).
func (r *repository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.RestockStatus, updates map[string]any) error {
	if updates == nil {
		updates = map[string]any{}
	}
	updates["status"] = to

	result := r.db.WithContext(ctx).Model(&models.RestockRequest{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.RestockRequest{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "restock request not found")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "restock request is not in status "+from.String())
	}
	return nil
}
