package audit

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// EntryList is one page of inventory log entries.
type EntryList struct {
	Entries    []models.InventoryLogEntry
	NextCursor string
	HasMore    bool
}

// Repository manages persistence for the append-only inventory log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, entry *models.InventoryLogEntry) error
	ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*EntryList, error)
	ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryLogEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an audit repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, entry *models.InventoryLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) ListByProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*EntryList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at DESC, id DESC").
		Limit(limit + 1)

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

	var entries []models.InventoryLogEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}

	list := &EntryList{Entries: entries}
	if len(entries) > limit {
		list.Entries = entries[:limit]
		last := list.Entries[len(list.Entries)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		list.HasMore = true
	}
	return list, nil
}

func (r *repository) ListByReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryLogEntry, error) {
	var entries []models.InventoryLogEntry
	if err := r.db.WithContext(ctx).
		Where("reference_id = ?", referenceID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
