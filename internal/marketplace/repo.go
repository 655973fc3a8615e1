package marketplace

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// ListingList is one page of marketplace listings.
type ListingList struct {
	Listings   []models.MarketplaceListing
	NextCursor string
	HasMore    bool
}

// Repository manages listings and the acceptance log. Claiming is a single
// conditional update so concurrent accepts resolve to exactly one winner.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, listing *models.MarketplaceListing) error
	Find(ctx context.Context, id uuid.UUID) (*models.MarketplaceListing, error)
	FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.MarketplaceListing, error)
	ListOpen(ctx context.Context, params pagination.Params, now time.Time) (*ListingList, error)
	Claim(ctx context.Context, id uuid.UUID, driverID uuid.UUID, now time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	RecordResponse(ctx context.Context, entry *models.AcceptanceLogEntry) error
	Responses(ctx context.Context, listingID uuid.UUID) ([]models.AcceptanceLogEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a marketplace repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, listing *models.MarketplaceListing) error {
	return r.db.WithContext(ctx).Create(listing).Error
}

func (r *repository) Find(ctx context.Context, id uuid.UUID) (*models.MarketplaceListing, error) {
	var listing models.MarketplaceListing
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, err
	}
	return &listing, nil
}

func (r *repository) FindByOrder(ctx context.Context, orderID uuid.UUID) (*models.MarketplaceListing, error) {
	var listing models.MarketplaceListing
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).First(&listing).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return nil, err
	}
	return &listing, nil
}

func (r *repository) ListOpen(ctx context.Context, params pagination.Params, now time.Time) (*ListingList, error) {
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.MarketplaceListing{}).
		Where("is_active AND assigned_driver_id IS NULL AND expires_at > ?", now).
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

	var listings []models.MarketplaceListing
	if err := query.Find(&listings).Error; err != nil {
		return nil, err
	}

	list := &ListingList{Listings: listings}
	if len(listings) > limit {
		list.Listings = listings[:limit]
		last := list.Listings[len(list.Listings)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		list.HasMore = true
	}
	return list, nil
}

// Claim assigns the listing to the driver only while it is still open and
// unexpired. Zero rows affected means another driver won or the listing
// lapsed, which both surface as a lost race.
func (r *repository) Claim(ctx context.Context, id uuid.UUID, driverID uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.MarketplaceListing{}).
		Where("id = ? AND is_active AND assigned_driver_id IS NULL AND expires_at > ?", id, now).
		Updates(map[string]any{
			"assigned_driver_id": driverID,
			"is_active":          false,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.MarketplaceListing{}).
			Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "listing not found")
		}
		return pkgerrors.New(pkgerrors.CodeRaceLost, "listing is no longer available")
	}
	return nil
}

// DeactivateExpired closes every open listing whose deadline passed and
// reports how many it touched.
func (r *repository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.MarketplaceListing{}).
		Where("is_active AND assigned_driver_id IS NULL AND expires_at <= ?", now).
		Update("is_active", false)
	return result.RowsAffected, result.Error
}

func (r *repository) RecordResponse(ctx context.Context, entry *models.AcceptanceLogEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

func (r *repository) Responses(ctx context.Context, listingID uuid.UUID) ([]models.AcceptanceLogEntry, error) {
	var entries []models.AcceptanceLogEntry
	err := r.db.WithContext(ctx).
		Where("listing_id = ?", listingID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
