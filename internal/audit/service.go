package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

// Service records and reads the immutable inventory log. Entries are only
// ever appended; there is no update or delete path.
type Service interface {
	Append(ctx context.Context, tx *gorm.DB, input AppendEntryInput) (*models.InventoryLogEntry, error)
	HistoryForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*EntryList, error)
	EntriesForReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryLogEntry, error)
}

type service struct {
	repo Repository
}

// AppendEntryInput captures the immutable data a log entry requires.
type AppendEntryInput struct {
	ProductID      uuid.UUID
	ChangeType     enums.InventoryChangeType
	QuantityChange int
	FromLocation   enums.StockLocation
	ToLocation     enums.StockLocation
	ReferenceID    *uuid.UUID
	CreatedBy      uuid.UUID
	Metadata       json.RawMessage
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendEntryInput) (*models.InventoryLogEntry, error) {
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.CreatedBy == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "created by is required")
	}
	if !input.ChangeType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid change type %q", input.ChangeType))
	}
	if !input.FromLocation.IsValid() || !input.ToLocation.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid stock location")
	}
	if input.QuantityChange == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity change must be non-zero")
	}

	entry := &models.InventoryLogEntry{
		ProductID:      input.ProductID,
		ChangeType:     input.ChangeType,
		QuantityChange: input.QuantityChange,
		FromLocation:   input.FromLocation,
		ToLocation:     input.ToLocation,
		ReferenceID:    input.ReferenceID,
		CreatedBy:      input.CreatedBy,
		Metadata:       input.Metadata,
	}

	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	if err := repo.Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) HistoryForProduct(ctx context.Context, productID uuid.UUID, params pagination.Params) (*EntryList, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.repo.ListByProduct(ctx, productID, params)
}

func (s *service) EntriesForReference(ctx context.Context, referenceID uuid.UUID) ([]models.InventoryLogEntry, error) {
	if referenceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reference id is required")
	}
	return s.repo.ListByReference(ctx, referenceID)
}
