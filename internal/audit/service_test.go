package audit

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:audit_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryLogEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	svc, err := NewService(NewRepository(db))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, db
}

func TestAppendPersistsEntry(t *testing.T) {
	t.Parallel()

	svc, db := newTestService(t)
	productID := uuid.New()
	actor := uuid.New()
	ref := uuid.New()

	entry, err := svc.Append(context.Background(), nil, AppendEntryInput{
		ProductID:      productID,
		ChangeType:     enums.ChangeTypeReservation,
		QuantityChange: -30,
		FromLocation:   enums.LocationCentral,
		ToLocation:     enums.LocationReserved,
		ReferenceID:    &ref,
		CreatedBy:      actor,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if entry.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}

	var stored models.InventoryLogEntry
	if err := db.First(&stored, "product_id = ?", productID).Error; err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if stored.QuantityChange != -30 || stored.ToLocation != enums.LocationReserved {
		t.Fatalf("unexpected entry: %+v", stored)
	}
}

func TestAppendValidation(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)

	tests := []struct {
		name  string
		input AppendEntryInput
		code  pkgerrors.Code
	}{
		{
			name: "missing product",
			input: AppendEntryInput{
				ChangeType:     enums.ChangeTypeTransfer,
				QuantityChange: 5,
				FromLocation:   enums.LocationCentral,
				ToLocation:     enums.LocationDriver,
				CreatedBy:      uuid.New(),
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "zero quantity",
			input: AppendEntryInput{
				ProductID:    uuid.New(),
				ChangeType:   enums.ChangeTypeTransfer,
				FromLocation: enums.LocationCentral,
				ToLocation:   enums.LocationDriver,
				CreatedBy:    uuid.New(),
			},
			code: pkgerrors.CodeInvalidQuantity,
		},
		{
			name: "bad change type",
			input: AppendEntryInput{
				ProductID:      uuid.New(),
				ChangeType:     enums.InventoryChangeType("teleport"),
				QuantityChange: 5,
				FromLocation:   enums.LocationCentral,
				ToLocation:     enums.LocationDriver,
				CreatedBy:      uuid.New(),
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "bad location",
			input: AppendEntryInput{
				ProductID:      uuid.New(),
				ChangeType:     enums.ChangeTypeTransfer,
				QuantityChange: 5,
				FromLocation:   enums.StockLocation("moon"),
				ToLocation:     enums.LocationDriver,
				CreatedBy:      uuid.New(),
			},
			code: pkgerrors.CodeValidation,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Append(context.Background(), nil, tc.input)
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
			if !pkgerrors.HasCode(err, tc.code) {
				t.Fatalf("expected code %s, got %v", tc.code, err)
			}
		})
	}
}

func TestHistoryForProductPaginates(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	productID := uuid.New()
	actor := uuid.New()

	for i := 0; i < 5; i++ {
		if _, err := svc.Append(context.Background(), nil, AppendEntryInput{
			ProductID:      productID,
			ChangeType:     enums.ChangeTypeAdjustment,
			QuantityChange: i + 1,
			FromLocation:   enums.LocationSupplier,
			ToLocation:     enums.LocationCentral,
			CreatedBy:      actor,
		}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	first, err := svc.HistoryForProduct(context.Background(), productID, pagination.Params{Limit: 3})
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if len(first.Entries) != 3 || !first.HasMore {
		t.Fatalf("expected full first page, got %d entries hasMore=%v", len(first.Entries), first.HasMore)
	}

	second, err := svc.HistoryForProduct(context.Background(), productID, pagination.Params{Limit: 3, Cursor: first.NextCursor})
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if len(second.Entries) != 2 || second.HasMore {
		t.Fatalf("expected final page of 2, got %d hasMore=%v", len(second.Entries), second.HasMore)
	}

	seen := map[uuid.UUID]bool{}
	for _, e := range append(first.Entries, second.Entries...) {
		if seen[e.ID] {
			t.Fatalf("entry %s returned twice", e.ID)
		}
		seen[e.ID] = true
	}
}

func TestEntriesForReference(t *testing.T) {
	t.Parallel()

	svc, _ := newTestService(t)
	ref := uuid.New()
	actor := uuid.New()

	for i := 0; i < 2; i++ {
		if _, err := svc.Append(context.Background(), nil, AppendEntryInput{
			ProductID:      uuid.New(),
			ChangeType:     enums.ChangeTypeReservation,
			QuantityChange: -1,
			FromLocation:   enums.LocationCentral,
			ToLocation:     enums.LocationReserved,
			ReferenceID:    &ref,
			CreatedBy:      actor,
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	entries, err := svc.EntriesForReference(context.Background(), ref)
	if err != nil {
		t.Fatalf("list by reference: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
}
