package restock

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	"github.com/talrozen/courierdesk-backend/internal/permissions"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type testEnv struct {
	db     *gorm.DB
	svc    Service
	ledger inventory.Repository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:restock_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.InventoryRecord{},
		&models.DriverInventoryRecord{},
		&models.RestockRequest{},
		&models.InventoryLogEntry{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	auditSvc, err := audit.NewService(audit.NewRepository(db))
	if err != nil {
		t.Fatalf("audit service: %v", err)
	}
	ledger := inventory.NewRepository(db)
	svc, err := NewService(
		NewRepository(db),
		ledger,
		auditSvc,
		&gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		permissions.NewStaticAuthorizer(),
		nil,
	)
	if err != nil {
		t.Fatalf("restock service: %v", err)
	}
	return &testEnv{db: db, svc: svc, ledger: ledger}
}

func (e *testEnv) seedProduct(t *testing.T, central int) uuid.UUID {
	t.Helper()
	product := models.Product{Name: "crate of juice", Category: "beverages", PriceCents: 2100}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := e.db.Create(&models.InventoryRecord{ProductID: product.ID, CentralQty: central}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return product.ID
}

func (e *testEnv) stock(t *testing.T, productID uuid.UUID) *models.InventoryRecord {
	t.Helper()
	record, err := e.ledger.GetRecord(context.Background(), productID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return record
}

func salesperson() Actor {
	return Actor{UserID: uuid.New(), Role: enums.RoleSalesperson}
}

func admin() Actor {
	return Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func operator() Actor {
	return Actor{UserID: uuid.New(), Role: enums.RoleOperator}
}

func TestWorkflowSubmitApproveFulfill(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 10)
	approvedQty := 40

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 50, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if request.Status != enums.RestockStatusPending {
		t.Fatalf("expected pending, got %s", request.Status)
	}
	if got := env.stock(t, productID); got.ReservedQty != 50 {
		t.Fatalf("submit must park 50 in reserved, got %d", got.ReservedQty)
	}

	request, err = env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Qty: &approvedQty, Actor: admin()})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if request.Status != enums.RestockStatusApproved || request.ApprovedQty == nil || *request.ApprovedQty != 40 {
		t.Fatalf("unexpected approved request: %+v", request)
	}
	if got := env.stock(t, productID); got.ReservedQty != 40 {
		t.Fatalf("approve must adjust reserved to 40, got %d", got.ReservedQty)
	}

	request, err = env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Actor: operator()})
	if err != nil {
		t.Fatalf("fulfill: %v", err)
	}
	if request.Status != enums.RestockStatusFulfilled || request.FulfilledQty == nil || *request.FulfilledQty != 40 {
		t.Fatalf("unexpected fulfilled request: %+v", request)
	}

	got := env.stock(t, productID)
	if got.CentralQty != 50 || got.ReservedQty != 0 {
		t.Fatalf("expected central 50 reserved 0, got %+v", got)
	}

	var product models.Product
	if err := env.db.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	if product.StockQuantity != 50 {
		t.Fatalf("cached stock should be 50, got %d", product.StockQuantity)
	}

	var eventTypes []string
	if err := env.db.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ?", request.ID).
		Order("created_at ASC").
		Pluck("event_type", &eventTypes).Error; err != nil {
		t.Fatalf("load events: %v", err)
	}
	if len(eventTypes) != 3 {
		t.Fatalf("expected 3 workflow events, got %v", eventTypes)
	}
}

func TestRejectReturnsReservedStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)
	reason := "supplier discontinued"

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 25, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	request, err = env.svc.Reject(ctx, RejectInput{RequestID: request.ID, Reason: &reason, Actor: admin()})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if request.Status != enums.RestockStatusRejected {
		t.Fatalf("expected rejected, got %s", request.Status)
	}

	got := env.stock(t, productID)
	if got.CentralQty != 0 || got.ReservedQty != 0 {
		t.Fatalf("reject must clear reserved stock, got %+v", got)
	}
}

func TestInvalidTransitions(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 10, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// pending cannot be fulfilled directly
	if _, err := env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Actor: operator()}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict fulfilling pending, got %v", err)
	}

	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Actor: admin()}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// approved cannot be approved again or rejected
	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Actor: admin()}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double approve, got %v", err)
	}
	if _, err := env.svc.Reject(ctx, RejectInput{RequestID: request.ID, Actor: admin()}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict rejecting approved, got %v", err)
	}

	if _, err := env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Actor: operator()}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	// fulfilled is terminal
	if _, err := env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Actor: operator()}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict on double fulfill, got %v", err)
	}
}

func TestPermissionGates(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)
	driver := Actor{UserID: uuid.New(), Role: enums.RoleDriver}

	if _, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 5, Actor: driver}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("driver submit should be forbidden, got %v", err)
	}

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 5, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// operator may fulfill but not approve
	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Actor: operator()}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("operator approve should be forbidden, got %v", err)
	}
}

func TestPartialFulfillDropsShortfall(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)
	fulfillQty := 30

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 40, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Actor: admin()}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Qty: &fulfillQty, Actor: operator()}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	got := env.stock(t, productID)
	if got.CentralQty != 30 || got.ReservedQty != 0 {
		t.Fatalf("expected central 30 reserved 0, got %+v", got)
	}
}

func TestAuditEntriesCarryTransitionChangeTypes(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)
	approvedQty := 30

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 40, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Qty: &approvedQty, Actor: admin()}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.svc.Fulfill(ctx, FulfillInput{RequestID: request.ID, Actor: operator()}); err != nil {
		t.Fatalf("fulfill: %v", err)
	}

	var entries []models.InventoryLogEntry
	if err := env.db.Where("reference_id = ?", request.ID).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		t.Fatalf("load audit entries: %v", err)
	}
	want := []enums.InventoryChangeType{
		enums.ChangeTypeReservation,
		enums.ChangeTypeAdjustment,
		enums.ChangeTypeRestock,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(entries))
	}
	for i, entry := range entries {
		if entry.ChangeType != want[i] {
			t.Fatalf("entry %d: expected change type %s, got %s", i, want[i], entry.ChangeType)
		}
	}
}

func TestRejectAuditEntryIsAdjustment(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 15, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := env.svc.Reject(ctx, RejectInput{RequestID: request.ID, Actor: admin()}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	var entries []models.InventoryLogEntry
	if err := env.db.Where("reference_id = ? AND change_type = ?", request.ID, enums.ChangeTypeAdjustment).
		Find(&entries).Error; err != nil {
		t.Fatalf("load audit entries: %v", err)
	}
	if len(entries) != 1 || entries[0].QuantityChange != -15 {
		t.Fatalf("expected one adjustment entry for -15, got %+v", entries)
	}
}

func TestRejectClampsReservedAtZero(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 25, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Shrink the hold behind the workflow's back; the reject must still
	// land reserved on zero instead of failing.
	if err := env.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("reserved_qty", 10).Error; err != nil {
		t.Fatalf("shrink hold: %v", err)
	}

	if _, err := env.svc.Reject(ctx, RejectInput{RequestID: request.ID, Actor: admin()}); err != nil {
		t.Fatalf("reject: %v", err)
	}
	got := env.stock(t, productID)
	if got.ReservedQty != 0 {
		t.Fatalf("reject must floor reserved at zero, got %d", got.ReservedQty)
	}
}

func TestApproveDownwardClampsReservedAtZero(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 0)
	approvedQty := 5

	request, err := env.svc.Submit(ctx, SubmitInput{ProductID: productID, Qty: 30, Actor: salesperson()})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if err := env.db.Model(&models.InventoryRecord{}).
		Where("product_id = ?", productID).
		Update("reserved_qty", 20).Error; err != nil {
		t.Fatalf("shrink hold: %v", err)
	}

	if _, err := env.svc.Approve(ctx, ApproveInput{RequestID: request.ID, Qty: &approvedQty, Actor: admin()}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	got := env.stock(t, productID)
	if got.ReservedQty != 0 {
		t.Fatalf("downward approve must floor reserved at zero, got %d", got.ReservedQty)
	}
}

func TestSubmitValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()

	if _, err := env.svc.Submit(ctx, SubmitInput{Qty: 5, Actor: salesperson()}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := env.svc.Submit(ctx, SubmitInput{ProductID: uuid.New(), Qty: 0, Actor: salesperson()}); !pkgerrors.HasCode(err, pkgerrors.CodeInvalidQuantity) {
		t.Fatalf("expected invalid quantity, got %v", err)
	}
}
