package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/drivers"
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
	status drivers.StatusRepository
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Product{},
		&models.InventoryRecord{},
		&models.DriverInventoryRecord{},
		&models.DriverStatusRecord{},
		&models.Order{},
		&models.OrderItem{},
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
	txRunner := &gormTxRunner{db: db}
	outboxSvc := outbox.NewService(outbox.NewRepository(db), nil)
	authz := permissions.NewStaticAuthorizer()

	invSvc, err := inventory.NewService(
		ledger,
		drivers.NewInventoryRepository(db),
		auditSvc,
		txRunner,
		outboxSvc,
		authz,
		nil,
	)
	if err != nil {
		t.Fatalf("inventory service: %v", err)
	}

	repo := NewRepository(db)
	status := drivers.NewStatusRepository(db)
	svc, err := NewService(repo, repo, invSvc, status, txRunner, outboxSvc, authz)
	if err != nil {
		t.Fatalf("orders service: %v", err)
	}
	return &testEnv{db: db, svc: svc, ledger: ledger, status: status}
}

func (e *testEnv) seedProduct(t *testing.T, priceCents, central int) uuid.UUID {
	t.Helper()
	product := models.Product{Name: "case of sparkling water", Category: "beverages", PriceCents: priceCents}
	if err := e.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	if err := e.db.Create(&models.InventoryRecord{ProductID: product.ID, CentralQty: central}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
	return product.ID
}

func (e *testEnv) seedDriver(t *testing.T, capacity int) uuid.UUID {
	t.Helper()
	driverID := uuid.New()
	record := models.DriverStatusRecord{
		DriverID:          driverID,
		Availability:      enums.DriverAvailable,
		MaxOrdersCapacity: capacity,
	}
	if err := e.db.Create(&record).Error; err != nil {
		t.Fatalf("seed driver: %v", err)
	}
	return driverID
}

func (e *testEnv) stock(t *testing.T, productID uuid.UUID) *models.InventoryRecord {
	t.Helper()
	record, err := e.ledger.GetRecord(context.Background(), productID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	return record
}

func operator() Actor {
	return Actor{UserID: uuid.New(), Role: enums.RoleOperator}
}

func TestCreateOrderReservesEveryItem(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	waterID := env.seedProduct(t, 500, 30)
	juiceID := env.seedProduct(t, 900, 12)

	order, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Dana Whitfield",
		DeliveryAddress: "14 Harbor Lane",
		Items: []ItemInput{
			{ProductID: waterID, Qty: 4},
			{ProductID: juiceID, Qty: 2},
		},
		Actor: operator(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Status != enums.OrderStatusNew {
		t.Fatalf("expected new, got %s", order.Status)
	}
	if order.TotalCents != 4*500+2*900 {
		t.Fatalf("unexpected total %d", order.TotalCents)
	}
	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}

	water := env.stock(t, waterID)
	if water.CentralQty != 26 || water.ReservedQty != 4 {
		t.Fatalf("unexpected water stock %+v", water)
	}
	juice := env.stock(t, juiceID)
	if juice.CentralQty != 10 || juice.ReservedQty != 2 {
		t.Fatalf("unexpected juice stock %+v", juice)
	}

	var count int64
	if err := env.db.Model(&models.OutboxEvent{}).
		Where("event_type = ?", enums.EventOrderCreated).
		Count(&count).Error; err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one order.created event, got %d", count)
	}
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	plentyID := env.seedProduct(t, 500, 100)
	scarceID := env.seedProduct(t, 700, 1)

	_, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Ravi Chandra",
		DeliveryAddress: "2 Dockside Road",
		Items: []ItemInput{
			{ProductID: plentyID, Qty: 10},
			{ProductID: scarceID, Qty: 5},
		},
		Actor: operator(),
	})
	if !pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	// The first item's reservation must roll back with the order.
	plenty := env.stock(t, plentyID)
	if plenty.CentralQty != 100 || plenty.ReservedQty != 0 {
		t.Fatalf("rollback left stock at %+v", plenty)
	}

	var orderCount int64
	if err := env.db.Model(&models.Order{}).Count(&orderCount).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orderCount != 0 {
		t.Fatalf("expected no orders, got %d", orderCount)
	}

	var entryCount int64
	if err := env.db.Model(&models.InventoryLogEntry{}).Count(&entryCount).Error; err != nil {
		t.Fatalf("count log entries: %v", err)
	}
	if entryCount != 0 {
		t.Fatalf("expected no log entries after rollback, got %d", entryCount)
	}
}

func TestCancelReturnsReservedStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 500, 20)

	order, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Mia Keller",
		DeliveryAddress: "77 Orchard Street",
		Items:           []ItemInput{{ProductID: productID, Qty: 8}},
		Actor:           operator(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	order, err = env.svc.Cancel(ctx, CancelInput{OrderID: order.ID, Actor: operator()})
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if order.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", order.Status)
	}

	got := env.stock(t, productID)
	if got.CentralQty != 20 || got.ReservedQty != 0 {
		t.Fatalf("cancel must restore stock, got %+v", got)
	}

	var stored models.Order
	if err := env.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.CancelledAt == nil {
		t.Fatal("cancelled_at should be stamped")
	}
}

func TestDeliveryConsumesReservedStock(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 500, 20)
	driverID := env.seedDriver(t, 3)
	actor := operator()

	order, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Theo Brandt",
		DeliveryAddress: "5 Mill Court",
		Items:           []ItemInput{{ProductID: productID, Qty: 6}},
		Actor:           actor,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := env.svc.AssignDriver(ctx, AssignInput{OrderID: order.ID, DriverID: driverID, Actor: actor}); err != nil {
		t.Fatalf("assign driver: %v", err)
	}

	for _, status := range []enums.OrderStatus{
		enums.OrderStatusConfirmed,
		enums.OrderStatusPreparing,
		enums.OrderStatusReady,
		enums.OrderStatusOutForDelivery,
		enums.OrderStatusDelivered,
	} {
		if _, err := env.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: status, Actor: actor}); err != nil {
			t.Fatalf("move to %s: %v", status, err)
		}
	}

	got := env.stock(t, productID)
	if got.CentralQty != 14 || got.ReservedQty != 0 {
		t.Fatalf("delivery must consume reserved stock, got %+v", got)
	}

	record, err := env.status.Get(ctx, driverID)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if record.CurrentOrderCount != 0 {
		t.Fatalf("delivery must free the driver slot, got %d", record.CurrentOrderCount)
	}

	var stored models.Order
	if err := env.db.First(&stored, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if stored.DeliveredAt == nil {
		t.Fatal("delivered_at should be stamped")
	}
}

func TestStatusCannotSkipSteps(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 500, 20)

	order, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Ines Moreau",
		DeliveryAddress: "9 Quay Walk",
		Items:           []ItemInput{{ProductID: productID, Qty: 1}},
		Actor:           operator(),
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.svc.UpdateStatus(ctx, StatusInput{OrderID: order.ID, Status: enums.OrderStatusDelivered, Actor: operator()}); !pkgerrors.HasCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict skipping to delivered, got %v", err)
	}
}

func TestAssignDriverOnlyOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 500, 20)
	firstDriver := env.seedDriver(t, 3)
	secondDriver := env.seedDriver(t, 3)
	actor := operator()

	order, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Ola Bergstrom",
		DeliveryAddress: "31 Ferry Lane",
		Items:           []ItemInput{{ProductID: productID, Qty: 1}},
		Actor:           actor,
	})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := env.svc.AssignDriver(ctx, AssignInput{OrderID: order.ID, DriverID: firstDriver, Actor: actor}); err != nil {
		t.Fatalf("first assign: %v", err)
	}
	if _, err := env.svc.AssignDriver(ctx, AssignInput{OrderID: order.ID, DriverID: secondDriver, Actor: actor}); !pkgerrors.HasCode(err, pkgerrors.CodeRaceLost) {
		t.Fatalf("expected race lost on second assign, got %v", err)
	}

	record, err := env.status.Get(ctx, firstDriver)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if record.CurrentOrderCount != 1 {
		t.Fatalf("winner should hold one slot, got %d", record.CurrentOrderCount)
	}
	loser, err := env.status.Get(ctx, secondDriver)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if loser.CurrentOrderCount != 0 {
		t.Fatalf("loser must hold no slots, got %d", loser.CurrentOrderCount)
	}
}

func TestCreatePermissionsAndValidation(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	productID := env.seedProduct(t, 500, 20)
	driver := Actor{UserID: uuid.New(), Role: enums.RoleDriver}

	if _, err := env.svc.Create(ctx, CreateOrderInput{
		CustomerName:    "Sam Okafor",
		DeliveryAddress: "1 Pier Square",
		Items:           []ItemInput{{ProductID: productID, Qty: 1}},
		Actor:           driver,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("driver create should be forbidden, got %v", err)
	}

	cases := []struct {
		name  string
		input CreateOrderInput
		code  pkgerrors.Code
	}{
		{
			name:  "missing address",
			input: CreateOrderInput{CustomerName: "x", Items: []ItemInput{{ProductID: productID, Qty: 1}}, Actor: operator()},
			code:  pkgerrors.CodeValidation,
		},
		{
			name:  "no items",
			input: CreateOrderInput{CustomerName: "x", DeliveryAddress: "y", Actor: operator()},
			code:  pkgerrors.CodeValidation,
		},
		{
			name: "zero quantity",
			input: CreateOrderInput{CustomerName: "x", DeliveryAddress: "y",
				Items: []ItemInput{{ProductID: productID, Qty: 0}}, Actor: operator()},
			code: pkgerrors.CodeInvalidQuantity,
		},
		{
			name: "duplicate product",
			input: CreateOrderInput{CustomerName: "x", DeliveryAddress: "y",
				Items: []ItemInput{{ProductID: productID, Qty: 1}, {ProductID: productID, Qty: 2}}, Actor: operator()},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "unknown product",
			input: CreateOrderInput{CustomerName: "x", DeliveryAddress: "y",
				Items: []ItemInput{{ProductID: uuid.New(), Qty: 1}}, Actor: operator()},
			code: pkgerrors.CodeNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := env.svc.Create(ctx, tc.input); !pkgerrors.HasCode(err, tc.code) {
				t.Fatalf("expected %s, got %v", tc.code, err)
			}
		})
	}
}
