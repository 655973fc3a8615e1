package marketplace

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/internal/permissions"
	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/outbox"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r *gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// stubPresence is an in-memory stand-in for the Redis heartbeat store.
type stubPresence struct {
	online map[string]bool
}

func newStubPresence() *stubPresence {
	return &stubPresence{online: map[string]bool{}}
}

func (s *stubPresence) SetPresence(_ context.Context, driverID, _ string, _ time.Duration) error {
	s.online[driverID] = true
	return nil
}

func (s *stubPresence) GetPresence(_ context.Context, driverID string) (string, bool, error) {
	return "", s.online[driverID], nil
}

func (s *stubPresence) ClearPresence(_ context.Context, driverID string) error {
	delete(s.online, driverID)
	return nil
}

type testEnv struct {
	db       *gorm.DB
	svc      Service
	status   drivers.StatusRepository
	presence *stubPresence
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := "file:marketplace_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Order{},
		&models.OrderItem{},
		&models.MarketplaceListing{},
		&models.AcceptanceLogEntry{},
		&models.DriverStatusRecord{},
		&models.OutboxEvent{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	status := drivers.NewStatusRepository(db)
	presence := newStubPresence()
	svc, err := NewService(
		NewRepository(db),
		orders.NewRepository(db),
		status,
		presence,
		&gormTxRunner{db: db},
		outbox.NewService(outbox.NewRepository(db), nil),
		permissions.NewStaticAuthorizer(),
		config.MarketplaceConfig{ListingTTL: 10 * time.Minute, DefaultMaxCapacity: 3},
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("marketplace service: %v", err)
	}
	return &testEnv{db: db, svc: svc, status: status, presence: presence}
}

func (e *testEnv) seedOrder(t *testing.T) uuid.UUID {
	t.Helper()
	order := models.Order{
		Status:          enums.OrderStatusReady,
		CustomerName:    "Lena Hoff",
		DeliveryAddress: "8 Canal Row",
		TotalCents:      2400,
		CreatedBy:       uuid.New(),
	}
	if err := e.db.Create(&order).Error; err != nil {
		t.Fatalf("seed order: %v", err)
	}
	return order.ID
}

func (e *testEnv) seedDriver(t *testing.T, capacity int) Actor {
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
	// Seeded drivers check in by default; tests drop the key to take one
	// offline.
	e.presence.online[driverID.String()] = true
	return Actor{UserID: driverID, Role: enums.RoleDriver}
}

func (e *testEnv) pauseDriver(t *testing.T, driverID uuid.UUID) {
	t.Helper()
	if err := e.db.Model(&models.DriverStatusRecord{}).
		Where("driver_id = ?", driverID).
		Update("availability", enums.DriverPaused).Error; err != nil {
		t.Fatalf("pause driver: %v", err)
	}
}

func backOffice() Actor {
	return Actor{UserID: uuid.New(), Role: enums.RoleAdmin}
}

func (e *testEnv) publish(t *testing.T, orderID uuid.UUID) *models.MarketplaceListing {
	t.Helper()
	listing, err := e.svc.Publish(context.Background(), PublishInput{
		OrderID:        orderID,
		DriverEarnings: decimal.NewFromFloat(7.50),
		Actor:          Actor{UserID: uuid.New(), Role: enums.RoleAdmin},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	return listing
}

func (e *testEnv) expire(t *testing.T, listingID uuid.UUID) {
	t.Helper()
	err := e.db.Model(&models.MarketplaceListing{}).
		Where("id = ?", listingID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error
	if err != nil {
		t.Fatalf("expire listing: %v", err)
	}
}

func TestAcceptClaimsListingForDriver(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	driver := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)

	claimed, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: driver})
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if claimed.IsActive || claimed.AssignedDriverID == nil || *claimed.AssignedDriverID != driver.UserID {
		t.Fatalf("unexpected listing after accept: %+v", claimed)
	}

	var order models.Order
	if err := env.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.AssignedDriverID == nil || *order.AssignedDriverID != driver.UserID {
		t.Fatal("order must carry the winning driver")
	}

	record, err := env.status.Get(ctx, driver.UserID)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if record.CurrentOrderCount != 1 {
		t.Fatalf("accept must claim one capacity slot, got %d", record.CurrentOrderCount)
	}

	responses, err := env.svc.Responses(ctx, listing.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 1 || responses[0].Decision != enums.AcceptanceAccepted {
		t.Fatalf("unexpected responses %+v", responses)
	}
	if len(responses[0].DriverSnapshot) == 0 {
		t.Fatal("accepted entry must carry the driver snapshot")
	}
}

func TestSecondAcceptLosesRace(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	winner := env.seedDriver(t, 3)
	loser := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: winner}); err != nil {
		t.Fatalf("winning accept: %v", err)
	}
	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: loser}); !pkgerrors.HasCode(err, pkgerrors.CodeRaceLost) {
		t.Fatalf("expected race lost, got %v", err)
	}

	record, err := env.status.Get(ctx, loser.UserID)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if record.CurrentOrderCount != 0 {
		t.Fatalf("loser must hold no capacity, got %d", record.CurrentOrderCount)
	}

	responses, err := env.svc.Responses(ctx, listing.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 1 {
		t.Fatalf("losing attempt must not be logged as accepted, got %+v", responses)
	}
}

func TestAcceptAfterExpiryLosesRace(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	driver := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)
	env.expire(t, listing.ID)

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: driver}); !pkgerrors.HasCode(err, pkgerrors.CodeRaceLost) {
		t.Fatalf("expected race lost on expired listing, got %v", err)
	}

	var order models.Order
	if err := env.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.AssignedDriverID != nil {
		t.Fatal("expired accept must not assign the order")
	}
}

func TestAcceptAtCapacityRollsBackClaim(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	busy := env.seedDriver(t, 1)
	fresh := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)

	if err := env.db.Model(&models.DriverStatusRecord{}).
		Where("driver_id = ?", busy.UserID).
		Update("current_order_count", 1).Error; err != nil {
		t.Fatalf("fill capacity: %v", err)
	}

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: busy}); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected capacity conflict, got %v", err)
	}

	// The failed claim must roll back so another driver can still win.
	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: fresh}); err != nil {
		t.Fatalf("accept after rollback: %v", err)
	}
}

func TestDeclineKeepsListingOpen(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	decliner := env.seedDriver(t, 3)
	accepter := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)
	reason := "outside my zone"

	if err := env.svc.Decline(ctx, DeclineInput{ListingID: listing.ID, Reason: &reason, Actor: decliner}); err != nil {
		t.Fatalf("decline: %v", err)
	}

	open, err := env.svc.ListOpen(ctx, backOffice(), pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 1 {
		t.Fatalf("declined listing must stay open, got %d", len(open.Listings))
	}

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: accepter}); err != nil {
		t.Fatalf("accept after decline: %v", err)
	}

	responses, err := env.svc.Responses(ctx, listing.ID)
	if err != nil {
		t.Fatalf("responses: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("expected decline then accept, got %+v", responses)
	}
	if responses[0].Decision != enums.AcceptanceDeclined || responses[0].Reason == nil {
		t.Fatalf("unexpected decline entry %+v", responses[0])
	}
}

func TestPublishGuards(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	admin := Actor{UserID: uuid.New(), Role: enums.RoleAdmin}

	if _, err := env.svc.Publish(ctx, PublishInput{
		OrderID: orderID, DriverEarnings: decimal.Zero, Actor: admin,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation on zero earnings, got %v", err)
	}

	if _, err := env.svc.Publish(ctx, PublishInput{
		OrderID: orderID, DriverEarnings: decimal.NewFromInt(5),
		Actor: Actor{UserID: uuid.New(), Role: enums.RoleDriver},
	}); !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("driver publish should be forbidden, got %v", err)
	}

	env.publish(t, orderID)
	if _, err := env.svc.Publish(ctx, PublishInput{
		OrderID: orderID, DriverEarnings: decimal.NewFromInt(5), Actor: admin,
	}); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict on double listing, got %v", err)
	}
}

func TestCloseExpiredSweepsOnlyLapsedListings(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	lapsed := env.publish(t, env.seedOrder(t))
	env.publish(t, env.seedOrder(t))
	env.expire(t, lapsed.ID)

	closed, err := env.svc.CloseExpired(ctx)
	if err != nil {
		t.Fatalf("close expired: %v", err)
	}
	if closed != 1 {
		t.Fatalf("expected one closed listing, got %d", closed)
	}

	open, err := env.svc.ListOpen(ctx, backOffice(), pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 1 {
		t.Fatalf("expected one open listing, got %d", len(open.Listings))
	}
}

func TestAcceptRequiresLiveHeartbeat(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	stale := env.seedDriver(t, 3)
	fresh := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)

	if err := env.presence.ClearPresence(ctx, stale.UserID.String()); err != nil {
		t.Fatalf("clear presence: %v", err)
	}

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: stale}); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("offline driver must not win a listing, got %v", err)
	}

	var order models.Order
	if err := env.db.First(&order, "id = ?", orderID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if order.AssignedDriverID != nil {
		t.Fatal("offline accept must not assign the order")
	}

	// The listing stays open for a driver that is actually checked in.
	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: fresh}); err != nil {
		t.Fatalf("accept by online driver: %v", err)
	}
}

func TestAcceptRejectsPausedDriver(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	orderID := env.seedOrder(t)
	paused := env.seedDriver(t, 3)
	listing := env.publish(t, orderID)
	env.pauseDriver(t, paused.UserID)

	if _, err := env.svc.Accept(ctx, AcceptInput{ListingID: listing.ID, Actor: paused}); !pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("paused driver must not win a listing, got %v", err)
	}

	record, err := env.status.Get(ctx, paused.UserID)
	if err != nil {
		t.Fatalf("driver status: %v", err)
	}
	if record.CurrentOrderCount != 0 {
		t.Fatalf("rejected accept must not claim capacity, got %d", record.CurrentOrderCount)
	}
}

func TestListOpenShapesFeedPerDriver(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	ctx := context.Background()
	env.publish(t, env.seedOrder(t))

	eligible := env.seedDriver(t, 3)
	open, err := env.svc.ListOpen(ctx, eligible, pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 1 {
		t.Fatalf("eligible driver must see the listing, got %d", len(open.Listings))
	}

	offline := env.seedDriver(t, 3)
	if err := env.presence.ClearPresence(ctx, offline.UserID.String()); err != nil {
		t.Fatalf("clear presence: %v", err)
	}
	open, err = env.svc.ListOpen(ctx, offline, pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 0 {
		t.Fatalf("offline driver must see an empty feed, got %d", len(open.Listings))
	}

	paused := env.seedDriver(t, 3)
	env.pauseDriver(t, paused.UserID)
	open, err = env.svc.ListOpen(ctx, paused, pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 0 {
		t.Fatalf("paused driver must see an empty feed, got %d", len(open.Listings))
	}

	loaded := env.seedDriver(t, 1)
	if err := env.db.Model(&models.DriverStatusRecord{}).
		Where("driver_id = ?", loaded.UserID).
		Update("current_order_count", 1).Error; err != nil {
		t.Fatalf("fill capacity: %v", err)
	}
	open, err = env.svc.ListOpen(ctx, loaded, pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 0 {
		t.Fatalf("driver at capacity must see an empty feed, got %d", len(open.Listings))
	}

	// An unregistered driver identity gets an empty feed, not an error.
	open, err = env.svc.ListOpen(ctx, Actor{UserID: uuid.New(), Role: enums.RoleDriver}, pagination.Params{})
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open.Listings) != 0 {
		t.Fatalf("unknown driver must see an empty feed, got %d", len(open.Listings))
	}
}
