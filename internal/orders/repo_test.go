package orders

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
)

func newRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:orders_repo_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Product{}, &models.Order{}, &models.OrderItem{}))
	return db
}

func TestTransitionStatusGuardsCurrentState(t *testing.T) {
	t.Parallel()

	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := &models.Order{
		Status:          enums.OrderStatusNew,
		CustomerName:    "Dana",
		DeliveryAddress: "12 Dock St",
		CreatedBy:       uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, order))

	require.NoError(t, repo.TransitionStatus(ctx, order.ID, enums.OrderStatusNew, enums.OrderStatusConfirmed, nil))

	err := repo.TransitionStatus(ctx, order.ID, enums.OrderStatusNew, enums.OrderStatusConfirmed, nil)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeStateConflict))

	err = repo.TransitionStatus(ctx, uuid.New(), enums.OrderStatusNew, enums.OrderStatusConfirmed, nil)
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestTransitionStatusStampsTerminalTimes(t *testing.T) {
	t.Parallel()

	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := &models.Order{
		Status:          enums.OrderStatusNew,
		CustomerName:    "Dana",
		DeliveryAddress: "12 Dock St",
		CreatedBy:       uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, order))
	require.NoError(t, repo.TransitionStatus(ctx, order.ID, enums.OrderStatusNew, enums.OrderStatusCancelled, nil))

	found, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, enums.OrderStatusCancelled, found.Status)
	require.NotNil(t, found.CancelledAt)
	require.Nil(t, found.DeliveredAt)
}

func TestAssignDriverIsFirstWriterWins(t *testing.T) {
	t.Parallel()

	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	order := &models.Order{
		Status:          enums.OrderStatusReady,
		CustomerName:    "Dana",
		DeliveryAddress: "12 Dock St",
		CreatedBy:       uuid.New(),
	}
	require.NoError(t, repo.Create(ctx, order))

	winner := uuid.New()
	require.NoError(t, repo.AssignDriver(ctx, order.ID, winner))

	err := repo.AssignDriver(ctx, order.ID, uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeRaceLost))

	found, err := repo.Find(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, found.AssignedDriverID)
	require.Equal(t, winner, *found.AssignedDriverID)

	err = repo.AssignDriver(ctx, uuid.New(), uuid.New())
	require.True(t, pkgerrors.HasCode(err, pkgerrors.CodeNotFound))
}

func TestProductsByIDsSkipsInactive(t *testing.T) {
	t.Parallel()

	db := newRepoDB(t)
	repo := NewRepository(db)
	ctx := context.Background()

	active := models.Product{Name: "cold brew", Category: "beverages", PriceCents: 700, IsActive: true}
	retired := models.Product{Name: "seasonal blend", Category: "beverages", PriceCents: 900}
	require.NoError(t, db.Create(&active).Error)
	require.NoError(t, db.Create(&retired).Error)
	require.NoError(t, db.Model(&retired).Update("is_active", false).Error)

	byID, err := repo.ProductsByIDs(ctx, []uuid.UUID{active.ID, retired.ID})
	require.NoError(t, err)
	require.Len(t, byID, 1)
	require.Contains(t, byID, active.ID)
}
