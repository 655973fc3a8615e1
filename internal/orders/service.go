package orders

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/outbox"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type authorizer interface {
	Require(ctx context.Context, role enums.MemberRole, perm enums.Permission) error
}

// StockMover is the slice of the inventory ledger orders need: reserve on
// create, release on cancel, consume on delivery.
type StockMover interface {
	ReserveTx(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) error
	ConsumeTx(ctx context.Context, tx *gorm.DB, input inventory.MovementInput) error
}

type productCatalog interface {
	ProductsByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Product, error)
}

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// ItemInput is one requested product line.
type ItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput captures a new delivery order. Reservation is
// all-or-nothing across the items.
type CreateOrderInput struct {
	CustomerName    string
	DeliveryAddress string
	Notes           *string
	Items           []ItemInput
	Actor           Actor
}

// StatusInput moves an order along its lifecycle.
type StatusInput struct {
	OrderID uuid.UUID
	Status  enums.OrderStatus
	Actor   Actor
}

// AssignInput pins a driver to an order.
type AssignInput struct {
	OrderID  uuid.UUID
	DriverID uuid.UUID
	Actor    Actor
}

// CancelInput cancels an order and returns its reserved stock.
type CancelInput struct {
	OrderID uuid.UUID
	Actor   Actor
}

// OrderEvent is the outbox payload for order lifecycle changes.
type OrderEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	Status     enums.OrderStatus `json:"status"`
	ItemCount  int               `json:"item_count"`
	TotalCents int               `json:"total_cents"`
	DriverID   *uuid.UUID        `json:"driver_id,omitempty"`
}

// Service coordinates order lifecycle against the stock ledger.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*models.Order, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*models.Order, error)
	AssignDriver(ctx context.Context, input AssignInput) (*models.Order, error)
	Find(ctx context.Context, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error)
}

type service struct {
	repo       Repository
	catalog    productCatalog
	stock      StockMover
	driverLoad drivers.StatusRepository
	tx         txRunner
	outbox     outboxPublisher
	authz      authorizer
}

// NewService wires the order coordinator with its collaborators.
func NewService(
	repo Repository,
	catalog productCatalog,
	stock StockMover,
	driverLoad drivers.StatusRepository,
	tx txRunner,
	outboxSvc outboxPublisher,
	authz authorizer,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("product catalog required")
	}
	if stock == nil {
		return nil, fmt.Errorf("stock mover required")
	}
	if driverLoad == nil {
		return nil, fmt.Errorf("driver status repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if authz == nil {
		return nil, fmt.Errorf("authorizer required")
	}
	return &service{
		repo:       repo,
		catalog:    catalog,
		stock:      stock,
		driverLoad: driverLoad,
		tx:         tx,
		outbox:     outboxSvc,
		authz:      authz,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermCreateOrders); err != nil {
		return nil, err
	}
	if input.CustomerName == "" || input.DeliveryAddress == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name and delivery address are required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order needs at least one item")
	}
	seen := map[uuid.UUID]bool{}
	ids := make([]uuid.UUID, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "item product id is required")
		}
		if item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "item quantity must be positive")
		}
		if seen[item.ProductID] {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in order")
		}
		seen[item.ProductID] = true
		ids = append(ids, item.ProductID)
	}

	products, err := s.catalog.ProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	order := &models.Order{
		Status:          enums.OrderStatusNew,
		CustomerName:    input.CustomerName,
		DeliveryAddress: input.DeliveryAddress,
		Notes:           input.Notes,
		CreatedBy:       input.Actor.UserID,
	}
	for _, item := range input.Items {
		product, ok := products[item.ProductID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound,
				fmt.Sprintf("product %s not found", item.ProductID))
		}
		lineTotal := product.PriceCents * item.Qty
		order.Items = append(order.Items, models.OrderItem{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: product.PriceCents,
			TotalCents:     lineTotal,
		})
		order.TotalCents += lineTotal
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}
		// Reserve every line or none; the first failure rolls the whole
		// order back.
		ref := order.ID
		for _, item := range order.Items {
			if err := s.stock.ReserveTx(ctx, tx, inventory.MovementInput{
				ProductID:   item.ProductID,
				Qty:         item.Qty,
				ReferenceID: &ref,
				Actor:       inventory.Actor{UserID: input.Actor.UserID, Role: input.Actor.Role},
			}); err != nil {
				return err
			}
		}
		return s.emit(ctx, tx, enums.EventOrderCreated, order, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*models.Order, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermCancelOrders); err != nil {
		return nil, err
	}
	order, err := s.repo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusCancelled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot cancel a %s order", order.Status))
	}

	fromStatus := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, fromStatus, enums.OrderStatusCancelled, nil); err != nil {
			return err
		}
		// Attempt every release so the error reports all failing lines,
		// not just the first.
		ref := order.ID
		var releaseErr error
		for _, item := range order.Items {
			releaseErr = multierr.Append(releaseErr, s.stock.ReleaseTx(ctx, tx, inventory.MovementInput{
				ProductID:   item.ProductID,
				Qty:         item.Qty,
				ReferenceID: &ref,
				Actor:       inventory.Actor{UserID: input.Actor.UserID, Role: input.Actor.Role},
			}))
		}
		if releaseErr != nil {
			return releaseErr
		}
		if order.AssignedDriverID != nil {
			if err := s.driverLoad.WithTx(tx).DecrementOrderCount(ctx, *order.AssignedDriverID); err != nil {
				return err
			}
		}
		order.Status = enums.OrderStatusCancelled
		return s.emit(ctx, tx, enums.EventOrderCancelled, order, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*models.Order, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermUpdateOrderStatus); err != nil {
		return nil, err
	}
	if input.Status == enums.OrderStatusCancelled {
		return s.Cancel(ctx, CancelInput{OrderID: input.OrderID, Actor: input.Actor})
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation,
			fmt.Sprintf("invalid order status %q", input.Status))
	}

	order, err := s.repo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(input.Status) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot move order from %s to %s", order.Status, input.Status))
	}

	fromStatus := order.Status
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).TransitionStatus(ctx, order.ID, fromStatus, input.Status, nil); err != nil {
			return err
		}
		if input.Status == enums.OrderStatusDelivered {
			// Delivered stock is consumed out of the reserved bucket.
			ref := order.ID
			for _, item := range order.Items {
				if err := s.stock.ConsumeTx(ctx, tx, inventory.MovementInput{
					ProductID:   item.ProductID,
					Qty:         item.Qty,
					ReferenceID: &ref,
					Actor:       inventory.Actor{UserID: input.Actor.UserID, Role: input.Actor.Role},
				}); err != nil {
					return err
				}
			}
			if order.AssignedDriverID != nil {
				if err := s.driverLoad.WithTx(tx).DecrementOrderCount(ctx, *order.AssignedDriverID); err != nil {
					return err
				}
			}
		}
		order.Status = input.Status
		return s.emit(ctx, tx, enums.EventOrderStatusMoved, order, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) AssignDriver(ctx context.Context, input AssignInput) (*models.Order, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermAssignDriver); err != nil {
		return nil, err
	}
	if input.DriverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	order, err := s.repo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot assign a driver to a %s order", order.Status))
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).AssignDriver(ctx, order.ID, input.DriverID); err != nil {
			return err
		}
		if err := s.driverLoad.WithTx(tx).IncrementOrderCount(ctx, input.DriverID); err != nil {
			return err
		}
		order.AssignedDriverID = &input.DriverID
		return s.emit(ctx, tx, enums.EventOrderStatusMoved, order, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	return s.repo.Find(ctx, id)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*OrderList, error) {
	return s.repo.List(ctx, params, filters)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, order *models.Order, actor Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Data: OrderEvent{
			OrderID:    order.ID,
			Status:     order.Status,
			ItemCount:  len(order.Items),
			TotalCents: order.TotalCents,
			DriverID:   order.AssignedDriverID,
		},
	})
}
