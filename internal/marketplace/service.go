package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
	"github.com/talrozen/courierdesk-backend/pkg/metrics"
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

// Actor is the authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// PublishInput offers an order to the driver pool.
type PublishInput struct {
	OrderID        uuid.UUID
	DriverEarnings decimal.Decimal
	Actor          Actor
}

// AcceptInput is a driver's claim on a listing. The driver is the actor.
type AcceptInput struct {
	ListingID uuid.UUID
	Actor     Actor
}

// DeclineInput records a driver passing on a listing without closing it.
type DeclineInput struct {
	ListingID uuid.UUID
	Reason    *string
	Actor     Actor
}

// ListingEvent is the outbox payload for listing lifecycle changes.
type ListingEvent struct {
	ListingID      uuid.UUID  `json:"listing_id"`
	OrderID        uuid.UUID  `json:"order_id"`
	DriverID       *uuid.UUID `json:"driver_id,omitempty"`
	DriverEarnings string     `json:"driver_earnings"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

type driverSnapshot struct {
	Availability      enums.DriverAvailability `json:"availability"`
	Zones             []string                 `json:"zones,omitempty"`
	CurrentOrderCount int                      `json:"current_order_count"`
	MaxOrdersCapacity int                      `json:"max_orders_capacity"`
}

// Service runs the dispatch marketplace: publishing listings, resolving
// competing accepts to a single winner and keeping the response log.
type Service interface {
	Publish(ctx context.Context, input PublishInput) (*models.MarketplaceListing, error)
	Accept(ctx context.Context, input AcceptInput) (*models.MarketplaceListing, error)
	Decline(ctx context.Context, input DeclineInput) error
	ListOpen(ctx context.Context, actor Actor, params pagination.Params) (*ListingList, error)
	Responses(ctx context.Context, listingID uuid.UUID) ([]models.AcceptanceLogEntry, error)
	CloseExpired(ctx context.Context) (int64, error)
}

type service struct {
	repo       Repository
	ordersRepo orders.Repository
	driverLoad drivers.StatusRepository
	presence   drivers.PresenceStore
	tx         txRunner
	outbox     outboxPublisher
	authz      authorizer
	cfg        config.MarketplaceConfig
	metrics    *metrics.LedgerMetrics
	logg       *logger.Logger
}

// NewService wires the marketplace dispatcher with its collaborators.
func NewService(
	repo Repository,
	ordersRepo orders.Repository,
	driverLoad drivers.StatusRepository,
	presence drivers.PresenceStore,
	tx txRunner,
	outboxSvc outboxPublisher,
	authz authorizer,
	cfg config.MarketplaceConfig,
	ledgerMetrics *metrics.LedgerMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("marketplace repository required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if driverLoad == nil {
		return nil, fmt.Errorf("driver status repository required")
	}
	if presence == nil {
		return nil, fmt.Errorf("presence store required")
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
	if cfg.ListingTTL <= 0 {
		return nil, fmt.Errorf("listing ttl must be positive")
	}
	return &service{
		repo:       repo,
		ordersRepo: ordersRepo,
		driverLoad: driverLoad,
		presence:   presence,
		tx:         tx,
		outbox:     outboxSvc,
		authz:      authz,
		cfg:        cfg,
		metrics:    ledgerMetrics,
		logg:       logg,
	}, nil
}

func (s *service) Publish(ctx context.Context, input PublishInput) (*models.MarketplaceListing, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermAssignDriver); err != nil {
		return nil, err
	}
	if !input.DriverEarnings.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver earnings must be positive")
	}

	order, err := s.ordersRepo.Find(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsTerminal() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot list a %s order", order.Status))
	}
	if order.AssignedDriverID != nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order already has a driver")
	}
	if _, err := s.repo.FindByOrder(ctx, input.OrderID); err == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "order is already listed")
	} else if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	listing := &models.MarketplaceListing{
		OrderID:        input.OrderID,
		IsActive:       true,
		DriverEarnings: input.DriverEarnings,
		ExpiresAt:      time.Now().Add(s.cfg.ListingTTL),
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, listing); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventListingPublished, listing, input.Actor)
	})
	if err != nil {
		return nil, err
	}
	return listing, nil
}

func (s *service) Accept(ctx context.Context, input AcceptInput) (*models.MarketplaceListing, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermRespondListings); err != nil {
		return nil, err
	}
	listing, err := s.repo.Find(ctx, input.ListingID)
	if err != nil {
		return nil, err
	}
	driverID := input.Actor.UserID
	status, err := s.driverLoad.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if err := s.checkDriverEligibility(ctx, status); err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Claim(ctx, listing.ID, driverID, time.Now()); err != nil {
			return err
		}
		if err := s.ordersRepo.WithTx(tx).AssignDriver(ctx, listing.OrderID, driverID); err != nil {
			return err
		}
		if err := s.driverLoad.WithTx(tx).IncrementOrderCount(ctx, driverID); err != nil {
			return err
		}
		if err := s.recordResponse(ctx, tx, listing, status, enums.AcceptanceAccepted, nil); err != nil {
			return err
		}
		listing.IsActive = false
		listing.AssignedDriverID = &driverID
		return s.emit(ctx, tx, enums.EventListingAccepted, listing, input.Actor)
	})
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeRaceLost) {
			s.metrics.IncAccept(metrics.ResultRaceLost)
		}
		return nil, err
	}
	s.metrics.IncAccept(metrics.ResultWon)
	return listing, nil
}

func (s *service) Decline(ctx context.Context, input DeclineInput) error {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermRespondListings); err != nil {
		return err
	}
	listing, err := s.repo.Find(ctx, input.ListingID)
	if err != nil {
		return err
	}
	status, err := s.driverLoad.Get(ctx, input.Actor.UserID)
	if err != nil {
		return err
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.recordResponse(ctx, tx, listing, status, enums.AcceptanceDeclined, input.Reason); err != nil {
			return err
		}
		return s.emit(ctx, tx, enums.EventListingDeclined, listing, input.Actor)
	})
}

// ListOpen returns the claimable feed. Drivers who could not win anything
// right now, because they are paused, offline or at capacity, get an empty
// feed; back-office roles see every open listing.
func (s *service) ListOpen(ctx context.Context, actor Actor, params pagination.Params) (*ListingList, error) {
	if actor.Role == enums.RoleDriver {
		status, err := s.driverLoad.Get(ctx, actor.UserID)
		if err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
				return &ListingList{}, nil
			}
			return nil, err
		}
		if status.MaxOrdersCapacity > 0 && status.CurrentOrderCount >= status.MaxOrdersCapacity {
			return &ListingList{}, nil
		}
		if err := s.checkDriverEligibility(ctx, status); err != nil {
			if pkgerrors.HasCode(err, pkgerrors.CodeConflict) {
				return &ListingList{}, nil
			}
			return nil, err
		}
	}
	return s.repo.ListOpen(ctx, params, time.Now())
}

// checkDriverEligibility rejects drivers who cannot take an order: a paused
// availability or a missing heartbeat key means the driver is not dispatchable.
// Capacity stays with the guarded order-count increment inside the claim
// transaction, which is the authoritative check under contention.
func (s *service) checkDriverEligibility(ctx context.Context, status *models.DriverStatusRecord) error {
	if status.Availability == enums.DriverPaused {
		return pkgerrors.New(pkgerrors.CodeConflict, "driver is paused")
	}
	_, online, err := s.presence.GetPresence(ctx, status.DriverID.String())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "checking driver presence")
	}
	if !online {
		return pkgerrors.New(pkgerrors.CodeConflict, "driver is offline")
	}
	return nil
}

func (s *service) Responses(ctx context.Context, listingID uuid.UUID) ([]models.AcceptanceLogEntry, error) {
	if listingID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "listing id is required")
	}
	return s.repo.Responses(ctx, listingID)
}

// CloseExpired sweeps open listings past their deadline. Meant to run on a
// timer next to the outbox publisher.
func (s *service) CloseExpired(ctx context.Context) (int64, error) {
	closed, err := s.repo.DeactivateExpired(ctx, time.Now())
	if err != nil {
		return 0, err
	}
	if closed > 0 && s.logg != nil {
		s.logg.Info(ctx, fmt.Sprintf("closed %d expired listings", closed))
	}
	return closed, nil
}

func (s *service) recordResponse(ctx context.Context, tx *gorm.DB, listing *models.MarketplaceListing, status *models.DriverStatusRecord, decision enums.AcceptanceDecision, reason *string) error {
	snapshot, err := json.Marshal(driverSnapshot{
		Availability:      status.Availability,
		Zones:             status.Zones,
		CurrentOrderCount: status.CurrentOrderCount,
		MaxOrdersCapacity: status.MaxOrdersCapacity,
	})
	if err != nil {
		return err
	}
	entry := &models.AcceptanceLogEntry{
		ListingID:        listing.ID,
		OrderID:          listing.OrderID,
		DriverID:         status.DriverID,
		Decision:         decision,
		Reason:           reason,
		DriverOrderCount: status.CurrentOrderCount,
		DriverSnapshot:   snapshot,
	}
	if len(status.Zones) > 0 {
		zone := status.Zones[0]
		entry.DriverZone = &zone
	}
	return s.repo.WithTx(tx).RecordResponse(ctx, entry)
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, event enums.OutboxEventType, listing *models.MarketplaceListing, actor Actor) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     event,
		AggregateType: enums.AggregateListing,
		AggregateID:   listing.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Role: actor.Role.String()},
		Data: ListingEvent{
			ListingID:      listing.ID,
			OrderID:        listing.OrderID,
			DriverID:       listing.AssignedDriverID,
			DriverEarnings: listing.DriverEarnings.String(),
			ExpiresAt:      listing.ExpiresAt,
		},
	})
}
