package restock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
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

type auditRecorder interface {
	Append(ctx context.Context, tx *gorm.DB, input audit.AppendEntryInput) (*models.InventoryLogEntry, error)
}

type authorizer interface {
	Require(ctx context.Context, role enums.MemberRole, perm enums.Permission) error
}

// Actor is the authenticated caller driving the workflow.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// SubmitInput opens a new restock request. The requested quantity is parked
// in the reserved bucket until the request resolves.
type SubmitInput struct {
	ProductID uuid.UUID
	Qty       int
	Notes     *string
	Actor     Actor
}

// ApproveInput approves a pending request, optionally adjusting the quantity.
type ApproveInput struct {
	RequestID uuid.UUID
	Qty       *int
	Actor     Actor
}

// FulfillInput completes an approved request. Qty may be below the approved
// quantity; the shortfall is dropped from reserved.
type FulfillInput struct {
	RequestID uuid.UUID
	Qty       *int
	Actor     Actor
}

// RejectInput closes a pending request without stocking anything.
type RejectInput struct {
	RequestID uuid.UUID
	Reason    *string
	Actor     Actor
}

// StatusEvent is the outbox payload for every workflow transition.
type StatusEvent struct {
	RequestID uuid.UUID           `json:"request_id"`
	ProductID uuid.UUID           `json:"product_id"`
	Status    enums.RestockStatus `json:"status"`
	Qty       int                 `json:"qty"`
}

// Service drives the restock request state machine:
// pending -> approved -> fulfilled, or pending -> rejected.
type Service interface {
	Submit(ctx context.Context, input SubmitInput) (*models.RestockRequest, error)
	Approve(ctx context.Context, input ApproveInput) (*models.RestockRequest, error)
	Fulfill(ctx context.Context, input FulfillInput) (*models.RestockRequest, error)
	Reject(ctx context.Context, input RejectInput) (*models.RestockRequest, error)
	Find(ctx context.Context, id uuid.UUID) (*models.RestockRequest, error)
	List(ctx context.Context, params pagination.Params, filters Filters) (*RequestList, error)
}

type service struct {
	repo    Repository
	ledger  inventory.Repository
	audit   auditRecorder
	tx      txRunner
	outbox  outboxPublisher
	authz   authorizer
	metrics *metrics.LedgerMetrics
}

// NewService wires the restock workflow with its collaborators.
func NewService(
	repo Repository,
	ledger inventory.Repository,
	auditSvc auditRecorder,
	tx txRunner,
	outboxSvc outboxPublisher,
	authz authorizer,
	ledgerMetrics *metrics.LedgerMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("restock repository required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if auditSvc == nil {
		return nil, fmt.Errorf("audit service required")
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
		repo:    repo,
		ledger:  ledger,
		audit:   auditSvc,
		tx:      tx,
		outbox:  outboxSvc,
		authz:   authz,
		metrics: ledgerMetrics,
	}, nil
}

func (s *service) Submit(ctx context.Context, input SubmitInput) (*models.RestockRequest, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermRequestRestock); err != nil {
		return nil, err
	}
	if input.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Qty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "requested quantity must be positive")
	}

	request := &models.RestockRequest{
		ProductID:    input.ProductID,
		RequestedQty: input.Qty,
		Status:       enums.RestockStatusPending,
		RequestedBy:  input.Actor.UserID,
		Notes:        input.Notes,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ledger := s.ledger.WithTx(tx)
		if err := ledger.EnsureRecord(ctx, input.ProductID); err != nil {
			return err
		}
		if err := s.repo.WithTx(tx).Create(ctx, request); err != nil {
			return err
		}
		if err := ledger.AdjustReserved(ctx, input.ProductID, input.Qty); err != nil {
			return err
		}
		return s.finishTransition(ctx, tx, request, transition{
			event:      enums.EventRestockSubmitted,
			changeType: enums.ChangeTypeReservation,
			qtyChange:  input.Qty,
			from:       enums.LocationInbound,
			to:         enums.LocationReserved,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRestockTransition(enums.RestockStatusPending.String())
	return request, nil
}

func (s *service) Approve(ctx context.Context, input ApproveInput) (*models.RestockRequest, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermApproveRestock); err != nil {
		return nil, err
	}
	request, err := s.repo.Find(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(enums.RestockStatusApproved) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot approve a %s request", request.Status))
	}

	approvedQty := request.RequestedQty
	if input.Qty != nil {
		approvedQty = *input.Qty
	}
	if approvedQty <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "approved quantity must be positive")
	}

	delta := approvedQty - request.RequestedQty
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).TransitionStatus(ctx, request.ID,
			enums.RestockStatusPending, enums.RestockStatusApproved, map[string]any{
				"approved_by":  input.Actor.UserID,
				"approved_qty": approvedQty,
			}); err != nil {
			return err
		}
		if delta != 0 {
			// Approving below the requested figure drops part of the
			// provisional hold; the floor keeps reserved at zero even if
			// the hold was already trimmed.
			if err := s.ledger.WithTx(tx).AdjustReservedClamped(ctx, request.ProductID, delta); err != nil {
				return err
			}
		}
		request.Status = enums.RestockStatusApproved
		request.ApprovedBy = &input.Actor.UserID
		request.ApprovedQty = &approvedQty
		return s.finishTransition(ctx, tx, request, transition{
			event:      enums.EventRestockApproved,
			changeType: enums.ChangeTypeAdjustment,
			qtyChange:  delta,
			from:       enums.LocationInbound,
			to:         enums.LocationReserved,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRestockTransition(enums.RestockStatusApproved.String())
	return request, nil
}

func (s *service) Fulfill(ctx context.Context, input FulfillInput) (*models.RestockRequest, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermFulfillRestock); err != nil {
		return nil, err
	}
	request, err := s.repo.Find(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(enums.RestockStatusFulfilled) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot fulfill a %s request", request.Status))
	}
	if request.ApprovedQty == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "approved quantity missing")
	}

	approvedQty := *request.ApprovedQty
	fulfilledQty := approvedQty
	if input.Qty != nil {
		fulfilledQty = *input.Qty
	}
	if fulfilledQty <= 0 || fulfilledQty > approvedQty {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidQuantity,
			fmt.Sprintf("fulfilled quantity must be between 1 and %d", approvedQty))
	}
	shortfall := approvedQty - fulfilledQty

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).TransitionStatus(ctx, request.ID,
			enums.RestockStatusApproved, enums.RestockStatusFulfilled, map[string]any{
				"fulfilled_by":  input.Actor.UserID,
				"fulfilled_qty": fulfilledQty,
			}); err != nil {
			return err
		}
		ledger := s.ledger.WithTx(tx)
		if err := ledger.ReleaseToCentral(ctx, request.ProductID, fulfilledQty); err != nil {
			return err
		}
		if shortfall > 0 {
			if err := ledger.AdjustReservedClamped(ctx, request.ProductID, -shortfall); err != nil {
				return err
			}
		}
		request.Status = enums.RestockStatusFulfilled
		request.FulfilledBy = &input.Actor.UserID
		request.FulfilledQty = &fulfilledQty
		return s.finishTransition(ctx, tx, request, transition{
			event:      enums.EventRestockFulfilled,
			changeType: enums.ChangeTypeRestock,
			qtyChange:  fulfilledQty,
			from:       enums.LocationReserved,
			to:         enums.LocationCentral,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRestockTransition(enums.RestockStatusFulfilled.String())
	return request, nil
}

func (s *service) Reject(ctx context.Context, input RejectInput) (*models.RestockRequest, error) {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermApproveRestock); err != nil {
		return nil, err
	}
	request, err := s.repo.Find(ctx, input.RequestID)
	if err != nil {
		return nil, err
	}
	if !request.Status.CanTransitionTo(enums.RestockStatusRejected) {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict,
			fmt.Sprintf("cannot reject a %s request", request.Status))
	}

	updates := map[string]any{}
	if input.Reason != nil {
		updates["notes"] = *input.Reason
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).TransitionStatus(ctx, request.ID,
			enums.RestockStatusPending, enums.RestockStatusRejected, updates); err != nil {
			return err
		}
		if err := s.ledger.WithTx(tx).AdjustReservedClamped(ctx, request.ProductID, -request.RequestedQty); err != nil {
			return err
		}
		request.Status = enums.RestockStatusRejected
		if input.Reason != nil {
			request.Notes = input.Reason
		}
		return s.finishTransition(ctx, tx, request, transition{
			event:      enums.EventRestockRejected,
			changeType: enums.ChangeTypeAdjustment,
			qtyChange:  -request.RequestedQty,
			from:       enums.LocationReserved,
			to:         enums.LocationCancelled,
			actor:      input.Actor,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncRestockTransition(enums.RestockStatusRejected.String())
	return request, nil
}

func (s *service) Find(ctx context.Context, id uuid.UUID) (*models.RestockRequest, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "request id is required")
	}
	return s.repo.Find(ctx, id)
}

func (s *service) List(ctx context.Context, params pagination.Params, filters Filters) (*RequestList, error) {
	return s.repo.List(ctx, params, filters)
}

type transition struct {
	event      enums.OutboxEventType
	changeType enums.InventoryChangeType
	qtyChange  int
	from       enums.StockLocation
	to         enums.StockLocation
	actor      Actor
}

// finishTransition writes the audit entry (when stock moved), refreshes the
// cached product counter and emits the workflow event on the transaction.
// Each transition carries its own audit change type: submit parks a
// reservation, approve and reject adjust the hold, only fulfill is a restock.
func (s *service) finishTransition(ctx context.Context, tx *gorm.DB, request *models.RestockRequest, t transition) error {
	if t.qtyChange != 0 {
		ref := request.ID
		if _, err := s.audit.Append(ctx, tx, audit.AppendEntryInput{
			ProductID:      request.ProductID,
			ChangeType:     t.changeType,
			QuantityChange: t.qtyChange,
			FromLocation:   t.from,
			ToLocation:     t.to,
			ReferenceID:    &ref,
			CreatedBy:      t.actor.UserID,
		}); err != nil {
			return err
		}
	}
	if err := s.ledger.WithTx(tx).RecomputeCachedStock(ctx, request.ProductID); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     t.event,
		AggregateType: enums.AggregateRestockRequest,
		AggregateID:   request.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{UserID: t.actor.UserID, Role: t.actor.Role.String()},
		Data: StatusEvent{
			RequestID: request.ID,
			ProductID: request.ProductID,
			Status:    request.Status,
			Qty:       t.qtyChange,
		},
	})
}
