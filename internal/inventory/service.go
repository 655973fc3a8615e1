package inventory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/talrozen/courierdesk-backend/internal/audit"
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

// DriverStock mutates the per-driver holdings that live in the drivers package.
type DriverStock interface {
	IncrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error
	DecrementTx(ctx context.Context, tx *gorm.DB, driverID, productID uuid.UUID, qty int) error
}

// Actor is the authenticated caller applying a stock mutation.
type Actor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

// MovementInput describes a reserve, release or consume of reserved stock.
type MovementInput struct {
	ProductID   uuid.UUID
	Qty         int
	ReferenceID *uuid.UUID
	Actor       Actor
}

// TransferInput moves stock from the central warehouse onto a driver.
type TransferInput struct {
	ProductID uuid.UUID
	DriverID  uuid.UUID
	Qty       int
	Actor     Actor
}

// AdjustInput applies a signed manual correction to central stock.
type AdjustInput struct {
	ProductID uuid.UUID
	Delta     int
	Reason    string
	Actor     Actor
}

// DriverAdjustInput applies a signed correction to a driver's holdings.
type DriverAdjustInput struct {
	DriverID  uuid.UUID
	ProductID uuid.UUID
	Delta     int
	Reason    string
	Actor     Actor
}

// StockView is the read model for one product's stock position.
type StockView struct {
	ProductID         uuid.UUID `json:"product_id"`
	CentralQty        int       `json:"central_qty"`
	ReservedQty       int       `json:"reserved_qty"`
	LowStockThreshold int       `json:"low_stock_threshold"`
}

// InventoryChangedEvent is emitted after every ledger mutation.
type InventoryChangedEvent struct {
	ProductID   uuid.UUID                 `json:"product_id"`
	ChangeType  enums.InventoryChangeType `json:"change_type"`
	Qty         int                       `json:"qty"`
	CentralQty  int                       `json:"central_qty"`
	ReservedQty int                       `json:"reserved_qty"`
}

// LowStockEvent fires when combined central and reserved stock falls to or
// below the threshold.
type LowStockEvent struct {
	ProductID   uuid.UUID `json:"product_id"`
	CentralQty  int       `json:"central_qty"`
	ReservedQty int       `json:"reserved_qty"`
	Threshold   int       `json:"threshold"`
}

// Service owns all mutations of the central stock ledger. The Tx variants run
// inside a caller-managed transaction so coordinators can compose them with
// their own writes.
type Service interface {
	Reserve(ctx context.Context, input MovementInput) error
	ReserveTx(ctx context.Context, tx *gorm.DB, input MovementInput) error
	Release(ctx context.Context, input MovementInput) error
	ReleaseTx(ctx context.Context, tx *gorm.DB, input MovementInput) error
	ConsumeTx(ctx context.Context, tx *gorm.DB, input MovementInput) error
	TransferToDriver(ctx context.Context, input TransferInput) error
	Adjust(ctx context.Context, input AdjustInput) error
	AdjustDriverStock(ctx context.Context, input DriverAdjustInput) error
	SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int, actor Actor) error
	Stock(ctx context.Context, productID uuid.UUID) (*StockView, error)
	List(ctx context.Context, params pagination.Params) (*RecordList, error)
	LowStockAlerts(ctx context.Context) ([]models.InventoryRecord, error)
	EnsureRecord(ctx context.Context, productID uuid.UUID) error
}

type service struct {
	repo        Repository
	driverStock DriverStock
	audit       auditRecorder
	tx          txRunner
	outbox      outboxPublisher
	authz       authorizer
	metrics     *metrics.LedgerMetrics
}

// NewService wires the inventory ledger with its collaborators.
func NewService(
	repo Repository,
	driverStock DriverStock,
	auditSvc auditRecorder,
	tx txRunner,
	outboxSvc outboxPublisher,
	authz authorizer,
	ledgerMetrics *metrics.LedgerMetrics,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if driverStock == nil {
		return nil, fmt.Errorf("driver stock required")
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
		repo:        repo,
		driverStock: driverStock,
		audit:       auditSvc,
		tx:          tx,
		outbox:      outboxSvc,
		authz:       authz,
		metrics:     ledgerMetrics,
	}, nil
}

func validateMovement(input MovementInput) error {
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	if input.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}
	return nil
}

func (s *service) Reserve(ctx context.Context, input MovementInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReserveTx(ctx, tx, input)
	})
}

func (s *service) ReserveTx(ctx context.Context, tx *gorm.DB, input MovementInput) error {
	if err := validateMovement(input); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	if err := repo.Reserve(ctx, input.ProductID, input.Qty); err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodeInsufficientStock) {
			s.metrics.IncReservation(metrics.ResultShort)
		}
		return err
	}
	s.metrics.IncReservation(metrics.ResultReserved)
	// A reserve shifts stock between buckets without changing the combined
	// total, so it can never cross the low-stock threshold.
	return s.finishMovement(ctx, tx, movement{
		input:      input,
		changeType: enums.ChangeTypeReservation,
		qtyChange:  -input.Qty,
		from:       enums.LocationCentral,
		to:         enums.LocationReserved,
	})
}

func (s *service) Release(ctx context.Context, input MovementInput) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseTx(ctx, tx, input)
	})
}

func (s *service) ReleaseTx(ctx context.Context, tx *gorm.DB, input MovementInput) error {
	if err := validateMovement(input); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	if err := repo.ReleaseToCentral(ctx, input.ProductID, input.Qty); err != nil {
		return err
	}
	s.metrics.IncReservation(metrics.ResultReleased)
	return s.finishMovement(ctx, tx, movement{
		input:      input,
		changeType: enums.ChangeTypeReservation,
		qtyChange:  input.Qty,
		from:       enums.LocationReserved,
		to:         enums.LocationCentral,
	})
}

func (s *service) ConsumeTx(ctx context.Context, tx *gorm.DB, input MovementInput) error {
	if err := validateMovement(input); err != nil {
		return err
	}
	repo := s.repo.WithTx(tx)
	if err := repo.ConsumeReserved(ctx, input.ProductID, input.Qty); err != nil {
		return err
	}
	return s.finishMovement(ctx, tx, movement{
		input:      input,
		changeType: enums.ChangeTypeReservation,
		qtyChange:  -input.Qty,
		from:       enums.LocationReserved,
		to:         enums.LocationConsumed,
		checkLow:   true,
	})
}

func (s *service) TransferToDriver(ctx context.Context, input TransferInput) error {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermTransferInventory); err != nil {
		return err
	}
	if input.ProductID == uuid.Nil || input.DriverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and driver ids are required")
	}
	if input.Qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "quantity must be positive")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DecrementCentral(ctx, input.ProductID, input.Qty); err != nil {
			return err
		}
		if err := s.driverStock.IncrementTx(ctx, tx, input.DriverID, input.ProductID, input.Qty); err != nil {
			return err
		}
		ref := input.DriverID
		return s.finishMovement(ctx, tx, movement{
			input: MovementInput{
				ProductID:   input.ProductID,
				Qty:         input.Qty,
				ReferenceID: &ref,
				Actor:       input.Actor,
			},
			changeType: enums.ChangeTypeTransfer,
			qtyChange:  -input.Qty,
			from:       enums.LocationCentral,
			to:         enums.LocationDriver,
			checkLow:   true,
		})
	})
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) error {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermAdjustInventory); err != nil {
		return err
	}
	if input.ProductID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "delta must be non-zero")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.EnsureRecord(ctx, input.ProductID); err != nil {
			return err
		}
		if err := repo.AdjustCentral(ctx, input.ProductID, input.Delta); err != nil {
			return err
		}
		from, to := enums.LocationSupplier, enums.LocationCentral
		if input.Delta < 0 {
			from, to = enums.LocationCentral, enums.LocationSupplier
		}
		return s.finishMovement(ctx, tx, movement{
			input: MovementInput{
				ProductID: input.ProductID,
				Qty:       abs(input.Delta),
				Actor:     input.Actor,
			},
			changeType: enums.ChangeTypeAdjustment,
			qtyChange:  input.Delta,
			from:       from,
			to:         to,
			metadata:   adjustmentMetadata(input.Reason),
			checkLow:   input.Delta < 0,
		})
	})
}

func (s *service) AdjustDriverStock(ctx context.Context, input DriverAdjustInput) error {
	if err := s.authz.Require(ctx, input.Actor.Role, enums.PermAdjustInventory); err != nil {
		return err
	}
	if input.ProductID == uuid.Nil || input.DriverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product and driver ids are required")
	}
	if input.Delta == 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "delta must be non-zero")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if input.Delta > 0 {
			if err := s.driverStock.IncrementTx(ctx, tx, input.DriverID, input.ProductID, input.Delta); err != nil {
				return err
			}
		} else {
			if err := s.driverStock.DecrementTx(ctx, tx, input.DriverID, input.ProductID, -input.Delta); err != nil {
				return err
			}
		}
		from, to := enums.LocationSupplier, enums.LocationDriver
		if input.Delta < 0 {
			from, to = enums.LocationDriver, enums.LocationSupplier
		}
		ref := input.DriverID
		return s.finishMovement(ctx, tx, movement{
			input: MovementInput{
				ProductID:   input.ProductID,
				Qty:         abs(input.Delta),
				ReferenceID: &ref,
				Actor:       input.Actor,
			},
			changeType: enums.ChangeTypeAdjustment,
			qtyChange:  input.Delta,
			from:       from,
			to:         to,
			metadata:   adjustmentMetadata(input.Reason),
		})
	})
}

func (s *service) SetLowStockThreshold(ctx context.Context, productID uuid.UUID, threshold int, actor Actor) error {
	if err := s.authz.Require(ctx, actor.Role, enums.PermAdjustInventory); err != nil {
		return err
	}
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if threshold < 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidQuantity, "threshold cannot be negative")
	}
	return s.repo.SetLowStockThreshold(ctx, productID, threshold)
}

func (s *service) Stock(ctx context.Context, productID uuid.UUID) (*StockView, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	record, err := s.repo.GetRecord(ctx, productID)
	if err != nil {
		return nil, err
	}
	return &StockView{
		ProductID:         record.ProductID,
		CentralQty:        record.CentralQty,
		ReservedQty:       record.ReservedQty,
		LowStockThreshold: record.LowStockThreshold,
	}, nil
}

func (s *service) List(ctx context.Context, params pagination.Params) (*RecordList, error) {
	return s.repo.List(ctx, params)
}

func (s *service) LowStockAlerts(ctx context.Context) ([]models.InventoryRecord, error) {
	return s.repo.ListLowStock(ctx)
}

func (s *service) EnsureRecord(ctx context.Context, productID uuid.UUID) error {
	if productID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	return s.repo.EnsureRecord(ctx, productID)
}

type movement struct {
	input      MovementInput
	changeType enums.InventoryChangeType
	qtyChange  int
	from       enums.StockLocation
	to         enums.StockLocation
	metadata   []byte
	checkLow   bool
}

// finishMovement runs the bookkeeping every mutation shares: one audit entry,
// the cached-stock refresh and the outbox event, all on the same transaction.
func (s *service) finishMovement(ctx context.Context, tx *gorm.DB, m movement) error {
	if _, err := s.audit.Append(ctx, tx, audit.AppendEntryInput{
		ProductID:      m.input.ProductID,
		ChangeType:     m.changeType,
		QuantityChange: m.qtyChange,
		FromLocation:   m.from,
		ToLocation:     m.to,
		ReferenceID:    m.input.ReferenceID,
		CreatedBy:      m.input.Actor.UserID,
		Metadata:       m.metadata,
	}); err != nil {
		return err
	}

	repo := s.repo.WithTx(tx)
	if err := repo.RecomputeCachedStock(ctx, m.input.ProductID); err != nil {
		return err
	}

	record, err := repo.GetRecord(ctx, m.input.ProductID)
	if err != nil {
		return err
	}

	actor := &outbox.ActorRef{UserID: m.input.Actor.UserID, Role: m.input.Actor.Role.String()}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryChanged,
		AggregateType: enums.AggregateProduct,
		AggregateID:   m.input.ProductID,
		Version:       1,
		Actor:         actor,
		Data: InventoryChangedEvent{
			ProductID:   m.input.ProductID,
			ChangeType:  m.changeType,
			Qty:         m.qtyChange,
			CentralQty:  record.CentralQty,
			ReservedQty: record.ReservedQty,
		},
	}); err != nil {
		return err
	}

	if m.checkLow && record.LowStockThreshold > 0 &&
		record.CentralQty+record.ReservedQty <= record.LowStockThreshold {
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInventoryLowStock,
			AggregateType: enums.AggregateProduct,
			AggregateID:   m.input.ProductID,
			Version:       1,
			Actor:         actor,
			Data: LowStockEvent{
				ProductID:   m.input.ProductID,
				CentralQty:  record.CentralQty,
				ReservedQty: record.ReservedQty,
				Threshold:   record.LowStockThreshold,
			},
		}); err != nil {
			return err
		}
	}
	return nil
}

func adjustmentMetadata(reason string) []byte {
	if reason == "" {
		return nil
	}
	return []byte(fmt.Sprintf(`{"reason":%q}`, reason))
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
