package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/talrozen/courierdesk-backend/pkg/config"
	"github.com/talrozen/courierdesk-backend/pkg/db/models"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

// PresenceStore records driver heartbeats with a TTL; a live key means the
// driver is online.
type PresenceStore interface {
	SetPresence(ctx context.Context, driverID, payload string, ttl time.Duration) error
	GetPresence(ctx context.Context, driverID string) (string, bool, error)
	ClearPresence(ctx context.Context, driverID string) error
}

// HeartbeatInput is the periodic check-in a driver app sends.
type HeartbeatInput struct {
	DriverID     uuid.UUID
	Availability enums.DriverAvailability
	Zone         string
}

// AvailabilityInput updates a driver's declared availability and zones.
type AvailabilityInput struct {
	DriverID     uuid.UUID
	Availability enums.DriverAvailability
	Zones        []string
	MaxCapacity  int
}

// StatusView is the dispatcher-facing picture of one driver.
type StatusView struct {
	DriverID          uuid.UUID                `json:"driver_id"`
	Availability      enums.DriverAvailability `json:"availability"`
	Zones             []string                 `json:"zones"`
	CurrentOrderCount int                      `json:"current_order_count"`
	MaxOrdersCapacity int                      `json:"max_orders_capacity"`
	Online            bool                     `json:"online"`
	LastSeenAt        *time.Time               `json:"last_seen_at,omitempty"`
}

type heartbeatPayload struct {
	Availability enums.DriverAvailability `json:"availability"`
	Zone         string                   `json:"zone,omitempty"`
	At           time.Time                `json:"at"`
}

// Service tracks driver presence, availability and stock holdings.
type Service interface {
	Heartbeat(ctx context.Context, input HeartbeatInput) error
	SetAvailability(ctx context.Context, input AvailabilityInput) error
	Status(ctx context.Context, driverID uuid.UUID) (*StatusView, error)
	Holdings(ctx context.Context, driverID uuid.UUID) ([]models.DriverInventoryRecord, error)
	AvailableDrivers(ctx context.Context) ([]StatusView, error)
}

type service struct {
	statusRepo    StatusRepository
	inventoryRepo InventoryRepository
	presence      PresenceStore
	cfg           config.PresenceConfig
	mktCfg        config.MarketplaceConfig
	logg          *logger.Logger
}

// NewService wires the driver tracker with its stores.
func NewService(
	statusRepo StatusRepository,
	inventoryRepo InventoryRepository,
	presence PresenceStore,
	cfg config.PresenceConfig,
	mktCfg config.MarketplaceConfig,
	logg *logger.Logger,
) (Service, error) {
	if statusRepo == nil {
		return nil, fmt.Errorf("driver status repository required")
	}
	if inventoryRepo == nil {
		return nil, fmt.Errorf("driver inventory repository required")
	}
	if presence == nil {
		return nil, fmt.Errorf("presence store required")
	}
	return &service{
		statusRepo:    statusRepo,
		inventoryRepo: inventoryRepo,
		presence:      presence,
		cfg:           cfg,
		mktCfg:        mktCfg,
		logg:          logg,
	}, nil
}

func (s *service) Heartbeat(ctx context.Context, input HeartbeatInput) error {
	if input.DriverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	if input.Availability != "" && !input.Availability.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid availability %q", input.Availability))
	}

	now := time.Now()
	payload, err := json.Marshal(heartbeatPayload{
		Availability: input.Availability,
		Zone:         input.Zone,
		At:           now,
	})
	if err != nil {
		return err
	}
	if err := s.presence.SetPresence(ctx, input.DriverID.String(), string(payload), s.cfg.HeartbeatTTL); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "recording heartbeat")
	}

	// last_seen_at is best effort; the presence key is the source of truth
	// for liveness.
	if err := s.statusRepo.TouchLastSeen(ctx, input.DriverID, now); err != nil && s.logg != nil {
		s.logg.Error(ctx, "touch last seen failed", err)
	}
	return nil
}

func (s *service) SetAvailability(ctx context.Context, input AvailabilityInput) error {
	if input.DriverID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	if !input.Availability.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid availability %q", input.Availability))
	}
	maxCapacity := input.MaxCapacity
	if maxCapacity <= 0 {
		maxCapacity = s.mktCfg.DefaultMaxCapacity
	}
	return s.statusRepo.SetAvailability(ctx, input.DriverID, input.Availability, pq.StringArray(input.Zones), maxCapacity)
}

func (s *service) Status(ctx context.Context, driverID uuid.UUID) (*StatusView, error) {
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	record, err := s.statusRepo.Get(ctx, driverID)
	if err != nil {
		return nil, err
	}
	view := s.toView(ctx, record)
	return &view, nil
}

func (s *service) Holdings(ctx context.Context, driverID uuid.UUID) ([]models.DriverInventoryRecord, error) {
	if driverID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "driver id is required")
	}
	return s.inventoryRepo.Holdings(ctx, driverID)
}

func (s *service) AvailableDrivers(ctx context.Context) ([]StatusView, error) {
	records, err := s.statusRepo.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]StatusView, 0, len(records))
	for i := range records {
		views = append(views, s.toView(ctx, &records[i]))
	}
	return views, nil
}

func (s *service) toView(ctx context.Context, record *models.DriverStatusRecord) StatusView {
	_, online, err := s.presence.GetPresence(ctx, record.DriverID.String())
	if err != nil {
		online = false
		if s.logg != nil {
			s.logg.Warn(ctx, "presence lookup failed")
		}
	}
	return StatusView{
		DriverID:          record.DriverID,
		Availability:      record.Availability,
		Zones:             record.Zones,
		CurrentOrderCount: record.CurrentOrderCount,
		MaxOrdersCapacity: record.MaxOrdersCapacity,
		Online:            online,
		LastSeenAt:        record.LastSeenAt,
	}
}
