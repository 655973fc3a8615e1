package controllers

import (
	"net/http"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/internal/drivers"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

type heartbeatRequest struct {
	Availability string `json:"availability" validate:"required"`
	Zone         string `json:"zone,omitempty" validate:"omitempty,max=100"`
}

type availabilityRequest struct {
	Availability string   `json:"availability" validate:"required"`
	Zones        []string `json:"zones,omitempty" validate:"omitempty,max=20,dive,max=100"`
	MaxCapacity  int      `json:"max_capacity,omitempty" validate:"omitempty,gt=0"`
}

// DriverHeartbeat refreshes the caller's presence. Drivers only report for
// themselves; the driver id comes from the token.
func DriverHeartbeat(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req heartbeatRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := enums.ParseDriverAvailability(req.Availability)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid availability"))
			return
		}
		err = svc.Heartbeat(r.Context(), drivers.HeartbeatInput{
			DriverID:     actor.UserID,
			Availability: availability,
			Zone:         req.Zone,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "ok"})
	}
}

func DriverSetAvailability(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req availabilityRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		availability, err := enums.ParseDriverAvailability(req.Availability)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid availability"))
			return
		}
		err = svc.SetAvailability(r.Context(), drivers.AvailabilityInput{
			DriverID:     actor.UserID,
			Availability: availability,
			Zones:        req.Zones,
			MaxCapacity:  req.MaxCapacity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

func DriverStatus(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, err := parseUUIDParam(r, "driverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Status(r.Context(), driverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

func DriverHoldings(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		driverID, err := parseUUIDParam(r, "driverId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		holdings, err := svc.Holdings(r.Context(), driverID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, holdings)
	}
}

func AvailableDrivers(svc drivers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := svc.AvailableDrivers(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, views)
	}
}
