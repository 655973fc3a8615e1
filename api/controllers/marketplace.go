package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/internal/marketplace"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

type publishListingRequest struct {
	OrderID        uuid.UUID `json:"order_id" validate:"required"`
	DriverEarnings string    `json:"driver_earnings" validate:"required"`
}

type declineListingRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

func PublishListing(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req publishListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		earnings, err := decimal.NewFromString(req.DriverEarnings)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid driver earnings"))
			return
		}
		listing, err := svc.Publish(r.Context(), marketplace.PublishInput{
			OrderID:        req.OrderID,
			DriverEarnings: earnings,
			Actor:          marketplace.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, listing)
	}
}

func AcceptListing(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := parseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listing, err := svc.Accept(r.Context(), marketplace.AcceptInput{
			ListingID: listingID,
			Actor:     marketplace.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, listing)
	}
}

func DeclineListing(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		listingID, err := parseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req declineListingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err = svc.Decline(r.Context(), marketplace.DeclineInput{
			ListingID: listingID,
			Reason:    req.Reason,
			Actor:     marketplace.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "declined"})
	}
}

func OpenListings(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListOpen(r.Context(), marketplace.Actor{UserID: actor.UserID, Role: actor.Role}, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func ListingResponses(svc marketplace.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		listingID, err := parseUUIDParam(r, "listingId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		entries, err := svc.Responses(r.Context(), listingID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, entries)
	}
}
