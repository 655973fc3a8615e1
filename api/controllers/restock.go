package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/internal/restock"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

type submitRestockRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
	Notes     *string   `json:"notes,omitempty" validate:"omitempty,max=1000"`
}

type approveRestockRequest struct {
	Qty *int `json:"qty,omitempty" validate:"omitempty,gt=0"`
}

type fulfillRestockRequest struct {
	Qty *int `json:"qty,omitempty" validate:"omitempty,gt=0"`
}

type rejectRestockRequest struct {
	Reason *string `json:"reason,omitempty" validate:"omitempty,max=1000"`
}

func SubmitRestock(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req submitRestockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Submit(r.Context(), restock.SubmitInput{
			ProductID: req.ProductID,
			Qty:       req.Qty,
			Notes:     req.Notes,
			Actor:     restock.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func ApproveRestock(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := parseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req approveRestockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Approve(r.Context(), restock.ApproveInput{
			RequestID: requestID,
			Qty:       req.Qty,
			Actor:     restock.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func FulfillRestock(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := parseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req fulfillRestockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Fulfill(r.Context(), restock.FulfillInput{
			RequestID: requestID,
			Qty:       req.Qty,
			Actor:     restock.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func RejectRestock(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := parseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req rejectRestockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Reject(r.Context(), restock.RejectInput{
			RequestID: requestID,
			Reason:    req.Reason,
			Actor:     restock.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func RestockDetail(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := parseUUIDParam(r, "requestId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		request, err := svc.Find(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func RestockList(svc restock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildRestockFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), params, filters)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func buildRestockFilters(r *http.Request) (restock.Filters, error) {
	var filters restock.Filters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseRestockStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("product_id")); raw != "" {
		productID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product_id filter")
		}
		filters.ProductID = &productID
	}
	return filters, nil
}
