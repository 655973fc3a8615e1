package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/internal/audit"
	"github.com/talrozen/courierdesk-backend/internal/inventory"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

type transferStockRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	DriverID  uuid.UUID `json:"driver_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

type adjustStockRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	DriverID  *uuid.UUID `json:"driver_id,omitempty"`
	Delta     int        `json:"delta" validate:"required"`
	Reason    string     `json:"reason" validate:"required,max=500"`
}

type thresholdRequest struct {
	Threshold int `json:"threshold" validate:"min=0"`
}

// StockList pages through every inventory record.
func StockList(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// StockDetail returns the ledger position for one product.
func StockDetail(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		view, err := svc.Stock(r.Context(), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}

// StockHistory pages through the product's inventory log, newest first.
func StockHistory(auditSvc audit.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		productID, err := parseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := auditSvc.HistoryForProduct(r.Context(), productID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// TransferStock moves central stock onto a driver.
func TransferStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req transferStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err = svc.TransferToDriver(r.Context(), inventory.TransferInput{
			ProductID: req.ProductID,
			DriverID:  req.DriverID,
			Qty:       req.Qty,
			Actor:     inventory.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "transferred"})
	}
}

// AdjustStock applies a signed manual correction, against central stock or a
// driver's holdings when driver_id is present.
func AdjustStock(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req adjustStockRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if req.Delta == 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInvalidQuantity, "delta must be non-zero"))
			return
		}
		if req.DriverID != nil {
			err = svc.AdjustDriverStock(r.Context(), inventory.DriverAdjustInput{
				DriverID:  *req.DriverID,
				ProductID: req.ProductID,
				Delta:     req.Delta,
				Reason:    req.Reason,
				Actor:     inventory.Actor{UserID: actor.UserID, Role: actor.Role},
			})
		} else {
			err = svc.Adjust(r.Context(), inventory.AdjustInput{
				ProductID: req.ProductID,
				Delta:     req.Delta,
				Reason:    req.Reason,
				Actor:     inventory.Actor{UserID: actor.UserID, Role: actor.Role},
			})
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "adjusted"})
	}
}

// SetLowStockThreshold configures the alert level for one product.
func SetLowStockThreshold(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := parseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req thresholdRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		err = svc.SetLowStockThreshold(r.Context(), productID, req.Threshold,
			inventory.Actor{UserID: actor.UserID, Role: actor.Role})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}

// LowStockAlerts lists products at or below their alert threshold.
func LowStockAlerts(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		records, err := svc.LowStockAlerts(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}
