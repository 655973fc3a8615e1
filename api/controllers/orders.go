package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/api/responses"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/internal/orders"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/logger"
)

type orderItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Qty       int       `json:"qty" validate:"required,gt=0"`
}

type createOrderRequest struct {
	CustomerName    string             `json:"customer_name" validate:"required,max=200"`
	DeliveryAddress string             `json:"delivery_address" validate:"required,max=500"`
	Notes           *string            `json:"notes,omitempty" validate:"omitempty,max=1000"`
	Items           []orderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type orderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type assignDriverRequest struct {
	DriverID uuid.UUID `json:"driver_id" validate:"required"`
}

func CreateOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := orders.CreateOrderInput{
			CustomerName:    req.CustomerName,
			DeliveryAddress: req.DeliveryAddress,
			Notes:           req.Notes,
			Actor:           orders.Actor{UserID: actor.UserID, Role: actor.Role},
		}
		for _, item := range req.Items {
			input.Items = append(input.Items, orders.ItemInput{ProductID: item.ProductID, Qty: item.Qty})
		}
		order, err := svc.Create(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}

func CancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: orderID,
			Actor:   orders.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func UpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req orderStatusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseOrderStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}
		order, err := svc.UpdateStatus(r.Context(), orders.StatusInput{
			OrderID: orderID,
			Status:  status,
			Actor:   orders.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func AssignOrderDriver(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req assignDriverRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.AssignDriver(r.Context(), orders.AssignInput{
			OrderID:  orderID,
			DriverID: req.DriverID,
			Actor:    orders.Actor{UserID: actor.UserID, Role: actor.Role},
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderDetail(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := parseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Find(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}

func OrderList(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := paginationParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := buildOrderFilters(r)
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

func buildOrderFilters(r *http.Request) (orders.Filters, error) {
	var filters orders.Filters
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		filters.Status = &status
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("driver_id")); raw != "" {
		driverID, err := uuid.Parse(raw)
		if err != nil {
			return filters, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid driver_id filter")
		}
		filters.DriverID = &driverID
	}
	return filters, nil
}
