package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/talrozen/courierdesk-backend/api/middleware"
	"github.com/talrozen/courierdesk-backend/api/validators"
	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
	"github.com/talrozen/courierdesk-backend/pkg/pagination"
)

type requestActor struct {
	UserID uuid.UUID
	Role   enums.MemberRole
}

func actorFromRequest(r *http.Request) (requestActor, error) {
	userID, err := uuid.Parse(middleware.UserIDFromContext(r.Context()))
	if err != nil {
		return requestActor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "missing user identity")
	}
	role, err := enums.ParseMemberRole(middleware.RoleFromContext(r.Context()))
	if err != nil {
		return requestActor{}, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "missing actor role")
	}
	return requestActor{UserID: userID, Role: role}, nil
}

func parseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name)
	}
	return id, nil
}

func paginationParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
	}, nil
}
