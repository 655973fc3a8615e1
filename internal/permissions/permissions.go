package permissions

import (
	"context"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
)

// Actor identifies the caller of a protected operation.
type Actor struct {
	UserID string
	Role   enums.MemberRole
}

// Authorizer answers whether a role may perform a named capability.
type Authorizer interface {
	Require(ctx context.Context, role enums.MemberRole, perm enums.Permission) error
	Allowed(role enums.MemberRole, perm enums.Permission) bool
}

type staticAuthorizer struct {
	grants map[enums.MemberRole]map[enums.Permission]struct{}
}

// NewStaticAuthorizer returns the fixed role-to-capability mapping. Admin
// holds every capability; drivers only respond to listings.
func NewStaticAuthorizer() Authorizer {
	grants := map[enums.MemberRole][]enums.Permission{
		enums.RoleAdmin: {
			enums.PermRequestRestock,
			enums.PermApproveRestock,
			enums.PermFulfillRestock,
			enums.PermTransferInventory,
			enums.PermAdjustInventory,
			enums.PermCreateOrders,
			enums.PermCancelOrders,
			enums.PermUpdateOrderStatus,
			enums.PermAssignDriver,
		},
		enums.RoleOperator: {
			enums.PermRequestRestock,
			enums.PermFulfillRestock,
			enums.PermTransferInventory,
			enums.PermAdjustInventory,
			enums.PermCreateOrders,
			enums.PermCancelOrders,
			enums.PermUpdateOrderStatus,
			enums.PermAssignDriver,
		},
		enums.RoleSalesperson: {
			enums.PermRequestRestock,
			enums.PermCreateOrders,
		},
		enums.RoleDriver: {
			enums.PermRespondListings,
		},
	}

	built := make(map[enums.MemberRole]map[enums.Permission]struct{}, len(grants))
	for role, perms := range grants {
		set := make(map[enums.Permission]struct{}, len(perms))
		for _, p := range perms {
			set[p] = struct{}{}
		}
		built[role] = set
	}
	return &staticAuthorizer{grants: built}
}

func (a *staticAuthorizer) Allowed(role enums.MemberRole, perm enums.Permission) bool {
	set, ok := a.grants[role]
	if !ok {
		return false
	}
	_, ok = set[perm]
	return ok
}

func (a *staticAuthorizer) Require(_ context.Context, role enums.MemberRole, perm enums.Permission) error {
	if a.Allowed(role, perm) {
		return nil
	}
	return pkgerrors.New(pkgerrors.CodeForbidden, "role "+role.String()+" lacks "+perm.String())
}
