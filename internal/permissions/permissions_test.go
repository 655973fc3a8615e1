package permissions

import (
	"context"
	"testing"

	"github.com/talrozen/courierdesk-backend/pkg/enums"
	pkgerrors "github.com/talrozen/courierdesk-backend/pkg/errors"
)

func TestStaticAuthorizerGrants(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuthorizer()

	tests := []struct {
		name    string
		role    enums.MemberRole
		perm    enums.Permission
		allowed bool
	}{
		{"admin approves restock", enums.RoleAdmin, enums.PermApproveRestock, true},
		{"operator cannot approve restock", enums.RoleOperator, enums.PermApproveRestock, false},
		{"operator fulfills restock", enums.RoleOperator, enums.PermFulfillRestock, true},
		{"salesperson requests restock", enums.RoleSalesperson, enums.PermRequestRestock, true},
		{"salesperson cannot cancel orders", enums.RoleSalesperson, enums.PermCancelOrders, false},
		{"driver responds to listings", enums.RoleDriver, enums.PermRespondListings, true},
		{"driver cannot adjust inventory", enums.RoleDriver, enums.PermAdjustInventory, false},
		{"unknown role denied", enums.MemberRole("intern"), enums.PermCreateOrders, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := auth.Allowed(tc.role, tc.perm); got != tc.allowed {
				t.Fatalf("Allowed(%s, %s) = %v, want %v", tc.role, tc.perm, got, tc.allowed)
			}
		})
	}
}

func TestRequireReturnsForbidden(t *testing.T) {
	t.Parallel()

	auth := NewStaticAuthorizer()
	err := auth.Require(context.Background(), enums.RoleDriver, enums.PermApproveRestock)
	if err == nil {
		t.Fatal("expected forbidden error")
	}
	if !pkgerrors.HasCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected FORBIDDEN code, got %v", err)
	}

	if err := auth.Require(context.Background(), enums.RoleAdmin, enums.PermApproveRestock); err != nil {
		t.Fatalf("admin should be allowed: %v", err)
	}
}
