package enums

// Permission names a capability required by a mutating operation. The
// role-to-permission mapping lives in internal/permissions; services only name
// the capability they need.
type Permission string

const (
	PermRequestRestock    Permission = "can_request_restock"
	PermApproveRestock    Permission = "can_approve_restock"
	PermFulfillRestock    Permission = "can_fulfill_restock"
	PermTransferInventory Permission = "can_transfer_inventory"
	PermAdjustInventory   Permission = "can_adjust_inventory"
	PermCreateOrders      Permission = "orders:create"
	PermCancelOrders      Permission = "orders:cancel"
	PermUpdateOrderStatus Permission = "orders:update_status"
	PermAssignDriver      Permission = "orders:assign_driver"
	PermRespondListings   Permission = "listings:respond"
)

// String implements fmt.Stringer.
func (p Permission) String() string {
	return string(p)
}
