package constants

// User roles stored on the users table and carried in JWT claims.
const (
	RoleUser   = "user"
	RoleVendor = "vendor"
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
)

// Organization permissions
const (
	// Admin permissions
	PermAdminFull = "echoshop.admin.full-permit"
	PermOwnerFull = "echoshop.owner.full-permit"

	// Vendor and customer permissions
	PermVendorFull   = "echoshop.vendor.full-permit"
	PermCustomerFull = "echoshop.customer.full-permit"

	// Special permissions
	PermAny = "any"
)

// HeaderTwoFactorSession carries a verified challenge session token on
// requests to protected critical actions. The server re-validates the token
// on every request regardless of what the client claims.
const HeaderTwoFactorSession = "X-2FA-Session-Token"

// Permission groups for convenience
var (
	AdminPermissions = []string{
		PermAdminFull,
		PermOwnerFull,
	}
)

// RolePermissions maps a role to the permission set minted into its JWT.
func RolePermissions(role string) []string {
	switch role {
	case RoleAdmin:
		return []string{PermAdminFull}
	case RoleOwner:
		return []string{PermOwnerFull}
	case RoleVendor:
		return []string{PermVendorFull}
	default:
		return []string{PermCustomerFull}
	}
}
