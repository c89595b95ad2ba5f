package rbac

import "slices"

// Permissions checked by the notification service.
const (
	PermissionCreateNotification = "notification:create"
	PermissionReadNotification   = "notification:read"
	PermissionViewConnections    = "connections:view"
	PermissionRefreshIdentity    = "identity:refresh"
)

// Back office roles.
const (
	RoleDefaultAdmin     = "DEFAULT_ADMIN_ROLE"
	RoleSupplyController = "SUPPLY_CONTROLLER_ROLE"
	RoleMinter           = "MINTER_ROLE"
	RoleOperator         = "OPERATOR_ROLE"
)

// Permissions implied by holding a role. Explicit permissions on the
// identity are checked first.
var rolePermissions = map[string][]string{
	RoleDefaultAdmin: {
		PermissionCreateNotification,
		PermissionReadNotification,
		PermissionViewConnections,
		PermissionRefreshIdentity,
	},
	RoleSupplyController: {
		PermissionCreateNotification,
		PermissionReadNotification,
	},
	RoleMinter: {
		PermissionReadNotification,
	},
	RoleOperator: {
		PermissionReadNotification,
	},
}

// Subject is the identity snapshot a check runs against.
type Subject struct {
	AdminID      string
	Roles        []string
	Permissions  []string
	IsSuperAdmin bool
}

// HasPermission reports whether s holds permission directly, through a
// role, or by being a super admin.
func HasPermission(s Subject, permission string) bool {
	if s.IsSuperAdmin {
		return true
	}
	if slices.Contains(s.Permissions, permission) {
		return true
	}
	for _, role := range s.Roles {
		if slices.Contains(rolePermissions[role], permission) {
			return true
		}
	}
	return false
}

// CheckPermission is HasPermission returning an error for handlers.
func CheckPermission(s Subject, permission string) error {
	if !HasPermission(s, permission) {
		return &PermissionDeniedError{
			AdminID:    s.AdminID,
			Permission: permission,
		}
	}
	return nil
}

// PermissionDeniedError means the subject lacks a permission.
type PermissionDeniedError struct {
	AdminID    string
	Permission string
}

func (e *PermissionDeniedError) Error() string {
	return "insufficient permissions"
}

// ValidateAdminID checks that the admin id claimed in a payload matches
// the one carried by the token.
func ValidateAdminID(tokenAdminID, payloadAdminID string) error {
	if tokenAdminID != payloadAdminID {
		return &AdminIDMismatchError{
			TokenAdminID:   tokenAdminID,
			PayloadAdminID: payloadAdminID,
		}
	}
	return nil
}

// AdminIDMismatchError means a payload named a different admin than its token.
type AdminIDMismatchError struct {
	TokenAdminID   string
	PayloadAdminID string
}

func (e *AdminIDMismatchError) Error() string {
	return "adminId does not match token"
}
