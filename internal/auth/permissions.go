package auth

// Permission represents a named capability of the inspection API.
type Permission string

// Permission constants.
const (
	PermHistoryRead  Permission = "history:read"
	PermHistoryClear Permission = "history:clear"
	PermFilterRead   Permission = "filter:read"
	PermFilterWrite  Permission = "filter:write"
	PermRulesRead    Permission = "rules:read"
	PermRulesWrite   Permission = "rules:write"
	PermPublish      Permission = "mqtt:publish"
	PermActivityRead Permission = "activity:read"
)

// rolePermissions maps each role to its granted permissions.
var rolePermissions = map[Role][]Permission{
	RoleViewer: {
		PermHistoryRead,
		PermFilterRead,
		PermRulesRead,
		PermActivityRead,
	},
	RoleOperator: {
		PermHistoryRead,
		PermHistoryClear,
		PermFilterRead,
		PermFilterWrite,
		PermRulesRead,
		PermRulesWrite,
		PermPublish,
		PermActivityRead,
	},
}

// HasPermission returns true if the given role has the specified permission.
func HasPermission(role Role, perm Permission) bool {
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// PermissionsForRole returns all permissions granted to a role.
// Returns nil for unknown roles.
func PermissionsForRole(role Role) []Permission {
	perms := rolePermissions[role]
	if perms == nil {
		return nil
	}
	result := make([]Permission, len(perms))
	copy(result, perms)
	return result
}
