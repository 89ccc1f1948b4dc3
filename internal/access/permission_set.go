package access

import "github.com/northstarcredit/core/internal/authz"

// PermissionSet describes one of the fixed bundles roles are granted
// from. Unlike User and Role, permission sets are not event-sourced: the
// catalog is fixed at compile time, matching the closed Action vocabulary
// in internal/authz.
type PermissionSet struct {
	Name        string
	Description string
}

// PermissionSetCatalog lists the access permission sets (viewer and
// writer), satisfying the authz:permission_set:list action. The credit,
// deposit and custody permission sets defined in internal/authz are not
// listed.
func PermissionSetCatalog() []PermissionSet {
	return []PermissionSet{
		{
			Name:        string(authz.PermissionSetAccessViewer),
			Description: "read and list users, roles, and permission sets",
		},
		{
			Name:        string(authz.PermissionSetAccessWriter),
			Description: "create users and roles, and reassign user roles",
		},
	}
}
