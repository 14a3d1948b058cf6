package rbac

import "context"

// Authority is the remote source of truth for roles, permissions and assignments.
// Implementations report failures as *RemoteError.
type Authority interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context, query PermissionQuery) ([]Permission, error)
	ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error)

	CreateRole(ctx context.Context, fields RoleFields) (Role, error)
	UpdateRole(ctx context.Context, roleID int64, fields RoleFields) error
	DeleteRole(ctx context.Context, roleID int64) error

	// ClearRolePermissions removes every assignment of the role. A 404 means there was
	// nothing to delete.
	ClearRolePermissions(ctx context.Context, roleID int64) error
	AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	Broadcaster
}

// Broadcaster delivers a notification to a remote audience.
type Broadcaster interface {
	Broadcast(ctx context.Context, n Notification) error
}
