package rbac

import (
	"time"
)

// Resource types known to the authority. The authority may return others; these are the
// ones the built-in system roles and the default labels refer to.
const (
	ResourceUser             = "user"
	ResourceCourse           = "course"
	ResourceEnrollment       = "enrollment"
	ResourceEvaluation       = "evaluation"
	ResourceSurvey           = "survey"
	ResourceCertificate      = "certificate"
	ResourceAttendance       = "attendance"
	ResourceReport           = "report"
	ResourceNotification     = "notification"
	ResourceWorker           = "worker"
	ResourceReinduction      = "reinduction"
	ResourceAdminConfig      = "admin_config"
	ResourceSeguimiento      = "seguimiento"
	ResourceOccupationalExam = "occupational_exam"
	ResourceProgress         = "progress"
	ResourceRole             = "role"
)

// Actions known to the authority.
const (
	ActionView              = "view"
	ActionRead              = "read"
	ActionCreate            = "create"
	ActionUpdate            = "update"
	ActionDelete            = "delete"
	ActionSubmit            = "submit"
	ActionEnroll            = "enroll"
	ActionDownload          = "download"
	ActionExport            = "export"
	ActionAssignPermissions = "assign_permissions"
)

// Wildcard matches any resource type or action in a built-in permission.
const Wildcard = "*"

// Permission is an atomic (resource_type, action) capability grant.
type Permission struct {
	ID           int64  `json:"id"`
	ResourceType string `json:"resource_type"`
	Action       string `json:"action"`
	Description  string `json:"description,omitempty"`
	IsActive     bool   `json:"is_active"`
}

// Key returns the resource_type:action form of the permission.
func (p Permission) Key() string {
	return p.ResourceType + ":" + p.Action
}

// String returns a string representation of the permission
func (p Permission) String() string {
	return p.Key()
}

// Matches reports whether p grants resource/action, honoring Wildcard on either side of p.
func (p Permission) Matches(resourceType, action string) bool {
	return (p.ResourceType == Wildcard || p.ResourceType == resourceType) &&
		(p.Action == Wildcard || p.Action == action)
}

// Role is a named bundle of permissions. System roles are owned by the authority.
type Role struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	DisplayName  string    `json:"display_name"`
	Description  string    `json:"description,omitempty"`
	IsSystemRole bool      `json:"is_system_role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Fields returns the editable subset of the role.
func (r Role) Fields() RoleFields {
	return RoleFields{
		Name:        r.Name,
		DisplayName: r.DisplayName,
		Description: r.Description,
		IsActive:    r.IsActive,
	}
}

// RoleFields holds the non-permission attributes submitted on create and update.
type RoleFields struct {
	Name        string `json:"name" validate:"required,technical_name"`
	DisplayName string `json:"display_name" validate:"required"`
	Description string `json:"description"`
	IsActive    bool   `json:"is_active"`
}

// PermissionQuery narrows the permission listing.
type PermissionQuery struct {
	ActiveOnly bool
	Limit      int
}

// DefaultPermissionQuery mirrors what the role management screen requests.
func DefaultPermissionQuery() PermissionQuery {
	return PermissionQuery{ActiveOnly: true, Limit: 500}
}

// Notification is the payload sent to the authority's broadcast endpoint.
type Notification struct {
	Title       string       `json:"title"`
	Message     string       `json:"message"`
	Type        string       `json:"type"`
	TargetRoles []SystemRole `json:"target_roles"`
}

// SystemRole is the fixed, code-level role enumeration.
type SystemRole string

const (
	SystemRoleAdmin      SystemRole = "admin"
	SystemRoleTrainer    SystemRole = "trainer"
	SystemRoleEmployee   SystemRole = "employee"
	SystemRoleSupervisor SystemRole = "supervisor"
)

// SystemRoles returns every system role in declaration order.
func SystemRoles() []SystemRole {
	return []SystemRole{SystemRoleAdmin, SystemRoleTrainer, SystemRoleEmployee, SystemRoleSupervisor}
}

// Valid reports whether r is one of the fixed system roles.
func (r SystemRole) Valid() bool {
	switch r {
	case SystemRoleAdmin, SystemRoleTrainer, SystemRoleEmployee, SystemRoleSupervisor:
		return true
	}
	return false
}

// User is the subset of a user record needed to resolve effective permissions.
type User struct {
	ID           int64      `json:"id"`
	SystemRole   SystemRole `json:"role"`
	CustomRoleID *int64     `json:"custom_role_id,omitempty"`
}
