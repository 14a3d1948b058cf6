// Package cli provides the rolesync command-line interface for managing custom roles.
//
// # Overview
//
// This package implements the `rolesync` CLI tool for administrators to list roles and
// the permission catalog, create, edit and delete custom roles, broadcast permission
// change notices, inspect a user's effective permissions, and run a long-lived mirror of
// the authority that serves metrics and health probes.
//
// # Commands
//
// roles: List roles with their permission counts
//
//	rolesync roles --search coord --page 1 --page-size 10
//
// permissions: List the catalog grouped by resource
//
//	rolesync permissions --search cursos --role 12
//
// create: Create a custom role
//
//	rolesync create \
//		--name course_manager \
//		--display-name "Gestor de cursos" \
//		--permissions 10,11 \
//		--resources report
//
// update: Edit a role and replace its permissions
//
//	rolesync update --id 12 --add 20 --remove 11
//	rolesync update --id 12 --permissions 10,20   # replace the whole set
//
// delete: Delete a custom role. System roles are refused locally.
//
//	rolesync delete --id 12
//
// notify: Ask connected users to refresh their permissions
//
//	rolesync notify --audience trainer,employee
//
// effective: Resolve the permissions that govern a user
//
//	rolesync effective --role trainer --custom-role 12 --check course:view
//
// watch: Keep a synchronized mirror and serve /metrics, /health and /effective
//
//	rolesync watch --addr :9090
//
// # Configuration
//
// Every command accepts --authority, --token and --env-file. Everything else comes from
// the ROLESYNC_* environment, see pkg/config.
//
//	export ROLESYNC_AUTHORITY_URL="https://lms.example.com/api/v1"
//	export ROLESYNC_AUTHORITY_TOKEN="..."
//
// Errors from the authority are printed the way the role screen shows them: the
// authority's own detail when it sent one, otherwise a generic message.
//
// # Related Packages
//
//   - pkg/rbac: Engine, sessions and resolver
//   - pkg/authority: HTTP client for the authority
//   - pkg/notify: Redis relay for cross-instance notifications
package cli
