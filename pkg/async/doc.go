// Package async provides safe concurrent execution primitives.
//
// # Key Functions
//
// SafeGo: Execute a background function with panic recovery and an optional timeout
//
//	async.SafeGo(ctx, 0, "redis relay", func(ctx context.Context) error {
//		return relay.Listen(ctx, notifier)
//	})
//
// Settle: Run one task per key concurrently and collect every outcome, never letting
// one failure cancel the rest (a settle-all join)
//
//	results := async.Settle(ctx, roleIDs, 8, func(ctx context.Context, id int64) ([]rbac.Permission, error) {
//		return authority.ListRolePermissions(ctx, id)
//	})
//
// # Related Packages
//
//   - pkg/rbac: AssignmentMap.RefreshAll fans out per-role fetches with Settle
//   - pkg/notify: the Redis relay listener runs under SafeGo
package async
