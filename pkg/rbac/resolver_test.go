package rbac

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64Ptr(v int64) *int64 { return &v }

func TestResolver(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Resolver(nil)

	tests := []struct {
		name       string
		user       User
		source     Source
		allowed    [][2]string
		notAllowed [][2]string
	}{
		{
			name:       "active custom role replaces built-ins",
			user:       User{ID: 1, SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(2)},
			source:     SourceCustomRole,
			allowed:    [][2]string{{ResourceCourse, ActionView}, {ResourceUser, ActionView}},
			notAllowed: [][2]string{{ResourceEvaluation, ActionSubmit}},
		},
		{
			name:       "inactive custom role falls back",
			user:       User{ID: 2, SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(3)},
			source:     SourceSystemRole,
			allowed:    [][2]string{{ResourceEvaluation, ActionSubmit}},
			notAllowed: [][2]string{{ResourceReport, ActionExport}},
		},
		{
			name:    "unknown custom role falls back",
			user:    User{ID: 3, SystemRole: SystemRoleTrainer, CustomRoleID: int64Ptr(404)},
			source:  SourceSystemRole,
			allowed: [][2]string{{ResourceCourse, ActionCreate}},
		},
		{
			name:    "no custom role",
			user:    User{ID: 4, SystemRole: SystemRoleAdmin},
			source:  SourceSystemRole,
			allowed: [][2]string{{ResourceRole, ActionDelete}, {"anything", "at_all"}},
		},
		{
			name:       "unknown system role is empty",
			user:       User{ID: 5, SystemRole: "guest"},
			source:     SourceSystemRole,
			notAllowed: [][2]string{{ResourceCourse, ActionView}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eff, err := r.Resolve(context.Background(), tt.user)
			require.NoError(t, err)

			assert.Equal(t, tt.source, eff.Source)
			assert.Equal(t, tt.user.SystemRole, eff.SystemRole)
			for _, a := range tt.allowed {
				assert.True(t, eff.Allows(a[0], a[1]), "%s:%s", a[0], a[1])
			}
			for _, a := range tt.notAllowed {
				assert.False(t, eff.Allows(a[0], a[1]), "%s:%s", a[0], a[1])
			}
		})
	}
}

func TestResolver_NeverMerges(t *testing.T) {
	e, _ := newTestEngine(t)
	r := e.Resolver(nil)

	eff, err := r.Resolve(context.Background(), User{SystemRole: SystemRoleAdmin, CustomRoleID: int64Ptr(2)})
	require.NoError(t, err)

	assert.Equal(t, SourceCustomRole, eff.Source)
	require.NotNil(t, eff.Role)
	assert.Equal(t, int64(2), eff.Role.ID)
	assert.ElementsMatch(t, []int64{10, 20}, PermissionIDs(eff.Permissions))
	assert.False(t, eff.Allows(ResourceRole, ActionDelete), "admin wildcard must not leak into a custom role")
}

func TestResolver_LoadsMissingAssignments(t *testing.T) {
	fa := newFakeAuthority()
	e := NewEngine(fa)
	_, err := e.Roles.LoadAll(context.Background())
	require.NoError(t, err)

	eff, err := e.Resolver(nil).Resolve(context.Background(), User{SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(2)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{10, 20}, PermissionIDs(eff.Permissions))

	fa.failRole[3] = remoteErr("list role permissions", http.StatusInternalServerError, "")
	e.Roles.roles[2].IsActive = true
	eff, err = e.Resolver(nil).Resolve(context.Background(), User{SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(3)})
	assert.ErrorIs(t, err, ErrFetch)
	assert.Equal(t, SourceCustomRole, eff.Source)
	assert.Empty(t, eff.Permissions)
}

func TestCachedResolver(t *testing.T) {
	notifier := NewNotifier(DefaultNotifierConfig(), nil, nil)
	e, _ := newTestEngine(t, WithNotifier(notifier))
	c := NewCachedResolver(e.Resolver(nil), 16, time.Minute, notifier, nil)
	user := User{ID: 9, SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(2)}

	eff, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	role := roleByID(t, e, 2)
	require.NoError(t, e.UpdateRole(context.Background(), role, role.Fields(), []int64{30}))
	assert.Equal(t, 0, c.Len(), "engine events purge the cache")

	eff, err = c.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, []int64{30}, PermissionIDs(eff.Permissions))
	assert.True(t, eff.Allows(ResourceReport, ActionExport))
}

func TestCachedResolver_HitReturnsCopy(t *testing.T) {
	e, _ := newTestEngine(t)
	c := NewCachedResolver(e.Resolver(nil), 0, time.Minute, nil, nil)
	user := User{ID: 1, SystemRole: SystemRoleTrainer}

	_, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	eff, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	eff.Permissions[0].Action = "tampered"

	again, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.NotEqual(t, "tampered", again.Permissions[0].Action)
}

func TestCachedResolver_HitCopiesRole(t *testing.T) {
	e, _ := newTestEngine(t)
	c := NewCachedResolver(e.Resolver(nil), 0, time.Minute, nil, nil)
	user := User{ID: 4, SystemRole: SystemRoleEmployee, CustomRoleID: int64Ptr(2)}

	first, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, first.Role)
	first.Role.DisplayName = "tampered"

	hit, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	require.NotNil(t, hit.Role)
	assert.Equal(t, "Coordinador", hit.Role.DisplayName)
	hit.Role.DisplayName = "tampered again"

	again, err := c.Resolve(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "Coordinador", again.Role.DisplayName)
}
