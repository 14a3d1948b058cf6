package rbac

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// Source tells where an effective permission set came from.
type Source string

const (
	SourceCustomRole Source = "custom_role"
	SourceSystemRole Source = "system_role"
)

// Effective is the permission set that governs a user. It comes from exactly one source.
type Effective struct {
	Source      Source       `json:"source"`
	Role        *Role        `json:"role,omitempty"`
	SystemRole  SystemRole   `json:"system_role"`
	Permissions []Permission `json:"permissions"`
}

// Allows reports whether any permission of the set grants resourceType/action.
func (e Effective) Allows(resourceType, action string) bool {
	for _, p := range e.Permissions {
		if p.Matches(resourceType, action) {
			return true
		}
	}
	return false
}

// clone copies e so the copy shares nothing with it.
func (e Effective) clone() Effective {
	if e.Role != nil {
		r := *e.Role
		e.Role = &r
	}
	e.Permissions = clonePermissions(e.Permissions)
	return e
}

// Resolver computes effective permissions: an active, known custom role replaces the
// system role's built-in set entirely.
type Resolver struct {
	roles       *RoleStore
	assignments *AssignmentMap
	builtins    BuiltInPermissions
}

// NewResolver creates a resolver. A nil builtins uses DefaultBuiltInPermissions.
func NewResolver(roles *RoleStore, assignments *AssignmentMap, builtins BuiltInPermissions) *Resolver {
	if builtins == nil {
		builtins = DefaultBuiltInPermissions()
	}
	return &Resolver{roles: roles, assignments: assignments, builtins: builtins}
}

// Resolver returns a resolver over the engine's stores.
func (e *Engine) Resolver(builtins BuiltInPermissions) *Resolver {
	return NewResolver(e.Roles, e.Assignments, builtins)
}

// Resolve returns the effective permissions of user. When the custom role's assignments
// have to be fetched and the fetch fails, the set is empty and the *FetchError is returned
// alongside it.
func (r *Resolver) Resolve(ctx context.Context, user User) (Effective, error) {
	if user.CustomRoleID != nil {
		if role, ok := r.roles.Get(*user.CustomRoleID); ok && role.IsActive {
			perms, loaded := r.assignments.Get(role.ID)
			var err error
			if !loaded {
				perms, err = r.assignments.LoadFor(ctx, role.ID)
			}
			return Effective{
				Source:      SourceCustomRole,
				Role:        &role,
				SystemRole:  user.SystemRole,
				Permissions: perms,
			}, err
		}
	}

	return Effective{
		Source:      SourceSystemRole,
		SystemRole:  user.SystemRole,
		Permissions: r.builtins.For(user.SystemRole),
	}, nil
}

// CachedResolver memoizes Resolve results per user in an expiring LRU. The cache is purged
// on every notifier event.
type CachedResolver struct {
	resolver *Resolver
	cache    *lru.LRU[string, Effective]
	metrics  *observability.Metrics
}

// NewCachedResolver wraps resolver. notifier may be nil, in which case entries only expire
// by ttl.
func NewCachedResolver(resolver *Resolver, size int, ttl time.Duration, notifier *Notifier, metrics *observability.Metrics) *CachedResolver {
	if size <= 0 {
		size = 1024
	}
	c := &CachedResolver{
		resolver: resolver,
		cache:    lru.NewLRU[string, Effective](size, nil, ttl),
		metrics:  metrics,
	}
	if notifier != nil {
		notifier.Handle(func(Event) { c.Purge() })
	}
	return c
}

// Resolve returns the cached result for user, resolving on a miss. Failed resolutions are
// not cached.
func (c *CachedResolver) Resolve(ctx context.Context, user User) (Effective, error) {
	key := cacheKey(user)
	if eff, ok := c.cache.Get(key); ok {
		c.metrics.CacheLookup(true)
		return eff.clone(), nil
	}
	c.metrics.CacheLookup(false)

	eff, err := c.resolver.Resolve(ctx, user)
	if err != nil {
		return eff, err
	}
	c.cache.Add(key, eff.clone())
	return eff, nil
}

// Purge drops every cached result.
func (c *CachedResolver) Purge() {
	c.cache.Purge()
}

// Len returns the number of cached results.
func (c *CachedResolver) Len() int {
	return c.cache.Len()
}

func cacheKey(u User) string {
	custom := "-"
	if u.CustomRoleID != nil {
		custom = fmt.Sprint(*u.CustomRoleID)
	}
	return fmt.Sprintf("%d|%s|%s", u.ID, u.SystemRole, custom)
}
