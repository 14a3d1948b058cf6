package rbac

import (
	"context"
	"strings"
	"sync"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// RoleStore mirrors the authority's role list.
type RoleStore struct {
	authority Authority
	logger    *observability.Logger

	mu    sync.RWMutex
	roles []Role
}

// NewRoleStore creates an empty role store.
func NewRoleStore(authority Authority, logger *observability.Logger) *RoleStore {
	return &RoleStore{
		authority: authority,
		logger:    observability.OrNop(logger).Component("roles"),
	}
}

// LoadAll replaces the local list with the authority's. On failure the list is left as it
// was and a *FetchError is returned.
func (s *RoleStore) LoadAll(ctx context.Context) ([]Role, error) {
	roles, err := s.authority.ListRoles(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("failed to load roles")
		return nil, &FetchError{Op: "load roles", Err: err}
	}

	s.mu.Lock()
	s.roles = roles
	s.mu.Unlock()

	return cloneRoles(roles), nil
}

// Roles returns a copy of the current list.
func (s *RoleStore) Roles() []Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneRoles(s.roles)
}

// Get returns the role with id.
func (s *RoleStore) Get(id int64) (Role, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.ID == id {
			return r, true
		}
	}
	return Role{}, false
}

// Remove drops the role with id from the local list.
func (s *RoleStore) Remove(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.roles[:0:0]
	for _, r := range s.roles {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	s.roles = kept
}

// FilterRoles keeps the roles whose display name or technical name contains term,
// case-insensitively. An empty term keeps every role.
func FilterRoles(roles []Role, term string) []Role {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return cloneRoles(roles)
	}
	var out []Role
	for _, r := range roles {
		if strings.Contains(strings.ToLower(r.DisplayName), term) ||
			strings.Contains(strings.ToLower(r.Name), term) {
			out = append(out, r)
		}
	}
	return out
}

// Paginate returns the zero-indexed page of items. Pages past the end, negative pages and
// non-positive sizes yield an empty slice.
func Paginate[T any](items []T, page, pageSize int) []T {
	if page < 0 || pageSize <= 0 {
		return []T{}
	}
	start := page * pageSize
	if start >= len(items) {
		return []T{}
	}
	end := start + pageSize
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return out
}

// PageCount returns how many pages of pageSize cover total items.
func PageCount(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

func cloneRoles(roles []Role) []Role {
	if roles == nil {
		return nil
	}
	out := make([]Role, len(roles))
	copy(out, roles)
	return out
}
