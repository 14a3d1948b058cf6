package rbac

import (
	"context"
	"errors"
	"sync"
)

// SessionState is the lifecycle of one create or edit form.
type SessionState int

const (
	StateIdle SessionState = iota
	StateEditing
	StateSubmitting
	StateCommitted
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateEditing:
		return "editing"
	case StateSubmitting:
		return "submitting"
	case StateCommitted:
		return "committed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrSessionState is returned when a session is used in a state that does not allow it.
var ErrSessionState = errors.New("rbac: invalid session state")

// Session holds the draft of one role being created or edited. The draft never aliases
// the committed assignment map.
type Session struct {
	engine *Engine

	mu     sync.Mutex
	state  SessionState
	role   *Role
	fields RoleFields
	draft  []int64
	// saved holds the fields the authority last accepted for role.
	saved RoleFields
	// retryAssign is set after the role was saved but its permissions were not.
	retryAssign bool
	lastErr     error
}

// BeginCreate opens a session for a new, active role with no permissions.
func (e *Engine) BeginCreate() *Session {
	return &Session{
		engine: e,
		state:  StateEditing,
		fields: RoleFields{IsActive: true},
		draft:  []int64{},
	}
}

// BeginEdit opens a session prefilled with role's fields and its current permissions,
// read fresh from the authority. Submit replaces the whole set, so a failed read returns
// the error instead of a session seeded with an empty draft.
//
// Assigned permissions missing from the catalog (deactivated since they were granted)
// are left out of the draft and will be removed on Submit.
func (e *Engine) BeginEdit(ctx context.Context, role Role) (*Session, error) {
	perms, err := e.Assignments.LoadFor(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	if !e.Catalog.Loaded() {
		if _, err := e.Catalog.LoadAll(ctx); err != nil {
			return nil, err
		}
	}
	draft := PermissionIDs(perms)
	if stale := e.Catalog.Unknown(draft); len(stale) > 0 {
		e.logger.WithFields(map[string]interface{}{
			"role_id":        role.ID,
			"permission_ids": stale,
		}).Warn("dropping assigned permissions missing from the catalog")
		for _, id := range stale {
			draft = TogglePermission(draft, id, false)
		}
	}
	r := role
	return &Session{
		engine: e,
		state:  StateEditing,
		role:   &r,
		fields: role.Fields(),
		saved:  role.Fields(),
		draft:  draft,
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error of the last failed Submit.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Role returns the role being edited, or the created role once the authority assigned it
// an id. ok is false for a create that has not reached the authority yet.
func (s *Session) Role() (Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.role == nil {
		return Role{}, false
	}
	return *s.role, true
}

// Fields returns the drafted role attributes.
func (s *Session) Fields() RoleFields {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fields
}

// Draft returns a copy of the selected permission ids.
func (s *Session) Draft() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, len(s.draft))
	copy(out, s.draft)
	return out
}

// SetFields replaces the drafted attributes.
func (s *Session) SetFields(fields RoleFields) error {
	return s.edit(func() { s.fields = fields })
}

// Toggle selects or deselects one permission.
func (s *Session) Toggle(permissionID int64, selected bool) error {
	return s.edit(func() { s.draft = TogglePermission(s.draft, permissionID, selected) })
}

// SelectGroup selects or deselects every permission of a resource group.
func (s *Session) SelectGroup(group ResourceGroup, selected bool) error {
	return s.edit(func() { s.draft = SelectResource(s.draft, group, selected) })
}

func (s *Session) edit(fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateEditing, StateFailed:
		fn()
		s.state = StateEditing
		return nil
	default:
		return ErrSessionState
	}
}

// Submit sends the draft to the authority. After a partial failure where the role was
// saved but its permissions were not, the next Submit only retries the permissions,
// unless the fields were edited since, in which case the full update runs again.
func (s *Session) Submit(ctx context.Context) (Role, error) {
	s.mu.Lock()
	if s.state != StateEditing && s.state != StateFailed {
		s.mu.Unlock()
		return Role{}, ErrSessionState
	}
	s.state = StateSubmitting
	var role *Role
	if s.role != nil {
		r := *s.role
		role = &r
	}
	fields := s.fields
	draft := make([]int64, len(s.draft))
	copy(draft, s.draft)
	retryAssign := s.retryAssign && s.fields == s.saved
	s.mu.Unlock()

	var err error
	switch {
	case retryAssign:
		err = s.engine.ReassignPermissions(ctx, role.ID, draft)
	case role == nil:
		var created Role
		created, err = s.engine.CreateRole(ctx, fields, draft)
		if err == nil || created.ID != 0 {
			role = &created
		}
	default:
		err = s.engine.UpdateRole(ctx, *role, fields, draft)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	if err != nil {
		var partial *PartialFailureError
		s.retryAssign = errors.As(err, &partial)
		if s.retryAssign && !retryAssign {
			s.saved = fields
		}
		s.state = StateFailed
		s.lastErr = err
		return Role{}, err
	}

	if stored, ok := s.engine.Roles.Get(role.ID); ok {
		role = &stored
		s.role = role
	}
	s.retryAssign = false
	s.saved = fields
	s.state = StateCommitted
	s.lastErr = nil
	return *role, nil
}

// Cancel abandons the session.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.state != StateSubmitting {
		s.state = StateIdle
	}
	s.mu.Unlock()
}

// TogglePermission returns a new draft with permissionID added or removed.
func TogglePermission(draft []int64, permissionID int64, selected bool) []int64 {
	out := make([]int64, 0, len(draft)+1)
	found := false
	for _, id := range draft {
		if id == permissionID {
			found = true
			if !selected {
				continue
			}
		}
		out = append(out, id)
	}
	if selected && !found {
		out = append(out, permissionID)
	}
	return out
}

// SelectResource returns a new draft with every permission of group added or removed.
func SelectResource(draft []int64, group ResourceGroup, selected bool) []int64 {
	out := append([]int64(nil), draft...)
	for _, id := range group.IDs() {
		out = TogglePermission(out, id, selected)
	}
	if out == nil {
		out = []int64{}
	}
	return out
}

// Coverage describes how much of a resource group a draft selects.
type Coverage int

const (
	CoverageNone Coverage = iota
	CoveragePartial
	CoverageAll
)

func (c Coverage) String() string {
	switch c {
	case CoveragePartial:
		return "partial"
	case CoverageAll:
		return "all"
	default:
		return "none"
	}
}

// DraftCoverage reports whether draft selects none, some or all of group. An empty group
// has no coverage.
func DraftCoverage(draft []int64, group ResourceGroup) Coverage {
	if len(group.Permissions) == 0 {
		return CoverageNone
	}
	selected := make(map[int64]struct{}, len(draft))
	for _, id := range draft {
		selected[id] = struct{}{}
	}
	n := 0
	for _, p := range group.Permissions {
		if _, ok := selected[p.ID]; ok {
			n++
		}
	}
	switch {
	case n == 0:
		return CoverageNone
	case n == len(group.Permissions):
		return CoverageAll
	default:
		return CoveragePartial
	}
}
