package rbac

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// fakeAuthority is an in-memory Authority with call recording and fault injection.
type fakeAuthority struct {
	mu         sync.Mutex
	roles      []Role
	perms      []Permission
	assigned   map[int64][]int64
	nextID     int64
	calls      []string
	fail       map[string]error
	failRole   map[int64]error
	broadcasts []Notification

	// afterRolePermissions runs after a role's permissions were read, outside the lock.
	afterRolePermissions func(roleID int64)
}

func newFakeAuthority() *fakeAuthority {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	return &fakeAuthority{
		roles: []Role{
			{ID: 1, Name: "admin", DisplayName: "Administrador", IsSystemRole: true, IsActive: true, CreatedAt: ts, UpdatedAt: ts},
			{ID: 2, Name: "coordinator", DisplayName: "Coordinador", IsActive: true, CreatedAt: ts, UpdatedAt: ts},
			{ID: 3, Name: "auditor", DisplayName: "Auditor Externo", IsActive: false, CreatedAt: ts, UpdatedAt: ts},
		},
		perms: []Permission{
			{ID: 10, ResourceType: ResourceCourse, Action: ActionView, IsActive: true},
			{ID: 11, ResourceType: ResourceCourse, Action: ActionCreate, IsActive: true},
			{ID: 20, ResourceType: ResourceUser, Action: ActionView, IsActive: true},
			{ID: 12, ResourceType: ResourceCourse, Action: ActionDelete, IsActive: true},
			{ID: 30, ResourceType: ResourceReport, Action: ActionExport, Description: "Exportar reportes", IsActive: true},
		},
		assigned: map[int64][]int64{
			2: {10, 20},
			3: {30},
		},
		nextID:   100,
		fail:     make(map[string]error),
		failRole: make(map[int64]error),
	}
}

func remoteErr(op string, status int, detail string) *RemoteError {
	return &RemoteError{Op: op, StatusCode: status, Detail: detail}
}

func (f *fakeAuthority) record(op string) error {
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeAuthority) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *fakeAuthority) ResetCalls() {
	f.mu.Lock()
	f.calls = nil
	f.mu.Unlock()
}

func (f *fakeAuthority) SetFail(op string, err error) {
	f.mu.Lock()
	if err == nil {
		delete(f.fail, op)
	} else {
		f.fail[op] = err
	}
	f.mu.Unlock()
}

func (f *fakeAuthority) SetAssigned(roleID int64, ids ...int64) {
	f.mu.Lock()
	f.assigned[roleID] = ids
	f.mu.Unlock()
}

func (f *fakeAuthority) AddPermission(p Permission) {
	f.mu.Lock()
	f.perms = append(f.perms, p)
	f.mu.Unlock()
}

func (f *fakeAuthority) Assigned(roleID int64) []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int64(nil), f.assigned[roleID]...)
}

func (f *fakeAuthority) ListRoles(ctx context.Context) ([]Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListRoles"); err != nil {
		return nil, err
	}
	return append([]Role(nil), f.roles...), nil
}

func (f *fakeAuthority) ListPermissions(ctx context.Context, query PermissionQuery) ([]Permission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ListPermissions"); err != nil {
		return nil, err
	}
	out := make([]Permission, 0, len(f.perms))
	for _, p := range f.perms {
		if query.ActiveOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (f *fakeAuthority) ListRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	f.mu.Lock()
	err := f.record("ListRolePermissions")
	if err == nil {
		err = f.failRole[roleID]
	}
	var out []Permission
	if err == nil {
		out = []Permission{}
		for _, id := range f.assigned[roleID] {
			for _, p := range f.perms {
				if p.ID == id {
					out = append(out, p)
				}
			}
		}
	}
	hook := f.afterRolePermissions
	f.mu.Unlock()

	if hook != nil {
		hook(roleID)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (f *fakeAuthority) CreateRole(ctx context.Context, fields RoleFields) (Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("CreateRole"); err != nil {
		return Role{}, err
	}
	f.nextID++
	role := Role{
		ID:          f.nextID,
		Name:        fields.Name,
		DisplayName: fields.DisplayName,
		Description: fields.Description,
		IsActive:    fields.IsActive,
	}
	f.roles = append(f.roles, role)
	return role, nil
}

func (f *fakeAuthority) UpdateRole(ctx context.Context, roleID int64, fields RoleFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("UpdateRole"); err != nil {
		return err
	}
	for i := range f.roles {
		if f.roles[i].ID == roleID {
			f.roles[i].Name = fields.Name
			f.roles[i].DisplayName = fields.DisplayName
			f.roles[i].Description = fields.Description
			f.roles[i].IsActive = fields.IsActive
			return nil
		}
	}
	return remoteErr("update role", http.StatusNotFound, "Rol no encontrado")
}

func (f *fakeAuthority) DeleteRole(ctx context.Context, roleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("DeleteRole"); err != nil {
		return err
	}
	for i := range f.roles {
		if f.roles[i].ID == roleID {
			f.roles = append(f.roles[:i], f.roles[i+1:]...)
			delete(f.assigned, roleID)
			return nil
		}
	}
	return remoteErr("delete role", http.StatusNotFound, "Rol no encontrado")
}

func (f *fakeAuthority) ClearRolePermissions(ctx context.Context, roleID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("ClearRolePermissions"); err != nil {
		return err
	}
	if len(f.assigned[roleID]) == 0 {
		return remoteErr("clear role permissions", http.StatusNotFound, "No hay permisos para eliminar")
	}
	delete(f.assigned, roleID)
	return nil
}

func (f *fakeAuthority) AssignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("AssignPermissions"); err != nil {
		return err
	}
	f.assigned[roleID] = append(f.assigned[roleID], permissionIDs...)
	return nil
}

func (f *fakeAuthority) Broadcast(ctx context.Context, n Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("Broadcast"); err != nil {
		return err
	}
	f.broadcasts = append(f.broadcasts, n)
	return nil
}

func countCalls(calls []string, op string) int {
	n := 0
	for _, c := range calls {
		if c == op {
			n++
		}
	}
	return n
}
