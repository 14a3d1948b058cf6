// Package authoritytest provides an in-memory role authority served over HTTP, with
// request recording and fault injection.
package authoritytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/rolesync/pkg/rbac"
)

// Route names accepted by Fail.
const (
	RouteListRoles           = "list_roles"
	RouteCreateRole          = "create_role"
	RouteUpdateRole          = "update_role"
	RouteDeleteRole          = "delete_role"
	RouteListPermissions     = "list_permissions"
	RouteListRolePermissions = "list_role_permissions"
	RouteClearPermissions    = "clear_role_permissions"
	RouteBulkAssign          = "bulk_assign"
	RouteBroadcast           = "broadcast"
)

// Fault makes a route answer with Status and Detail. Times limits how many requests fail;
// zero fails every request.
type Fault struct {
	Status int
	Detail string
	Times  int
}

// Request is one recorded call.
type Request struct {
	Route         string
	Method        string
	Path          string
	Query         string
	RequestID     string
	Authorization string
}

// Server is an authority backed by memory.
type Server struct {
	*httptest.Server

	mu         sync.Mutex
	token      string
	roles      map[int64]rbac.Role
	perms      []rbac.Permission
	assigned   map[int64][]int64
	nextID     int64
	faults     map[string]*Fault
	requests   []Request
	broadcasts []rbac.Notification
}

// New starts a server that is closed when tb finishes. A non-empty token is required as a
// bearer token on every request.
func New(tb testing.TB, token string) *Server {
	s := &Server{
		token:    token,
		roles:    make(map[int64]rbac.Role),
		assigned: make(map[int64][]int64),
		nextID:   1000,
		faults:   make(map[string]*Fault),
	}
	s.Server = httptest.NewServer(s.Handler())
	tb.Cleanup(s.Close)
	return s
}

// Handler returns the authority routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.record, s.authenticate, s.inject)

	r.HandleFunc("/permissions/roles/", s.listRoles).Methods(http.MethodGet).Name(RouteListRoles)
	r.HandleFunc("/permissions/roles/", s.createRole).Methods(http.MethodPost).Name(RouteCreateRole)
	r.HandleFunc("/permissions/roles/{id:[0-9]+}", s.updateRole).Methods(http.MethodPut).Name(RouteUpdateRole)
	r.HandleFunc("/permissions/roles/{id:[0-9]+}", s.deleteRole).Methods(http.MethodDelete).Name(RouteDeleteRole)
	r.HandleFunc("/permissions/roles/{id:[0-9]+}/permissions/", s.listRolePermissions).Methods(http.MethodGet).Name(RouteListRolePermissions)
	r.HandleFunc("/permissions/roles/{id:[0-9]+}/permissions/", s.clearRolePermissions).Methods(http.MethodDelete).Name(RouteClearPermissions)
	r.HandleFunc("/permissions/", s.listPermissions).Methods(http.MethodGet).Name(RouteListPermissions)
	r.HandleFunc("/permissions/bulk-assign-permissions", s.bulkAssign).Methods(http.MethodPost).Name(RouteBulkAssign)
	r.HandleFunc("/notifications/broadcast", s.broadcast).Methods(http.MethodPost).Name(RouteBroadcast)
	return r
}

// SeedRoles adds roles as given, ids included.
func (s *Server) SeedRoles(roles ...rbac.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range roles {
		s.roles[r.ID] = r
	}
}

// SeedPermissions appends permissions to the catalog.
func (s *Server) SeedPermissions(perms ...rbac.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perms = append(s.perms, perms...)
}

// Assign sets the permissions of a role.
func (s *Server) Assign(roleID int64, permissionIDs ...int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned[roleID] = append([]int64(nil), permissionIDs...)
}

// Assigned returns the permission ids of a role.
func (s *Server) Assigned(roleID int64) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.assigned[roleID]...)
}

// Role returns the stored role.
func (s *Server) Role(id int64) (rbac.Role, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.roles[id]
	return r, ok
}

// Fail injects a fault on route.
func (s *Server) Fail(route string, f Fault) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[route] = &f
}

// Heal removes every fault.
func (s *Server) Heal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = make(map[string]*Fault)
}

// Requests returns the recorded calls in arrival order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Routes returns the route names of the recorded calls.
func (s *Server) Routes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.requests))
	for _, r := range s.requests {
		out = append(out, r.Route)
	}
	return out
}

// Broadcasts returns the notifications received.
func (s *Server) Broadcasts() []rbac.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]rbac.Notification(nil), s.broadcasts...)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := ""
		if route := mux.CurrentRoute(r); route != nil {
			name = route.GetName()
		}
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Route:         name,
			Method:        r.Method,
			Path:          r.URL.Path,
			Query:         r.URL.RawQuery,
			RequestID:     r.Header.Get("X-Request-ID"),
			Authorization: r.Header.Get("Authorization"),
		})
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeDetail(w, http.StatusUnauthorized, "Could not validate credentials")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) inject(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := mux.CurrentRoute(r)
		if route == nil {
			next.ServeHTTP(w, r)
			return
		}
		s.mu.Lock()
		f, ok := s.faults[route.GetName()]
		var fault Fault
		if ok {
			fault = *f
			if f.Times > 0 {
				f.Times--
				if f.Times == 0 {
					delete(s.faults, route.GetName())
				}
			}
		}
		s.mu.Unlock()

		if ok {
			writeDetail(w, fault.Status, fault.Detail)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) listRoles(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	roles := make([]rbac.Role, 0, len(s.roles))
	for _, role := range s.roles {
		roles = append(roles, role)
	}
	s.mu.Unlock()
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	writeJSON(w, http.StatusOK, roles)
}

type validationEntry struct {
	Loc  []string `json:"loc"`
	Msg  string   `json:"msg"`
	Type string   `json:"type"`
}

func decodeFields(w http.ResponseWriter, r *http.Request) (rbac.RoleFields, bool) {
	var fields rbac.RoleFields
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON")
		return fields, false
	}
	var missing []validationEntry
	if fields.Name == "" {
		missing = append(missing, validationEntry{Loc: []string{"body", "name"}, Msg: "Field required", Type: "missing"})
	}
	if fields.DisplayName == "" {
		missing = append(missing, validationEntry{Loc: []string{"body", "display_name"}, Msg: "Field required", Type: "missing"})
	}
	if len(missing) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"detail": missing})
		return fields, false
	}
	return fields, true
}

func (s *Server) createRole(w http.ResponseWriter, r *http.Request) {
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == fields.Name {
			writeDetail(w, http.StatusBadRequest, "Ya existe un rol con ese nombre")
			return
		}
	}
	s.nextID++
	now := time.Now().UTC()
	role := rbac.Role{
		ID:          s.nextID,
		Name:        fields.Name,
		DisplayName: fields.DisplayName,
		Description: fields.Description,
		IsActive:    fields.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.roles[role.ID] = role
	writeJSON(w, http.StatusCreated, role)
}

func (s *Server) updateRole(w http.ResponseWriter, r *http.Request) {
	id := roleID(r)
	fields, ok := decodeFields(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Rol no encontrado")
		return
	}
	role.Name = fields.Name
	role.DisplayName = fields.DisplayName
	role.Description = fields.Description
	role.IsActive = fields.IsActive
	role.UpdatedAt = time.Now().UTC()
	s.roles[id] = role
	writeJSON(w, http.StatusOK, role)
}

func (s *Server) deleteRole(w http.ResponseWriter, r *http.Request) {
	id := roleID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Rol no encontrado")
		return
	}
	if role.IsSystemRole {
		writeDetail(w, http.StatusForbidden, "No se pueden eliminar roles del sistema")
		return
	}
	delete(s.roles, id)
	delete(s.assigned, id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Rol eliminado"})
}

func (s *Server) listPermissions(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("is_active") == "true"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	s.mu.Lock()
	out := make([]rbac.Permission, 0, len(s.perms))
	for _, p := range s.perms {
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) listRolePermissions(w http.ResponseWriter, r *http.Request) {
	id := roleID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Rol no encontrado")
		return
	}
	out := make([]rbac.Permission, 0, len(s.assigned[id]))
	for _, pid := range s.assigned[id] {
		for _, p := range s.perms {
			if p.ID == pid {
				out = append(out, p)
			}
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) clearRolePermissions(w http.ResponseWriter, r *http.Request) {
	id := roleID(r)

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.assigned[id]) == 0 {
		writeDetail(w, http.StatusNotFound, "No se encontraron permisos para el rol")
		return
	}
	delete(s.assigned, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) bulkAssign(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RoleID        int64   `json:"role_id"`
		PermissionIDs []int64 `json:"permission_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[body.RoleID]; !ok {
		writeDetail(w, http.StatusNotFound, "Rol no encontrado")
		return
	}
	known := make(map[int64]bool, len(s.perms))
	for _, p := range s.perms {
		known[p.ID] = true
	}
	have := make(map[int64]bool)
	for _, id := range s.assigned[body.RoleID] {
		have[id] = true
	}
	for _, id := range body.PermissionIDs {
		if !known[id] {
			writeDetail(w, http.StatusBadRequest, "Permiso "+strconv.FormatInt(id, 10)+" no existe")
			return
		}
	}
	for _, id := range body.PermissionIDs {
		if !have[id] {
			s.assigned[body.RoleID] = append(s.assigned[body.RoleID], id)
			have[id] = true
		}
	}
	writeJSON(w, http.StatusOK, map[string]int{"assigned": len(body.PermissionIDs)})
}

func (s *Server) broadcast(w http.ResponseWriter, r *http.Request) {
	var n rbac.Notification
	if err := json.NewDecoder(r.Body).Decode(&n); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	s.mu.Lock()
	s.broadcasts = append(s.broadcasts, n)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Notificación enviada"})
}

func roleID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
