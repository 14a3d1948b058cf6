package rbac

import (
	"context"
	"strings"
	"sync"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

// DefaultResourceLabels are the friendly names shown for known resource types.
func DefaultResourceLabels() map[string]string {
	return map[string]string{
		ResourceUser:             "Usuarios",
		ResourceCourse:           "Cursos",
		ResourceEnrollment:       "Inscripciones",
		ResourceEvaluation:       "Evaluaciones",
		ResourceSurvey:           "Encuestas",
		ResourceCertificate:      "Certificados",
		ResourceAttendance:       "Asistencia",
		ResourceReport:           "Reportes",
		ResourceNotification:     "Notificaciones",
		ResourceWorker:           "Trabajadores",
		ResourceReinduction:      "Reinducciones",
		ResourceAdminConfig:      "Configuración Administrativa",
		ResourceSeguimiento:      "Seguimiento de Salud Ocupacional",
		ResourceOccupationalExam: "Exámenes Ocupacionales",
		ResourceProgress:         "Progreso de Usuarios",
	}
}

// Catalog holds every permission known to the authority, fetched once per session.
type Catalog struct {
	authority Authority
	query     PermissionQuery
	logger    *observability.Logger

	mu     sync.RWMutex
	perms  []Permission
	byID   map[int64]Permission
	labels map[string]string
	loaded bool
}

// NewCatalog creates an empty catalog that loads with query.
func NewCatalog(authority Authority, query PermissionQuery, logger *observability.Logger) *Catalog {
	return &Catalog{
		authority: authority,
		query:     query,
		logger:    observability.OrNop(logger).Component("catalog"),
		byID:      make(map[int64]Permission),
		labels:    DefaultResourceLabels(),
	}
}

// LoadAll fetches the permission list. On failure the previous contents are kept and a
// *FetchError is returned.
func (c *Catalog) LoadAll(ctx context.Context) ([]Permission, error) {
	perms, err := c.authority.ListPermissions(ctx, c.query)
	if err != nil {
		c.logger.WithError(err).Warn("failed to load permissions")
		return nil, &FetchError{Op: "load permissions", Err: err}
	}

	byID := make(map[int64]Permission, len(perms))
	for _, p := range perms {
		byID[p.ID] = p
	}

	c.mu.Lock()
	c.perms = perms
	c.byID = byID
	c.loaded = true
	c.mu.Unlock()

	c.logger.WithField("count", len(perms)).Debug("permissions loaded")
	return clonePermissions(perms), nil
}

// Loaded reports whether a LoadAll has ever succeeded.
func (c *Catalog) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}

// Permissions returns a copy of the catalog in authority order.
func (c *Catalog) Permissions() []Permission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return clonePermissions(c.perms)
}

// Lookup returns the permission with id.
func (c *Catalog) Lookup(id int64) (Permission, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.byID[id]
	return p, ok
}

// Unknown returns the ids not present in the catalog, in input order.
func (c *Catalog) Unknown(ids []int64) []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var unknown []int64
	for _, id := range ids {
		if _, ok := c.byID[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	return unknown
}

// SetLabels merges labels over the defaults. A nil map restores the defaults.
func (c *Catalog) SetLabels(labels map[string]string) {
	merged := DefaultResourceLabels()
	for k, v := range labels {
		merged[k] = v
	}
	c.mu.Lock()
	c.labels = merged
	c.mu.Unlock()
}

// DisplayNameFor returns the friendly label for resourceType, falling back to the raw tag
// with underscores replaced by spaces.
func (c *Catalog) DisplayNameFor(resourceType string) string {
	c.mu.RLock()
	label, ok := c.labels[resourceType]
	c.mu.RUnlock()
	if ok {
		return label
	}
	return strings.ReplaceAll(resourceType, "_", " ")
}

// ResourceGroup is the permissions of one resource type.
type ResourceGroup struct {
	ResourceType string
	Permissions  []Permission
}

// IDs returns the ids of the group's permissions.
func (g ResourceGroup) IDs() []int64 {
	ids := make([]int64, 0, len(g.Permissions))
	for _, p := range g.Permissions {
		ids = append(ids, p.ID)
	}
	return ids
}

// GroupByResource groups permissions by resource type. Groups are ordered by the first
// occurrence of their resource type; permissions keep their input order.
func GroupByResource(perms []Permission) []ResourceGroup {
	index := make(map[string]int)
	var groups []ResourceGroup
	for _, p := range perms {
		i, ok := index[p.ResourceType]
		if !ok {
			i = len(groups)
			index[p.ResourceType] = i
			groups = append(groups, ResourceGroup{ResourceType: p.ResourceType})
		}
		groups[i].Permissions = append(groups[i].Permissions, p)
	}
	return groups
}

// SearchPermissions keeps the permissions whose resource type, action, description or
// resource label contains term, case-insensitively. label may be nil.
func SearchPermissions(perms []Permission, term string, label func(string) string) []Permission {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return clonePermissions(perms)
	}
	var out []Permission
	for _, p := range perms {
		fields := []string{p.ResourceType, p.Action, p.Description}
		if label != nil {
			fields = append(fields, label(p.ResourceType))
		}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), term) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

func clonePermissions(perms []Permission) []Permission {
	if perms == nil {
		return nil
	}
	out := make([]Permission, len(perms))
	copy(out, perms)
	return out
}
