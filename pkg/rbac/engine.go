package rbac

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/rolesync/pkg/observability"
)

const tracerName = "github.com/platinummonkey/rolesync/pkg/rbac"

var technicalNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// Engine orchestrates role mutations against the authority and keeps the local stores in
// sync by reloading them wholesale after every mutation.
type Engine struct {
	authority   Authority
	Catalog     *Catalog
	Roles       *RoleStore
	Assignments *AssignmentMap

	notifier *Notifier
	actor    *User
	validate *validator.Validate
	logger   *observability.Logger
	metrics  *observability.Metrics
	tracer   trace.Tracer
}

type engineOptions struct {
	logger      *observability.Logger
	metrics     *observability.Metrics
	notifier    *Notifier
	actor       *User
	concurrency int
	query       *PermissionQuery
}

// Option configures an Engine.
type Option func(*engineOptions)

// WithLogger sets the engine logger.
func WithLogger(l *observability.Logger) Option {
	return func(o *engineOptions) { o.logger = l }
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(o *engineOptions) { o.metrics = m }
}

// WithNotifier publishes role events after successful mutations.
func WithNotifier(n *Notifier) Option {
	return func(o *engineOptions) { o.notifier = n }
}

// WithActor restricts mutations to the given user; only admins may manage roles.
func WithActor(u User) Option {
	return func(o *engineOptions) { o.actor = &u }
}

// WithRefreshConcurrency bounds the per-role fan-out of reloads.
func WithRefreshConcurrency(n int) Option {
	return func(o *engineOptions) { o.concurrency = n }
}

// WithPermissionQuery overrides the catalog listing query.
func WithPermissionQuery(q PermissionQuery) Option {
	return func(o *engineOptions) { o.query = &q }
}

// NewEngine wires a catalog, role store and assignment map around authority.
func NewEngine(authority Authority, opts ...Option) *Engine {
	o := engineOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := observability.OrNop(o.logger)
	query := DefaultPermissionQuery()
	if o.query != nil {
		query = *o.query
	}

	return &Engine{
		authority:   authority,
		Catalog:     NewCatalog(authority, query, logger),
		Roles:       NewRoleStore(authority, logger),
		Assignments: NewAssignmentMap(authority, o.concurrency, logger, o.metrics),
		notifier:    o.notifier,
		actor:       o.actor,
		validate:    newValidator(),
		logger:      logger.Component("engine"),
		metrics:     o.metrics,
		tracer:      otel.Tracer(tracerName),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("technical_name", func(fl validator.FieldLevel) bool {
		return technicalNamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Bootstrap performs the first load of catalog, roles and assignments. Failures are
// non-fatal and returned joined.
func (e *Engine) Bootstrap(ctx context.Context) error {
	_, catalogErr := e.Catalog.LoadAll(ctx)
	return errors.Join(catalogErr, e.Reload(ctx))
}

// Reload invalidates the local role list and assignment map and fetches both again.
// Per-role assignment failures degrade to empty sets and are only logged.
func (e *Engine) Reload(ctx context.Context) error {
	ctx, span := e.tracer.Start(ctx, "rbac.Reload")
	defer span.End()

	roles, err := e.Roles.LoadAll(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	failures := e.Assignments.RefreshAll(ctx, roles)
	span.SetAttributes(
		attribute.Int("rbac.roles", len(roles)),
		attribute.Int("rbac.assignment_failures", len(failures)),
	)
	if len(failures) > 0 {
		e.logger.WithField("failed_roles", len(failures)).Warn("some role permissions could not be loaded")
	}
	return nil
}

// CreateRole creates a role and assigns permissionIDs to it. If the role is created but
// the assignment fails, a *PartialFailureError at StageAssign is returned together with the
// created role.
func (e *Engine) CreateRole(ctx context.Context, fields RoleFields, permissionIDs []int64) (role Role, err error) {
	ctx, done := e.begin(ctx, "create_role", 0)
	defer func() { done(err) }()

	if err = e.authorize(0); err != nil {
		return Role{}, err
	}
	if fields, err = e.validateFields(fields); err != nil {
		return Role{}, err
	}
	ids, err := e.checkPermissionIDs(ctx, permissionIDs)
	if err != nil {
		return Role{}, err
	}

	created, err := e.authority.CreateRole(ctx, fields)
	if err != nil {
		return Role{}, classify("create role", 0, err)
	}

	if err := e.assign(ctx, created.ID, ids); err != nil {
		e.reloadQuietly(ctx)
		return created, &PartialFailureError{Stage: StageAssign, RoleID: created.ID, Err: err}
	}

	e.reloadQuietly(ctx)
	e.publish(EventRoleCreated, created.ID)
	if stored, ok := e.Roles.Get(created.ID); ok {
		created = stored
	}
	return created, nil
}

// UpdateRole saves fields and replaces the role's permission set with permissionIDs, in
// strict order: fields, clear all assignments, bulk-assign. The sequence is not atomic; if
// the assignment fails after the clear, the role is left with no permissions and a
// *PartialFailureError is returned.
func (e *Engine) UpdateRole(ctx context.Context, role Role, fields RoleFields, permissionIDs []int64) (err error) {
	ctx, done := e.begin(ctx, "update_role", role.ID)
	defer func() { done(err) }()

	if err = e.authorize(role.ID); err != nil {
		return err
	}
	if fields, err = e.validateFields(fields); err != nil {
		return err
	}
	ids, err := e.checkPermissionIDs(ctx, permissionIDs)
	if err != nil {
		return err
	}

	if err := e.authority.UpdateRole(ctx, role.ID, fields); err != nil {
		return classify("update role", role.ID, err)
	}

	if err := e.replacePermissions(ctx, role.ID, ids); err != nil {
		e.reloadQuietly(ctx)
		return err
	}

	e.reloadQuietly(ctx)
	e.publish(EventRoleUpdated, role.ID)
	return nil
}

// ReassignPermissions retries only the permission step of a failed create or update.
func (e *Engine) ReassignPermissions(ctx context.Context, roleID int64, permissionIDs []int64) (err error) {
	ctx, done := e.begin(ctx, "reassign_permissions", roleID)
	defer func() { done(err) }()

	if err = e.authorize(roleID); err != nil {
		return err
	}
	ids, err := e.checkPermissionIDs(ctx, permissionIDs)
	if err != nil {
		return err
	}
	if err := e.replacePermissions(ctx, roleID, ids); err != nil {
		e.reloadQuietly(ctx)
		return err
	}
	e.reloadQuietly(ctx)
	e.publish(EventRoleUpdated, roleID)
	return nil
}

// DeleteRole deletes a custom role. System roles are refused without contacting the
// authority. Local state is only changed after the authority confirms.
func (e *Engine) DeleteRole(ctx context.Context, role Role) (err error) {
	ctx, done := e.begin(ctx, "delete_role", role.ID)
	defer func() { done(err) }()

	if role.IsSystemRole {
		return &ForbiddenError{RoleID: role.ID, Reason: "system roles cannot be deleted"}
	}
	if err = e.authorize(role.ID); err != nil {
		return err
	}

	if err := e.authority.DeleteRole(ctx, role.ID); err != nil {
		return classify("delete role", role.ID, err)
	}

	e.Roles.Remove(role.ID)
	e.Assignments.Drop(role.ID)
	e.reloadQuietly(ctx)
	e.publish(EventRoleDeleted, role.ID)
	return nil
}

// replacePermissions clears then assigns. Failures are reported as partial because the
// role fields were already saved.
func (e *Engine) replacePermissions(ctx context.Context, roleID int64, ids []int64) error {
	if err := e.authority.ClearRolePermissions(ctx, roleID); err != nil {
		if !isNotFound(err) {
			return &PartialFailureError{Stage: StageClear, RoleID: roleID, Err: classify("clear role permissions", roleID, err)}
		}
		e.logger.WithField("role_id", roleID).Debug("no permissions to clear")
	}
	if err := e.assign(ctx, roleID, ids); err != nil {
		return &PartialFailureError{Stage: StageAssign, RoleID: roleID, Err: err}
	}
	return nil
}

func (e *Engine) assign(ctx context.Context, roleID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if err := e.authority.AssignPermissions(ctx, roleID, ids); err != nil {
		return classify("assign permissions", roleID, err)
	}
	return nil
}

func (e *Engine) reloadQuietly(ctx context.Context) {
	if err := e.Reload(ctx); err != nil {
		e.logger.WithError(err).Warn("reload after mutation failed, local state is stale")
	}
}

func (e *Engine) publish(kind EventKind, roleID int64) {
	if e.notifier == nil {
		return
	}
	e.notifier.Publish(Event{Kind: kind, RoleID: roleID})
}

func (e *Engine) authorize(roleID int64) error {
	if e.actor == nil || e.actor.SystemRole == SystemRoleAdmin {
		return nil
	}
	return &ForbiddenError{RoleID: roleID, Reason: "only administrators can manage roles"}
}

func (e *Engine) validateFields(fields RoleFields) (RoleFields, error) {
	fields.Name = strings.TrimSpace(fields.Name)
	fields.DisplayName = strings.TrimSpace(fields.DisplayName)
	fields.Description = strings.TrimSpace(fields.Description)

	err := e.validate.Struct(fields)
	if err == nil {
		return fields, nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fields, &ValidationError{Fields: map[string]string{"fields": err.Error()}}
	}
	out := &ValidationError{Fields: make(map[string]string, len(verrs))}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			out.Fields[fe.Field()] = "is required"
		case "technical_name":
			out.Fields[fe.Field()] = "must contain only letters, digits, '_', '-' or '.'"
		default:
			out.Fields[fe.Field()] = "is invalid"
		}
	}
	return fields, out
}

// checkPermissionIDs deduplicates ids and verifies each belongs to the catalog, loading the
// catalog first if needed.
func (e *Engine) checkPermissionIDs(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	if !e.Catalog.Loaded() {
		if _, err := e.Catalog.LoadAll(ctx); err != nil {
			return nil, err
		}
	}

	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	if unknown := e.Catalog.Unknown(unique); len(unknown) > 0 {
		return nil, &ValidationError{Fields: map[string]string{
			"permission_ids": fmt.Sprintf("unknown permissions %v", unknown),
		}}
	}
	return unique, nil
}

// begin starts a span and returns the func that closes it and records metrics.
func (e *Engine) begin(ctx context.Context, op string, roleID int64) (context.Context, func(error)) {
	start := time.Now()
	ctx, span := e.tracer.Start(ctx, "rbac."+op, trace.WithAttributes(attribute.Int64("rbac.role_id", roleID)))
	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			observability.UpdateLoggerWithTraceContext(ctx, e.logger).WithFields(map[string]interface{}{
				"operation": op,
				"role_id":   roleID,
			}).WithError(err).Warn("operation failed")
		}
		span.End()
		e.metrics.ObserveOperation(op, start, err)
	}
}
