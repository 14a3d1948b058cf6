package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrValidation     = errors.New("rbac: validation failed")
	ErrRemote         = errors.New("rbac: authority rejected request")
	ErrFetch          = errors.New("rbac: authority unreachable")
	ErrForbidden      = errors.New("rbac: forbidden")
	ErrPartialFailure = errors.New("rbac: partial failure")
)

// ValidationError is detected client-side before any network call.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// RemoteError is the single error type for failed authority calls. StatusCode is zero when
// the authority could not be reached or answered with something unreadable.
type RemoteError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *RemoteError) Error() string {
	if e.Unreachable() {
		return fmt.Sprintf("%s: authority unreachable: %v", e.Op, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: authority rejected request (%d): %s", e.Op, e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("%s: authority rejected request (%d)", e.Op, e.StatusCode)
}

func (e *RemoteError) Unwrap() error { return e.Err }

func (e *RemoteError) Is(target error) bool {
	if e.Unreachable() {
		return target == ErrFetch
	}
	return target == ErrRemote
}

// Unreachable reports whether the request never got an authority verdict.
func (e *RemoteError) Unreachable() bool { return e.StatusCode == 0 }

// NotFound reports whether the authority answered 404.
func (e *RemoteError) NotFound() bool { return e.StatusCode == http.StatusNotFound }

// FetchError is a transport failure with no authority detail available.
type FetchError struct {
	Op  string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s: fetch failed: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// ForbiddenError is returned when policy disallows the action.
type ForbiddenError struct {
	RoleID int64
	Reason string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

func (e *ForbiddenError) Is(target error) bool { return target == ErrForbidden }

// Stage names the step of a multi-step mutation that failed.
type Stage string

const (
	StageFields Stage = "fields"
	StageClear  Stage = "clear_permissions"
	StageAssign Stage = "assign_permissions"
)

// PartialFailureError means the authority state is genuinely partial: the steps before
// Stage succeeded and Stage failed.
type PartialFailureError struct {
	Stage  Stage
	RoleID int64
	Err    error
}

func (e *PartialFailureError) Error() string {
	switch e.Stage {
	case StageAssign:
		return fmt.Sprintf("role %d saved but permissions not assigned: %v", e.RoleID, e.Err)
	case StageClear:
		return fmt.Sprintf("role %d saved but previous permissions not cleared: %v", e.RoleID, e.Err)
	default:
		return fmt.Sprintf("role %d partially saved at %s: %v", e.RoleID, e.Stage, e.Err)
	}
}

func (e *PartialFailureError) Unwrap() error { return e.Err }

func (e *PartialFailureError) Is(target error) bool { return target == ErrPartialFailure }

// classify turns an authority failure into the engine taxonomy: unreachable becomes a
// FetchError, a 403 becomes a ForbiddenError, anything else stays a RemoteError.
func classify(op string, roleID int64, err error) error {
	var remote *RemoteError
	if !errors.As(err, &remote) {
		return &FetchError{Op: op, Err: err}
	}
	if remote.Unreachable() {
		return &FetchError{Op: op, Err: remote}
	}
	if remote.StatusCode == http.StatusForbidden {
		reason := remote.Detail
		if reason == "" {
			reason = "rejected by authority"
		}
		return &ForbiddenError{RoleID: roleID, Reason: reason}
	}
	return remote
}

// isNotFound reports whether err is an authority 404.
func isNotFound(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.NotFound()
}

// UserMessage renders err for a dismissible notification: the authority's detail when it
// gave one, otherwise a generic message for the error class.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var partial *PartialFailureError
	if errors.As(err, &partial) {
		switch partial.Stage {
		case StageAssign:
			return "El rol se guardó pero los permisos no se asignaron. Reintente la asignación."
		default:
			return "El rol se guardó parcialmente. Reintente la operación."
		}
	}

	var remote *RemoteError
	if errors.As(err, &remote) && remote.Detail != "" {
		return remote.Detail
	}

	var forbidden *ForbiddenError
	if errors.As(err, &forbidden) {
		return "No está permitido realizar esta acción: " + forbidden.Reason
	}

	var validation *ValidationError
	if errors.As(err, &validation) {
		return "Revise los campos del formulario: " + validation.Error()
	}

	if errors.Is(err, ErrFetch) {
		return "No se pudo contactar al servidor"
	}
	return "Error al guardar el rol"
}
