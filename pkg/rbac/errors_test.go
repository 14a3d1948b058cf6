package rbac

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorSentinels(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
	}{
		{"validation", &ValidationError{Fields: map[string]string{"name": "is required"}}, ErrValidation},
		{"remote", remoteErr("op", http.StatusBadRequest, "x"), ErrRemote},
		{"unreachable", remoteErr("op", 0, ""), ErrFetch},
		{"fetch", &FetchError{Op: "op", Err: errors.New("eof")}, ErrFetch},
		{"forbidden", &ForbiddenError{Reason: "no"}, ErrForbidden},
		{"partial", &PartialFailureError{Stage: StageAssign, RoleID: 1}, ErrPartialFailure},
		{"wrapped", fmt.Errorf("save: %w", &ForbiddenError{Reason: "no"}), ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.err, tt.target)
		})
	}
}

func TestRemoteError(t *testing.T) {
	notFound := remoteErr("clear", http.StatusNotFound, "")
	assert.True(t, notFound.NotFound())
	assert.True(t, isNotFound(fmt.Errorf("wrap: %w", notFound)))
	assert.False(t, isNotFound(remoteErr("clear", http.StatusInternalServerError, "")))
	assert.Contains(t, notFound.Error(), "404")

	down := &RemoteError{Op: "list roles", Err: errors.New("connection refused")}
	assert.True(t, down.Unreachable())
	assert.Contains(t, down.Error(), "unreachable")
}

func TestValidationErrorMessageIsStable(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"name": "is required", "display_name": "is required"}}

	assert.Equal(t, "validation failed: display_name: is required; name: is required", err.Error())
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"authority detail", remoteErr("op", http.StatusBadRequest, "El rol ya existe"), "El rol ya existe"},
		{"no detail", remoteErr("op", http.StatusInternalServerError, ""), "Error al guardar el rol"},
		{"unreachable", &FetchError{Op: "op", Err: errors.New("timeout")}, "No se pudo contactar al servidor"},
		{"partial", &PartialFailureError{Stage: StageAssign}, "El rol se guardó pero los permisos no se asignaron. Reintente la asignación."},
		{"forbidden", &ForbiddenError{Reason: "system roles cannot be deleted"}, "No está permitido realizar esta acción: system roles cannot be deleted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, UserMessage(tt.err))
		})
	}
}
