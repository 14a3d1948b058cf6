package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestID(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))

	ctx = WithRequestID(ctx, "req-1")
	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "req-1", ctx.Value(RequestIDKey))
}

func TestLogger(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, Logger(ctx))

	ctx = WithLogger(ctx, "anything")
	assert.Equal(t, "anything", Logger(ctx))
}
