package contextkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, GetCaller(ctx))
	assert.Empty(t, GetRequestID(ctx))
	assert.False(t, IsImpersonating(ctx))

	caller := &Caller{Name: "ops", Role: "super_admin"}
	ctx = WithCaller(ctx, caller)
	ctx = WithRequestID(ctx, "req-42")
	ctx = WithImpersonating(ctx, true)

	assert.Same(t, caller, GetCaller(ctx))
	assert.Equal(t, "req-42", GetRequestID(ctx))
	assert.True(t, IsImpersonating(ctx))
}
