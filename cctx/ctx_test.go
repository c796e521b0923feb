package cctx

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithIsCopyOnWrite(t *testing.T) {
	base := New(context.Background(), map[string]any{"env": "test"})
	child := With(base, "route", "/customer")

	_, ok := Get(base, "route")
	assert.False(t, ok, "parent ctx must not see child writes")

	v, ok := GetAs[string](child, "route")
	require.True(t, ok)
	assert.Equal(t, "/customer", v)

	env, ok := GetAs[string](child, "env")
	require.True(t, ok)
	assert.Equal(t, "test", env)
}

func TestGetAsWrongType(t *testing.T) {
	ctx := With(context.Background(), "n", 1)
	_, ok := GetAs[string](ctx, "n")
	assert.False(t, ok)
}

func TestAllReturnsCopy(t *testing.T) {
	nested := map[string]any{"k": "v"}
	ctx := With(context.Background(), "nested", nested)

	all := All(ctx)
	all["nested"].(map[string]any)["k"] = "changed"

	again := All(ctx)
	assert.Equal(t, "v", again["nested"].(map[string]any)["k"])
	assert.Empty(t, All(context.Background()))
}

func TestDetachIgnoresCancel(t *testing.T) {
	parent, cancel := context.WithCancel(With(context.Background(), "k", "v"))
	cancel()

	detached := Detach(parent)
	assert.NoError(t, detached.Err())
	v, ok := GetAs[string](detached, "k")
	require.True(t, ok)
	assert.Equal(t, "v", v)
}

func TestDetachWithTimeout(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()

	ctx, stop := DetachWithTimeout(parent, 20*time.Millisecond)
	defer stop()
	assert.NoError(t, ctx.Err())

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("detached ctx did not time out")
	}

	noTimeout, stop2 := DetachWithTimeout(parent, 0)
	defer stop2()
	_, hasDeadline := noTimeout.Deadline()
	assert.False(t, hasDeadline)
}
