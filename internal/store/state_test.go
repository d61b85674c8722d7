package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateStoreRoundTrip(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)

	require.NoError(t, s.SaveState(ctx, "abc123", 5*time.Minute))

	state, err = s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", state)

	require.NoError(t, s.DeleteState(ctx))

	state, err = s.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state)
}

func TestMemoryStateStoreExpiry(t *testing.T) {
	s := NewMemoryStateStore()
	ctx := context.Background()

	current := time.Now()
	s.now = func() time.Time { return current }

	require.NoError(t, s.SaveState(ctx, "abc123", 5*time.Minute))

	current = current.Add(4 * time.Minute)
	state, err := s.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc123", state)

	current = current.Add(2 * time.Minute)
	state, err = s.State(ctx)
	require.NoError(t, err)
	assert.Empty(t, state, "state past its TTL should read as absent")
}
