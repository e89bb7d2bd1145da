package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/energizer-project/sourcequery/internal/protocol"
)

func newTestStore(t *testing.T) *SnapshotStore {
	t.Helper()
	store, err := NewSnapshotStore(context.Background(), filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSnapshotStore_SaveAndHistory(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	summary := protocol.Summary{
		Engine:     protocol.EngineSource,
		Name:       "Test Server",
		Map:        "de_dust2",
		Game:       "Counter-Strike",
		Players:    5,
		MaxPlayers: 10,
		RTT:        12500 * time.Microsecond,
	}

	_, err := store.Save(ctx, SuccessSnapshot("10.0.0.1:27015", summary, base))
	require.NoError(t, err)
	_, err = store.Save(ctx, FailureSnapshot("10.0.0.1:27015", errors.New("timeout"), base.Add(time.Minute)))
	require.NoError(t, err)
	_, err = store.Save(ctx, SuccessSnapshot("10.0.0.2:27015", summary, base))
	require.NoError(t, err)

	history, err := store.History(ctx, "10.0.0.1:27015", 10)
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.False(t, history[0].Online)
	assert.Equal(t, "timeout", history[0].Error)

	assert.True(t, history[1].Online)
	assert.Equal(t, protocol.EngineSource, history[1].Engine)
	assert.Equal(t, "de_dust2", history[1].Map)
	assert.Equal(t, 5, history[1].Players)
	assert.InDelta(t, 12.5, history[1].RTTMillis, 0.001)
	assert.True(t, base.Equal(history[1].CreatedAt))

	limited, err := store.History(ctx, "10.0.0.1:27015", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSnapshotStore_Latest(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	_, err := store.Latest(ctx, "10.0.0.9:27015")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	now := time.Now()
	_, err = store.Save(ctx, SuccessSnapshot("10.0.0.9:27015", protocol.Summary{Name: "old"}, now.Add(-time.Minute)))
	require.NoError(t, err)
	_, err = store.Save(ctx, SuccessSnapshot("10.0.0.9:27015", protocol.Summary{Name: "new"}, now))
	require.NoError(t, err)

	latest, err := store.Latest(ctx, "10.0.0.9:27015")
	require.NoError(t, err)
	assert.Equal(t, "new", latest.Name)
}

func TestSnapshotStore_Prune(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	now := time.Now()

	for _, age := range []time.Duration{10 * 24 * time.Hour, 8 * 24 * time.Hour, time.Hour} {
		_, err := store.Save(ctx, SuccessSnapshot("10.0.0.1:27015", protocol.Summary{}, now.Add(-age)))
		require.NoError(t, err)
	}

	removed, err := store.Prune(ctx, now.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	history, err := store.History(ctx, "10.0.0.1:27015", 0)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
