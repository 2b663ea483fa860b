package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/rescuecom-dashboard/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) (*Snapshots, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSnapshots_SaveLoadOverwrite(t *testing.T) {
	ctx := context.Background()
	s, _ := openTemp(t)

	require.NoError(t, s.Save(ctx, store.SnapshotKey, []byte(`[{"id":"REQ-1"}]`)))
	require.NoError(t, s.Save(ctx, store.SnapshotKey, []byte(`[{"id":"REQ-2"}]`)))

	data, err := s.Load(ctx, store.SnapshotKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"id":"REQ-2"}]`, string(data))
}

func TestSnapshots_MissingSlot(t *testing.T) {
	s, _ := openTemp(t)

	_, err := s.Load(context.Background(), "absent")
	require.ErrorIs(t, err, store.ErrNoSnapshot)
}

func TestSnapshots_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	require.NoError(t, s.Save(ctx, store.SnapshotKey, []byte(`[]`)))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	data, err := reopened.Load(ctx, store.SnapshotKey)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(data))
}
