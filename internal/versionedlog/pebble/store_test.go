package pebble

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chronomint/verscache/internal/errors"
	"github.com/chronomint/verscache/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_EmptyLog(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	_, ok, err := store.LatestVersion(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	kvs, err := store.VersionsInRange(ctx, 0, 100)
	require.NoError(t, err)
	assert.Empty(t, kvs)
}

func TestStore_AppendAssignsContiguousVersions(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := model.EntityKey{Kind: "user", ID: "u1"}

	for i := 0; i < 5; i++ {
		v, err := store.Append(ctx, key, []byte(`{}`), false)
		require.NoError(t, err)
		assert.Equal(t, model.Version(i), v)
	}

	latest, ok, err := store.LatestVersion(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, model.Version(4), latest)
}

func TestStore_SnapshotAt(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u1 := model.EntityKey{Kind: "user", ID: "u1"}
	u2 := model.EntityKey{Kind: "user", ID: "u2"}

	v0, err := store.Append(ctx, u1, []byte(`"a"`), false)
	require.NoError(t, err)
	_, err = store.Append(ctx, u2, []byte(`"b"`), false)
	require.NoError(t, err)
	v2, err := store.Append(ctx, u1, []byte(`"c"`), false)
	require.NoError(t, err)

	snap, err := store.SnapshotAt(ctx, u1, v0)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"a"`), snap.Data)
	assert.False(t, snap.Deleted)
	assert.False(t, snap.HasPrev)

	snap, err = store.SnapshotAt(ctx, u1, v2)
	require.NoError(t, err)
	assert.Equal(t, []byte(`"c"`), snap.Data)
	require.True(t, snap.HasPrev)
	assert.Equal(t, v0, snap.PrevVersion)
}

func TestStore_SnapshotAtContractViolation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u1 := model.EntityKey{Kind: "user", ID: "u1"}
	u2 := model.EntityKey{Kind: "user", ID: "u2"}

	v0, err := store.Append(ctx, u1, []byte(`{}`), false)
	require.NoError(t, err)

	// Unwritten version.
	_, err = store.SnapshotAt(ctx, u1, v0+1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeContractViolation, errors.GetCode(err))

	// Version written for a different key.
	_, err = store.SnapshotAt(ctx, u2, v0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeContractViolation, errors.GetCode(err))
}

func TestStore_Tombstone(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	key := model.EntityKey{Kind: "user", ID: "u1"}

	v0, err := store.Append(ctx, key, []byte(`"a"`), false)
	require.NoError(t, err)
	v1, err := store.Append(ctx, key, nil, true)
	require.NoError(t, err)

	snap, err := store.SnapshotAt(ctx, key, v1)
	require.NoError(t, err)
	assert.True(t, snap.Deleted)
	require.True(t, snap.HasPrev)
	assert.Equal(t, v0, snap.PrevVersion)
}

func TestStore_VersionsInRange(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	u1 := model.EntityKey{Kind: "user", ID: "u1"}
	u2 := model.EntityKey{Kind: "user", ID: "u2"}
	o1 := model.EntityKey{Kind: "order", ID: "o1"}

	for _, w := range []struct {
		key  model.EntityKey
		data string
	}{
		{u1, `"a"`}, // v0
		{u2, `"b"`}, // v1
		{u1, `"c"`}, // v2
		{o1, `"d"`}, // v3
	} {
		_, err := store.Append(ctx, w.key, []byte(w.data), false)
		require.NoError(t, err)
	}

	kvs, err := store.VersionsInRange(ctx, 0, 3)
	require.NoError(t, err)
	byKey := make(map[model.EntityKey]model.Version)
	for _, kv := range kvs {
		byKey[kv.Key] = kv.Version
	}
	assert.Equal(t, map[model.EntityKey]model.Version{
		u1: 2,
		u2: 1,
		o1: 3,
	}, byKey)

	kvs, err = store.VersionsInRange(ctx, 1, 2)
	require.NoError(t, err)
	byKey = make(map[model.EntityKey]model.Version)
	for _, kv := range kvs {
		byKey[kv.Key] = kv.Version
	}
	assert.Equal(t, map[model.EntityKey]model.Version{
		u1: 2,
		u2: 1,
	}, byKey)

	kvs, err = store.VersionsInRange(ctx, 4, 10)
	require.NoError(t, err)
	assert.Empty(t, kvs)
}
