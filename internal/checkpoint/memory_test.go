package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hoferino/manda/pkg/schema"
)

func TestMemoryStore_GetAbsentReturnsNil(t *testing.T) {
	store := NewMemoryStore()
	snap, err := store.Get(context.Background(), testKey(t))
	require.NoError(t, err)
	assert.Nil(t, snap)
}

func TestMemoryStore_PutGetRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	key := testKey(t)

	in := Merge(key, nil, Update{
		Messages: []schema.Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, store.Put(context.Background(), key, in))

	out, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, in.ThreadKey, out.ThreadKey)
	require.Len(t, out.Messages, 1)
	assert.Equal(t, "hello", out.Messages[0].Content)
}

func TestMemoryStore_SnapshotsAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	key := testKey(t)

	in := Merge(key, nil, Update{
		Messages: []schema.Message{{Role: "user", Content: "original"}},
	})
	require.NoError(t, store.Put(context.Background(), key, in))

	// Mutating the caller's copy does not leak into the store.
	in.Messages[0].Content = "mutated"

	out, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "original", out.Messages[0].Content)

	// Mutating a read result does not leak either.
	out.Messages[0].Content = "mutated again"
	again, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "original", again.Messages[0].Content)
}

func TestMemoryStore_ThreadKeysAreIsolated(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	keyA, err := schema.NewThreadKey(schema.WorkflowChat, "acme", "alice", "c1")
	require.NoError(t, err)
	keyB, err := schema.NewThreadKey(schema.WorkflowChat, "acme", "bob", "c1")
	require.NoError(t, err)

	require.NoError(t, store.Put(ctx, keyA, Merge(keyA, nil, Update{
		Messages: []schema.Message{{Role: "user", Content: "alice only"}},
	})))

	snapB, err := store.Get(ctx, keyB)
	require.NoError(t, err)
	assert.Nil(t, snapB)
}

func TestMemoryStore_Delete(t *testing.T) {
	store := NewMemoryStore()
	key := testKey(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, key, Merge(key, nil, Update{})))
	require.NoError(t, store.Delete(ctx, key))

	snap, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, snap)

	// Deleting an absent key is not an error.
	assert.NoError(t, store.Delete(ctx, key))
}

func TestMemoryStore_SweepRemovesStaleOnly(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	stale, err := schema.NewThreadKey(schema.WorkflowChat, "acme", "u1", "old")
	require.NoError(t, err)
	fresh, err := schema.NewThreadKey(schema.WorkflowChat, "acme", "u1", "new")
	require.NoError(t, err)

	staleSnap := Merge(stale, nil, Update{})
	staleSnap.UpdatedAt = time.Now().Add(-48 * time.Hour)
	require.NoError(t, store.Put(ctx, stale, staleSnap))
	require.NoError(t, store.Put(ctx, fresh, Merge(fresh, nil, Update{})))

	removed, err := store.Sweep(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	gone, err := store.Get(ctx, stale)
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := store.Get(ctx, fresh)
	require.NoError(t, err)
	assert.NotNil(t, kept)
}

func TestMemoryStore_RespectsCancelledContext(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := store.Get(ctx, testKey(t))
	assert.ErrorIs(t, err, context.Canceled)
}
