package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*IdempotencyStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewIdempotencyStore(client, time.Minute), mr
}

func TestCheckAndInsertClaimsKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:customer"))
	err := store.CheckAndInsert(ctx, "batch-1", "recon:customer")
	require.ErrorIs(t, err, ErrIdempotencyConflict)
}

func TestCheckAndInsertScopesAreIndependent(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:customer"))
	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:vendor"))
}

func TestCheckAndInsertExpiredKeyCanBeReclaimed(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:item"))
	mr.FastForward(2 * time.Minute)
	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:item"))
}

func TestDeleteReleasesKey(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:payment"))
	require.NoError(t, store.Delete(ctx, "batch-1", "recon:payment"))
	require.NoError(t, store.CheckAndInsert(ctx, "batch-1", "recon:payment"))
}

func TestCheckAndInsertRequiresKeyAndScope(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.Error(t, store.CheckAndInsert(ctx, "", "recon:customer"))
	require.Error(t, store.CheckAndInsert(ctx, "batch-1", ""))
}
