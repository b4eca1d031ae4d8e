package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reputationkit/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, cleanup
}

var created = time.Date(2026, 2, 1, 8, 0, 0, 0, time.UTC)

func TestStore_CreateAndLoad(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	ctx := context.Background()

	snap := core.NewSnapshot("alice", "ALICE001", created)
	require.NoError(t, store.Create(ctx, snap))

	got, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, core.UserID("alice"), got.UserID)
	assert.Equal(t, int64(1), got.Level)
	assert.True(t, got.CreatedAt.Equal(created))
	assert.Empty(t, got.Badges)

	err = store.Create(ctx, snap)
	assert.ErrorIs(t, err, core.ErrUserExists)

	err = store.Create(ctx, core.NewSnapshot("mallory", "ALICE001", created))
	assert.ErrorIs(t, err, core.ErrUserExists)

	_, err = store.Load(ctx, "nobody")
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestStore_CommitDelta(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	ctx := context.Background()

	snap := core.NewSnapshot("alice", "ALICE001", created)
	require.NoError(t, store.Create(ctx, snap))

	d := core.NoopDelta(snap)
	d.PointsDelta, d.NewTotal, d.NewAvailable = 120, 120, 120
	d.NewLevel = 2
	d.NewBadges = []core.EarnedBadge{{Name: "first_review", Icon: "✍️", EarnedAt: created}}

	next, err := store.CommitDelta(ctx, "alice", d, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), next.Version)
	assert.Equal(t, int64(120), next.PointsTotal)
	assert.Equal(t, int64(2), next.Level)

	// stale version
	_, err = store.CommitDelta(ctx, "alice", d, 0)
	assert.ErrorIs(t, err, core.ErrConflict)

	loaded, err := store.Load(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, next.Version, loaded.Version)
	require.Len(t, loaded.Badges, 1)
	assert.Equal(t, "first_review", loaded.Badges[0].Name)

	_, err = store.CommitDelta(ctx, "ghost", d, 0)
	assert.ErrorIs(t, err, core.ErrUserNotFound)
}

func TestStore_ConcurrentCommitsNeverLoseUpdates(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "test")
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, core.NewSnapshot("u", "", created)))

	const workers = 10
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				cur, err := store.Load(ctx, "u")
				if err != nil {
					t.Error(err)
					return
				}
				d := core.NoopDelta(cur)
				d.NewTotal = cur.PointsTotal + 5
				d.NewAvailable = cur.PointsAvailable + 5
				_, err = store.CommitDelta(ctx, "u", d, cur.Version)
				if err == nil {
					return
				}
				if !assert.ErrorIs(t, err, core.ErrConflict) {
					return
				}
			}
		}()
	}
	wg.Wait()

	final, err := store.Load(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*5), final.PointsTotal)
	assert.Equal(t, uint64(workers), final.Version)
}

func TestStore_ReferralIndexAndAll(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "")
	ctx := context.Background()
	require.NoError(t, store.Create(ctx, core.NewSnapshot("alice", "ALICE001", created)))
	require.NoError(t, store.Create(ctx, core.NewSnapshot("bob", "BOB00002", created)))

	id, ok, err := store.FindByReferralCode(ctx, "alice001")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, core.UserID("alice"), id)

	_, ok, err = store.FindByReferralCode(ctx, "NOPE0000")
	require.NoError(t, err)
	assert.False(t, ok)

	all, err := store.All(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	exists, err := client.Exists(ctx, "reputation:user:alice").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestStore_AllEmpty(t *testing.T) {
	client, cleanup := newTestClient(t)
	defer cleanup()

	all, err := NewWithClient(client, "test").All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestConfig_DefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "localhost:6379", config.Addr)
	assert.Equal(t, "", config.Password)
	assert.Equal(t, 0, config.DB)
	assert.Equal(t, 10, config.PoolSize)
	assert.Equal(t, 2, config.MinIdleConns)
	assert.Equal(t, 5*time.Second, config.DialTimeout)
	assert.Equal(t, 3*time.Second, config.ReadTimeout)
	assert.Equal(t, 3*time.Second, config.WriteTimeout)
	assert.Equal(t, "reputation", config.KeyPrefix)
}
