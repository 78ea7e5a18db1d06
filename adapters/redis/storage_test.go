package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"questline/core"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis, func()) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cleanup := func() {
		_ = client.Close()
		mr.Close()
	}
	return client, mr, cleanup
}

func TestStore_SaveAndGetProfile(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "ql")
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

	err := store.SaveProfile(ctx, core.Profile{UserID: "alice", XP: 260, Level: 3, Coins: 100, Streak: 4, Updated: at})
	require.NoError(t, err)

	assert.Equal(t, "260", mr.HGet("ql:profile:alice", "xp"))
	assert.Equal(t, "3", mr.HGet("ql:profile:alice", "level"))

	p, err := store.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, core.Profile{UserID: "alice", XP: 260, Level: 3, Coins: 100, Streak: 4, Updated: at}, p)
}

func TestStore_SaveOverwritesAndBumpsVersion(t *testing.T) {
	client, _, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "ql")
	ctx := context.Background()

	require.NoError(t, store.SaveProfile(ctx, core.Profile{UserID: "bob", XP: 10}))
	require.NoError(t, store.SaveProfile(ctx, core.Profile{UserID: "bob", XP: 0, Streak: 0}))

	p, err := store.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Zero(t, p.XP)
	assert.False(t, p.Updated.IsZero())

	v, err := store.Version(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)
}

func TestStore_GetProfile_NotFound(t *testing.T) {
	client, _, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "ql")
	_, err := store.GetProfile(context.Background(), "nonexistent-user")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)

	v, err := store.Version(context.Background(), "nonexistent-user")
	require.NoError(t, err)
	assert.Zero(t, v)
}

func TestStore_GetProfile_Corrupt(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	mr.HSet("ql:profile:eve", "xp", "lots")
	store := NewWithClient(client, "ql")
	_, err := store.GetProfile(context.Background(), "eve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt profile field xp")
}

func TestStore_SaveProfile_EmptyUser(t *testing.T) {
	// This test doesn't need Redis connection
	store := &Store{}
	err := store.SaveProfile(context.Background(), core.Profile{UserID: ""})
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "")
	ctx := context.Background()
	require.NoError(t, store.SaveProfile(ctx, core.Profile{UserID: "carol", XP: 5}))
	assert.True(t, mr.Exists("profile:carol"))

	require.NoError(t, store.Delete(ctx, "carol"))
	_, err := store.GetProfile(ctx, "carol")
	assert.ErrorIs(t, err, core.ErrProfileNotFound)
}

func TestStore_Unavailable(t *testing.T) {
	client, mr, cleanup := newTestClient(t)
	defer cleanup()

	store := NewWithClient(client, "ql")
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, store.Ping(ctx))
	assert.Error(t, store.SaveProfile(ctx, core.Profile{UserID: "dan", XP: 1}))
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
	assert.Equal(t, "questline", config.KeyPrefix)
}
