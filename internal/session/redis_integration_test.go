//go:build integration

package session

import (
	"context"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/vpriesta/mds-form/internal/document"
	"github.com/vpriesta/mds-form/internal/formbind"
)

func startRedis(ctx context.Context, t *testing.T) *goredis.Client {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	rdb := goredis.NewClient(&goredis.Options{Addr: endpoint})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	rdb := startRedis(ctx, t)
	schema := formbind.MustDefaultSchema()
	store := NewRedisStore(rdb, time.Minute, schema)

	s, err := store.Create(ctx, "alice", "user")
	require.NoError(t, err)

	form := formbind.New(schema, "a1", "alice")
	require.NoError(t, form.SetSection("blok_4", document.Object(document.M("n", document.Int(3)))))
	s.Open(form)
	require.NoError(t, store.Save(ctx, s))

	got, err := store.Get(ctx, s.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", got.Username)
	require.True(t, got.Editing("a1"))
	require.Equal(t, form.Payload.Keys(), got.Form.Payload.Keys())
	n, ok := got.Form.Payload.Lookup("blok_4", "n")
	require.True(t, ok)
	require.Equal(t, document.KindInt, n.Kind())

	ttl, err := rdb.TTL(ctx, redisKeyPrefix+s.ID).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))

	require.NoError(t, store.Delete(ctx, s.ID))
	_, err = store.Get(ctx, s.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
