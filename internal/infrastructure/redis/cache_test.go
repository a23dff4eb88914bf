package redis_test

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/ueckoken/kagi/internal/infrastructure/redis"
)

// fakeCmdable answers the three commands RedisCache issues from a map.
type fakeCmdable struct {
	goredis.Cmdable
	data    map[string]string
	ttls    map[string]time.Duration
	failErr error
}

func newFake() *fakeCmdable {
	return &fakeCmdable{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeCmdable) Get(ctx context.Context, key string) *goredis.StringCmd {
	if f.failErr != nil {
		return goredis.NewStringResult("", f.failErr)
	}
	v, ok := f.data[key]
	if !ok {
		return goredis.NewStringResult("", goredis.Nil)
	}
	return goredis.NewStringResult(v, nil)
}

func (f *fakeCmdable) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd {
	if f.failErr != nil {
		return goredis.NewStatusResult("", f.failErr)
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	f.ttls[key] = expiration
	return goredis.NewStatusResult("OK", nil)
}

func (f *fakeCmdable) Del(ctx context.Context, keys ...string) *goredis.IntCmd {
	for _, k := range keys {
		delete(f.data, k)
	}
	return goredis.NewIntResult(int64(len(keys)), nil)
}

func TestRedisCache_NamespacesKeysAndSetsExpiry(t *testing.T) {
	f := newFake()
	c := redis.NewRedisCache(f, "kagi")
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "0123", []byte("1"), 7*24*time.Hour))
	require.Equal(t, "1", f.data["kagi:0123"])
	require.Equal(t, 7*24*time.Hour, f.ttls["kagi:0123"])

	v, ok, err := c.Get(ctx, "0123")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)
}

func TestRedisCache_NoPrefixKeepsBareKeys(t *testing.T) {
	f := newFake()
	f.data["0123"] = "1"
	c := redis.NewRedisCache(f, "")

	_, ok, err := c.Get(context.Background(), "0123")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestRedisCache_MissIsNotAnError(t *testing.T) {
	c := redis.NewRedisCache(newFake(), "")
	_, ok, err := c.Get(context.Background(), "absent")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisCache_ServerErrorSurfaces(t *testing.T) {
	f := newFake()
	f.failErr = errors.New("connection refused")
	c := redis.NewRedisCache(f, "")

	_, ok, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	require.False(t, ok)
	require.Error(t, c.Set(context.Background(), "k", []byte("1"), time.Minute))
}

func TestRedisCache_RefusesZeroTTL(t *testing.T) {
	f := newFake()
	c := redis.NewRedisCache(f, "")
	require.ErrorIs(t, c.Set(context.Background(), "k", []byte("1"), 0), redis.ErrNoExpiry)
	require.Empty(t, f.data)
}

func TestRedisCache_Delete(t *testing.T) {
	f := newFake()
	f.data["p:k"] = "1"
	c := redis.NewRedisCache(f, "p")
	require.NoError(t, c.Delete(context.Background(), "k"))
	require.Empty(t, f.data)
}
