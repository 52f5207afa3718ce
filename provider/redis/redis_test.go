package redis

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/memocache"
	"github.com/unkn0wn-root/memocache/codec"
	pr "github.com/unkn0wn-root/memocache/provider"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func newProvider(t *testing.T, client *goredis.Client, prefix string) *Redis {
	t.Helper()
	p, err := New(Config{Client: client, Prefix: prefix})
	require.NoError(t, err)
	return p
}

func TestNewRequiresClient(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrNilClient)
}

func TestRedisGetSetDel(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "app")

	_, ok, err := p.Get(ctx, "prices", "eur")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.Set(ctx, "prices", "eur", []byte("42"), 1, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("app:prices:eur"), "key must be flattened as prefix:ns:key")

	b, ok, err := p.Get(ctx, "prices", "eur")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("42"), b)

	require.NoError(t, p.Del(ctx, "prices", "eur"))
	_, ok, err = p.Get(ctx, "prices", "eur")
	require.NoError(t, err)
	assert.False(t, ok)

	// deleting a missing key is not an error
	assert.NoError(t, p.Del(ctx, "prices", "eur"))
}

func TestRedisTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "")

	_, err := p.Set(ctx, "g", "short", []byte("v"), 1, 2*time.Second)
	require.NoError(t, err)
	_, err = p.Set(ctx, "g", "forever", []byte("v"), 1, 0)
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, mr.TTL("g:short"))
	assert.Equal(t, time.Duration(0), mr.TTL("g:forever"))

	mr.FastForward(3 * time.Second)

	_, ok, err := p.Get(ctx, "g", "short")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = p.Get(ctx, "g", "forever")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisFlushWithPrefixKeepsForeignKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "app")

	for _, k := range []string{"a", "b", "c"} {
		_, err := p.Set(ctx, "g", k, []byte(k), 1, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, mr.Set("other:key", "keep"))

	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, []string{"other:key"}, mr.Keys())
}

func TestRedisFlushWithoutPrefixClearsDB(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "")

	_, err := p.Set(ctx, "g", "k", []byte("v"), 1, time.Minute)
	require.NoError(t, err)
	require.NoError(t, mr.Set("other:key", "gone"))

	require.NoError(t, p.Flush(ctx))
	assert.Empty(t, mr.Keys())
}

func TestRedisFlushManyKeys(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "app")

	for i := 0; i < scanBatch*2+7; i++ {
		_, err := p.Set(ctx, "g", strconv.Itoa(i), []byte("v"), 1, time.Minute)
		require.NoError(t, err)
	}
	require.NoError(t, p.Flush(ctx))
	assert.Empty(t, mr.Keys())
}

func TestRedisUpdateCreatesAndMerges(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "")

	appendFn := func(suffix string) pr.UpdateFunc {
		return func(cur []byte, found bool) ([]byte, error) {
			if !found {
				return []byte(suffix), nil
			}
			return append(append([]byte(nil), cur...), suffix...), nil
		}
	}

	require.NoError(t, p.Update(ctx, "g", "agg", time.Minute, appendFn("a")))
	require.NoError(t, p.Update(ctx, "g", "agg", time.Minute, appendFn("b")))

	v, err := mr.Get("g:agg")
	require.NoError(t, err)
	assert.Equal(t, "ab", v)
	assert.Equal(t, time.Minute, mr.TTL("g:agg"))
}

func TestRedisUpdateRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	p := newProvider(t, client, "")

	calls := 0
	err := p.Update(ctx, "g", "agg", 0, func(cur []byte, found bool) ([]byte, error) {
		calls++
		if calls == 1 {
			// a competing writer lands between WATCH and EXEC
			require.NoError(t, client.Set(ctx, "g:agg", "other", 0).Err())
			return []byte("mine"), nil
		}
		assert.True(t, found)
		return append(append([]byte(nil), cur...), "+mine"...), nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)

	v, err := client.Get(ctx, "g:agg").Result()
	require.NoError(t, err)
	assert.Equal(t, "other+mine", v)
}

func TestRedisUpdateGivesUp(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	p, err := New(Config{Client: client, MaxRetries: 2})
	require.NoError(t, err)

	calls := 0
	err = p.Update(ctx, "g", "agg", 0, func([]byte, bool) ([]byte, error) {
		calls++
		require.NoError(t, client.Incr(ctx, "g:agg").Err())
		return []byte("x"), nil
	})
	assert.ErrorIs(t, err, pr.ErrConflict)
	assert.Equal(t, 2, calls)
}

func TestRedisGetErrorOnClosedServer(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "")
	mr.Close()

	_, ok, err := p.Get(ctx, "g", "k")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisCloseOwnership(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)

	shared := newProvider(t, client, "")
	require.NoError(t, shared.Close(ctx))
	assert.NoError(t, client.Ping(ctx).Err(), "shared client must stay open")

	owned, err := New(Config{Client: client, CloseClient: true})
	require.NoError(t, err)
	require.NoError(t, owned.Close(ctx))
	require.NoError(t, owned.Close(ctx))
	assert.Error(t, client.Ping(ctx).Err())
}

func TestRedisEscapesSeparatorInNamespace(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	p := newProvider(t, client, "")

	_, err := p.Set(ctx, "a", "b:a:b", []byte("single"), 1, 0)
	require.NoError(t, err)
	_, err = p.Set(ctx, "a:b", "a:b", []byte("aggregate"), 1, 0)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"a:b:a:b", `a\:b:a:b`}, mr.Keys())
	b, ok, err := p.Get(ctx, "a", "b:a:b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("single"), b)
}

func TestFacadeGroupsWithSeparatorStayIsolated(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	fc, err := memocache.New[string](memocache.Options[string]{
		Provider: newProvider(t, client, "app"),
		Codec:    codec.String{},
		Group:    "a",
	})
	require.NoError(t, err)

	calls := 0
	produce := func(context.Context) (string, error) {
		calls++
		return "v", nil
	}
	inA := memocache.CallOptions{Group: "a", Single: true}
	_, err = fc.GetOrCompute(ctx, "b:a:b", produce, inA)
	require.NoError(t, err)
	calls = 0

	// an aggregate fill of group "a:b" must not overwrite the single record of "a"
	_, err = fc.GetOrCompute(ctx, "x", func(context.Context) (string, error) { return "other", nil },
		memocache.CallOptions{Group: "a:b"})
	require.NoError(t, err)
	v, err := fc.GetOrCompute(ctx, "b:a:b", produce, inA)
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.Equal(t, 0, calls, "fill of group a:b clobbered group a")

	// nor may flushing "a:b" drop it
	require.True(t, fc.FlushGroup(ctx, "a:b"))
	_, err = fc.GetOrCompute(ctx, "b:a:b", produce, inA)
	require.NoError(t, err)
	assert.Equal(t, 0, calls, "FlushGroup(a:b) dropped an entry of group a")
}
