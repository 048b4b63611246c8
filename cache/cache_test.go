package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache() (*MemoryCache, *time.Time) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c := NewMemoryCache(0)
	c.now = func() time.Time { return now }
	return c, &now
}

func TestMemoryCacheExpiry(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache()

	require.NoError(t, c.Set(ctx, "a", []byte("1"), time.Minute))
	v, ok, err := c.Get(ctx, "a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)

	*now = now.Add(time.Minute)
	_, ok, _ = c.Get(ctx, "a")
	assert.False(t, ok, "entry at its expiry instant is a miss")

	assert.Equal(t, 1, c.Len())
	c.Sweep()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheZeroTTLIsNotStored(t *testing.T) {
	c, _ := newTestCache()
	require.NoError(t, c.Set(context.Background(), "a", []byte("1"), 0))
	assert.Equal(t, 0, c.Len())
}

func TestMemoryCacheDeletePrefix(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	_ = c.Set(ctx, "courses:list:uk", []byte("1"), time.Minute)
	_ = c.Set(ctx, "courses:get:4", []byte("1"), time.Minute)
	_ = c.Set(ctx, "blog:list", []byte("1"), time.Minute)

	require.NoError(t, c.DeletePrefix(ctx, PrefixCourses))
	assert.Equal(t, 1, c.Len())

	require.NoError(t, c.Delete(ctx, "blog:list", "missing"))
	assert.Equal(t, 0, c.Len())
}

func TestFetchCachesValues(t *testing.T) {
	ctx := context.Background()
	c, now := newTestCache()
	loads := 0
	load := func(context.Context) ([]string, error) {
		loads++
		return []string{"IELTS", "TOEFL"}, nil
	}

	v, err := Fetch(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"IELTS", "TOEFL"}, v)

	v, err = Fetch(ctx, c, "k", time.Minute, load)
	require.NoError(t, err)
	assert.Equal(t, []string{"IELTS", "TOEFL"}, v)
	assert.Equal(t, 1, loads)

	*now = now.Add(2 * time.Minute)
	_, _ = Fetch(ctx, c, "k", time.Minute, load)
	assert.Equal(t, 2, loads)
}

func TestFetchDoesNotCacheErrors(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache()
	loads := 0
	boom := errors.New("boom")
	load := func(context.Context) (int, error) {
		loads++
		return 0, boom
	}

	_, err := Fetch(ctx, c, "k", time.Minute, load)
	assert.ErrorIs(t, err, boom)
	_, err = Fetch(ctx, c, "k", time.Minute, load)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, loads)
	assert.Equal(t, 0, c.Len())
}

type brokenCache struct{ MemoryCache }

func (*brokenCache) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("redis down")
}

func TestFetchDegradesWhenBackendFails(t *testing.T) {
	v, err := Fetch(context.Background(), &brokenCache{MemoryCache{entries: map[string]memoryEntry{}, now: time.Now}}, "k", time.Minute,
		func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFetchWithNilCache(t *testing.T) {
	v, err := Fetch[int](context.Background(), nil, "k", time.Minute, func(context.Context) (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestStudentDashboardKey(t *testing.T) {
	assert.Equal(t, "dashboard:student:12", StudentDashboardKey(12))
}

func TestForgetLeavesNeighbouringStudentKeys(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache(0)
	defer c.Close()
	for _, id := range []uint{1, 10, 12, 100} {
		require.NoError(t, c.Set(ctx, StudentDashboardKey(id), []byte("{}"), time.Minute))
	}

	Forget(ctx, c, StudentDashboardKey(1))

	_, ok, _ := c.Get(ctx, StudentDashboardKey(1))
	assert.False(t, ok)
	for _, id := range []uint{10, 12, 100} {
		_, ok, _ := c.Get(ctx, StudentDashboardKey(id))
		assert.True(t, ok, "student %d", id)
	}

	Forget(ctx, nil, StudentDashboardKey(10))
}
