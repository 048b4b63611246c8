package utils

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebouncerCollapsesTriggers(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	var calls int32
	var last int32

	for i := 1; i <= 5; i++ {
		i := int32(i)
		d.Trigger("app:1", func() {
			atomic.AddInt32(&calls, 1)
			atomic.StoreInt32(&last, i)
		})
	}
	assert.Equal(t, 1, d.Pending())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(5), atomic.LoadInt32(&last))
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncerKeysAreIndependent(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	var mu sync.Mutex
	seen := map[string]int{}
	for _, k := range []string{"a", "b", "a"} {
		k := k
		d.Trigger(k, func() {
			mu.Lock()
			seen[k]++
			mu.Unlock()
		})
	}
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["a"] == 1 && seen["b"] == 1
	}, time.Second, 5*time.Millisecond)
}

func TestDebouncerFlushAndStop(t *testing.T) {
	d := NewDebouncer(time.Hour)
	var calls int32
	d.Trigger("x", func() { atomic.AddInt32(&calls, 1) })
	d.Trigger("y", func() { atomic.AddInt32(&calls, 1) })

	d.Flush()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, 0, d.Pending())

	d.Trigger("z", func() { atomic.AddInt32(&calls, 1) })
	d.Stop()
	assert.Equal(t, 0, d.Pending())
	d.Trigger("z", func() { atomic.AddInt32(&calls, 1) })
	assert.Equal(t, 0, d.Pending())
	d.Flush()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestThrottleLeadingAndTrailing(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	var calls int32
	var last int32

	ran := th.Do("topic", func() { atomic.AddInt32(&calls, 1); atomic.StoreInt32(&last, 1) })
	assert.True(t, ran)

	assert.False(t, th.Do("topic", func() { atomic.AddInt32(&calls, 1); atomic.StoreInt32(&last, 2) }))
	assert.False(t, th.Do("topic", func() { atomic.AddInt32(&calls, 1); atomic.StoreInt32(&last, 3) }))

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), atomic.LoadInt32(&last))

	// another key is not affected
	assert.True(t, th.Do("other", func() {}))
}

func TestMemoize(t *testing.T) {
	var loads int
	m := Memoize(time.Minute, func(k string) (int, error) {
		loads++
		if k == "bad" {
			return 0, errors.New("boom")
		}
		return len(k), nil
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	v, err := m.Get("abc")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	_, _ = m.Get("abc")
	assert.Equal(t, 1, loads)

	now = now.Add(2 * time.Minute)
	_, _ = m.Get("abc")
	assert.Equal(t, 2, loads)

	_, err = m.Get("bad")
	assert.Error(t, err)
	_, err = m.Get("bad")
	assert.Error(t, err)
	assert.Equal(t, 4, loads)

	m.Forget("abc")
	_, _ = m.Get("abc")
	assert.Equal(t, 5, loads)

	m.Reset()
	_, _ = m.Get("abc")
	assert.Equal(t, 6, loads)
}

func TestKeyedLimiter(t *testing.T) {
	l := NewKeyedLimiter(60, 2, time.Minute)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("ip:1", now))
	assert.True(t, l.Allow("ip:1", now))
	assert.False(t, l.Allow("ip:1", now))
	assert.True(t, l.Allow("ip:2", now))

	// one token per second refills
	assert.True(t, l.Allow("ip:1", now.Add(time.Second)))

	var nilLimiter *KeyedLimiter
	assert.True(t, nilLimiter.Allow("x", now))
	assert.Nil(t, NewKeyedLimiter(0, 1, 0))
}
