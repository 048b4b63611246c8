package utils

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Debouncer collapses repeated triggers for the same key into a single call
// that runs once the key has been quiet for the wait period. The most
// recent function passed for a key is the one that runs.
type Debouncer struct {
	wait    time.Duration
	mu      sync.Mutex
	pending map[string]*debounceEntry
	stopped bool
}

type debounceEntry struct {
	timer *time.Timer
	fn    func()
}

func NewDebouncer(wait time.Duration) *Debouncer {
	return &Debouncer{wait: wait, pending: make(map[string]*debounceEntry)}
}

// Trigger (re)starts the wait period for key.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if e, ok := d.pending[key]; ok {
		e.timer.Stop()
	}
	e := &debounceEntry{fn: fn}
	e.timer = time.AfterFunc(d.wait, func() { d.fire(key, e) })
	d.pending[key] = e
}

func (d *Debouncer) fire(key string, e *debounceEntry) {
	d.mu.Lock()
	if cur, ok := d.pending[key]; !ok || cur != e {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()
	e.fn()
}

// Flush runs every pending call now, in no particular order.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	fns := make([]func(), 0, len(d.pending))
	for key, e := range d.pending {
		e.timer.Stop()
		fns = append(fns, e.fn)
		delete(d.pending, key)
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Stop cancels pending calls and ignores later triggers.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for key, e := range d.pending {
		e.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending returns the number of keys waiting to fire.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Throttle runs a keyed function at most once per interval. A call made
// inside the interval is not dropped: the latest one is deferred to the end
// of the interval (trailing edge).
type Throttle struct {
	interval time.Duration
	mu       sync.Mutex
	keys     map[string]*throttleEntry
}

type throttleEntry struct {
	limiter *rate.Limiter
	pending func()
	timer   *time.Timer
}

func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval, keys: make(map[string]*throttleEntry)}
}

// Do runs fn now when key is outside its interval, otherwise schedules it.
// It reports whether fn ran synchronously.
func (t *Throttle) Do(key string, fn func()) bool {
	t.mu.Lock()
	e, ok := t.keys[key]
	if !ok {
		e = &throttleEntry{limiter: rate.NewLimiter(rate.Every(t.interval), 1)}
		t.keys[key] = e
	}
	if e.timer == nil && e.limiter.Allow() {
		t.mu.Unlock()
		fn()
		return true
	}
	e.pending = fn
	if e.timer == nil {
		delay := e.limiter.Reserve().Delay()
		e.timer = time.AfterFunc(delay, func() {
			t.mu.Lock()
			f := e.pending
			e.pending = nil
			e.timer = nil
			t.mu.Unlock()
			if f != nil {
				f()
			}
		})
	}
	t.mu.Unlock()
	return false
}

// Memo caches the results of a keyed loader for a fixed TTL. Errors are
// returned to the caller and never cached.
type Memo[K comparable, V any] struct {
	ttl     time.Duration
	load    func(K) (V, error)
	now     func() time.Time
	mu      sync.Mutex
	entries map[K]memoEntry[V]
}

type memoEntry[V any] struct {
	value   V
	expires time.Time
}

// Memoize wraps load with a TTL cache.
func Memoize[K comparable, V any](ttl time.Duration, load func(K) (V, error)) *Memo[K, V] {
	return &Memo[K, V]{ttl: ttl, load: load, now: time.Now, entries: make(map[K]memoEntry[V])}
}

func (m *Memo[K, V]) Get(key K) (V, error) {
	m.mu.Lock()
	if e, ok := m.entries[key]; ok && m.now().Before(e.expires) {
		m.mu.Unlock()
		return e.value, nil
	}
	m.mu.Unlock()

	v, err := m.load(key)
	if err != nil {
		var zero V
		return zero, err
	}
	m.mu.Lock()
	m.entries[key] = memoEntry[V]{value: v, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return v, nil
}

// Forget drops one cached key.
func (m *Memo[K, V]) Forget(key K) {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
}

// Reset drops every cached key.
func (m *Memo[K, V]) Reset() {
	m.mu.Lock()
	m.entries = make(map[K]memoEntry[V])
	m.mu.Unlock()
}
