package cache

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/customeros/mailpool/interfaces"
	"github.com/customeros/mailpool/services/monitor"
)

type entry[V any] struct {
	value      V
	insertedAt time.Time
	ttl        time.Duration
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.Sub(e.insertedAt) > e.ttl
}

type TierStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Expirations int64   `json:"expirations"`
	Size        int     `json:"size"`
	Capacity    int     `json:"capacity"`
	TTLSeconds  float64 `json:"ttl_seconds"`
}

// tier is one bounded LRU map with an absolute per-entry TTL.
type tier[V any] struct {
	name     string
	capacity int
	ttl      time.Duration
	monitor  interfaces.PerformanceMonitor
	now      func() time.Time

	mu          sync.Mutex
	lru         *simplelru.LRU[string, *entry[V]]
	hits        int64
	misses      int64
	evictions   int64
	expirations int64
}

func newTier[V any](name string, capacity int, ttl time.Duration, monitor interfaces.PerformanceMonitor, now func() time.Time) (*tier[V], error) {
	lru, err := simplelru.NewLRU[string, *entry[V]](capacity, nil)
	if err != nil {
		return nil, err
	}
	return &tier[V]{
		name:     name,
		capacity: capacity,
		ttl:      ttl,
		monitor:  monitor,
		now:      now,
		lru:      lru,
	}, nil
}

func (t *tier[V]) get(key string) (V, bool) {
	var zero V

	t.mu.Lock()
	item, ok := t.lru.Peek(key)
	switch {
	case !ok:
		t.misses++
	case item.expired(t.now()):
		t.lru.Remove(key)
		t.misses++
		t.expirations++
		ok = false
	default:
		// refresh recency only; the insertion time stays
		t.lru.Get(key)
		t.hits++
	}
	t.mu.Unlock()

	if ok {
		t.record(monitor.EventCacheHit)
		return item.value, true
	}
	t.record(monitor.EventCacheMiss)
	return zero, false
}

func (t *tier[V]) put(key string, value V) {
	t.mu.Lock()
	evicted := t.lru.Add(key, &entry[V]{value: value, insertedAt: t.now(), ttl: t.ttl})
	if evicted {
		t.evictions++
	}
	t.mu.Unlock()

	if evicted {
		t.record(monitor.EventCacheEviction)
	}
}

func (t *tier[V]) remove(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lru.Remove(key)
}

// sweep drops every expired entry and returns how many were removed.
func (t *tier[V]) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	removed := 0
	for _, key := range t.lru.Keys() {
		item, ok := t.lru.Peek(key)
		if ok && item.expired(now) {
			t.lru.Remove(key)
			removed++
		}
	}
	t.expirations += int64(removed)
	return removed
}

func (t *tier[V]) purge() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lru.Purge()
}

func (t *tier[V]) stats() TierStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TierStats{
		Hits:        t.hits,
		Misses:      t.misses,
		Evictions:   t.evictions,
		Expirations: t.expirations,
		Size:        t.lru.Len(),
		Capacity:    t.capacity,
		TTLSeconds:  t.ttl.Seconds(),
	}
}

func (t *tier[V]) record(event string) {
	if t.monitor != nil {
		t.monitor.RecordCount(monitor.Metric(event, t.name), 1)
	}
}
