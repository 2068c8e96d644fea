package cache

import (
	"container/list"
	"sync"
	"time"
)

// Default limits used when NewMemory receives zero values.
const (
	DefaultMaxEntries    = 1000
	DefaultTTL           = time.Hour
	DefaultSweepInterval = time.Minute
)

type memoryEntry struct {
	key       string
	value     string
	timestamp time.Time
	ttl       time.Duration
	hits      int64
}

func (e *memoryEntry) expired(now time.Time) bool {
	return e.ttl > 0 && now.Sub(e.timestamp) > e.ttl
}

// MemoryOption customises a Memory cache.
type MemoryOption func(*Memory)

// WithSweepInterval sets how often expired entries are purged in the
// background. Zero or negative disables the sweeper.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(m *Memory) { m.sweepInterval = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// Memory is a thread-safe in-memory cache with per-entry TTL. When full it
// evicts the entry inserted longest ago; reads do not refresh an entry's
// position.
type Memory struct {
	mu            sync.Mutex
	capacity      int
	ttl           time.Duration
	items         map[string]*list.Element
	order         *list.List // front is newest
	hits          int64
	misses        int64
	evictions     int64
	now           func() time.Time
	sweepInterval time.Duration

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory creates an in-memory cache holding at most capacity entries,
// each valid for ttl unless overridden with SetWithTTL. The background
// sweeper runs every DefaultSweepInterval unless configured otherwise.
func NewMemory(capacity int, ttl time.Duration, opts ...MemoryOption) *Memory {
	if capacity <= 0 {
		capacity = DefaultMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{
		capacity:      capacity,
		ttl:           ttl,
		items:         make(map[string]*list.Element),
		order:         list.New(),
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.sweepInterval > 0 {
		m.stop = make(chan struct{})
		m.done = make(chan struct{})
		go m.sweepLoop()
	}
	return m
}

// Get returns the cached value for key. Missing and expired entries count as
// misses; an expired entry is removed on the spot.
func (m *Memory) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		m.misses++
		return "", false
	}

	entry := elem.Value.(*memoryEntry)
	if entry.expired(m.now()) {
		m.removeElement(elem)
		m.misses++
		return "", false
	}

	entry.hits++
	m.hits++
	return entry.value, true
}

// Set stores value under key with the cache-wide TTL.
func (m *Memory) Set(key, value string) {
	m.SetWithTTL(key, value, 0)
}

// SetWithTTL stores value under key. A ttl of zero uses the cache-wide TTL.
// Overwriting a key restarts its clock and makes it the newest entry.
func (m *Memory) SetWithTTL(key, value string, ttl time.Duration) {
	if ttl <= 0 {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.items[key]; ok {
		m.removeElement(elem)
	}

	if m.order.Len() >= m.capacity {
		m.removeOldest()
	}

	entry := &memoryEntry{
		key:       key,
		value:     value,
		timestamp: m.now(),
		ttl:       ttl,
	}
	m.items[key] = m.order.PushFront(entry)
}

// Has reports whether key holds a live entry. It does not touch hit
// counters.
func (m *Memory) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if !ok {
		return false
	}
	if elem.Value.(*memoryEntry).expired(m.now()) {
		m.removeElement(elem)
		return false
	}
	return true
}

// Delete removes key and reports whether it was present.
func (m *Memory) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.items[key]
	if ok {
		m.removeElement(elem)
	}
	return ok
}

// Len returns the number of entries currently in the cache, including
// expired entries not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Clear removes all entries and resets the counters.
func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string]*list.Element)
	m.order.Init()
	m.hits = 0
	m.misses = 0
	m.evictions = 0
}

// Stats returns the current counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Hits:      m.hits,
		Misses:    m.misses,
		Evictions: m.evictions,
		Size:      m.order.Len(),
		MaxSize:   m.capacity,
		HitRate:   hitRate(m.hits, m.misses),
	}
}

// Entries returns a snapshot of all entries, newest first.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Entry, 0, m.order.Len())
	for elem := m.order.Front(); elem != nil; elem = elem.Next() {
		e := elem.Value.(*memoryEntry)
		out = append(out, Entry{
			Key:       e.key,
			Value:     e.value,
			Timestamp: e.timestamp,
			TTL:       e.ttl,
			Hits:      e.hits,
		})
	}
	return out
}

// Sweep removes every expired entry and returns how many were removed.
func (m *Memory) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for elem := m.order.Back(); elem != nil; {
		prev := elem.Prev()
		if elem.Value.(*memoryEntry).expired(now) {
			m.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Close stops the background sweeper and drops all entries. It is safe to
// call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() {
		if m.stop != nil {
			close(m.stop)
			<-m.done
		}
		m.Clear()
	})
	return nil
}

func (m *Memory) sweepLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *Memory) removeOldest() {
	elem := m.order.Back()
	if elem != nil {
		m.removeElement(elem)
		m.evictions++
	}
}

func (m *Memory) removeElement(elem *list.Element) {
	m.order.Remove(elem)
	entry := elem.Value.(*memoryEntry)
	delete(m.items, entry.key)
}
