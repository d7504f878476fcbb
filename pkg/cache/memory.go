package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

// lruNode is one entry inside a shard's recency list.
type lruNode struct {
	entry *Entry
	prev  *lruNode
	next  *lruNode
}

// memoryShard is one independent lock domain of the volatile tier.
// The entry map and the recency list are kept under a single mutex so
// LRU ordering stays exact under concurrent access; every operation is O(1).
type memoryShard struct {
	mu       sync.Mutex
	capacity int
	nodes    map[string]*lruNode
	head     *lruNode // most recently used
	tail     *lruNode // least recently used
}

func newMemoryShard(capacity int) *memoryShard {
	return &memoryShard{
		capacity: capacity,
		nodes:    make(map[string]*lruNode, capacity),
	}
}

// MemoryTier is the sharded in-memory LRU tier of the cache. Keys are
// distributed across shards by FNV-1a hash so concurrent callers do not
// contend on a single lock.
type MemoryTier struct {
	shards []*memoryShard
}

// NewMemoryTier creates a volatile tier with the given total capacity
// spread over shardCount lock domains.
func NewMemoryTier(capacity, shardCount int) *MemoryTier {
	if shardCount <= 0 {
		shardCount = 1
	}
	perShard := (capacity + shardCount - 1) / shardCount
	if perShard < 1 {
		perShard = 1
	}
	shards := make([]*memoryShard, shardCount)
	for i := range shards {
		shards[i] = newMemoryShard(perShard)
	}
	return &MemoryTier{shards: shards}
}

func (t *MemoryTier) shardFor(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%uint32(len(t.shards))]
}

// Get returns the entry for key, updating its recency. An expired entry is
// removed and reported as a miss.
func (t *MemoryTier) Get(key string, now time.Time) (*Entry, bool) {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[key]
	if !ok {
		return nil, false
	}
	if n.entry.IsExpired(now) {
		s.remove(n)
		delete(s.nodes, key)
		CacheExpirations.Inc()
		return nil, false
	}

	n.entry.LastAccessedAt = now
	s.moveToFront(n)
	return n.entry, true
}

// Put inserts or replaces the entry for its key, marking it most recently
// used. When the shard is at capacity the least-recently-used entry is
// evicted; the number of evicted entries is returned.
func (t *MemoryTier) Put(entry *Entry) int {
	s := t.shardFor(entry.Key)
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[entry.Key]; ok {
		// Last-writer-wins overwrite
		n.entry = entry
		s.moveToFront(n)
		return 0
	}

	n := &lruNode{entry: entry}
	s.nodes[entry.Key] = n
	s.addFront(n)

	evicted := 0
	for len(s.nodes) > s.capacity {
		victim := s.tail
		if victim == nil {
			break
		}
		s.remove(victim)
		delete(s.nodes, victim.entry.Key)
		evicted++
	}
	return evicted
}

// Delete removes the entry for key. Returns true if it was present.
func (t *MemoryTier) Delete(key string) bool {
	s := t.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[key]
	if !ok {
		return false
	}
	s.remove(n)
	delete(s.nodes, key)
	return true
}

// Clear drops every entry in every shard.
func (t *MemoryTier) Clear() {
	for _, s := range t.shards {
		s.mu.Lock()
		s.nodes = make(map[string]*lruNode, s.capacity)
		s.head = nil
		s.tail = nil
		s.mu.Unlock()
	}
}

// Len returns the number of live entries across all shards.
func (t *MemoryTier) Len() int {
	total := 0
	for _, s := range t.shards {
		s.mu.Lock()
		total += len(s.nodes)
		s.mu.Unlock()
	}
	return total
}

// Sweep removes expired entries from every shard and returns how many
// were removed.
func (t *MemoryTier) Sweep(now time.Time) int {
	removed := 0
	for _, s := range t.shards {
		s.mu.Lock()
		for key, n := range s.nodes {
			if n.entry.IsExpired(now) {
				s.remove(n)
				delete(s.nodes, key)
				removed++
			}
		}
		s.mu.Unlock()
	}
	if removed > 0 {
		CacheExpirations.Add(float64(removed))
	}
	return removed
}

// Linked-list plumbing. Callers hold the shard mutex.

func (s *memoryShard) addFront(n *lruNode) {
	n.next = s.head
	n.prev = nil
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *memoryShard) remove(n *lruNode) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (s *memoryShard) moveToFront(n *lruNode) {
	if s.head == n {
		return
	}
	s.remove(n)
	s.addFront(n)
}
