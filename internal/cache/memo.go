package cache

import (
	"sync"
	"sync/atomic"
)

// HashMemo is a bounded LRU of content hashes keyed by file metadata
// ("path:mtime:size"). Entries never expire by age: a changed file has a
// different key, so a stale entry is simply never looked up again.
type HashMemo struct {
	entries    map[string]*memoEntry
	mutex      sync.Mutex
	maxEntries int
	// LRU doubly-linked list with dummy head and tail
	head *memoEntry
	tail *memoEntry
	// Statistics tracking (atomic for thread safety)
	hits      int64
	misses    int64
	evictions int64
}

type memoEntry struct {
	key  string
	hash string
	prev *memoEntry
	next *memoEntry
}

// DefaultMemoEntries bounds the memo when no size is configured.
const DefaultMemoEntries = 4096

// NewHashMemo creates a memo holding at most maxEntries hashes.
func NewHashMemo(maxEntries int) *HashMemo {
	if maxEntries <= 0 {
		maxEntries = DefaultMemoEntries
	}

	memo := &HashMemo{
		entries:    make(map[string]*memoEntry),
		maxEntries: maxEntries,
		head:       &memoEntry{},
		tail:       &memoEntry{},
	}
	memo.head.next = memo.tail
	memo.tail.prev = memo.head

	return memo
}

// Get returns the hash recorded for key.
func (m *HashMemo) Get(key string) (string, bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		atomic.AddInt64(&m.misses, 1)
		return "", false
	}

	m.moveToFront(entry)
	atomic.AddInt64(&m.hits, 1)

	return entry.hash, true
}

// Set records hash for key, evicting the least recently used entry when full.
func (m *HashMemo) Set(key, hash string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if entry, ok := m.entries[key]; ok {
		entry.hash = hash
		m.moveToFront(entry)
		return
	}

	for len(m.entries) >= m.maxEntries && m.tail.prev != m.head {
		lru := m.tail.prev
		m.removeFromList(lru)
		delete(m.entries, lru.key)
		atomic.AddInt64(&m.evictions, 1)
	}

	entry := &memoEntry{key: key, hash: hash}
	m.entries[key] = entry
	m.addToFront(entry)
}

// Len returns the number of memoized hashes.
func (m *HashMemo) Len() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return len(m.entries)
}

// Stats returns hit, miss and eviction counts.
func (m *HashMemo) Stats() (hits, misses, evictions int64) {
	return atomic.LoadInt64(&m.hits), atomic.LoadInt64(&m.misses), atomic.LoadInt64(&m.evictions)
}

func (m *HashMemo) addToFront(entry *memoEntry) {
	entry.prev = m.head
	entry.next = m.head.next
	m.head.next.prev = entry
	m.head.next = entry
}

func (m *HashMemo) removeFromList(entry *memoEntry) {
	entry.prev.next = entry.next
	entry.next.prev = entry.prev
}

func (m *HashMemo) moveToFront(entry *memoEntry) {
	m.removeFromList(entry)
	m.addToFront(entry)
}
