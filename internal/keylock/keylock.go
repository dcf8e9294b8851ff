// Package keylock provides sharded per-key mutexes. The normalization
// pipeline uses it to serialize ingests per (device, metric) key, so
// the read-then-write sequence of an ingest never races a concurrent
// ingest for the same series.
package keylock

import (
	"hash/fnv"
	"sync"
)

const shardCount = 256

// KeyMutex is a fixed pool of mutexes addressed by key hash. Distinct
// keys may share a shard; a shared shard serializes more than strictly
// required but never less.
type KeyMutex struct {
	shards [shardCount]sync.Mutex
}

// New creates a KeyMutex.
func New() *KeyMutex {
	return &KeyMutex{}
}

// Lock acquires the shard owning key.
func (m *KeyMutex) Lock(key string) {
	m.shards[shardFor(key)].Lock()
}

// Unlock releases the shard owning key.
func (m *KeyMutex) Unlock(key string) {
	m.shards[shardFor(key)].Unlock()
}

func shardFor(key string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return h.Sum32() % shardCount
}
