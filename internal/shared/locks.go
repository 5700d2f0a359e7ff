package shared

import (
	"hash/fnv"
	"sync"
)

// KeyedMutex provides per-key exclusive sections without a global lock.
// Keys hash into a fixed arena of mutexes, so two distinct keys only
// contend when they collide on a shard. Holding the lock for one key
// never blocks operations on keys in other shards.
type KeyedMutex struct {
	shards []sync.Mutex
}

// NewKeyedMutex builds an arena with the given shard count.
func NewKeyedMutex(shards int) *KeyedMutex {
	if shards <= 0 {
		shards = 256
	}
	return &KeyedMutex{shards: make([]sync.Mutex, shards)}
}

func (m *KeyedMutex) shard(key string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return &m.shards[h.Sum32()%uint32(len(m.shards))]
}

// Lock acquires the exclusive section for key.
func (m *KeyedMutex) Lock(key string) {
	m.shard(key).Lock()
}

// Unlock releases the exclusive section for key.
func (m *KeyedMutex) Unlock(key string) {
	m.shard(key).Unlock()
}
