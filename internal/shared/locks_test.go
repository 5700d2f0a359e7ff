package shared

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	locks := NewKeyedMutex(0)

	const workers = 64
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			locks.Lock("product-a")
			counter++
			locks.Unlock("product-a")
		}()
	}
	wg.Wait()
	require.Equal(t, workers, counter)
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	// Holding one key must not block another key in a different shard.
	locks := NewKeyedMutex(2)

	var keyA, keyB string
	candidates := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	for _, k := range candidates {
		if locks.shard(k) != locks.shard(candidates[0]) {
			keyA, keyB = candidates[0], k
			break
		}
	}
	require.NotEmpty(t, keyB, "expected two keys on distinct shards")

	locks.Lock(keyA)
	defer locks.Unlock(keyA)

	done := make(chan struct{})
	go func() {
		locks.Lock(keyB)
		locks.Unlock(keyB)
		close(done)
	}()
	<-done
}
