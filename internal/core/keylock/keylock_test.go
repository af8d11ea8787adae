package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyLockSerializesSameKey(t *testing.T) {
	kl := New()

	const workers = 32
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kl.Do("org:item:loc", func() {
				counter++
			})
		}()
	}
	wg.Wait()

	require.Equal(t, workers, counter)
}

func TestKeyLockIndependentKeys(t *testing.T) {
	kl := New()

	kl.Lock("a")
	// A different key must not block.
	done := make(chan struct{})
	go func() {
		kl.Do("b", func() {})
		close(done)
	}()
	<-done
	kl.Unlock("a")
}

func TestKeyLockEntriesReleased(t *testing.T) {
	kl := New()
	kl.Do("x", func() {})
	kl.mu.Lock()
	defer kl.mu.Unlock()
	require.Empty(t, kl.locks)
}
