package locker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_MutualExclusionPerKey(t *testing.T) {
	km := New()
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("contract-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, counter)
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := New()

	unlockA := km.Lock("a")
	defer unlockA()

	// Другой ключ не блокируется удержанием первого.
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("b")
		unlockB()
		close(done)
	}()

	<-done
}

func TestKeyedMutex_ReuseAfterUnlock(t *testing.T) {
	km := New()

	unlock := km.Lock("a")
	unlock()

	unlock = km.Lock("a")
	unlock()
}
