package prodflow

import (
	"sync"
	"testing"
)

func TestKeyedMutexSerializesSameKey(t *testing.T) {
	mutex := newKeyedMutex()
	const workers = 16

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := mutex.Lock("alloc/store-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("expected %d increments, got %d", workers, counter)
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	mutex := newKeyedMutex()

	unlockA := mutex.Lock("alloc/store-a")
	done := make(chan struct{})
	go func() {
		unlockB := mutex.Lock("alloc/store-b")
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	mutex := newKeyedMutex()

	unlock := mutex.Lock("thread/thread-1")
	unlock()

	mutex.mu.Lock()
	remaining := len(mutex.locks)
	mutex.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected no retained lock entries, got %d", remaining)
	}
}
