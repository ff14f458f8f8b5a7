package services

import (
	"sync"
	"testing"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	km := NewKeyedMutex()

	const workers = 20
	counter := 0
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := km.Lock("tb-1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("Expected %d increments, got %d", workers, counter)
	}
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	km := NewKeyedMutex()

	unlockA := km.Lock("tb-a")

	// A different key must not block behind tb-a
	done := make(chan struct{})
	go func() {
		unlockB := km.Lock("tb-b")
		unlockB()
		close(done)
	}()

	<-done
	unlockA()
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	km := NewKeyedMutex()

	unlock := km.Lock("tb-1")
	unlock()

	km.mu.Lock()
	remaining := len(km.locks)
	km.mu.Unlock()

	if remaining != 0 {
		t.Fatalf("Expected lock table to be empty, found %d entries", remaining)
	}
}

func TestKeyedMutex_Reacquire(t *testing.T) {
	km := NewKeyedMutex()

	for i := 0; i < 3; i++ {
		unlock := km.Lock("tb-1")
		unlock()
	}
}
