package keymutex

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	km := New()

	const workers = 16
	const iterations = 100

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < iterations; j++ {
				km.Lock("lead-1")
				counter++
				km.Unlock("lead-1")
			}
		}()
	}
	wg.Wait()

	if counter != workers*iterations {
		t.Fatalf("expected %d increments, got %d", workers*iterations, counter)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	km := New()

	km.Lock("lead-a")
	done := make(chan struct{})
	go func() {
		km.Lock("lead-b")
		km.Unlock("lead-b")
		close(done)
	}()

	<-done
	km.Unlock("lead-a")
}

func TestEntriesAreReleased(t *testing.T) {
	km := New()

	km.Lock("lead-1")
	km.Unlock("lead-1")

	km.mu.Lock()
	defer km.mu.Unlock()
	if len(km.entries) != 0 {
		t.Fatalf("expected no retained entries, got %d", len(km.entries))
	}
}
