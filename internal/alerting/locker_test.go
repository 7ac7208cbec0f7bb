package alerting

import (
	"sync"
	"testing"
	"time"
)

func TestKeyedLocker_SerializesSameKey(t *testing.T) {
	l := newKeyedLocker()
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		active  int
		maxSeen int
	)

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Lock("u1")
			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
			l.Unlock("u1")
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected one holder at a time, saw %d", maxSeen)
	}
	if l.size() != 0 {
		t.Errorf("Expected no entries after unlock, got %d", l.size())
	}
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	l := newKeyedLocker()
	l.Lock("u1")

	done := make(chan struct{})
	go func() {
		l.Lock("u2")
		l.Unlock("u2")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on u2 blocked behind u1")
	}
	l.Unlock("u1")
}
