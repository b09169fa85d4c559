package session

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestMemoryStore_PutGetRemove(t *testing.T) {
	store := NewMemoryStore()

	if _, ok := store.Get("a"); ok {
		t.Error("Expected empty store to return absent")
	}

	s := &Session{ID: "a", CreatedAt: time.Now()}
	store.Put(s)

	got, ok := store.Get("a")
	if !ok || got != s {
		t.Fatalf("Expected stored session, got %v (%v)", got, ok)
	}

	if !store.Remove("a") {
		t.Error("Expected first Remove to report true")
	}
	if store.Remove("a") {
		t.Error("Expected second Remove to report false")
	}
	if _, ok := store.Get("a"); ok {
		t.Error("Expected Get after Remove to return absent")
	}
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	store := NewMemoryStore()

	first := &Session{ID: "a"}
	second := &Session{ID: "a"}
	store.Put(first)
	store.Put(second)

	got, _ := store.Get("a")
	if got != second {
		t.Error("Expected last writer to win")
	}
	if store.Len() != 1 {
		t.Errorf("Expected 1 session, got %d", store.Len())
	}
}

func TestMemoryStore_RemoveIf(t *testing.T) {
	store := NewMemoryStore()

	old := &Session{ID: "a"}
	replacement := &Session{ID: "a"}
	store.Put(old)
	store.Put(replacement)

	if store.RemoveIf("a", old) {
		t.Error("Expected RemoveIf with a stale session to be a no-op")
	}
	if !store.RemoveIf("a", replacement) {
		t.Error("Expected RemoveIf with the current session to remove it")
	}
}

func TestMemoryStore_CleanupOlderThan(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	store := NewMemoryStore(WithClock(func() time.Time { return now }))

	store.Put(&Session{ID: "old", CreatedAt: now.Add(-3 * time.Hour)})
	store.Put(&Session{ID: "edge", CreatedAt: now.Add(-2 * time.Hour)})
	store.Put(&Session{ID: "fresh", CreatedAt: now.Add(-time.Minute)})

	removed := store.CleanupOlderThan(2 * time.Hour)
	if removed != 1 {
		t.Errorf("Expected 1 session removed, got %d", removed)
	}
	if _, ok := store.Get("old"); ok {
		t.Error("Expected 'old' to be removed")
	}
	if _, ok := store.Get("edge"); !ok {
		t.Error("Expected session created exactly at the cutoff to survive")
	}
	if store.Len() != 2 {
		t.Errorf("Expected 2 sessions left, got %d", store.Len())
	}
}

func TestMemoryStore_Concurrent(t *testing.T) {
	store := NewMemoryStore()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("s-%d", i%20)
				store.Put(&Session{ID: id, CreatedAt: time.Now()})
				store.Get(id)
				if i%3 == w%3 {
					store.Remove(id)
				}
				store.CleanupOlderThan(time.Hour)
			}
		}(w)
	}
	wg.Wait()

	if store.Len() > 20 {
		t.Errorf("Expected at most 20 sessions, got %d", store.Len())
	}
}

func TestJanitor_Sweep(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	store.Put(&Session{ID: "old", CreatedAt: now.Add(-time.Hour)})

	j := NewJanitor(store, time.Minute, time.Second)
	if n := j.Sweep(); n != 1 {
		t.Errorf("Expected 1 session swept, got %d", n)
	}
	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
}

func TestJanitor_SweepRunsReaper(t *testing.T) {
	now := time.Now()
	store := NewMemoryStore(WithClock(func() time.Time { return now }))
	store.Put(&Session{ID: "old", CreatedAt: now.Add(-time.Hour)})

	reaped := 0
	j := NewJanitor(store, time.Minute, time.Second, WithReaper(func() int {
		reaped++
		return store.Len()
	}))
	j.Sweep()
	j.Sweep()

	if reaped != 2 {
		t.Errorf("Expected reaper to run after every sweep, ran %d times", reaped)
	}
}
