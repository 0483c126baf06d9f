package ids

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestCreateULIDFormat(t *testing.T) {
	id := CreateULID()
	if len(id) != 26 {
		t.Errorf("CreateULID() length = %d, want 26", len(id))
	}
}

func TestCreateULIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := CreateULID()
		if seen[id] {
			t.Fatalf("CreateULID() produced duplicate %s", id)
		}
		seen[id] = true
	}
}

func TestCreateULIDMonotonicWithinSameMillisecond(t *testing.T) {
	prev := CreateULID()
	for i := 0; i < 100; i++ {
		next := CreateULID()
		if next <= prev {
			t.Fatalf("ULIDs not sorted: %s then %s", prev, next)
		}
		prev = next
	}
}

func TestCreateULIDConcurrent(t *testing.T) {
	const workers = 8
	const perWorker = 200

	var mu sync.Mutex
	seen := make(map[string]bool)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				id := CreateULID()
				mu.Lock()
				if seen[id] {
					t.Errorf("duplicate ULID under concurrency: %s", id)
				}
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
}

func TestNewEventIDIsUUID(t *testing.T) {
	id := NewEventID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("NewEventID() = %q, not a valid UUID: %v", id, err)
	}
	if id == NewEventID() {
		t.Error("NewEventID() returned the same value twice")
	}
}

func TestNewCorrelationIDIsUUID(t *testing.T) {
	id := NewCorrelationID()
	if _, err := uuid.Parse(id); err != nil {
		t.Errorf("NewCorrelationID() = %q, not a valid UUID: %v", id, err)
	}
}
