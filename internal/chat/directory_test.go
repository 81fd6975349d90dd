package chat

import (
	"sync"
	"testing"

	"github.com/google/uuid"
)

func TestDirectoryRegisterReturnsExistingEntity(t *testing.T) {
	_, _, directory := newTestWorld()
	id := uuid.New()

	first := directory.Register(id, "Asha")
	second := directory.Register(id, "Asha")
	if first != second {
		t.Fatal("expected repeated registration to return the same entity")
	}

	got, ok := directory.Get(id)
	if !ok || got != first {
		t.Fatal("expected lookup to return the registered entity")
	}
}

func TestDirectoryEvict(t *testing.T) {
	_, _, directory := newTestWorld()
	id := uuid.New()
	directory.Register(id, "Asha")
	directory.Evict(id)

	if _, ok := directory.Get(id); ok {
		t.Fatal("expected evicted participant to be gone")
	}
	// Evicting an unknown id is a no-op.
	directory.Evict(uuid.New())
}

func TestDirectoryOnlineIsFreshPerCall(t *testing.T) {
	hub, _, directory := newTestWorld()

	first := uuid.New()
	second := uuid.New()
	directory.Register(first, "Asha")
	directory.Register(second, "Bryn")

	if got := directory.Online(); len(got) != 0 {
		t.Fatalf("expected no online participants, got %d", len(got))
	}

	hub.connect(first)
	if got := directory.Online(); len(got) != 1 {
		t.Fatalf("expected 1 online participant, got %d", len(got))
	}

	hub.connect(second)
	if got := directory.Online(); len(got) != 2 {
		t.Fatalf("expected 2 online participants, got %d", len(got))
	}

	hub.disconnect(first)
	if got := directory.Online(); len(got) != 1 {
		t.Fatalf("expected disconnect to drop from the snapshot, got %d", len(got))
	}
}

// History queries look up live senders from whatever goroutine runs them,
// concurrently with registration and eviction on the delivery goroutine.
func TestDirectoryLookupsAreSafeDuringChurn(t *testing.T) {
	_, _, directory := newTestWorld()
	ids := make([]uuid.UUID, 8)
	for i := range ids {
		ids[i] = uuid.New()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for range 500 {
			for _, id := range ids {
				directory.Register(id, "Asha")
			}
			for _, id := range ids {
				directory.Evict(id)
			}
		}
	}()
	go func() {
		defer wg.Done()
		for range 500 {
			for _, id := range ids {
				directory.Get(id)
			}
			directory.IDs()
		}
	}()
	wg.Wait()
}

func TestDirectoryOnlineSkipsUnregisteredConnections(t *testing.T) {
	hub, _, directory := newTestWorld()
	hub.connect(uuid.New())

	if got := directory.Online(); len(got) != 0 {
		t.Fatalf("expected unregistered connection to be skipped, got %d", len(got))
	}
}
