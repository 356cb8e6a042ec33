package prodflow

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestSetStatusOverwritesAndCounts(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.Upsert("thread-1", func(e *ThreadStatusEntry) {
		e.SetStatus(KindVideo, StatusDraft)
	})
	ledger.Upsert("thread-1", func(e *ThreadStatusEntry) {
		e.SetStatus(KindVideo, StatusDraft)
	})
	updated := ledger.Upsert("thread-1", func(e *ThreadStatusEntry) {
		e.SetStatus(KindVideo, StatusDelivered)
	})

	mark := updated.Statuses[KindVideo]
	if mark.Value != StatusDelivered {
		t.Fatalf("expected delivered, got %s", mark.Value)
	}
	if mark.UpdateCount != 3 {
		t.Fatalf("expected 3 assertions, got %d", mark.UpdateCount)
	}
}

func TestStatusKindsAreIndependent(t *testing.T) {
	ledger := NewInMemoryLedger()
	updated := ledger.Upsert("thread-1", func(e *ThreadStatusEntry) {
		e.SetStatus(KindVideo, StatusDelivered)
		e.SetStatus(KindThumbnail, StatusDraft)
	})
	if updated.Statuses[KindVideo].Value != StatusDelivered {
		t.Fatalf("video status clobbered: %+v", updated.Statuses)
	}
	if updated.Statuses[KindThumbnail].Value != StatusDraft {
		t.Fatalf("thumbnail status clobbered: %+v", updated.Statuses)
	}
}

func TestListPreservesInsertionOrder(t *testing.T) {
	ledger := NewInMemoryLedger()
	for _, threadID := range []string{"t3", "t1", "t2"} {
		id := threadID
		ledger.Upsert(id, func(e *ThreadStatusEntry) { e.Category = "gaming" })
	}
	entries := ledger.List(nil)
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i, want := range []string{"t3", "t1", "t2"} {
		if entries[i].ThreadID != want {
			t.Fatalf("entry %d: expected %s, got %s", i, want, entries[i].ThreadID)
		}
	}
}

func TestListFilter(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.Upsert("t1", func(e *ThreadStatusEntry) { e.Category = "gaming" })
	ledger.Upsert("t2", func(e *ThreadStatusEntry) { e.Category = "cooking" })

	entries := ledger.List(func(e ThreadStatusEntry) bool { return e.Category == "cooking" })
	if len(entries) != 1 || entries[0].ThreadID != "t2" {
		t.Fatalf("unexpected filter result: %+v", entries)
	}
}

func TestGetReturnsClone(t *testing.T) {
	ledger := NewInMemoryLedger()
	ledger.Upsert("t1", func(e *ThreadStatusEntry) {
		e.SetStatus(KindVideo, StatusDraft)
	})
	entry, ok := ledger.Get("t1")
	if !ok {
		t.Fatal("expected entry")
	}
	entry.SetStatus(KindVideo, StatusDelivered)

	fresh, _ := ledger.Get("t1")
	if fresh.Statuses[KindVideo].Value != StatusDraft {
		t.Fatal("mutation of a returned entry leaked into the ledger")
	}
}

// slowFirstSaveBackend parks the first Save until released and records the
// thread IDs of every snapshot it receives.
type slowFirstSaveBackend struct {
	mu      sync.Mutex
	saved   [][]string
	started chan struct{}
	release chan struct{}
	first   sync.Once
}

func (b *slowFirstSaveBackend) Load() (*ledgerSnapshot, error) { return nil, nil }

func (b *slowFirstSaveBackend) Save(snapshot *ledgerSnapshot) error {
	b.first.Do(func() {
		close(b.started)
		<-b.release
	})
	ids := make([]string, 0, len(snapshot.Entries))
	for _, entry := range snapshot.Entries {
		ids = append(ids, entry.ThreadID)
	}
	b.mu.Lock()
	b.saved = append(b.saved, ids)
	b.mu.Unlock()
	return nil
}

func TestUpsertPersistsSnapshotsInMutationOrder(t *testing.T) {
	backend := &slowFirstSaveBackend{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	ledger := NewInMemoryLedgerWithBackend(backend)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		ledger.Upsert("thread-a", func(e *ThreadStatusEntry) {
			e.SetStatus(KindVideo, StatusDraft)
		})
	}()
	<-backend.started
	go func() {
		defer wg.Done()
		ledger.Upsert("thread-b", func(e *ThreadStatusEntry) {
			e.SetStatus(KindVideo, StatusDraft)
		})
	}()
	// The second upsert must queue behind the stalled save, not slip past
	// it and have its snapshot overwritten.
	time.Sleep(50 * time.Millisecond)
	close(backend.release)
	wg.Wait()

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.saved) != 2 {
		t.Fatalf("expected 2 saves, got %d", len(backend.saved))
	}
	last := backend.saved[len(backend.saved)-1]
	seen := map[string]bool{}
	for _, id := range last {
		seen[id] = true
	}
	if !seen["thread-a"] || !seen["thread-b"] {
		t.Fatalf("last persisted snapshot lost an entry: %v", last)
	}
}

func TestJSONFileBackendRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.json")
	backend := NewJSONFileLedgerBackend(path)

	first := NewInMemoryLedgerWithBackend(backend)
	completedAt := time.Date(2025, time.May, 1, 12, 0, 0, 0, time.UTC)
	first.Upsert("t1", func(e *ThreadStatusEntry) {
		e.Category = "gaming"
		e.Type = TypeLong
		e.Ordinal = 9
		e.SetStatus(KindVideo, StatusRevision)
		e.CompletedAt = &completedAt
	})

	second := NewInMemoryLedgerWithBackend(NewJSONFileLedgerBackend(path))
	entry, ok := second.Get("t1")
	if !ok {
		t.Fatal("expected persisted entry after reload")
	}
	if entry.Ordinal != 9 || entry.Statuses[KindVideo].Value != StatusRevision {
		t.Fatalf("unexpected reloaded entry: %+v", entry)
	}
	if entry.CompletedAt == nil || !entry.CompletedAt.Equal(completedAt) {
		t.Fatalf("completedAt lost: %+v", entry.CompletedAt)
	}
}

func TestBuildLedgerBackendFromDSN(t *testing.T) {
	backend, err := BuildLedgerBackendFromDSN("")
	if err != nil || backend != nil {
		t.Fatalf("empty dsn should mean volatile: (%v, %v)", backend, err)
	}

	backend, err = BuildLedgerBackendFromDSN("memory://")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*InMemoryLedgerBackend); !ok {
		t.Fatalf("expected in-memory backend, got %T", backend)
	}

	path := filepath.Join(t.TempDir(), "state.json")
	backend, err = BuildLedgerBackendFromDSN("file://" + path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := backend.(*JSONFileLedgerBackend); !ok {
		t.Fatalf("expected file backend, got %T", backend)
	}

	if _, err := BuildLedgerBackendFromDSN("redis://localhost"); err == nil {
		t.Fatal("expected error for unsupported scheme")
	}
}
