package prodflow

import (
	"sync"
	"time"
)

type DeliverableKind string

const (
	KindVideo     DeliverableKind = "video"
	KindThumbnail DeliverableKind = "thumbnail"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusRevision  Status = "revision"
	StatusDelivered Status = "delivered"
)

func ParseStatus(raw string) (Status, bool) {
	switch Status(raw) {
	case StatusDraft, StatusRevision, StatusDelivered:
		return Status(raw), true
	default:
		return "", false
	}
}

// StatusMark counts how many times a status was asserted, not progress
// through a sequence: a set command overwrites Value unconditionally and
// increments UpdateCount every time.
type StatusMark struct {
	Value       Status `json:"value"`
	UpdateCount int    `json:"updateCount"`
}

type ThreadStatusEntry struct {
	ThreadID          string                         `json:"threadId"`
	Category          string                         `json:"category"`
	Type              WorkflowType                   `json:"type"`
	Ordinal           int                            `json:"ordinal"`
	ScheduledPostDate string                         `json:"scheduledPostDate,omitempty"`
	Statuses          map[DeliverableKind]StatusMark `json:"statuses"`
	CompletedAt       *time.Time                     `json:"completedAt,omitempty"`
	CreatedAt         time.Time                      `json:"createdAt"`
}

func (e *ThreadStatusEntry) SetStatus(kind DeliverableKind, value Status) {
	if e.Statuses == nil {
		e.Statuses = map[DeliverableKind]StatusMark{}
	}
	mark := e.Statuses[kind]
	mark.Value = value
	mark.UpdateCount++
	e.Statuses[kind] = mark
}

// Ledger is the narrow interface handlers depend on, so the volatile
// in-memory table can be swapped for a durable store without touching
// handler logic.
type Ledger interface {
	Get(threadID string) (ThreadStatusEntry, bool)
	Upsert(threadID string, mutate func(*ThreadStatusEntry)) ThreadStatusEntry
	List(match func(ThreadStatusEntry) bool) []ThreadStatusEntry
}

type ledgerSnapshot struct {
	Entries []ThreadStatusEntry `json:"entries"`
}

// LedgerBackend persists ledger snapshots. A nil backend keeps the ledger
// purely volatile, which is the default.
type LedgerBackend interface {
	Load() (*ledgerSnapshot, error)
	Save(snapshot *ledgerSnapshot) error
}

type ledgerBackendCloser interface {
	Close() error
}

type InMemoryLedger struct {
	mu      sync.RWMutex
	entries map[string]*ThreadStatusEntry
	order   []string
	backend LedgerBackend
}

func NewInMemoryLedger() *InMemoryLedger {
	return NewInMemoryLedgerWithBackend(nil)
}

func NewInMemoryLedgerWithBackend(backend LedgerBackend) *InMemoryLedger {
	l := &InMemoryLedger{
		entries: map[string]*ThreadStatusEntry{},
		backend: backend,
	}
	if backend != nil {
		if snapshot, err := backend.Load(); err == nil && snapshot != nil {
			for _, entry := range snapshot.Entries {
				if entry.ThreadID == "" {
					continue
				}
				clone := entry
				l.entries[entry.ThreadID] = &clone
				l.order = append(l.order, entry.ThreadID)
			}
		}
	}
	return l
}

func (l *InMemoryLedger) Get(threadID string) (ThreadStatusEntry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	entry, ok := l.entries[threadID]
	if !ok {
		return ThreadStatusEntry{}, false
	}
	return cloneEntry(entry), true
}

func (l *InMemoryLedger) Upsert(threadID string, mutate func(*ThreadStatusEntry)) ThreadStatusEntry {
	l.mu.Lock()
	entry, ok := l.entries[threadID]
	if !ok {
		entry = &ThreadStatusEntry{
			ThreadID: threadID,
			Statuses: map[DeliverableKind]StatusMark{},
		}
		l.entries[threadID] = entry
		l.order = append(l.order, threadID)
	}
	if mutate != nil {
		mutate(entry)
	}
	result := cloneEntry(entry)
	// Saved under the lock so snapshots reach the backend in mutation
	// order. An out-of-order save would leave the durable copy stale.
	if l.backend != nil {
		_ = l.backend.Save(l.snapshotLocked())
	}
	l.mu.Unlock()
	return result
}

// List returns matching entries in insertion order. No sort is applied: the
// aggregate listing deliberately follows the order threads were observed.
func (l *InMemoryLedger) List(match func(ThreadStatusEntry) bool) []ThreadStatusEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]ThreadStatusEntry, 0, len(l.order))
	for _, threadID := range l.order {
		entry, ok := l.entries[threadID]
		if !ok {
			continue
		}
		clone := cloneEntry(entry)
		if match != nil && !match(clone) {
			continue
		}
		out = append(out, clone)
	}
	return out
}

func (l *InMemoryLedger) Close() error {
	l.mu.RLock()
	backend := l.backend
	l.mu.RUnlock()
	if closer, ok := backend.(ledgerBackendCloser); ok && closer != nil {
		return closer.Close()
	}
	return nil
}

func (l *InMemoryLedger) snapshotLocked() *ledgerSnapshot {
	entries := make([]ThreadStatusEntry, 0, len(l.order))
	for _, threadID := range l.order {
		if entry, ok := l.entries[threadID]; ok {
			entries = append(entries, cloneEntry(entry))
		}
	}
	return &ledgerSnapshot{Entries: entries}
}

func cloneEntry(entry *ThreadStatusEntry) ThreadStatusEntry {
	clone := *entry
	clone.Statuses = make(map[DeliverableKind]StatusMark, len(entry.Statuses))
	for kind, mark := range entry.Statuses {
		clone.Statuses[kind] = mark
	}
	if entry.CompletedAt != nil {
		completedAt := *entry.CompletedAt
		clone.CompletedAt = &completedAt
	}
	return clone
}
