package audit

import (
	"slices"
	"sync"

	"github.com/darmiel/kartei/internal/core"
)

var (
	_ core.Auditor     = (*InMemoryAuditor)(nil)
	_ core.AuditReader = (*InMemoryAuditor)(nil)
)

// DefaultMemoryCapacity bounds the number of entries kept by the in-memory auditor.
const DefaultMemoryCapacity = 10_000

// InMemoryAuditor keeps the latest entries in a fixed ring.
// Once the ring is full every new entry overwrites the oldest one.
type InMemoryAuditor struct {
	mu   sync.Mutex
	ring []core.AuditEntry
	next int // slot the next entry is written to
	full bool
}

func NewInMemoryAuditor() *InMemoryAuditor {
	return NewRingAuditor(DefaultMemoryCapacity)
}

// NewRingAuditor keeps at most capacity entries. Values below one keep a single entry.
func NewRingAuditor(capacity int) *InMemoryAuditor {
	return &InMemoryAuditor{ring: make([]core.AuditEntry, max(capacity, 1))}
}

func (i *InMemoryAuditor) Log(entry core.AuditEntry) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.ring[i.next] = entry
	i.next = (i.next + 1) % len(i.ring)
	if i.next == 0 {
		i.full = true
	}
	return nil
}

// Len reports how many entries are currently held.
func (i *InMemoryAuditor) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.size()
}

func (i *InMemoryAuditor) size() int {
	if i.full {
		return len(i.ring)
	}
	return i.next
}

func (i *InMemoryAuditor) GetRecent(limit int) ([]core.AuditEntry, error) {
	return i.Find(func(core.AuditEntry) bool { return true }, limit)
}

// Find walks the ring from newest to oldest and stops after limit matches.
// The result is in logging order. A limit of zero or less returns every match.
func (i *InMemoryAuditor) Find(filter func(entry core.AuditEntry) bool, limit int) ([]core.AuditEntry, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	var matches []core.AuditEntry
	n := i.size()
	for k := 1; k <= n; k++ {
		entry := i.ring[(i.next-k+len(i.ring))%len(i.ring)]
		if !filter(entry) {
			continue
		}
		matches = append(matches, entry)
		if limit > 0 && len(matches) == limit {
			break
		}
	}
	slices.Reverse(matches)
	return matches, nil
}

func (i *InMemoryAuditor) Close() error {
	return nil
}
