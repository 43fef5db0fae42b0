package order

import (
	"sort"
	"sync"
	"time"
)

// MemoryLedger is the default in-process ledger. It keeps full records in a
// mutex-guarded map; restart loses state, which is acceptable for the
// default deployment.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[string]Record)}
}

// Save creates or overwrites the record under its order id, stamping both
// timestamps to now.
func (m *MemoryLedger) Save(rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.OrderID] = rec
	return nil
}

// Get returns a copy of the record, or ok=false when the id is unknown.
func (m *MemoryLedger) Get(id string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	return rec, ok, nil
}

// UpdateStatus transitions the record's status, refreshes updated_at, and
// attaches confirm artifacts when given. Unknown ids are ignored.
func (m *MemoryLedger) UpdateStatus(id string, status Status, extra *ConfirmArtifacts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return nil
	}
	rec.Status = status
	rec.UpdatedAt = time.Now()
	if extra != nil {
		rec.ConfirmRequest = extra.Request
		rec.ConfirmResponse = extra.Response
		rec.ConfirmRaw = extra.Raw
	}
	m.records[id] = rec
	return nil
}

// List returns records ordered by creation time, newest first, with
// offset/limit paging. limit <= 0 means no limit.
func (m *MemoryLedger) List(limit, offset int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	all := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return all[i].OrderID > all[j].OrderID
	})

	if offset >= len(all) {
		return []Record{}, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Count returns the number of stored records.
func (m *MemoryLedger) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}
