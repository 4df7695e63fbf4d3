package catalog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// Memory is an in-process catalog with the same semantics as SQLite. It is
// used by tests and the dev tools.
type Memory struct {
	mu      sync.RWMutex
	nextID  int64
	records []domain.CatalogRecord
}

// NewMemory creates an empty in-memory catalog.
func NewMemory() *Memory {
	return &Memory{}
}

// Ingest upserts rec on its natural key. The stored row always receives a
// fresh, larger ingestion id.
func (m *Memory) Ingest(_ context.Context, rec domain.CatalogRecord) (int64, error) {
	rec, err := checkRecord(rec)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	for _, r := range m.records {
		if r.Service == rec.Service && r.Scope == rec.Scope &&
			r.Cycle.Equal(rec.Cycle) && r.ValidTime.Equal(rec.ValidTime) {
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept

	m.nextID++
	rec.ID = m.nextID
	rec.Accessed = time.Time{}
	m.records = append(m.records, rec)
	return rec.ID, nil
}

// Cycles returns the distinct cycles matching f, ascending.
func (m *Memory) Cycles(_ context.Context, f domain.Filter) ([]time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[int64]bool)
	var out []time.Time
	for _, r := range m.records {
		if !f.Matches(r) || seen[r.Cycle.Unix()] {
			continue
		}
		seen[r.Cycle.Unix()] = true
		out = append(out, r.Cycle)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// LatestByValidTime returns the latest-ingested matching record per valid time.
func (m *Memory) LatestByValidTime(_ context.Context, f domain.Filter) ([]domain.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	latest := make(map[int64]domain.CatalogRecord)
	for _, r := range m.records {
		if !f.Matches(r) {
			continue
		}
		key := r.ValidTime.Unix()
		if cur, ok := latest[key]; !ok || r.ID > cur.ID {
			latest[key] = r
		}
	}

	out := make([]domain.CatalogRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ValidTime.Before(out[j].ValidTime) })
	return out, nil
}

// LookupTrack returns the latest-ingested advisory matching scope exactly.
func (m *Memory) LookupTrack(_ context.Context, service domain.ServiceID, scope domain.Scope) (domain.CatalogRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var (
		best  domain.CatalogRecord
		found bool
	)
	for _, r := range m.records {
		if r.Service != service || r.Scope != scope {
			continue
		}
		if !found || r.ID > best.ID {
			best, found = r, true
		}
	}
	if !found {
		return domain.CatalogRecord{}, trackNotFound(service, scope)
	}
	return best, nil
}

// MarkAccessed stamps the given records' last-accessed time.
func (m *Memory) MarkAccessed(_ context.Context, service domain.ServiceID, ids []int64, at time.Time) error {
	want := make(map[int64]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].Service == service && want[m.records[i].ID] {
			m.records[i].Accessed = at.UTC()
		}
	}
	return nil
}

// Ping always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *Memory) Close() error { return nil }
