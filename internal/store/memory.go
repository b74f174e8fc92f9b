package store

import (
	"context"
	"sync"
	"time"

	"github.com/soyeahso/agentos/internal/domain"
)

// MemoryRunStore keeps the most recent run records in memory.
type MemoryRunStore struct {
	mu         sync.RWMutex
	recs       []domain.RunRecord // oldest first
	maxEntries int
}

// NewMemoryRunStore creates an in-memory store holding at most maxEntries
// records. Zero or less means unbounded.
func NewMemoryRunStore(maxEntries int) *MemoryRunStore {
	return &MemoryRunStore{maxEntries: maxEntries}
}

// Record appends rec, evicting the oldest record when full.
func (m *MemoryRunStore) Record(_ context.Context, rec domain.RunRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.recs {
		if m.recs[i].RunID == rec.RunID {
			m.recs[i] = rec
			return nil
		}
	}

	m.recs = append(m.recs, rec)
	if m.maxEntries > 0 && len(m.recs) > m.maxEntries {
		drop := len(m.recs) - m.maxEntries
		m.recs = append([]domain.RunRecord(nil), m.recs[drop:]...)
	}
	return nil
}

// List returns records matching q, newest first.
func (m *MemoryRunStore) List(_ context.Context, q RunQuery) ([]domain.RunRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := []domain.RunRecord{}
	for i := len(m.recs) - 1; i >= 0 && len(out) < q.limit(); i-- {
		if q.matches(m.recs[i]) {
			out = append(out, m.recs[i])
		}
	}
	return out, nil
}

// Prune drops records that finished before the cutoff.
func (m *MemoryRunStore) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.recs[:0]
	for _, rec := range m.recs {
		if !rec.FinishedAt.Before(before) {
			kept = append(kept, rec)
		}
	}
	removed := int64(len(m.recs) - len(kept))
	m.recs = kept
	return removed, nil
}

// Len returns the number of stored records.
func (m *MemoryRunStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.recs)
}

func (m *MemoryRunStore) Close() error { return nil }

// NopRunStore discards every record.
type NopRunStore struct{}

func (NopRunStore) Record(context.Context, domain.RunRecord) error { return nil }

func (NopRunStore) List(context.Context, RunQuery) ([]domain.RunRecord, error) {
	return []domain.RunRecord{}, nil
}

func (NopRunStore) Prune(context.Context, time.Time) (int64, error) { return 0, nil }

func (NopRunStore) Close() error { return nil }
