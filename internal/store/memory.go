package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/internal/match"
	apperrors "github.com/Adithya-Monish-Kumar-K/Match-Analytics-Platform/pkg/errors"
)

// Memory keeps records in insertion order. Records passed to NewMemory are
// kept as given, malformed ones included, so index builds can be exercised
// against them.
type Memory struct {
	mu      sync.RWMutex
	records []match.Record
	byID    map[string]int
	// failWith, when set, is returned by every read.
	failWith error
}

func NewMemory(records ...match.Record) *Memory {
	m := &Memory{byID: make(map[string]int, len(records))}
	for _, r := range records {
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
	}
	return m
}

func (m *Memory) FetchAll(ctx context.Context) ([]match.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, fmt.Errorf("memory store: %w", m.failWith)
	}
	out := make([]match.Record, len(m.records))
	copy(out, m.records)
	return out, nil
}

func (m *Memory) FetchByIDs(ctx context.Context, ids []string) ([]match.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, fmt.Errorf("memory store: %w", m.failWith)
	}
	out := make([]match.Record, 0, len(ids))
	for _, id := range ids {
		if i, ok := m.byID[id]; ok {
			out = append(out, m.records[i])
		}
	}
	return out, nil
}

// Save rejects records without a matchId and skips known ones.
func (m *Memory) Save(ctx context.Context, records ...match.Record) (int, error) {
	for i := range records {
		if err := records[i].Validate(); err != nil {
			return 0, apperrors.Newf(apperrors.ErrInvalidInput, 400, "record %d: %v", i, err)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	inserted := 0
	for _, r := range records {
		if _, dup := m.byID[r.ID]; dup {
			continue
		}
		m.byID[r.ID] = len(m.records)
		m.records = append(m.records, r)
		inserted++
	}
	return inserted, nil
}

// Len reports the number of stored records.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// FailWith makes every read fail with err until it is called with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}
