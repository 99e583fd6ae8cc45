// Package repository stores finished simulation results.
package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/atlas-desktop/strategy-simulator/pkg/types"
)

// ErrSimulationNotFound is returned when no result exists for an ID
var ErrSimulationNotFound = errors.New("simulation not found")

// ResultStore persists simulation results
type ResultStore interface {
	Save(ctx context.Context, result *types.SimulationResult) error
	Get(ctx context.Context, id string) (*types.SimulationResult, error)
	// List returns the most recent results first, without trades.
	List(ctx context.Context, limit int) ([]*types.SimulationResult, error)
	Close() error
}

// MemoryStore keeps results in process memory
type MemoryStore struct {
	mu      sync.RWMutex
	results map[string]*SimulationRecord
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{results: make(map[string]*SimulationRecord)}
}

func (m *MemoryStore) Save(_ context.Context, result *types.SimulationResult) error {
	if result == nil || result.ID == "" {
		return errors.New("result must have an id")
	}
	m.mu.Lock()
	m.results[result.ID] = FromResult(result)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*types.SimulationResult, error) {
	m.mu.RLock()
	rec, ok := m.results[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrSimulationNotFound
	}
	return rec.ToResult(), nil
}

func (m *MemoryStore) List(_ context.Context, limit int) ([]*types.SimulationResult, error) {
	m.mu.RLock()
	records := make([]*SimulationRecord, 0, len(m.results))
	for _, rec := range m.results {
		records = append(records, rec)
	}
	m.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool {
		return records[i].CompletedAt.After(records[j].CompletedAt)
	})
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}

	out := make([]*types.SimulationResult, len(records))
	for i, rec := range records {
		summary := *rec
		summary.Trades = nil
		out[i] = summary.ToResult()
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
