package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// PositionStore keeps positions keyed by id.
type PositionStore struct {
	mu        sync.RWMutex
	positions map[uint64]domain.Position
}

// NewPositionStore returns an empty PositionStore.
func NewPositionStore() *PositionStore {
	return &PositionStore{positions: make(map[uint64]domain.Position)}
}

// Insert implements domain.PositionStore.
func (s *PositionStore) Insert(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.ID]; ok {
		return fmt.Errorf("memory: insert position %d: %w", pos.ID, domain.ErrAlreadyExists)
	}
	s.positions[pos.ID] = pos.Clone()
	return nil
}

// Update implements domain.PositionStore.
func (s *PositionStore) Update(_ context.Context, pos domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[pos.ID]; !ok {
		return fmt.Errorf("memory: update position %d: %w", pos.ID, domain.ErrNotFound)
	}
	s.positions[pos.ID] = pos.Clone()
	return nil
}

// Delete implements domain.PositionStore.
func (s *PositionStore) Delete(_ context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return fmt.Errorf("memory: delete position %d: %w", id, domain.ErrNotFound)
	}
	delete(s.positions, id)
	return nil
}

// List implements domain.PositionStore.
func (s *PositionStore) List(_ context.Context) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(domain.Position) bool { return true }), nil
}

// ListClosedBefore implements domain.PositionStore.
func (s *PositionStore) ListClosedBefore(_ context.Context, before time.Time) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.sorted(func(p domain.Position) bool {
		return !p.Open && p.ClosedAt != nil && p.ClosedAt.Before(before)
	}), nil
}

func (s *PositionStore) sorted(keep func(domain.Position) bool) []domain.Position {
	out := make([]domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
