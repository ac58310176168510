// Package memory provides process-local store implementations used when
// no database is configured.
package memory

import (
	"context"
	"sync"

	"github.com/alanyoungcy/stakingledger/internal/domain"
)

// TierStore keeps tiers in registration order.
type TierStore struct {
	mu    sync.RWMutex
	tiers []domain.Tier
}

// NewTierStore returns an empty TierStore.
func NewTierStore() *TierStore {
	return &TierStore{}
}

// Upsert implements domain.TierStore.
func (s *TierStore) Upsert(_ context.Context, tier domain.Tier) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.tiers {
		if s.tiers[i].LockDays == tier.LockDays {
			s.tiers[i].Rate = tier.Rate
			return nil
		}
	}
	s.tiers = append(s.tiers, tier)
	return nil
}

// List implements domain.TierStore.
func (s *TierStore) List(_ context.Context) ([]domain.Tier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Tier, len(s.tiers))
	copy(out, s.tiers)
	return out, nil
}
