package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	"MarketBoard/pkg/cache"
)

const rateSnapshotKey = "rates:snapshot"

// RateSnapshotStore keeps the rate cache snapshot in a cache.Service.
// Entries keep their original timestamps, so restored rates expire on time.
type RateSnapshotStore struct {
	cache     cache.Service
	retention time.Duration
}

// NewRateSnapshotStore creates a store; retention bounds how long a snapshot
// survives without refreshes.
func NewRateSnapshotStore(c cache.Service, retention time.Duration) *RateSnapshotStore {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &RateSnapshotStore{cache: c, retention: retention}
}

func (s *RateSnapshotStore) SaveRates(ctx context.Context, entries []models.RateEntry) error {
	if err := s.cache.Set(ctx, rateSnapshotKey, entries, s.retention); err != nil {
		return fmt.Errorf("save rates: %w", err)
	}
	return nil
}

func (s *RateSnapshotStore) LoadRates(ctx context.Context) ([]models.RateEntry, error) {
	var entries []models.RateEntry
	if err := s.cache.Get(ctx, rateSnapshotKey, &entries); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("load rates: %w", err)
	}
	return entries, nil
}

var _ repository.RateStore = (*RateSnapshotStore)(nil)
