package repository

import (
	"context"

	"MarketBoard/internal/domain/models"
)

// Publisher ships points and signals downstream.
type Publisher interface {
	PublishPoints(ctx context.Context, points []models.MarketDataPoint) error
	PublishSignals(ctx context.Context, signals []models.MarketSignal) error
	Close() error
}

// Storage persists normalized point history.
type Storage interface {
	Init(ctx context.Context) error
	StoreBatch(ctx context.Context, points []models.MarketDataPoint) error
	LatestN(ctx context.Context, symbol string, n int) ([]models.MarketDataPoint, error)
	Health(ctx context.Context) error
	Close() error
}

// RateStore persists rate cache snapshots across restarts.
type RateStore interface {
	SaveRates(ctx context.Context, entries []models.RateEntry) error
	LoadRates(ctx context.Context) ([]models.RateEntry, error)
}
