package repository

import (
	"context"

	"MarketBoard/internal/domain/models"
)

// ProviderAdapter is one upstream quote source. Push adapters deliver through
// OnUpdate after Connect; poll adapters answer FetchOnce.
type ProviderAdapter interface {
	ID() string
	Mode() models.FetchMode
	Connect(ctx context.Context) error
	Disconnect() error
	FetchOnce(ctx context.Context, inst models.Instrument) (models.RawQuote, error)
	OnUpdate(fn func(models.RawQuote))
}

// Subscribable is implemented by push adapters that need the upstream symbol list.
type Subscribable interface {
	Track(symbols ...string)
}

// RateSource returns quotes per unit of base, keyed by quote currency.
type RateSource interface {
	ID() string
	FetchRates(ctx context.Context, base string, quotes []string) (map[string]float64, error)
}
