package rates

import (
	"context"
	"errors"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	applogger "MarketBoard/pkg/logger"
)

type fakeSource struct {
	id    string
	rates map[string]map[string]float64
	err   error
	calls int
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) FetchRates(_ context.Context, base string, quotes []string) (map[string]float64, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := map[string]float64{}
	for _, q := range quotes {
		if r, ok := f.rates[base][q]; ok {
			out[q] = r
		}
	}
	return out, nil
}

type memStore struct{ saved []models.RateEntry }

func (m *memStore) SaveRates(_ context.Context, e []models.RateEntry) error {
	m.saved = e
	return nil
}

func (m *memStore) LoadRates(context.Context) ([]models.RateEntry, error) { return m.saved, nil }

func TestRefreshFallsBackToSecondary(t *testing.T) {
	clk := newClock()
	cache := NewCache(WithClock(clk.Now))
	primary := &fakeSource{id: "primary", err: errors.New("down")}
	secondary := &fakeSource{id: "secondary", rates: map[string]map[string]float64{"USD": {"CAD": 1.36}}}

	var outcomes []string
	r := NewRefresher(cache, time.Hour, applogger.Nop(),
		WithSources(primary, secondary),
		WithResultHook(func(src string, err error) {
			if err != nil {
				outcomes = append(outcomes, src+":err")
			} else {
				outcomes = append(outcomes, src+":ok")
			}
		}),
	)
	r.Track(usdCAD)
	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if got, _ := cache.Get(usdCAD); got != 1.36 {
		t.Fatalf("rate = %v", got)
	}
	if e, _ := cache.Entry(usdCAD); e.Source != "secondary" {
		t.Fatalf("source = %q", e.Source)
	}
	if len(outcomes) != 2 || outcomes[0] != "primary:err" || outcomes[1] != "secondary:ok" {
		t.Fatalf("outcomes = %v", outcomes)
	}
}

func TestRefreshUsesEmergencyRates(t *testing.T) {
	cache := NewCache()
	store := &memStore{}
	r := NewRefresher(cache, time.Hour, applogger.Nop(),
		WithSources(&fakeSource{id: "p", err: errors.New("down")}),
		WithEmergencyRates(map[models.CurrencyPair]float64{usdCAD: 1.35}),
		WithStore(store),
	)
	r.Track(usdCAD, eurCAD)

	err := r.Refresh(context.Background())
	if !errors.Is(err, models.ErrStaleRate) {
		t.Fatalf("expected stale error for EUR/CAD, got %v", err)
	}
	if got, ok := cache.Get(usdCAD); !ok || got != 1.35 {
		t.Fatalf("emergency rate not applied: %v %v", got, ok)
	}
	if len(store.saved) != 1 || store.saved[0].Source != EmergencySource {
		t.Fatalf("snapshot not saved: %+v", store.saved)
	}
}

func TestRefreshSkipsIdentityAndDuplicates(t *testing.T) {
	r := NewRefresher(NewCache(), time.Hour, applogger.Nop())
	r.Track(usdCAD, usdCAD, models.NewPair("CAD", "CAD"))
	if len(r.Pairs()) != 1 {
		t.Fatalf("pairs = %v", r.Pairs())
	}
}

func TestRestoreFromStore(t *testing.T) {
	clk := newClock()
	store := &memStore{saved: []models.RateEntry{{Pair: "USD/CAD", Rate: 1.34, Timestamp: clk.Now(), TTL: time.Hour}}}
	cache := NewCache(WithClock(clk.Now))
	r := NewRefresher(cache, time.Hour, applogger.Nop(), WithStore(store))
	if err := r.Restore(context.Background()); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got, ok := cache.Get(usdCAD); !ok || got != 1.34 {
		t.Fatalf("restored rate = %v %v", got, ok)
	}
}
