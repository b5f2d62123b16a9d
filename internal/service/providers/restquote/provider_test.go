package restquote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/service/ratelimit"
)

func TestFetchOnce(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		switch r.URL.Path {
		case "/XAU-USD":
			_, _ = w.Write([]byte(`{"symbol":"XAU-USD","price":2350.5,"currency":"usd","timestamp":"2024-03-06T15:00:00Z","high":2360}`))
		case "/SPX":
			_, _ = w.Write([]byte(`{"symbol":"SPX","price":5100,"timestamp":1709737200000}`))
		default:
			_, _ = w.Write([]byte(`{"price":0}`))
		}
	}))
	defer srv.Close()

	p := New("metals", srv.URL+"/", WithAPIKey("secret", ""))
	q, err := p.FetchOnce(context.Background(), models.Instrument{Symbol: "XAU", ProviderSymbol: "XAU-USD", QuoteCurrency: "USD"})
	if err != nil {
		t.Fatalf("FetchOnce: %v", err)
	}
	if q.Price != 2350.5 || q.Currency != "USD" || q.Source != "metals" || q.Symbol != "XAU-USD" {
		t.Fatalf("quote = %+v", q)
	}
	if !q.Timestamp.Equal(time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)) || q.Extras.High24h == nil || *q.Extras.High24h != 2360 {
		t.Fatalf("quote = %+v", q)
	}

	q, err = p.FetchOnce(context.Background(), models.Instrument{Symbol: "SPX", QuoteCurrency: "USD"})
	if err != nil {
		t.Fatalf("FetchOnce: %v", err)
	}
	if q.Currency != "USD" || !q.Timestamp.Equal(time.UnixMilli(1709737200000)) {
		t.Fatalf("quote = %+v", q)
	}

	if _, err := p.FetchOnce(context.Background(), models.Instrument{Symbol: "NOPE"}); err == nil {
		t.Fatalf("zero price accepted")
	}
}

func TestFetchOnceErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := New("metals", srv.URL, WithRateLimit(ratelimit.New(), 1, 0))
	_, err := p.FetchOnce(context.Background(), models.Instrument{Symbol: "XAU"})
	if !errors.Is(err, models.ErrTransientProvider) {
		t.Fatalf("err = %v, want transient", err)
	}
	_, err = p.FetchOnce(context.Background(), models.Instrument{Symbol: "XAU"})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}

func TestFetchOnceUpstreamThrottle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := New("metals", srv.URL)
	_, err := p.FetchOnce(context.Background(), models.Instrument{Symbol: "XAU"})
	if !errors.Is(err, models.ErrRateLimited) {
		t.Fatalf("err = %v, want rate limited", err)
	}
}
