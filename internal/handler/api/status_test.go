package api

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/service/ratelimit"
	"MarketBoard/internal/services/timeseries"
	applogger "MarketBoard/pkg/logger"
)

type fakeBoard struct {
	health  models.HealthStatus
	insts   []models.Instrument
	latest  map[string]models.MarketDataPoint
	samples map[string][]timeseries.Sample
	signals []models.MarketSignal
}

func (f *fakeBoard) GetHealthStatus() models.HealthStatus { return f.health }
func (f *fakeBoard) Instruments() []models.Instrument { return f.insts }
func (f *fakeBoard) HomeCurrency() string { return "CAD" }
func (f *fakeBoard) ActiveSignals() []models.MarketSignal { return f.signals }

func (f *fakeBoard) Latest(symbol string) (models.MarketDataPoint, bool) {
	p, ok := f.latest[symbol]
	return p, ok
}

func (f *fakeBoard) Series(symbol string, n int) ([]timeseries.Sample, error) {
	s, ok := f.samples[symbol]
	if !ok {
		return nil, fmt.Errorf("%w %q", models.ErrUnknownSymbol, symbol)
	}
	if n < len(s) {
		s = s[len(s)-n:]
	}
	return s, nil
}

func (f *fakeBoard) Stats(symbol string, window int) (timeseries.Stats, [2]float64, error) {
	if _, ok := f.samples[symbol]; !ok {
		return timeseries.Stats{}, [2]float64{}, fmt.Errorf("%w %q", models.ErrUnknownSymbol, symbol)
	}
	return timeseries.Stats{Mean: 1}, [2]float64{1, 3}, nil
}

type fakeRotation struct {
	items  map[string][]models.RotationItem
	latest map[string][]string
}

func (f *fakeRotation) Latest(g string) ([]string, bool) {
	ids, ok := f.latest[g]
	return ids, ok
}

func (f *fakeRotation) Items(g string) []models.RotationItem { return f.items[g] }

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newBoard() *fakeBoard {
	ts := time.Date(2024, 3, 6, 15, 0, 0, 0, time.UTC)
	return &fakeBoard{
		health: models.HealthStatus{Overall: models.HealthHealthy},
		insts: []models.Instrument{
			{Symbol: "XAU", Category: models.CategoryCommodity, Source: "metals"},
			{Symbol: "BTC", Category: models.CategoryCrypto, Source: "finnhub"},
			{Symbol: "WTI", Category: models.CategoryCommodity, Source: "metals"},
		},
		latest: map[string]models.MarketDataPoint{
			"XAU": {Symbol: "XAU", RawPrice: 2000, RawCurrency: "USD", PriceHome: 2700, HomeCurrency: "CAD", Available: true, Timestamp: ts, Source: "metals"},
			"BTC": {Symbol: "BTC", RawPrice: 60000, RawCurrency: "USD", PriceHome: math.NaN(), HomeCurrency: "CAD", Available: false, Timestamp: ts, Source: "finnhub"},
		},
		samples: map[string][]timeseries.Sample{
			"XAU": {{Value: 1, Timestamp: ts}, {Value: 2, Timestamp: ts}, {Value: 3, Timestamp: ts}},
		},
	}
}

func serve(t *testing.T, h *StatusHandler, path string) (int, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("%s: decode %q: %v", path, rec.Body.String(), err)
	}
	return rec.Code, env
}

func TestQuotesMarkUnavailable(t *testing.T) {
	h := NewStatusHandler(applogger.Nop(), newBoard(), nil)
	code, env := serve(t, h, "/api/quotes")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var quotes []QuoteView
	if err := json.Unmarshal(env.Data, &quotes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("got %d quotes", len(quotes))
	}
	if quotes[0].Price == nil || *quotes[0].Price != 2700 || !quotes[0].Available {
		t.Fatalf("XAU = %+v", quotes[0])
	}
	if quotes[1].Price != nil || quotes[1].Available || quotes[1].RawPrice == nil {
		t.Fatalf("BTC should be unavailable with raw price, got %+v", quotes[1])
	}
	if quotes[2].Price != nil || quotes[2].Timestamp != nil {
		t.Fatalf("WTI has no point yet, got %+v", quotes[2])
	}
}

func TestQuoteBySymbol(t *testing.T) {
	h := NewStatusHandler(applogger.Nop(), newBoard(), nil)
	if code, _ := serve(t, h, "/api/quotes/xau"); code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if code, _ := serve(t, h, "/api/quotes/NOPE"); code != http.StatusNotFound {
		t.Fatalf("unknown symbol code = %d", code)
	}
}

func TestSeries(t *testing.T) {
	h := NewStatusHandler(applogger.Nop(), newBoard(), nil)

	code, env := serve(t, h, "/api/series?symbol=XAU&n=2")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var sv SeriesView
	if err := json.Unmarshal(env.Data, &sv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(sv.Samples) != 2 || sv.Samples[1].Value != 3 || sv.Min != 1 || sv.Max != 3 {
		t.Fatalf("series = %+v", sv)
	}

	if code, _ := serve(t, h, "/api/series"); code != http.StatusBadRequest {
		t.Fatalf("missing symbol code = %d", code)
	}
	if code, _ := serve(t, h, "/api/series?symbol=XAU&window=1"); code != http.StatusBadRequest {
		t.Fatalf("bad window code = %d", code)
	}
	if code, _ := serve(t, h, "/api/series?symbol=NOPE"); code != http.StatusNotFound {
		t.Fatalf("unknown symbol code = %d", code)
	}
}

func TestHealthReportsErrorAs503(t *testing.T) {
	board := newBoard()
	h := NewStatusHandler(applogger.Nop(), board, nil)
	if code, _ := serve(t, h, "/api/health"); code != http.StatusOK {
		t.Fatalf("healthy code = %d", code)
	}
	board.health.Overall = models.HealthError
	if code, _ := serve(t, h, "/api/health"); code != http.StatusServiceUnavailable {
		t.Fatalf("error code = %d", code)
	}
}

func TestSignalsNeverNull(t *testing.T) {
	h := NewStatusHandler(applogger.Nop(), newBoard(), nil)
	_, env := serve(t, h, "/api/signals")
	if string(env.Data) != "[]" {
		t.Fatalf("data = %s", env.Data)
	}
}

func TestRotationOrdersSlots(t *testing.T) {
	rot := &fakeRotation{
		items: map[string][]models.RotationItem{
			"main": {{ID: "a", Symbol: "XAU"}, {ID: "b", Symbol: "BTC"}, {ID: "c", Symbol: "WTI"}},
		},
		latest: map[string][]string{"main": {"c", "a"}},
	}
	h := NewStatusHandler(applogger.Nop(), newBoard(), rot)

	code, env := serve(t, h, "/api/rotation/main")
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	var rv RotationView
	if err := json.Unmarshal(env.Data, &rv); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rv.Slots) != 2 || rv.Slots[0].ID != "c" || rv.Slots[1].ID != "a" {
		t.Fatalf("slots = %+v", rv.Slots)
	}
	if code, _ := serve(t, h, "/api/rotation/other"); code != http.StatusNotFound {
		t.Fatalf("unknown group code = %d", code)
	}
}

func TestClientRateLimit(t *testing.T) {
	h := NewStatusHandler(applogger.Nop(), newBoard(), nil, WithClientRateLimit(ratelimit.New(), 1, 0))
	if code, _ := serve(t, h, "/api/signals"); code != http.StatusOK {
		t.Fatalf("first code = %d", code)
	}
	if code, _ := serve(t, h, "/api/signals"); code != http.StatusTooManyRequests {
		t.Fatalf("second code = %d", code)
	}
}
