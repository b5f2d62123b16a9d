package restquote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"MarketBoard/internal/domain/models"
	drepo "MarketBoard/internal/domain/repository"
	"MarketBoard/internal/service/ratelimit"
	xhttp "MarketBoard/pkg/http"
	"MarketBoard/pkg/util"
)

// Provider polls a JSON quote endpoint: GET {baseURL}/{symbol}. It serves
// sources without a stream, such as metals and index feeds.
type Provider struct {
	id         string
	baseURL    string
	apiKey     string
	keyHeader  string
	http       *xhttp.Client
	limiter    *ratelimit.Limiter
	rateBurst  float64
	ratePerSec float64
	now        func() time.Time
}

type Option func(*Provider)

// WithAPIKey sends key in header (default "X-API-Key").
func WithAPIKey(key, header string) Option {
	return func(p *Provider) {
		p.apiKey = key
		if header != "" {
			p.keyHeader = header
		}
	}
}

// WithRateLimit shares a limiter keyed by the provider id. burst <= 0 disables it.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(p *Provider) {
		p.limiter = l
		p.rateBurst = burst
		p.ratePerSec = perSec
	}
}

func WithHTTPClient(h *xhttp.Client) Option {
	return func(p *Provider) {
		if h != nil {
			p.http = h
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func New(id, baseURL string, opts ...Option) *Provider {
	p := &Provider{
		id:        id,
		baseURL:   strings.TrimRight(baseURL, "/"),
		keyHeader: "X-API-Key",
		http:      xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) ID() string { return p.id }

func (p *Provider) Mode() models.FetchMode { return models.FetchPoll }

func (p *Provider) Connect(context.Context) error { return nil }

func (p *Provider) Disconnect() error { return nil }

// OnUpdate is a no-op: the provider is poll-only.
func (p *Provider) OnUpdate(func(models.RawQuote)) {}

// quoteResponse accepts either a numeric or RFC3339/unix-string timestamp.
type quoteResponse struct {
	Symbol        string   `json:"symbol"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	Timestamp     any      `json:"timestamp"`
	Change        *float64 `json:"change"`
	ChangePercent *float64 `json:"change_percent"`
	Volume        *float64 `json:"volume"`
	High          *float64 `json:"high"`
	Low           *float64 `json:"low"`
}

func (p *Provider) FetchOnce(ctx context.Context, inst models.Instrument) (models.RawQuote, error) {
	if p.limiter != nil && !p.limiter.Allow(p.id, p.rateBurst, p.ratePerSec) {
		return models.RawQuote{}, models.ErrRateLimited
	}
	symbol := inst.UpstreamSymbol()
	headers := map[string]string{"Accept": "application/json"}
	if p.apiKey != "" {
		headers[p.keyHeader] = p.apiKey
	}
	var r quoteResponse
	err := p.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodGet,
		URL:     p.baseURL + "/" + symbol,
		Headers: headers,
	}, &r)
	if err != nil {
		if xhttp.IsStatus(err, http.StatusTooManyRequests) {
			return models.RawQuote{}, models.ErrRateLimited
		}
		return models.RawQuote{}, fmt.Errorf("%w: %s %s: %v", models.ErrTransientProvider, p.id, symbol, err)
	}

	q := models.RawQuote{
		Kind:      models.QuoteKindPrice,
		Source:    p.id,
		Symbol:    symbol,
		Price:     r.Price,
		Currency:  strings.ToUpper(r.Currency),
		Timestamp: parseTimestamp(r.Timestamp, p.now()),
		Extras: models.QuoteExtras{
			Change24h:        r.Change,
			ChangePercent24h: r.ChangePercent,
			Volume24h:        r.Volume,
			High24h:          r.High,
			Low24h:           r.Low,
		},
	}
	if q.Currency == "" {
		q.Currency = inst.QuoteCurrency
	}
	if err := q.Validate(); err != nil {
		return models.RawQuote{}, fmt.Errorf("%s: %w", p.id, err)
	}
	return q, nil
}

func parseTimestamp(v any, def time.Time) time.Time {
	switch ts := v.(type) {
	case float64:
		if ts > 0 {
			return util.FromUnix(ts)
		}
	case string:
		return util.ParseTimeDefault(ts, def)
	}
	return def
}

var _ drepo.ProviderAdapter = (*Provider)(nil)
