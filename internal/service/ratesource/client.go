package ratesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"MarketBoard/internal/domain/models"
	drepo "MarketBoard/internal/domain/repository"
	"MarketBoard/internal/service/ratelimit"
	xhttp "MarketBoard/pkg/http"
)

// Client reads FX rates from a REST endpoint of the common
// GET {baseURL}/latest?base=USD&symbols=CAD,EUR shape. Both "rates" and
// "conversion_rates" response keys are accepted.
type Client struct {
	id         string
	baseURL    string
	path       string
	apiKey     string
	keyParam   string
	http       *xhttp.Client
	limiter    *ratelimit.Limiter
	rateBurst  float64
	ratePerSec float64
}

// Option configures Client.
type Option func(*Client)

// WithAPIKey sends key as the named query parameter.
func WithAPIKey(key, param string) Option {
	return func(c *Client) {
		c.apiKey = key
		if param != "" {
			c.keyParam = param
		}
	}
}

// WithPath overrides the "/latest" endpoint path.
func WithPath(path string) Option {
	return func(c *Client) {
		c.path = "/" + strings.TrimPrefix(path, "/")
	}
}

// WithRateLimit applies a token bucket keyed by the source id.
func WithRateLimit(l *ratelimit.Limiter, burst, perSec float64) Option {
	return func(c *Client) {
		c.limiter = l
		c.rateBurst = burst
		c.ratePerSec = perSec
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *xhttp.Client) Option {
	return func(c *Client) { c.http = h }
}

// New creates a rate source.
func New(id, baseURL string, opts ...Option) *Client {
	c := &Client{
		id:       id,
		baseURL:  strings.TrimRight(baseURL, "/"),
		path:     "/latest",
		keyParam: "access_key",
		http:     xhttp.NewClient(xhttp.WithTimeout(10 * time.Second)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ID() string { return c.id }

type latestResponse struct {
	Base            string             `json:"base"`
	Rates           map[string]float64 `json:"rates"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
	Success         *bool              `json:"success"`
	Error           any                `json:"error"`
}

// FetchRates returns quote-per-base rates for the requested quotes. Quotes the
// upstream omits or reports as non-positive are left out.
func (c *Client) FetchRates(ctx context.Context, base string, quotes []string) (map[string]float64, error) {
	if len(quotes) == 0 {
		return map[string]float64{}, nil
	}
	if c.limiter != nil && !c.limiter.Allow(c.id, c.rateBurst, c.ratePerSec) {
		return nil, models.ErrRateLimited
	}

	base = strings.ToUpper(base)
	params := map[string][]string{
		"base":    {base},
		"symbols": {strings.ToUpper(strings.Join(quotes, ","))},
	}
	if c.apiKey != "" {
		params[c.keyParam] = []string{c.apiKey}
	}

	var r latestResponse
	err := c.http.SendAndParse(ctx, &xhttp.RequestOptions{
		Method:      xhttp.MethodGet,
		URL:         c.baseURL + c.path,
		Headers:     map[string]string{"Accept": "application/json"},
		QueryParams: params,
	}, &r)
	if err != nil {
		if xhttp.IsStatus(err, http.StatusTooManyRequests) {
			return nil, models.ErrRateLimited
		}
		return nil, fmt.Errorf("%s latest %s: %w", c.id, base, err)
	}
	if r.Success != nil && !*r.Success {
		return nil, fmt.Errorf("%s latest %s: upstream error %v", c.id, base, r.Error)
	}
	if r.Base != "" && !strings.EqualFold(r.Base, base) {
		return nil, fmt.Errorf("%s latest: asked base %s, got %s", c.id, base, r.Base)
	}

	rates := r.Rates
	if len(rates) == 0 {
		rates = r.ConversionRates
	}
	out := make(map[string]float64, len(quotes))
	for _, q := range quotes {
		q = strings.ToUpper(q)
		if v, ok := rates[q]; ok && v > 0 {
			out[q] = v
		}
	}
	if len(out) == 0 {
		return nil, errors.New(c.id + ": no requested rates in response")
	}
	return out, nil
}

var _ drepo.RateSource = (*Client)(nil)
