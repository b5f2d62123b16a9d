package kafkafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"MarketBoard/internal/domain/models"
	domrepo "MarketBoard/internal/domain/repository"
	pkgkafka "MarketBoard/pkg/kafka"
	"MarketBoard/pkg/util"
)

// QuotesHandler decodes upstream quote messages and forwards them.
type QuotesHandler struct {
	topic   string
	source  string
	emit    func(models.RawQuote)
	metrics domrepo.Metrics
}

func NewQuotesHandler(topic, source string, emit func(models.RawQuote), metrics domrepo.Metrics) *QuotesHandler {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	return &QuotesHandler{topic: topic, source: source, emit: emit, metrics: metrics}
}

func (h *QuotesHandler) Topic() string { return h.topic }

// incoming message schema: {symbol, price, currency?, t, change_24h?, ...}
// t is unix seconds, unix millis or an RFC3339 string. Any "source" key in the
// payload is ignored: quotes are always attributed to the feed's provider id.
type quoteMessage struct {
	Symbol           string          `json:"symbol"`
	Price            float64         `json:"price"`
	Currency         string          `json:"currency"`
	T                json.RawMessage `json:"t"`
	Change24h        *float64        `json:"change_24h"`
	ChangePercent24h *float64        `json:"change_percent_24h"`
	Volume24h        *float64        `json:"volume_24h"`
	High24h          *float64        `json:"high_24h"`
	Low24h           *float64        `json:"low_24h"`
}

// Handle never returns an error for bad payloads: they are counted and
// skipped so one malformed message does not block the partition.
func (h *QuotesHandler) Handle(ctx context.Context, b []byte) error {
	q, err := h.decode(b)
	if err != nil {
		h.metrics.RecordError("consumer_unmarshal")
		return nil
	}
	// E2E latency from event time to now (approx)
	h.metrics.RecordLatency("feed_e2e_seconds", time.Since(q.Timestamp).Seconds())
	if h.emit != nil {
		h.emit(q)
	}
	return nil
}

func (h *QuotesHandler) decode(b []byte) (models.RawQuote, error) {
	var m quoteMessage
	if err := json.Unmarshal(b, &m); err != nil {
		return models.RawQuote{}, err
	}
	ts, err := parseT(m.T)
	if err != nil {
		return models.RawQuote{}, err
	}
	q := models.RawQuote{
		Kind:      models.QuoteKindPrice,
		Source:    h.source,
		Symbol:    m.Symbol,
		Price:     m.Price,
		Currency:  strings.ToUpper(m.Currency),
		Timestamp: ts,
		Extras: models.QuoteExtras{
			Change24h:        m.Change24h,
			ChangePercent24h: m.ChangePercent24h,
			Volume24h:        m.Volume24h,
			High24h:          m.High24h,
			Low24h:           m.Low24h,
		},
	}
	if err := q.Validate(); err != nil {
		return models.RawQuote{}, err
	}
	return q, nil
}

func parseT(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 {
		return time.Time{}, fmt.Errorf("timestamp missing")
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		if n <= 0 {
			return time.Time{}, fmt.Errorf("timestamp %v out of range", n)
		}
		return util.FromUnix(n), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("timestamp: %w", err)
	}
	t, ok := util.ParseTime(s)
	if !ok {
		return time.Time{}, fmt.Errorf("timestamp %q not recognised", s)
	}
	return t, nil
}

var _ pkgkafka.MessageHandler = (*QuotesHandler)(nil)
