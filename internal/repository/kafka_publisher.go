package repository

import (
	"context"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	pkgkafka "MarketBoard/pkg/kafka"
)

// pointMessage is the wire form of a point. Price is null when unavailable.
type pointMessage struct {
	Symbol           string   `json:"symbol"`
	Category         string   `json:"category"`
	T                int64    `json:"t"` // ms
	RawPrice         float64  `json:"raw_price"`
	RawCurrency      string   `json:"raw_currency"`
	Price            *float64 `json:"price"`
	HomeCurrency     string   `json:"home_currency"`
	Available        bool     `json:"available"`
	Source           string   `json:"source"`
	Change24h        *float64 `json:"change_24h,omitempty"`
	ChangePercent24h *float64 `json:"change_percent_24h,omitempty"`
	Volume24h        *float64 `json:"volume_24h,omitempty"`
	High24h          *float64 `json:"high_24h,omitempty"`
	Low24h           *float64 `json:"low_24h,omitempty"`
}

func toPointMessage(p models.MarketDataPoint) pointMessage {
	return pointMessage{
		Symbol:           p.Symbol,
		Category:         string(p.Category),
		T:                p.Timestamp.UnixMilli(),
		RawPrice:         p.RawPrice,
		RawCurrency:      p.RawCurrency,
		Price:            p.DisplayPrice(),
		HomeCurrency:     p.HomeCurrency,
		Available:        p.Available,
		Source:           p.Source,
		Change24h:        p.Change24h,
		ChangePercent24h: p.ChangePercent24h,
		Volume24h:        p.Volume24h,
		High24h:          p.High24h,
		Low24h:           p.Low24h,
	}
}

// KafkaPublisher implements Publisher for Kafka. Messages are keyed by
// symbol so per-symbol order survives partitioning.
type KafkaPublisher struct {
	producer     *pkgkafka.Producer
	pointsTopic  string
	signalsTopic string
}

// NewKafkaPublisher creates Kafka publisher.
func NewKafkaPublisher(producer *pkgkafka.Producer, pointsTopic, signalsTopic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, pointsTopic: pointsTopic, signalsTopic: signalsTopic}
}

func (p *KafkaPublisher) PublishPoints(ctx context.Context, points []models.MarketDataPoint) error {
	if len(points) == 0 || p.pointsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(points))
	for i, pt := range points {
		msgs[i] = pkgkafka.Message{Key: []byte(pt.Symbol), Value: toPointMessage(pt)}
	}
	return p.producer.PublishBatch(ctx, p.pointsTopic, msgs)
}

func (p *KafkaPublisher) PublishSignals(ctx context.Context, signals []models.MarketSignal) error {
	if len(signals) == 0 || p.signalsTopic == "" {
		return nil
	}
	msgs := make([]pkgkafka.Message, len(signals))
	for i, s := range signals {
		msgs[i] = pkgkafka.Message{Key: []byte(s.Symbol), Value: s}
	}
	return p.producer.PublishBatch(ctx, p.signalsTopic, msgs)
}

func (p *KafkaPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}

var _ repository.Publisher = (*KafkaPublisher)(nil)
