package kafkafeed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"MarketBoard/internal/domain/models"
	domrepo "MarketBoard/internal/domain/repository"
	pkgkafka "MarketBoard/pkg/kafka"
	applogger "MarketBoard/pkg/logger"
)

// Feed is a push provider reading quotes from a Kafka topic. Every quote is
// attributed to the feed's id, so catalog entries route by (id, symbol).
type Feed struct {
	id      string
	topic   string
	opts    []pkgkafka.ConsumerOption
	metrics domrepo.Metrics
	logger  *applogger.Logger

	mu       sync.Mutex
	consumer *pkgkafka.Consumer
	onUpdate func(models.RawQuote)
}

// New creates a feed. Consumer options carry brokers and group id.
func New(id, topic string, metrics domrepo.Metrics, logger *applogger.Logger, opts ...pkgkafka.ConsumerOption) *Feed {
	return &Feed{id: id, topic: topic, opts: opts, metrics: metrics, logger: logger.With("kafkafeed")}
}

func (f *Feed) ID() string { return f.id }

func (f *Feed) Mode() models.FetchMode { return models.FetchPush }

func (f *Feed) OnUpdate(fn func(models.RawQuote)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onUpdate = fn
}

func (f *Feed) emit(q models.RawQuote) {
	f.mu.Lock()
	fn := f.onUpdate
	f.mu.Unlock()
	if fn != nil {
		fn(q)
	}
}

// Connect starts the consumer. A single worker keeps per-partition order.
func (f *Feed) Connect(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumer != nil {
		return nil
	}
	opts := append(append([]pkgkafka.ConsumerOption(nil), f.opts...),
		pkgkafka.WithConsumerWorkers(1),
		pkgkafka.WithConsumerLogger(f.logger),
	)
	c, err := pkgkafka.NewConsumer(opts...)
	if err != nil {
		return fmt.Errorf("kafka feed %s: %w", f.id, err)
	}
	c.RegisterHandler(NewQuotesHandler(f.topic, f.id, f.emit, f.metrics))
	if err := c.Start(); err != nil {
		return fmt.Errorf("kafka feed %s: %w", f.id, err)
	}
	f.consumer = c
	f.logger.Info("kafka feed started", applogger.String("topic", f.topic))
	return nil
}

func (f *Feed) Disconnect() error {
	f.mu.Lock()
	c := f.consumer
	f.consumer = nil
	f.mu.Unlock()
	if c == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return c.Stop(ctx)
}

// FetchOnce is unsupported: the feed only pushes.
func (f *Feed) FetchOnce(context.Context, models.Instrument) (models.RawQuote, error) {
	return models.RawQuote{}, fmt.Errorf("kafka feed %s: fetch not supported", f.id)
}

var _ domrepo.ProviderAdapter = (*Feed)(nil)
