package middleware

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"MarketBoard/internal/domain/models"
	domrepo "MarketBoard/internal/domain/repository"
	applogger "MarketBoard/pkg/logger"
)

// SinkPipeline sits between the aggregator and the downstream stores.
// Enqueue never blocks: it validates, throttles per symbol and buffers; a
// background worker batches into storage and the publisher with backoff.
type SinkPipeline struct {
	storage   domrepo.Storage
	publisher domrepo.Publisher
	metrics   domrepo.Metrics
	logger    *applogger.Logger

	maxRPS       int
	bufSize      int
	batchSize    int
	batchTimeout time.Duration
	maxRetries   int

	pointCh  chan models.MarketDataPoint
	signalCh chan models.MarketSignal
	stopCh   chan struct{}
	wg       sync.WaitGroup

	mu       sync.Mutex
	started  bool
	stopped  bool
	lastSeen map[string]time.Time // per-symbol last accepted time

	dropped atomic.Uint64
}

type PipelineOption func(*SinkPipeline)

// WithMaxRPS sets the max points per second per symbol sent downstream.
func WithMaxRPS(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n >= 0 {
			p.maxRPS = n
		}
	}
}

// WithBufferSize sets the queue size in front of the worker.
func WithBufferSize(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// WithBatch sets the flush size and the max wait before a partial flush.
func WithBatch(size int, timeout time.Duration) PipelineOption {
	return func(p *SinkPipeline) {
		if size > 0 {
			p.batchSize = size
		}
		if timeout > 0 {
			p.batchTimeout = timeout
		}
	}
}

// WithMaxRetries bounds flush attempts per batch.
func WithMaxRetries(n int) PipelineOption {
	return func(p *SinkPipeline) {
		if n > 0 {
			p.maxRetries = n
		}
	}
}

// NewSinkPipeline creates a pipeline. storage and publisher may be nil.
func NewSinkPipeline(storage domrepo.Storage, publisher domrepo.Publisher, metrics domrepo.Metrics, logger *applogger.Logger, opts ...PipelineOption) *SinkPipeline {
	if metrics == nil {
		metrics = domrepo.NopMetrics{}
	}
	p := &SinkPipeline{
		storage:      storage,
		publisher:    publisher,
		metrics:      metrics,
		logger:       logger.With("sink"),
		maxRPS:       20,
		bufSize:      1000,
		batchSize:    100,
		batchTimeout: time.Second,
		maxRetries:   3,
		stopCh:       make(chan struct{}),
		lastSeen:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.pointCh = make(chan models.MarketDataPoint, p.bufSize)
	p.signalCh = make(chan models.MarketSignal, p.bufSize)
	return p
}

// Start launches the flush worker.
func (p *SinkPipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started || p.stopped {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
}

// Stop ends the worker after a final flush of what is queued.
func (p *SinkPipeline) Stop() {
	p.mu.Lock()
	if !p.started || p.stopped {
		p.stopped = true
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	close(p.stopCh)
	p.wg.Wait()
}

// EnqueuePoint queues a point for storage and publishing. Unavailable points
// are published but not stored.
func (p *SinkPipeline) EnqueuePoint(pt models.MarketDataPoint) {
	if err := validatePoint(pt); err != nil {
		p.metrics.RecordError("pipeline_validate")
		return
	}
	if !p.allow(pt.Symbol, time.Now()) {
		p.metrics.RecordError("pipeline_throttle")
		return
	}
	select {
	case p.pointCh <- pt:
		p.metrics.RecordLatency("pipeline_buffer_depth", float64(len(p.pointCh)))
	default:
		p.dropped.Add(1)
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// EnqueueSignal queues a signal for publishing.
func (p *SinkPipeline) EnqueueSignal(s models.MarketSignal) {
	select {
	case p.signalCh <- s:
	default:
		p.dropped.Add(1)
		p.metrics.RecordError("pipeline_buffer_full")
	}
}

// Dropped counts items lost to a full buffer or exhausted retries.
func (p *SinkPipeline) Dropped() uint64 { return p.dropped.Load() }

func (p *SinkPipeline) run(ctx context.Context) {
	points := make([]models.MarketDataPoint, 0, p.batchSize)
	var sigs []models.MarketSignal
	ticker := time.NewTicker(p.batchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(points) > 0 {
			p.flushPoints(ctx, points)
			points = points[:0]
		}
		if len(sigs) > 0 {
			p.flushSignals(ctx, sigs)
			sigs = nil
		}
	}

	for {
		select {
		case <-p.stopCh:
			p.drain(&points, &sigs)
			flush()
			return
		case <-ctx.Done():
			return
		case pt := <-p.pointCh:
			points = append(points, pt)
			if len(points) >= p.batchSize {
				flush()
			}
		case s := <-p.signalCh:
			sigs = append(sigs, s)
		case <-ticker.C:
			flush()
		}
	}
}

func (p *SinkPipeline) drain(points *[]models.MarketDataPoint, sigs *[]models.MarketSignal) {
	for {
		select {
		case pt := <-p.pointCh:
			*points = append(*points, pt)
		case s := <-p.signalCh:
			*sigs = append(*sigs, s)
		default:
			return
		}
	}
}

func (p *SinkPipeline) flushPoints(ctx context.Context, points []models.MarketDataPoint) {
	start := time.Now()
	if p.storage != nil {
		stored := make([]models.MarketDataPoint, 0, len(points))
		for _, pt := range points {
			if pt.Available {
				stored = append(stored, pt)
			}
		}
		if len(stored) > 0 {
			p.retry(ctx, "storage", len(stored), func() error { return p.storage.StoreBatch(ctx, stored) })
		}
	}
	if p.publisher != nil {
		p.retry(ctx, "publish_points", len(points), func() error { return p.publisher.PublishPoints(ctx, points) })
	}
	p.metrics.RecordLatency("pipeline_flush", time.Since(start).Seconds())
}

func (p *SinkPipeline) flushSignals(ctx context.Context, sigs []models.MarketSignal) {
	if p.publisher == nil {
		return
	}
	p.retry(ctx, "publish_signals", len(sigs), func() error { return p.publisher.PublishSignals(ctx, sigs) })
}

// retry runs fn with exponential backoff; the batch is dropped once retries
// run out.
func (p *SinkPipeline) retry(ctx context.Context, op string, n int, fn func() error) {
	backoff := 50 * time.Millisecond
	var err error
	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		if err = fn(); err == nil {
			return
		}
		p.metrics.RecordError("pipeline_" + op)
		if attempt == p.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < 2*time.Second {
			backoff *= 2
		}
	}
	p.dropped.Add(uint64(n))
	p.logger.Warn("sink batch dropped",
		applogger.String("op", op),
		applogger.Int("items", n),
		applogger.Error(err),
	)
}

func validatePoint(pt models.MarketDataPoint) error {
	if pt.Symbol == "" {
		return fmt.Errorf("symbol empty")
	}
	if pt.Timestamp.IsZero() {
		return fmt.Errorf("timestamp invalid")
	}
	if pt.Available && pt.PriceHome < 0 {
		return fmt.Errorf("negative price")
	}
	return nil
}

func (p *SinkPipeline) allow(symbol string, now time.Time) bool {
	if p.maxRPS <= 0 {
		return true
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	last := p.lastSeen[symbol]
	if !last.IsZero() && now.Sub(last) < time.Second/time.Duration(p.maxRPS) {
		return false
	}
	p.lastSeen[symbol] = now
	return true
}
