package kafka

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestNewProducerValidates(t *testing.T) {
	if _, err := NewProducer(); err == nil {
		t.Fatalf("expected error without brokers")
	}
	if _, err := NewProducer(WithBrokers([]string{"localhost:9092"}), WithCompression("brotli")); err == nil {
		t.Fatalf("expected error for unknown compression")
	}
}

func TestNewProducerAppliesOptions(t *testing.T) {
	p, err := NewProducer(
		WithBrokers([]string{"localhost:9092"}),
		WithCompression("zstd"),
		WithDelivery(1, 5, true),
		WithBatching(10, 4096, 50*time.Millisecond),
		WithTimeouts(time.Second, 2*time.Second),
	)
	if err != nil {
		t.Fatalf("NewProducer: %v", err)
	}
	defer p.Close()

	w := p.writer
	if w.Compression != kafka.Zstd || w.RequiredAcks != kafka.RequireOne || w.MaxAttempts != 5 || !w.Async {
		t.Fatalf("delivery settings = %+v", w)
	}
	if w.BatchSize != 10 || w.BatchBytes != 4096 || w.BatchTimeout != 50*time.Millisecond {
		t.Fatalf("batching = %d/%d/%v", w.BatchSize, w.BatchBytes, w.BatchTimeout)
	}
	if _, ok := w.Balancer.(*kafka.Hash); !ok {
		t.Fatalf("balancer = %T, want key hash", w.Balancer)
	}
}
