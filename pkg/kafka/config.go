package kafka

import (
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption configures Producer.
type ProducerOption func(*ProducerConfig)

// ProducerConfig holds writer settings. Messages are always balanced by key,
// so points and signals for one symbol keep their order on a partition;
// unkeyed messages such as log batches are spread round-robin.
type ProducerConfig struct {
	Brokers      []string
	Compression  string
	RequiredAcks int // -1 waits for all in-sync replicas
	MaxAttempts  int
	Async        bool
	BatchSize    int
	BatchBytes   int
	Linger       time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
}

func defaultProducerConfig() ProducerConfig {
	return ProducerConfig{
		Compression:  "gzip",
		RequiredAcks: -1,
		MaxAttempts:  3,
		BatchSize:    100,
		BatchBytes:   1 << 20,
		Linger:       time.Second,
		WriteTimeout: 10 * time.Second,
		ReadTimeout:  10 * time.Second,
	}
}

func (c ProducerConfig) validate() error {
	if len(c.Brokers) == 0 {
		return errors.New("brokers are required")
	}
	if _, ok := compressionCodec(c.Compression); !ok {
		return fmt.Errorf("unknown compression %q", c.Compression)
	}
	return nil
}

func compressionCodec(name string) (kafka.Compression, bool) {
	switch name {
	case "gzip":
		return kafka.Gzip, true
	case "snappy":
		return kafka.Snappy, true
	case "lz4":
		return kafka.Lz4, true
	case "zstd":
		return kafka.Zstd, true
	}
	return 0, false
}

// WithBrokers sets Kafka brokers.
func WithBrokers(brokers []string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Brokers = brokers
	}
}

// WithCompression selects gzip, snappy, lz4 or zstd.
func WithCompression(codec string) ProducerOption {
	return func(c *ProducerConfig) {
		c.Compression = codec
	}
}

// WithDelivery sets acknowledgements, writer retries and fire-and-forget mode.
func WithDelivery(requiredAcks, maxAttempts int, async bool) ProducerOption {
	return func(c *ProducerConfig) {
		c.RequiredAcks = requiredAcks
		c.MaxAttempts = maxAttempts
		c.Async = async
	}
}

// WithBatching bounds a batch by message count and bytes; linger is the
// longest a partial batch waits.
func WithBatching(size, bytes int, linger time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.BatchSize = size
		c.BatchBytes = bytes
		c.Linger = linger
	}
}

// WithTimeouts sets writer write/read timeouts.
func WithTimeouts(write, read time.Duration) ProducerOption {
	return func(c *ProducerConfig) {
		c.WriteTimeout = write
		c.ReadTimeout = read
	}
}
