package timeseries

import (
	"math"
	"sync"
	"time"

	"MarketBoard/internal/services/features"
)

// DefaultCapacity is the per-symbol history length.
const DefaultCapacity = 5000

// DefaultVolatilityWindow is the sub-window used for volatility.
const DefaultVolatilityWindow = 20

// Sample is one (value, timestamp) pair.
type Sample struct {
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats over a window of samples.
type Stats struct {
	Mean       float64 `json:"mean"`
	StdDev     float64 `json:"std_dev"`
	Velocity   float64 `json:"velocity"`
	Volatility float64 `json:"volatility"`
	// RealizedVolatility is the sample stddev of log returns over the
	// volatility sub-window.
	RealizedVolatility float64 `json:"realized_volatility"`
}

// Buffer is a fixed-capacity ring of samples. One writer, many readers.
type Buffer struct {
	mu     sync.RWMutex
	data   []Sample
	head   int // next write position
	size   int
	volWin int
	memoMu sync.Mutex
	memo   map[int]Stats
}

// Option configures Buffer.
type Option func(*Buffer)

// WithVolatilityWindow overrides the volatility sub-window.
func WithVolatilityWindow(n int) Option {
	return func(b *Buffer) {
		if n > 1 {
			b.volWin = n
		}
	}
}

// New creates a buffer. A non-positive capacity selects DefaultCapacity.
func New(capacity int, opts ...Option) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	b := &Buffer{
		data:   make([]Sample, capacity),
		volWin: DefaultVolatilityWindow,
		memo:   make(map[int]Stats),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Push appends a sample, overwriting the oldest once full.
func (b *Buffer) Push(value float64, ts time.Time) {
	b.mu.Lock()
	b.data[b.head] = Sample{Value: value, Timestamp: ts}
	b.head = (b.head + 1) % len(b.data)
	if b.size < len(b.data) {
		b.size++
	}
	b.memoMu.Lock()
	if len(b.memo) > 0 {
		clear(b.memo)
	}
	b.memoMu.Unlock()
	b.mu.Unlock()
}

// Size returns the number of held samples.
func (b *Buffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Capacity returns the ring length.
func (b *Buffer) Capacity() int { return len(b.data) }

// Latest returns the most recent sample.
func (b *Buffer) Latest() (Sample, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return Sample{}, false
	}
	return b.data[b.index(b.size-1)], true
}

// index maps a chronological position (0 = oldest) to storage. Caller holds mu.
func (b *Buffer) index(pos int) int {
	start := b.head - b.size
	if start < 0 {
		start += len(b.data)
	}
	return (start + pos) % len(b.data)
}

// LastN returns up to n most recent samples, oldest first. When the range is
// contiguous in storage the result aliases it and is only valid until the next
// Push; use CopyLastN when the caller races with the writer.
func (b *Buffer) LastN(n int) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastNLocked(n, nil)
}

// CopyLastN appends up to n most recent samples to dst.
func (b *Buffer) CopyLastN(dst []Sample, n int) []Sample {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if dst == nil {
		dst = make([]Sample, 0, min(n, b.size))
	}
	return b.lastNLocked(n, dst)
}

func (b *Buffer) lastNLocked(n int, dst []Sample) []Sample {
	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		if dst != nil {
			return dst
		}
		return []Sample{}
	}
	first := b.index(b.size - n)
	end := first + n
	if end <= len(b.data) {
		if dst == nil {
			return b.data[first:end:end]
		}
		return append(dst, b.data[first:end]...)
	}
	if dst == nil {
		dst = make([]Sample, 0, n)
	}
	dst = append(dst, b.data[first:]...)
	return append(dst, b.data[:end-len(b.data)]...)
}

// Values returns up to n most recent values as a fresh slice.
func (b *Buffer) Values(n int) []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if n > b.size {
		n = b.size
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = b.data[b.index(b.size-n+i)].Value
	}
	return out
}

// MinMax scans all held samples. Returns (0, 0) when empty.
func (b *Buffer) MinMax() (float64, float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.size == 0 {
		return 0, 0
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for i := 0; i < b.size; i++ {
		v := b.data[b.index(i)].Value
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

// Stats computes statistics over the last window samples (clamped to size).
// Fewer than two samples yields zero Stats.
func (b *Buffer) Stats(window int) Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	size := b.size
	if window > size || window <= 0 {
		window = size
	}
	if window < 2 {
		return Stats{}
	}

	// Push clears the memo under mu, so entries stored here are current.
	b.memoMu.Lock()
	cached, ok := b.memo[window]
	b.memoMu.Unlock()
	if ok {
		return cached
	}

	values := make([]float64, window)
	for i := 0; i < window; i++ {
		values[i] = b.data[b.index(size-window+i)].Value
	}

	mean := features.Mean(values)
	volN := min(b.volWin, window)
	st := Stats{
		Mean:               mean,
		StdDev:             features.StdDev(values, mean),
		Velocity:           (values[window-1] - values[0]) / float64(window),
		Volatility:         features.MeanAbsDiff(values[window-volN:]),
		RealizedVolatility: features.RealizedVolatility(features.ComputeLogReturns(values[window-volN:]), volN-1),
	}

	b.memoMu.Lock()
	b.memo[window] = st
	b.memoMu.Unlock()
	return st
}
