package timeseries

import (
	"math"
	"sync"
	"testing"
	"time"
)

var t0 = time.Date(2024, 10, 10, 10, 0, 0, 0, time.UTC)

func fill(b *Buffer, values ...float64) {
	for i, v := range values {
		b.Push(v, t0.Add(time.Duration(i)*time.Second))
	}
}

func TestSizeNeverExceedsCapacity(t *testing.T) {
	b := New(4)
	for i := 0; i < 11; i++ {
		b.Push(float64(i), t0.Add(time.Duration(i)*time.Second))
		if b.Size() > b.Capacity() {
			t.Fatalf("size %d > capacity %d", b.Size(), b.Capacity())
		}
	}
	if b.Size() != 4 {
		t.Fatalf("expected full buffer, got %d", b.Size())
	}
}

func TestLastNChronologicalAcrossWrap(t *testing.T) {
	b := New(5)
	fill(b, 1, 2, 3, 4, 5, 6, 7)

	for k := 0; k <= 7; k++ {
		got := b.LastN(k)
		want := min(k, b.Size())
		if len(got) != want {
			t.Fatalf("LastN(%d) len = %d, want %d", k, len(got), want)
		}
		for i := 1; i < len(got); i++ {
			if !got[i].Timestamp.After(got[i-1].Timestamp) {
				t.Fatalf("LastN(%d) not chronological: %v", k, got)
			}
		}
		if k > 0 && got[len(got)-1].Value != 7 {
			t.Fatalf("LastN(%d) last = %v, want 7", k, got[len(got)-1].Value)
		}
	}
	all := b.LastN(5)
	for i, v := range []float64{3, 4, 5, 6, 7} {
		if all[i].Value != v {
			t.Fatalf("LastN(5)[%d] = %v, want %v", i, all[i].Value, v)
		}
	}
}

func TestLastNContiguousDoesNotCopy(t *testing.T) {
	b := New(8)
	fill(b, 1, 2, 3, 4)
	got := b.LastN(3)
	if &got[0] != &b.data[1] {
		t.Fatalf("expected contiguous view into storage")
	}
	cp := b.CopyLastN(nil, 3)
	if &cp[0] == &b.data[1] {
		t.Fatalf("CopyLastN must not alias storage")
	}
}

func TestMinMax(t *testing.T) {
	b := New(3)
	if lo, hi := b.MinMax(); lo != 0 || hi != 0 {
		t.Fatalf("empty minmax = %v %v", lo, hi)
	}
	fill(b, 9, -2, 5, 3)
	lo, hi := b.MinMax()
	if lo != -2 || hi != 5 {
		t.Fatalf("minmax = %v %v", lo, hi)
	}
}

func TestStatsDegenerate(t *testing.T) {
	b := New(10)
	if s := b.Stats(5); s != (Stats{}) {
		t.Fatalf("empty stats = %+v", s)
	}
	b.Push(42, t0)
	s := b.Stats(5)
	if s != (Stats{}) {
		t.Fatalf("single sample stats = %+v", s)
	}
	if math.IsNaN(s.Mean) || math.IsNaN(s.StdDev) {
		t.Fatalf("NaN in degenerate stats")
	}
}

func TestStatsValues(t *testing.T) {
	b := New(10)
	fill(b, 2, 4, 4, 4, 5, 5, 7, 9)

	s := b.Stats(100) // clamped to 8
	if s.Mean != 5 || s.StdDev != 2 {
		t.Fatalf("mean/stddev = %v/%v", s.Mean, s.StdDev)
	}
	if s.Velocity != (9.0-2.0)/8.0 {
		t.Fatalf("velocity = %v", s.Velocity)
	}
	// |2|+0+0+1+0+2+2 over 7 diffs
	if math.Abs(s.Volatility-1.0) > 1e-12 {
		t.Fatalf("volatility = %v", s.Volatility)
	}
}

func TestStatsVolatilitySubWindow(t *testing.T) {
	b := New(10, WithVolatilityWindow(3))
	fill(b, 0, 10, 0, 1, 2)
	s := b.Stats(5)
	if math.Abs(s.Volatility-1.0) > 1e-12 {
		t.Fatalf("sub-window volatility = %v", s.Volatility)
	}
}

func TestStatsRealizedVolatility(t *testing.T) {
	steady := New(10)
	fill(steady, 100, 110, 121, 133.1)
	if s := steady.Stats(4); s.RealizedVolatility > 1e-9 {
		t.Fatalf("constant growth realized vol = %v, want 0", s.RealizedVolatility)
	}

	choppy := New(10)
	fill(choppy, 100, 110, 100, 110, 100)
	s := choppy.Stats(5)
	// returns alternate +/-ln(1.1); stddev of four of them
	want := math.Log(1.1) * math.Sqrt(4.0/3.0)
	if math.Abs(s.RealizedVolatility-want) > 1e-9 {
		t.Fatalf("realized vol = %v, want %v", s.RealizedVolatility, want)
	}
}

func TestPushInvalidatesMemo(t *testing.T) {
	b := New(10)
	fill(b, 1, 2, 3)
	first := b.Stats(3)
	b.Push(100, t0.Add(time.Hour))
	second := b.Stats(3)
	if first == second {
		t.Fatalf("stats not recomputed after push")
	}
}

func TestConcurrentReadersTolerateWriter(t *testing.T) {
	b := New(64)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var dst []Sample
			for {
				select {
				case <-stop:
					return
				default:
				}
				dst = b.CopyLastN(dst[:0], 32)
				_ = b.Stats(16)
				_, _ = b.MinMax()
			}
		}()
	}
	for i := 0; i < 5000; i++ {
		b.Push(float64(i), t0.Add(time.Duration(i)*time.Millisecond))
	}
	close(stop)
	wg.Wait()
	if b.Size() != 64 {
		t.Fatalf("size = %d", b.Size())
	}
}
