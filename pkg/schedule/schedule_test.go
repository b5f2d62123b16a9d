package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEveryRunsUntilStopped(t *testing.T) {
	g := NewGroup(context.Background())
	var n atomic.Int32
	if err := g.Every("count", 2*time.Millisecond, true, func(context.Context) { n.Add(1) }); err != nil {
		t.Fatalf("every: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.Stop()
	after := n.Load()
	if after < 3 {
		t.Fatalf("expected at least 3 runs, got %d", after)
	}
	time.Sleep(10 * time.Millisecond)
	if n.Load() != after {
		t.Fatalf("job ran after Stop returned")
	}
}

func TestEveryRejectsNonPositiveInterval(t *testing.T) {
	g := NewGroup(context.Background())
	defer g.Stop()
	if err := g.Every("bad", 0, false, func(context.Context) {}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEveryFuncFollowsDynamicInterval(t *testing.T) {
	g := NewGroup(context.Background())
	var calls atomic.Int32
	var runs atomic.Int32
	g.EveryFunc("dyn", func() time.Duration {
		calls.Add(1)
		return time.Millisecond
	}, false, func(context.Context) { runs.Add(1) })

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.Stop()
	if runs.Load() < 2 || calls.Load() < runs.Load() {
		t.Fatalf("runs=%d calls=%d", runs.Load(), calls.Load())
	}
}

func TestPanicDoesNotKillLoop(t *testing.T) {
	var panics atomic.Int32
	g := NewGroup(context.Background(), WithPanicHandler(func(string, any) { panics.Add(1) }))
	_ = g.Every("boom", time.Millisecond, true, func(context.Context) { panic("x") })
	deadline := time.Now().Add(time.Second)
	for panics.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	g.Stop()
	if panics.Load() < 2 {
		t.Fatalf("loop stopped after panic")
	}
}

func TestStopIdempotentAndCancelsContext(t *testing.T) {
	g := NewGroup(context.Background())
	started := make(chan struct{})
	g.Go("wait", func(ctx context.Context) {
		close(started)
		<-ctx.Done()
	})
	<-started
	g.Stop()
	g.Stop()
	if !g.Done() {
		t.Fatalf("expected done")
	}
}
