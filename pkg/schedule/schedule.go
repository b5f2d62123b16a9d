package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Job is one unit of periodic work. It receives the group context.
type Job func(ctx context.Context)

// Group owns a set of background loops that share one cancellation.
// Stop cancels every loop and waits for in-flight jobs, so no job runs after
// Stop returns.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	once    sync.Once
	onPanic func(name string, v any)
}

// Option configures Group.
type Option func(*Group)

// WithPanicHandler is called when a job panics; the loop keeps running.
func WithPanicHandler(fn func(name string, v any)) Option {
	return func(g *Group) { g.onPanic = fn }
}

// NewGroup derives a cancellable group from parent.
func NewGroup(parent context.Context, opts ...Option) *Group {
	ctx, cancel := context.WithCancel(parent)
	g := &Group{ctx: ctx, cancel: cancel}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Context is cancelled when the group stops.
func (g *Group) Context() context.Context { return g.ctx }

// Done reports whether the group was stopped.
func (g *Group) Done() bool { return g.ctx.Err() != nil }

// Go runs fn once in the group.
func (g *Group) Go(name string, fn Job) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.run(name, fn)
	}()
}

// Every runs job at a fixed interval. With immediate the first run happens
// right away instead of after one interval.
func (g *Group) Every(name string, interval time.Duration, immediate bool, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("schedule %s: interval must be positive", name)
	}
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if immediate && !g.Done() {
			g.run(name, job)
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-g.ctx.Done():
				return
			case <-ticker.C:
				if g.Done() {
					return
				}
				g.run(name, job)
			}
		}
	}()
	return nil
}

// EveryFunc runs job repeatedly, asking next for the delay before each run.
// The delay is re-read every cycle so it can follow a changing cadence.
func (g *Group) EveryFunc(name string, next func() time.Duration, immediate bool, job Job) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if immediate && !g.Done() {
			g.run(name, job)
		}
		for {
			d := next()
			if d <= 0 {
				d = time.Second
			}
			timer := time.NewTimer(d)
			select {
			case <-g.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
				if g.Done() {
					return
				}
				g.run(name, job)
			}
		}
	}()
}

func (g *Group) run(name string, job Job) {
	defer func() {
		if r := recover(); r != nil && g.onPanic != nil {
			g.onPanic(name, r)
		}
	}()
	job(g.ctx)
}

// Stop cancels all loops and waits for them. Safe to call more than once.
func (g *Group) Stop() {
	g.once.Do(g.cancel)
	g.wg.Wait()
}
