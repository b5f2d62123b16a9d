package rotation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/domain/repository"
	applogger "MarketBoard/pkg/logger"
	"MarketBoard/pkg/schedule"
)

// OutputFunc receives the ordered item ids of a group after every tick.
type OutputFunc func(groupID string, ids []string)

type group struct {
	id  string
	cfg GroupConfig

	tickMu sync.Mutex // held for the whole tick; overlapping ticks are skipped

	mu          sync.Mutex
	items       []*models.RotationItem
	forced      map[string]int       // symbol -> priority, consumed by the next tick
	signalUntil map[string]time.Time // symbol -> expiry of its latest signal
	latest      []string
	timer       *schedule.Group
}

// Scheduler rotates display slots across named groups.
type Scheduler struct {
	life    sync.Mutex // serializes Initialize/Start/Stop
	mu      sync.Mutex
	groups  map[string]*group
	output  OutputFunc
	now     func() time.Time
	loc     *time.Location
	logger  *applogger.Logger
	metrics repository.Metrics
}

// Option configures Scheduler.
type Option func(*Scheduler)

// WithOutput sets the per-tick callback.
func WithOutput(fn OutputFunc) Option {
	return func(s *Scheduler) { s.output = fn }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithLocation sets the zone used for day parts.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// WithMetrics records tick counts.
func WithMetrics(m repository.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler creates an empty scheduler.
func NewScheduler(logger *applogger.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		groups:  make(map[string]*group),
		now:     time.Now,
		loc:     time.Local,
		logger:  logger,
		metrics: repository.NopMetrics{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize registers or replaces a group. A running group is stopped first.
func (s *Scheduler) Initialize(groupID string, items []models.RotationItem, cfg GroupConfig) error {
	if groupID == "" {
		return fmt.Errorf("rotation: group id required")
	}
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("rotation %s: %w", groupID, err)
	}
	g := &group{
		id:          groupID,
		cfg:         cfg,
		forced:      make(map[string]int),
		signalUntil: make(map[string]time.Time),
	}
	seen := make(map[string]bool, len(items))
	for _, it := range items {
		if it.ID == "" || seen[it.ID] {
			return fmt.Errorf("rotation %s: missing or duplicate item id %q", groupID, it.ID)
		}
		seen[it.ID] = true
		if it.Weight <= 0 {
			it.Weight = 1
		}
		item := it
		g.items = append(g.items, &item)
	}

	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	old := s.groups[groupID]
	s.groups[groupID] = g
	s.mu.Unlock()
	if old != nil {
		old.stopTimer()
	}
	return nil
}

// Start begins periodic ticks. Restarts the timer of a running group. A
// non-positive interval selects the group's configured interval.
func (s *Scheduler) Start(groupID string, interval time.Duration) error {
	s.life.Lock()
	defer s.life.Unlock()
	g := s.group(groupID)
	if g == nil {
		return fmt.Errorf("rotation: unknown group %q", groupID)
	}
	if interval <= 0 {
		interval = g.cfg.RotationInterval
	}
	g.stopTimer()

	timer := schedule.NewGroup(context.Background(), schedule.WithPanicHandler(func(name string, v any) {
		s.logger.Error("rotation tick panic", applogger.String("group", name), applogger.Any("panic", v))
	}))
	g.mu.Lock()
	g.timer = timer
	g.mu.Unlock()
	if err := timer.Every(groupID, interval, true, func(context.Context) { s.Tick(groupID) }); err != nil {
		return err
	}
	s.logger.Info("rotation started", applogger.String("group", groupID), applogger.Duration("interval_ms", interval))
	return nil
}

// Stop halts a group's timer and waits for an in-flight tick. Unknown groups
// are ignored. Must not be called from the output callback.
func (s *Scheduler) Stop(groupID string) {
	s.life.Lock()
	defer s.life.Unlock()
	if g := s.group(groupID); g != nil {
		g.stopTimer()
	}
}

// StopAll halts every group.
func (s *Scheduler) StopAll() {
	s.life.Lock()
	defer s.life.Unlock()
	s.mu.Lock()
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()
	for _, g := range groups {
		g.stopTimer()
	}
}

// Running reports whether a group's timer is active.
func (s *Scheduler) Running(groupID string) bool {
	g := s.group(groupID)
	if g == nil {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer != nil
}

func (g *group) stopTimer() {
	g.mu.Lock()
	t := g.timer
	g.timer = nil
	g.mu.Unlock()
	if t != nil {
		t.Stop()
	}
}

func (s *Scheduler) group(id string) *group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id]
}

// Groups lists registered group ids.
func (s *Scheduler) Groups() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.groups))
	for id := range s.groups {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// NotifySignal queues a high-priority signal's symbol for the next spotlight
// in every group that carries it.
func (s *Scheduler) NotifySignal(sig models.MarketSignal) {
	s.mu.Lock()
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()

	for _, g := range groups {
		if sig.Priority < g.cfg.PriorityThreshold {
			continue
		}
		g.mu.Lock()
		for _, it := range g.items {
			if it.Symbol != sig.Symbol {
				continue
			}
			if p, ok := g.forced[sig.Symbol]; !ok || sig.Priority > p {
				g.forced[sig.Symbol] = sig.Priority
			}
			if sig.ExpiresAt().After(g.signalUntil[sig.Symbol]) {
				g.signalUntil[sig.Symbol] = sig.ExpiresAt()
			}
			it.SignalActive = true
			break
		}
		g.mu.Unlock()
	}
}

// ExtendSignal lengthens the active window of a signal already accepted by
// NotifySignal. It never queues the symbol for the spotlight again.
func (s *Scheduler) ExtendSignal(sig models.MarketSignal) {
	s.mu.Lock()
	groups := make([]*group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	s.mu.Unlock()

	for _, g := range groups {
		g.mu.Lock()
		if until, ok := g.signalUntil[sig.Symbol]; ok && sig.ExpiresAt().After(until) {
			g.signalUntil[sig.Symbol] = sig.ExpiresAt()
		}
		g.mu.Unlock()
	}
}

// Tick computes one assignment for the group and delivers it. It returns
// false when the group is unknown or another tick is still running.
func (s *Scheduler) Tick(groupID string) ([]string, bool) {
	g := s.group(groupID)
	if g == nil {
		return nil, false
	}
	if !g.tickMu.TryLock() {
		s.logger.Debug("rotation tick skipped", applogger.String("group", groupID))
		return nil, false
	}
	defer g.tickMu.Unlock()

	now := s.now()
	g.mu.Lock()
	ids := g.assign(now, now.In(s.loc).Hour())
	g.latest = ids
	g.mu.Unlock()

	s.metrics.RecordRotationTick(groupID)
	if s.output != nil {
		s.output(groupID, append([]string(nil), ids...))
	}
	return ids, true
}

// Latest returns the most recent assignment of a group.
func (s *Scheduler) Latest(groupID string) ([]string, bool) {
	g := s.group(groupID)
	if g == nil {
		return nil, false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.latest == nil {
		return nil, false
	}
	return append([]string(nil), g.latest...), true
}

// Items returns a copy of a group's items.
func (s *Scheduler) Items(groupID string) []models.RotationItem {
	g := s.group(groupID)
	if g == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]models.RotationItem, len(g.items))
	for i, it := range g.items {
		out[i] = *it
	}
	return out
}
