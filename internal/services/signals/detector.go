package signals

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"MarketBoard/internal/domain/models"
	"MarketBoard/internal/services/features"
	"MarketBoard/internal/services/timeseries"
)

// Config holds detection thresholds. Zero values are replaced by defaults.
type Config struct {
	PriceChangeThreshold float64       `yaml:"price_change_threshold" default:"2" validate:"gt=0"` // percent
	PriceChangeWindow    int           `yaml:"price_change_window" default:"10" validate:"gte=1"`  // samples
	VolatilityMultiplier float64       `yaml:"volatility_multiplier" default:"2.5" validate:"gt=1"`
	VolatilityWindow     int           `yaml:"volatility_window" default:"20" validate:"gte=2"`
	BaselineWindow       int           `yaml:"baseline_window" default:"200" validate:"gte=2"`
	MinSignalDuration    time.Duration `yaml:"min_signal_duration" default:"60s"`
	CooldownPeriod       time.Duration `yaml:"cooldown_period" default:"5m"`
	PriorityThreshold    int           `yaml:"priority_threshold" default:"7" validate:"gte=0,lte=10"`
}

// DefaultConfig returns the stock thresholds.
func DefaultConfig() Config {
	return Config{
		PriceChangeThreshold: 2,
		PriceChangeWindow:    10,
		VolatilityMultiplier: 2.5,
		VolatilityWindow:     20,
		BaselineWindow:       200,
		MinSignalDuration:    time.Minute,
		CooldownPeriod:       5 * time.Minute,
		PriorityThreshold:    7,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PriceChangeThreshold <= 0 {
		c.PriceChangeThreshold = d.PriceChangeThreshold
	}
	if c.PriceChangeWindow <= 0 {
		c.PriceChangeWindow = d.PriceChangeWindow
	}
	if c.VolatilityMultiplier <= 0 {
		c.VolatilityMultiplier = d.VolatilityMultiplier
	}
	if c.VolatilityWindow < 2 {
		c.VolatilityWindow = d.VolatilityWindow
	}
	if c.BaselineWindow < 2 {
		c.BaselineWindow = d.BaselineWindow
	}
	if c.MinSignalDuration <= 0 {
		c.MinSignalDuration = d.MinSignalDuration
	}
	if c.CooldownPeriod < 0 {
		c.CooldownPeriod = 0
	}
	return c
}

type key struct {
	symbol string
	kind   models.SignalType
}

type state struct {
	current   models.MarketSignal
	lastStart time.Time
}

// Detector evaluates buffers after each push and emits signals.
type Detector struct {
	cfg    Config
	mu     sync.Mutex
	states map[key]*state
	newID  func() string
}

// NewDetector creates a detector.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		cfg:    cfg.withDefaults(),
		states: make(map[key]*state),
		newID:  func() string { return uuid.NewString() },
	}
}

// Config returns the effective configuration.
func (d *Detector) Config() Config { return d.cfg }

// Evaluate inspects buf for symbol at now. started holds newly started
// signals; extended holds active signals whose window grew because their
// condition persists. A symbol+type inside its cooldown yields nothing.
func (d *Detector) Evaluate(symbol string, buf *timeseries.Buffer, now time.Time) (started, extended []models.MarketSignal) {
	for _, check := range []func(string, *timeseries.Buffer) (models.MarketSignal, bool){d.spike, d.burst} {
		s, ok := check(symbol, buf)
		if !ok {
			continue
		}
		switch sig, res := d.observe(s, now); res {
		case outcomeStarted:
			started = append(started, sig)
		case outcomeExtended:
			extended = append(extended, sig)
		}
	}
	return started, extended
}

func (d *Detector) spike(symbol string, buf *timeseries.Buffer) (models.MarketSignal, bool) {
	vals := buf.Values(d.cfg.PriceChangeWindow + 1)
	if len(vals) < 2 {
		return models.MarketSignal{}, false
	}
	pct := features.PercentChange(vals[0], vals[len(vals)-1])
	if math.Abs(pct) < d.cfg.PriceChangeThreshold {
		return models.MarketSignal{}, false
	}
	return models.MarketSignal{
		Type:      models.SignalPriceSpike,
		Symbol:    symbol,
		Magnitude: math.Abs(pct),
		Direction: direction(pct),
		Priority:  priority(math.Abs(pct) / d.cfg.PriceChangeThreshold),
	}, true
}

// burst compares the recent volatility window against the baseline formed
// by the samples preceding it.
func (d *Detector) burst(symbol string, buf *timeseries.Buffer) (models.MarketSignal, bool) {
	w := d.cfg.VolatilityWindow
	vals := buf.Values(d.cfg.BaselineWindow + w)
	if len(vals) < 2*w {
		return models.MarketSignal{}, false
	}
	split := len(vals) - w
	baseline := features.MeanAbsDiff(vals[:split])
	if baseline <= 0 {
		return models.MarketSignal{}, false
	}
	recent := vals[split:]
	current := features.MeanAbsDiff(recent)
	ratio := current / baseline
	if ratio < d.cfg.VolatilityMultiplier {
		return models.MarketSignal{}, false
	}
	return models.MarketSignal{
		Type:      models.SignalVolatilityBurst,
		Symbol:    symbol,
		Magnitude: ratio,
		Direction: direction(recent[len(recent)-1] - recent[0]),
		Priority:  priority(ratio / d.cfg.VolatilityMultiplier),
	}, true
}

type outcome int

const (
	outcomeNone outcome = iota
	outcomeStarted
	outcomeExtended
)

func (d *Detector) observe(candidate models.MarketSignal, now time.Time) (models.MarketSignal, outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()

	k := key{candidate.Symbol, candidate.Type}
	st, ok := d.states[k]
	if !ok {
		st = &state{}
		d.states[k] = st
	}
	if !st.lastStart.IsZero() && st.current.ActiveAt(now) {
		st.current.Duration = now.Sub(st.current.Timestamp) + d.cfg.MinSignalDuration
		if candidate.Magnitude > st.current.Magnitude {
			st.current.Magnitude = candidate.Magnitude
			st.current.Priority = candidate.Priority
		}
		return st.current, outcomeExtended
	}
	if !st.lastStart.IsZero() && now.Sub(st.lastStart) < d.cfg.CooldownPeriod {
		return models.MarketSignal{}, outcomeNone
	}

	candidate.ID = d.newID()
	candidate.Timestamp = now
	candidate.Duration = d.cfg.MinSignalDuration
	st.current = candidate
	st.lastStart = now
	return candidate, outcomeStarted
}

// Active returns signals still active at now, highest priority first.
func (d *Detector) Active(now time.Time) []models.MarketSignal {
	d.mu.Lock()
	out := make([]models.MarketSignal, 0, len(d.states))
	for _, st := range d.states {
		if !st.lastStart.IsZero() && st.current.ActiveAt(now) {
			out = append(out, st.current)
		}
	}
	d.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// priority maps a threshold ratio (1 = just at threshold) onto 0..10.
func priority(ratio float64) int {
	return features.Clamp(int(math.Round(5*ratio)), 0, 10)
}

func direction(delta float64) models.Direction {
	if delta < 0 {
		return models.DirectionDown
	}
	return models.DirectionUp
}
