package usecase

import (
	"time"

	"github.com/scmhub/calendar"
)

// Session answers exchange calendar questions. *calendar.Calendar satisfies it.
type Session interface {
	IsBusinessDay(t time.Time) bool
	IsOpen(t time.Time) bool
}

// weekdaySession is used when no exchange calendar is available:
// Mon-Fri, 09:30-16:00 in loc.
type weekdaySession struct{ loc *time.Location }

func (s weekdaySession) IsBusinessDay(t time.Time) bool {
	wd := t.In(s.loc).Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func (s weekdaySession) IsOpen(t time.Time) bool {
	if !s.IsBusinessDay(t) {
		return false
	}
	lt := t.In(s.loc)
	mins := lt.Hour()*60 + lt.Minute()
	return mins >= 9*60+30 && mins < 16*60
}

// CadencePolicy stretches poll intervals outside trading hours.
type CadencePolicy struct {
	session  Session
	offHours float64
	weekend  float64
}

// CadenceOption configures CadencePolicy.
type CadenceOption func(*CadencePolicy)

// WithSession overrides the exchange calendar.
func WithSession(s Session) CadenceOption {
	return func(p *CadencePolicy) {
		if s != nil {
			p.session = s
		}
	}
}

// WithMultipliers sets the off-hours and weekend/holiday multipliers.
func WithMultipliers(offHours, weekend float64) CadenceOption {
	return func(p *CadencePolicy) {
		if offHours > 0 && offHours <= 1 {
			p.offHours = offHours
		}
		if weekend > 0 && weekend <= 1 {
			p.weekend = weekend
		}
	}
}

// NewCadencePolicy loads the calendar for mic (ISO 10383, e.g. "xtse").
// Unknown MICs fall back to a Mon-Fri 09:30-16:00 Toronto session.
func NewCadencePolicy(mic string, opts ...CadenceOption) *CadencePolicy {
	p := &CadencePolicy{offHours: 0.5, weekend: 0.25}
	if cal := calendar.GetCalendar(mic); cal != nil {
		p.session = cal
	} else {
		loc, err := time.LoadLocation("America/Toronto")
		if err != nil {
			loc = time.UTC
		}
		p.session = weekdaySession{loc: loc}
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Multiplier is 1 during the session, offHours on business days outside it
// and weekend on weekends and holidays.
func (p *CadencePolicy) Multiplier(t time.Time) float64 {
	if !p.session.IsBusinessDay(t) {
		return p.weekend
	}
	if p.session.IsOpen(t) {
		return 1
	}
	return p.offHours
}

// Interval scales base by the multiplier at t.
func (p *CadencePolicy) Interval(base time.Duration, t time.Time) time.Duration {
	return time.Duration(float64(base) / p.Multiplier(t))
}
