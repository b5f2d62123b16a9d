package usecase

import (
	"fmt"
	"reflect"

	"MarketBoard/internal/domain/models"
)

// Subscriber receives every point for the symbols it subscribed to.
// Implementations must be comparable: registration is a set keyed by value.
type Subscriber interface {
	OnPoint(p models.MarketDataPoint)
}

// Callback adapts a function to Subscriber. Each *Callback is one
// registration identity; subscribing the same pointer twice is a no-op.
type Callback struct {
	fn func(models.MarketDataPoint)
}

// NewCallback wraps fn.
func NewCallback(fn func(models.MarketDataPoint)) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) OnPoint(p models.MarketDataPoint) {
	if c.fn != nil {
		c.fn(p)
	}
}

// subscriberSet keeps registration order and rejects duplicates.
// It is guarded by the owning symbol's lock.
type subscriberSet struct {
	subs []Subscriber
}

func checkComparable(s Subscriber) error {
	if s == nil {
		return fmt.Errorf("subscriber is nil")
	}
	if !reflect.TypeOf(s).Comparable() {
		return fmt.Errorf("subscriber type %T is not comparable", s)
	}
	return nil
}

func (s *subscriberSet) add(sub Subscriber) bool {
	for _, existing := range s.subs {
		if existing == sub {
			return false
		}
	}
	s.subs = append(s.subs, sub)
	return true
}

func (s *subscriberSet) remove(sub Subscriber) {
	for i, existing := range s.subs {
		if existing == sub {
			s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
			return
		}
	}
}
