package rotation

import (
	"fmt"
	"time"

	"MarketBoard/internal/domain/models"
)

// DayPart biases categories during a range of local hours [StartHour, EndHour).
// A range with StartHour > EndHour wraps past midnight.
type DayPart struct {
	Name        string                      `yaml:"name"`
	StartHour   int                         `yaml:"start_hour" validate:"gte=0,lte=23"`
	EndHour     int                         `yaml:"end_hour" validate:"gte=0,lte=24"`
	Multipliers map[models.Category]float64 `yaml:"multipliers"`
}

func (d DayPart) contains(hour int) bool {
	if d.StartHour <= d.EndHour {
		return hour >= d.StartHour && hour < d.EndHour
	}
	return hour >= d.StartHour || hour < d.EndHour
}

// GroupConfig describes one rotation group.
type GroupConfig struct {
	FixedSlots        int           `yaml:"fixed_slots" validate:"gte=0"`
	SpotlightSlots    int           `yaml:"spotlight_slots" validate:"gte=0"`
	RotationInterval  time.Duration `yaml:"rotation_interval" default:"15s"`
	FairnessWindow    int           `yaml:"fairness_window" validate:"gte=0"`
	PriorityThreshold int           `yaml:"priority_threshold" default:"7" validate:"gte=0,lte=10"`
	DayParts          []DayPart     `yaml:"day_parts"`
}

func (c GroupConfig) validate() error {
	if c.FixedSlots < 0 || c.SpotlightSlots < 0 {
		return fmt.Errorf("slot counts must be non-negative")
	}
	if c.FixedSlots+c.SpotlightSlots == 0 {
		return fmt.Errorf("group needs at least one slot")
	}
	if c.RotationInterval <= 0 {
		return fmt.Errorf("rotation interval must be positive")
	}
	if c.FairnessWindow < 0 {
		return fmt.Errorf("fairness window must be non-negative")
	}
	return nil
}

func (c GroupConfig) multiplier(cat models.Category, hour int) float64 {
	for _, dp := range c.DayParts {
		if !dp.contains(hour) {
			continue
		}
		if m, ok := dp.Multipliers[cat]; ok && m > 0 {
			return m
		}
		return 1
	}
	return 1
}
