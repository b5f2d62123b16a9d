package models

import "time"

// RotationItem is a candidate for a display slot.
type RotationItem struct {
	ID                 string    `yaml:"id" json:"id"`
	Symbol             string    `yaml:"symbol" json:"symbol"`
	Category           Category  `yaml:"category" json:"category"`
	Weight             float64   `yaml:"weight" json:"weight"`
	LastShownTimestamp time.Time `yaml:"-" json:"last_shown"`
	ShowCount          int       `yaml:"-" json:"show_count"`
	Pinned             bool      `yaml:"pinned" json:"pinned"`
	SignalActive       bool      `yaml:"-" json:"signal_active"`
}
