package util

import (
	"math"
	"strconv"
	"strings"
	"time"
)

// Unix values above this are taken as milliseconds.
const msThreshold = 1e11

// ParseTime reads an upstream timestamp: RFC3339 (with or without fraction),
// or unix seconds or milliseconds, optionally fractional. The result is UTC.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && !math.IsInf(f, 0) {
		return FromUnix(f), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns def if empty or invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// FromUnix converts unix seconds or milliseconds to UTC time.
func FromUnix(v float64) time.Time {
	if v >= msThreshold {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(math.Round(frac*1e3))*int64(time.Millisecond)).UTC()
}
