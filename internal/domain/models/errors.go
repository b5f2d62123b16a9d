package models

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientProvider marks network/timeout failures retried on the next cycle.
	ErrTransientProvider = errors.New("transient provider error")
	// ErrStaleRate marks an expired rate with no usable fallback leg.
	ErrStaleRate = errors.New("stale rate")
	// ErrUnconvertible marks an instrument with no path to the home currency.
	ErrUnconvertible = errors.New("unconvertible instrument")
	// ErrRateLimited marks a fetch skipped by the outbound limiter. It is not a failure.
	ErrRateLimited = errors.New("rate limited")
	// ErrUnknownSymbol marks a lookup for a symbol outside the catalog.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// IsConfigurationError reports whether err carries a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
