package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrNoEligibleModel    = errors.New("no eligible model")
	ErrConfiguration      = errors.New("configuration error")
	ErrProviderNotFound   = errors.New("provider not found")
	ErrModelNotFound      = errors.New("model not found")
	ErrProviderError      = errors.New("provider error")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrCircuitBreakerOpen = errors.New("circuit breaker open")
)

// ConfigurationError describes a catalog entry rejected at load time.
type ConfigurationError struct {
	ModelID string
	Field   string
	Reason  string
}

func (e *ConfigurationError) Error() string {
	if e.ModelID == "" {
		return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("configuration error: model %q: %s: %s", e.ModelID, e.Field, e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrConfiguration
}
