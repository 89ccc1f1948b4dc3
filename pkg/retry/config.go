// Package retry defines the backoff/retry configuration that pkg/jobs
// registers per job type. pkg/jobs reads only NextAttemptAt from it; its
// dead-letter ceiling is jobs.MaxAttempts, not MaxRetries.
package retry

import (
	"fmt"
	"math/rand"
	"time"
)

const (
	DefaultMaxRetries     = 10
	DefaultInitialBackoff = 1 * time.Second
	DefaultMaxBackoff     = 30 * time.Minute
	DefaultJitterFactor   = 0.25

	DLQInitialBackoff = 1 * time.Minute
)

// Config is an exponential-backoff-with-jitter policy.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	JitterFactor   float64
}

// DefaultMetadataOutboxConfig is the default policy: ten retries, a
// one-second initial backoff, a 30-minute cap and 25% jitter.
func DefaultMetadataOutboxConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

// DefaultDLQConfig is the default policy with a slower, one-minute initial
// backoff. No dead-letter redelivery path in this module uses it.
func DefaultDLQConfig() Config {
	return Config{
		MaxRetries:     DefaultMaxRetries,
		InitialBackoff: DLQInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		JitterFactor:   DefaultJitterFactor,
	}
}

func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

func (c Config) WithInitialBackoff(d time.Duration) Config {
	c.InitialBackoff = d
	return c
}

func (c Config) WithMaxBackoff(d time.Duration) Config {
	c.MaxBackoff = d
	return c
}

func (c Config) WithJitterFactor(f float64) Config {
	c.JitterFactor = f
	return c
}

// ConfigValidationError reports a single invalid Config field.
type ConfigValidationError struct {
	Field   string
	Message string
}

func (e ConfigValidationError) Error() string {
	return fmt.Sprintf("mretry: invalid %s: %s", e.Field, e.Message)
}

// Validate checks the policy is internally consistent.
func (c Config) Validate() error {
	if c.MaxRetries < 1 {
		return ConfigValidationError{Field: "MaxRetries", Message: "must be >= 1"}
	}

	if c.InitialBackoff <= 0 {
		return ConfigValidationError{Field: "InitialBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff <= 0 {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be > 0"}
	}

	if c.MaxBackoff < c.InitialBackoff {
		return ConfigValidationError{Field: "MaxBackoff", Message: "must be >= InitialBackoff"}
	}

	if c.JitterFactor < 0.0 || c.JitterFactor > 1.0 {
		return ConfigValidationError{Field: "JitterFactor", Message: "must be in range [0.0, 1.0]"}
	}

	return nil
}

// NextAttemptAt returns how long to wait before retrying the given
// 1-indexed attempt number: exponential growth off InitialBackoff, capped
// at MaxBackoff, with up to JitterFactor of random jitter subtracted so
// that many competing retriers don't all wake at once.
func (c Config) NextAttemptAt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	backoff := float64(c.InitialBackoff) * float64(uint64(1)<<uint(attempt-1))
	if max := float64(c.MaxBackoff); backoff > max {
		backoff = max
	}

	if c.JitterFactor > 0 {
		jitter := backoff * c.JitterFactor * rand.Float64()
		backoff -= jitter
	}

	return time.Duration(backoff)
}
