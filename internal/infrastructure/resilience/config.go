package resilience

import "time"

// Config tunes retry and circuit breaking for one executor. Zero values fall
// back to DefaultConfig.
type Config struct {
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
	RetryMultiplier     float64

	BreakerEnabled          bool
	BreakerMinRequests      uint32
	BreakerFailureRatio     float64
	BreakerOpenTimeout      time.Duration
	BreakerHalfOpenMaxCalls uint32
}

func DefaultConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 200 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Second,
		RetryMultiplier:     2.0,

		BreakerEnabled:          true,
		BreakerMinRequests:      5,
		BreakerFailureRatio:     0.6,
		BreakerOpenTimeout:      30 * time.Second,
		BreakerHalfOpenMaxCalls: 1,
	}
}

// ConnectConfig is used for one-shot startup connections: more patient
// retries and no breaker.
func ConnectConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryMaxAttempts = 5
	cfg.RetryInitialBackoff = 500 * time.Millisecond
	cfg.RetryMaxBackoff = 5 * time.Second
	cfg.BreakerEnabled = false
	return cfg
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.RetryMaxAttempts <= 0 {
		c.RetryMaxAttempts = def.RetryMaxAttempts
	}
	if c.RetryInitialBackoff <= 0 {
		c.RetryInitialBackoff = def.RetryInitialBackoff
	}
	if c.RetryMaxBackoff < c.RetryInitialBackoff {
		c.RetryMaxBackoff = c.RetryInitialBackoff
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = def.RetryMultiplier
	}
	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerOpenTimeout <= 0 {
		c.BreakerOpenTimeout = def.BreakerOpenTimeout
	}
	if c.BreakerHalfOpenMaxCalls == 0 {
		c.BreakerHalfOpenMaxCalls = def.BreakerHalfOpenMaxCalls
	}
	return c
}
