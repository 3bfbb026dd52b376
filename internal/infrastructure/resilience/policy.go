package resilience

import "time"

// RetryPolicy bounds the attempts of one named operation.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
}

// SingleAttempt is the policy of every call made while a search request waits.
func SingleAttempt() RetryPolicy {
	return RetryPolicy{MaxAttempts: 1}
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = 100 * time.Millisecond
	}
	if p.MaxBackoff < p.InitialBackoff {
		p.MaxBackoff = 4 * p.InitialBackoff
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// BreakerPolicy configures the breaker kept per operation name.
type BreakerPolicy struct {
	Enabled          bool
	MinRequests      uint32
	FailureRatio     float64
	OpenTimeout      time.Duration
	HalfOpenMaxCalls uint32
}

func (p BreakerPolicy) normalize() BreakerPolicy {
	if p.MinRequests == 0 {
		p.MinRequests = 10
	}
	if p.FailureRatio <= 0 || p.FailureRatio > 1 {
		p.FailureRatio = 0.5
	}
	if p.OpenTimeout <= 0 {
		p.OpenTimeout = 30 * time.Second
	}
	if p.HalfOpenMaxCalls == 0 {
		p.HalfOpenMaxCalls = 2
	}
	return p
}

// Config guards the external calls of one process. Operations missing from
// Retries are attempted once.
type Config struct {
	Retries map[string]RetryPolicy
	Breaker BreakerPolicy
}

func DefaultConfig() Config {
	return Config{
		Breaker: BreakerPolicy{Enabled: true},
	}
}

// IndexingRetries lets the worker retry embedding and vector writes.
func IndexingRetries(maxAttempts int) map[string]RetryPolicy {
	policy := RetryPolicy{
		MaxAttempts:    maxAttempts,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
	}
	return map[string]RetryPolicy{
		"ollama.embed":  policy,
		"qdrant.upsert": policy,
		"qdrant.delete": policy,
	}
}

func (c Config) normalize() Config {
	out := Config{
		Retries: make(map[string]RetryPolicy, len(c.Retries)),
		Breaker: c.Breaker.normalize(),
	}
	for op, policy := range c.Retries {
		out.Retries[op] = policy.normalize()
	}
	return out
}

func (c Config) retryPolicy(operation string) RetryPolicy {
	if policy, ok := c.Retries[operation]; ok {
		return policy
	}
	return SingleAttempt().normalize()
}
