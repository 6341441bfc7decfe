package providers

import (
	"github.com/rs/zerolog"
)

// Transport bundles the per-provider rate limiter and circuit breakers that
// every client pool shares. One Transport serves the whole process; pools
// built from it gate their requests on both.
type Transport struct {
	Limiter  *RateLimiter
	Breakers *CircuitBreakerManager
}

// NewTransport initializes limits and breakers for every known provider at
// their free-tier defaults.
func NewTransport(log zerolog.Logger) *Transport {
	limiter := NewRateLimiter()
	for provider, rps := range DefaultRates() {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		limiter.InitializeProvider(provider, rps, burst)
	}

	breakers := NewCircuitBreakerManager(log)
	for provider, config := range DefaultBreakerConfigs() {
		breakers.InitializeProvider(provider, config, nil)
	}

	return &Transport{Limiter: limiter, Breakers: breakers}
}

// Pool builds a client pool gated on this transport's limiter and breaker
// for the named provider. A nil Transport yields an ungated pool, which is
// what tests use.
func (t *Transport) Pool(provider string, config ClientConfig, log zerolog.Logger) *ClientPool {
	cp := NewClientPool(config, log)
	if t == nil {
		return cp
	}
	cp.provider = provider
	cp.limiter = t.Limiter
	cp.breakers = t.Breakers
	return cp
}
