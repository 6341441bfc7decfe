package providers

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
)

// Provider names used as keys for rate limits, breakers, and metrics.
const (
	ProviderEtherscan   = "etherscan"
	ProviderEVMRPC      = "evm_rpc"
	ProviderSolanaRPC   = "solana_rpc"
	ProviderDexScreener = "dexscreener"
	ProviderDefiLlama   = "defillama"
	ProviderTheGraph    = "thegraph"
	ProviderCryptoPanic = "cryptopanic"
)

// CircuitBreakerManager keeps one breaker per upstream provider and walks a
// configured fallback chain when the primary's circuit opens.
type CircuitBreakerManager struct {
	breakers   map[string]*gobreaker.CircuitBreaker
	configs    map[string]*CircuitBreakerConfig
	fallbacks  map[string][]string
	healthHook func(provider string, healthy bool)
	log        zerolog.Logger
	mutex      sync.RWMutex
}

type CircuitBreakerConfig struct {
	Name                string
	MaxRequests         uint32
	Interval            time.Duration
	Timeout             time.Duration
	ErrorRateThreshold  float64
	ConsecutiveFailures uint32
}

type BreakerStatus struct {
	Name                string
	State               string
	Counts              gobreaker.Counts
	ErrorRate           float64
	ConsecutiveFailures uint32
	NextReset           time.Time
	FallbackChain       []string
}

func NewCircuitBreakerManager(log zerolog.Logger) *CircuitBreakerManager {
	return &CircuitBreakerManager{
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		configs:   make(map[string]*CircuitBreakerConfig),
		fallbacks: make(map[string][]string),
		log:       log.With().Str("component", "breakers").Logger(),
	}
}

func (cbm *CircuitBreakerManager) InitializeProvider(name string, config *CircuitBreakerConfig, fallbackChain []string) {
	cbm.mutex.Lock()
	defer cbm.mutex.Unlock()

	cbm.configs[name] = config
	cbm.fallbacks[name] = fallbackChain

	settings := gobreaker.Settings{
		Name:          config.Name,
		MaxRequests:   config.MaxRequests,
		Interval:      config.Interval,
		Timeout:       config.Timeout,
		ReadyToTrip:   cbm.createTripCondition(config),
		OnStateChange: cbm.createStateChangeHandler(name),
	}

	cbm.breakers[name] = gobreaker.NewCircuitBreaker(settings)
}

func (cbm *CircuitBreakerManager) Execute(provider string, fn func() (interface{}, error)) (interface{}, error) {
	cbm.mutex.RLock()
	breaker, exists := cbm.breakers[provider]
	cbm.mutex.RUnlock()

	if !exists {
		return nil, fmt.Errorf("circuit breaker not found for provider: %s", provider)
	}

	result, err := breaker.Execute(fn)

	if err != nil && cbm.isCircuitOpen(provider) && cbm.hasFallbacks(provider) {
		return cbm.executeFallbackChain(provider, fn)
	}

	return result, err
}

// SetHealthHook registers a callback fired on every breaker state change;
// healthy means the circuit returned to closed.
func (cbm *CircuitBreakerManager) SetHealthHook(hook func(provider string, healthy bool)) {
	cbm.mutex.Lock()
	defer cbm.mutex.Unlock()
	cbm.healthHook = hook
}

func (cbm *CircuitBreakerManager) hasFallbacks(provider string) bool {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()
	return len(cbm.fallbacks[provider]) > 0
}

func (cbm *CircuitBreakerManager) GetStatus(provider string) *BreakerStatus {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()

	breaker, exists := cbm.breakers[provider]
	if !exists {
		return nil
	}

	config := cbm.configs[provider]
	counts := breaker.Counts()

	var errorRate float64
	if counts.Requests > 0 {
		errorRate = float64(counts.TotalFailures) / float64(counts.Requests) * 100
	}

	var nextReset time.Time
	if breaker.State() == gobreaker.StateOpen {
		nextReset = time.Now().Add(config.Timeout)
	}

	return &BreakerStatus{
		Name:                config.Name,
		State:               breaker.State().String(),
		Counts:              counts,
		ErrorRate:           errorRate,
		ConsecutiveFailures: counts.ConsecutiveFailures,
		NextReset:           nextReset,
		FallbackChain:       cbm.fallbacks[provider],
	}
}

func (cbm *CircuitBreakerManager) createTripCondition(config *CircuitBreakerConfig) func(counts gobreaker.Counts) bool {
	return func(counts gobreaker.Counts) bool {
		if counts.Requests >= 10 {
			errorRate := float64(counts.TotalFailures) / float64(counts.Requests) * 100
			if errorRate >= config.ErrorRateThreshold {
				return true
			}
		}

		return counts.ConsecutiveFailures >= config.ConsecutiveFailures
	}
}

func (cbm *CircuitBreakerManager) createStateChangeHandler(provider string) func(name string, from, to gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		cbm.log.Warn().
			Str("provider", provider).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("circuit breaker state changed")

		cbm.mutex.RLock()
		hook := cbm.healthHook
		cbm.mutex.RUnlock()
		if hook != nil {
			hook(provider, to == gobreaker.StateClosed)
		}
	}
}

func (cbm *CircuitBreakerManager) isCircuitOpen(provider string) bool {
	cbm.mutex.RLock()
	defer cbm.mutex.RUnlock()

	breaker, exists := cbm.breakers[provider]
	if !exists {
		return false
	}

	return breaker.State() == gobreaker.StateOpen
}

func (cbm *CircuitBreakerManager) executeFallbackChain(provider string, fn func() (interface{}, error)) (interface{}, error) {
	cbm.mutex.RLock()
	fallbackChain := cbm.fallbacks[provider]
	cbm.mutex.RUnlock()

	for _, fallback := range fallbackChain {
		cbm.mutex.RLock()
		fallbackBreaker, exists := cbm.breakers[fallback]
		cbm.mutex.RUnlock()
		if !exists || fallbackBreaker.State() == gobreaker.StateOpen {
			continue
		}

		result, err := fallbackBreaker.Execute(fn)
		if err == nil {
			cbm.log.Info().Str("fallback", fallback).Msg("fallback provider succeeded")
			return result, nil
		}
	}

	return nil, fmt.Errorf("all fallback providers failed for %s", provider)
}

// DefaultBreakerConfigs tunes each breaker to the upstream's flakiness: the
// on-chain RPCs tolerate more before tripping, the keyed aggregators less.
func DefaultBreakerConfigs() map[string]*CircuitBreakerConfig {
	return map[string]*CircuitBreakerConfig{
		ProviderEtherscan: {
			Name:                "Etherscan",
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ErrorRateThreshold:  30.0,
			ConsecutiveFailures: 3,
		},
		ProviderEVMRPC: {
			Name:                "EVM RPC",
			MaxRequests:         5,
			Interval:            60 * time.Second,
			Timeout:             20 * time.Second,
			ErrorRateThreshold:  40.0,
			ConsecutiveFailures: 5,
		},
		ProviderSolanaRPC: {
			Name:                "Solana RPC",
			MaxRequests:         5,
			Interval:            60 * time.Second,
			Timeout:             20 * time.Second,
			ErrorRateThreshold:  40.0,
			ConsecutiveFailures: 5,
		},
		ProviderDexScreener: {
			Name:                "DexScreener",
			MaxRequests:         3,
			Interval:            60 * time.Second,
			Timeout:             30 * time.Second,
			ErrorRateThreshold:  30.0,
			ConsecutiveFailures: 3,
		},
		ProviderDefiLlama: {
			Name:                "DefiLlama",
			MaxRequests:         2,
			Interval:            60 * time.Second,
			Timeout:             45 * time.Second,
			ErrorRateThreshold:  25.0,
			ConsecutiveFailures: 2,
		},
		ProviderTheGraph: {
			Name:                "The Graph",
			MaxRequests:         2,
			Interval:            60 * time.Second,
			Timeout:             45 * time.Second,
			ErrorRateThreshold:  25.0,
			ConsecutiveFailures: 2,
		},
		ProviderCryptoPanic: {
			Name:                "CryptoPanic",
			MaxRequests:         2,
			Interval:            60 * time.Second,
			Timeout:             60 * time.Second,
			ErrorRateThreshold:  20.0,
			ConsecutiveFailures: 2,
		},
	}
}
