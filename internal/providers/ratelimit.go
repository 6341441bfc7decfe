package providers

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter enforces per-provider token buckets and tracks the remote
// budget reported back through rate-limit headers.
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	budgets  map[string]*Budget
	defaults map[string]float64
	mutex    sync.RWMutex
}

// Budget is the local view of one provider's request allowance.
type Budget struct {
	Name          string
	Current       int
	Limit         int
	ResetTime     time.Time
	LastUpdate    time.Time
	WindowMinutes int
}

func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		budgets:  make(map[string]*Budget),
		defaults: make(map[string]float64),
	}
}

// DefaultRates are requests per second for the free tiers of each upstream.
func DefaultRates() map[string]float64 {
	return map[string]float64{
		ProviderEtherscan:   5.0,
		ProviderEVMRPC:      10.0,
		ProviderSolanaRPC:   10.0,
		ProviderDexScreener: 5.0,
		ProviderDefiLlama:   2.0,
		ProviderTheGraph:    2.0,
		ProviderCryptoPanic: 1.0,
	}
}

func (rl *RateLimiter) InitializeProvider(provider string, rps float64, burst int) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	rl.limiters[provider] = rate.NewLimiter(rate.Limit(rps), burst)
	rl.defaults[provider] = rps
	rl.budgets[provider] = &Budget{
		Name:          provider,
		Current:       0,
		Limit:         int(rps * 60),
		ResetTime:     time.Now().Add(time.Minute),
		LastUpdate:    time.Now(),
		WindowMinutes: 1,
	}
}

// Allow blocks briefly when the bucket is drained, scaling the wait with
// how much of the minute budget is already spent.
func (rl *RateLimiter) Allow(ctx context.Context, provider string) error {
	rl.mutex.RLock()
	limiter, exists := rl.limiters[provider]
	rl.mutex.RUnlock()

	if !exists {
		return fmt.Errorf("rate limiter not initialized for provider: %s", provider)
	}

	if !limiter.Allow() {
		backoffDuration := rl.calculateBackoff(provider)
		select {
		case <-time.After(backoffDuration):
			if !limiter.Allow() {
				return fmt.Errorf("rate limit exceeded for %s after backoff", provider)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	rl.updateBudget(provider)

	return nil
}

// UpdateFromHeaders folds the upstream's own rate-limit accounting into the
// local budget, and throttles hard when a Retry-After arrives.
func (rl *RateLimiter) UpdateFromHeaders(provider string, headers map[string]string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	budget := rl.budgets[provider]
	if budget == nil {
		return
	}

	if used, exists := headers["X-RateLimit-Used"]; exists {
		if val, err := strconv.Atoi(used); err == nil {
			budget.Current = val
		}
	}

	if limit, exists := headers["X-RateLimit-Limit"]; exists {
		if val, err := strconv.Atoi(limit); err == nil {
			budget.Limit = val
		}
	}

	if reset, exists := headers["X-RateLimit-Reset"]; exists {
		if val, err := strconv.ParseInt(reset, 10, 64); err == nil {
			budget.ResetTime = time.Unix(val, 0)
		}
	}

	if retryAfter, exists := headers["Retry-After"]; exists {
		if val, err := strconv.Atoi(retryAfter); err == nil {
			rl.limiters[provider].SetLimit(rate.Limit(0.5))

			go func() {
				time.Sleep(time.Duration(val) * time.Second)
				rl.resetProviderRate(provider)
			}()
		}
	}

	budget.LastUpdate = time.Now()
}

func (rl *RateLimiter) GetBudgetStatus(provider string) *Budget {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()

	budget := rl.budgets[provider]
	if budget == nil {
		return nil
	}

	copied := *budget
	return &copied
}

func (rl *RateLimiter) calculateBackoff(provider string) time.Duration {
	rl.mutex.RLock()
	budget := rl.budgets[provider]
	rl.mutex.RUnlock()
	if budget == nil || budget.Limit == 0 {
		return time.Second
	}

	utilizationPct := float64(budget.Current) / float64(budget.Limit) * 100

	switch {
	case utilizationPct > 90:
		return 30 * time.Second
	case utilizationPct > 75:
		return 10 * time.Second
	case utilizationPct > 50:
		return 3 * time.Second
	default:
		return time.Second
	}
}

func (rl *RateLimiter) updateBudget(provider string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	budget := rl.budgets[provider]
	if budget == nil {
		return
	}

	if time.Now().After(budget.ResetTime) {
		budget.Current = 0
		budget.ResetTime = time.Now().Add(time.Duration(budget.WindowMinutes) * time.Minute)
	}

	budget.Current++
	budget.LastUpdate = time.Now()
}

func (rl *RateLimiter) resetProviderRate(provider string) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	limiter, exists := rl.limiters[provider]
	if !exists {
		return
	}
	if defaultRate, ok := rl.defaults[provider]; ok {
		limiter.SetLimit(rate.Limit(defaultRate))
	}
}
