// Package providers holds the upstream API clients and the shared transport
// discipline around them: pooled HTTP with retry and jitter, per-provider
// rate limits, and circuit breakers with fallback chains.
package providers

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type ClientConfig struct {
	MaxConcurrency int
	RequestTimeout time.Duration
	JitterRange    [2]int // min/max jitter in milliseconds
	MaxRetries     int
	BackoffBase    time.Duration
	BackoffMax     time.Duration
	UserAgent      string
}

// DefaultClientConfig is tuned for free-tier upstreams: low concurrency,
// patient backoff.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxConcurrency: 4,
		RequestTimeout: 10 * time.Second,
		JitterRange:    [2]int{25, 100},
		MaxRetries:     2,
		BackoffBase:    time.Second,
		BackoffMax:     15 * time.Second,
		UserAgent:      "tokentruth/1.0",
	}
}

// ClientPool bounds concurrency with a semaphore and retries transient
// failures with exponential backoff.
type ClientPool struct {
	config    ClientConfig
	semaphore chan struct{}
	client    *http.Client
	log       zerolog.Logger
	mu        sync.RWMutex
	stats     ClientStats

	// set via Transport.Pool; all nil on an ungated pool
	provider string
	limiter  *RateLimiter
	breakers *CircuitBreakerManager
}

type ClientStats struct {
	TotalRequests   int64
	SuccessRequests int64
	FailedRequests  int64
	RetriedRequests int64
	TotalLatency    time.Duration
}

func NewClientPool(config ClientConfig, log zerolog.Logger) *ClientPool {
	return &ClientPool{
		config:    config,
		semaphore: make(chan struct{}, config.MaxConcurrency),
		client: &http.Client{
			Timeout: config.RequestTimeout,
		},
		log: log.With().Str("component", "httpclient").Logger(),
	}
}

// Do sends the request through the pool. On a gated pool the provider's
// token bucket is consumed first and the attempt runs under the provider's
// circuit breaker, so a tripped circuit fails fast without spending budget.
func (cp *ClientPool) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cp.limiter != nil {
		if err := cp.limiter.Allow(ctx, cp.provider); err != nil {
			return nil, err
		}
	}

	if cp.breakers == nil {
		return cp.attempt(ctx, req)
	}

	result, err := cp.breakers.Execute(cp.provider, func() (interface{}, error) {
		return cp.attempt(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*http.Response), nil
}

func (cp *ClientPool) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	startTime := time.Now()

	select {
	case cp.semaphore <- struct{}{}:
		defer func() { <-cp.semaphore }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if cp.config.UserAgent != "" {
		req.Header.Set("User-Agent", cp.config.UserAgent)
	}

	if err := cp.applyJitter(ctx); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= cp.config.MaxRetries; attempt++ {
		if attempt > 0 {
			cp.incrementStat("retried")

			backoff := cp.calculateBackoff(attempt)
			cp.log.Debug().
				Dur("backoff", backoff).
				Int("attempt", attempt).
				Str("url", req.URL.String()).
				Msg("retrying HTTP request")

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		resp, err := cp.client.Do(req.WithContext(ctx))

		cp.recordLatency(time.Since(startTime))

		if err != nil {
			lastErr = err
			if isRetryableError(err) {
				continue
			}
			break
		}

		if isRetryableStatus(resp.StatusCode) && attempt < cp.config.MaxRetries {
			resp.Body.Close()
			lastErr = fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
			continue
		}

		cp.incrementStat("success")
		cp.feedRateHeaders(resp)
		return resp, nil
	}

	cp.incrementStat("failed")
	return nil, lastErr
}

// feedRateHeaders folds the upstream's rate-limit accounting back into the
// shared limiter so the next request sees the remote budget.
func (cp *ClientPool) feedRateHeaders(resp *http.Response) {
	if cp.limiter == nil {
		return
	}

	headers := make(map[string]string, 4)
	for _, name := range []string{"X-RateLimit-Used", "X-RateLimit-Limit", "X-RateLimit-Reset", "Retry-After"} {
		if val := resp.Header.Get(name); val != "" {
			headers[name] = val
		}
	}
	if len(headers) > 0 {
		cp.limiter.UpdateFromHeaders(cp.provider, headers)
	}
}

func (cp *ClientPool) applyJitter(ctx context.Context) error {
	if cp.config.JitterRange[0] >= cp.config.JitterRange[1] {
		return nil
	}

	min := cp.config.JitterRange[0]
	max := cp.config.JitterRange[1]
	jitter := time.Duration(rand.Intn(max-min)+min) * time.Millisecond

	select {
	case <-time.After(jitter):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (cp *ClientPool) calculateBackoff(attempt int) time.Duration {
	backoff := cp.config.BackoffBase * time.Duration(1<<uint(attempt))
	if backoff > cp.config.BackoffMax {
		backoff = cp.config.BackoffMax
	}

	// up to 10% jitter so retries don't align across providers
	jitter := time.Duration(rand.Float64() * 0.1 * float64(backoff))
	return backoff + jitter
}

func (cp *ClientPool) GetStats() ClientStats {
	cp.mu.RLock()
	defer cp.mu.RUnlock()
	return cp.stats
}

func (cp *ClientPool) incrementStat(statType string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	cp.stats.TotalRequests++

	switch statType {
	case "success":
		cp.stats.SuccessRequests++
	case "failed":
		cp.stats.FailedRequests++
	case "retried":
		cp.stats.RetriedRequests++
	}
}

func (cp *ClientPool) recordLatency(duration time.Duration) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	cp.stats.TotalLatency += duration
}

func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	for _, retryable := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network is unreachable",
		"no such host",
	} {
		if strings.Contains(errStr, retryable) {
			return true
		}
	}
	return false
}

func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
