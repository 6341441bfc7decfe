package providers

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/cache"
	"tokentruth/internal/contracts"
	"tokentruth/internal/liquidity"
)

// Cache TTLs per provider. Source records are immutable once verified;
// pair snapshots go stale in seconds.
const (
	sourceCacheTTL = 6 * time.Hour
	pairsCacheTTL  = 30 * time.Second
)

// CachedExplorer fronts an Explorer with the response cache. Cache failures
// fall through to the upstream; a broken cache never blocks analysis.
type CachedExplorer struct {
	next  contracts.Explorer
	cache cache.Cache
	chain string
	log   zerolog.Logger
}

func NewCachedExplorer(next contracts.Explorer, c cache.Cache, chain string, log zerolog.Logger) *CachedExplorer {
	return &CachedExplorer{
		next:  next,
		cache: c,
		chain: chain,
		log:   log.With().Str("component", "cached_explorer").Logger(),
	}
}

func (c *CachedExplorer) ContractSource(ctx context.Context, address string) (contracts.SourceInfo, error) {
	key := cache.Key(ProviderEtherscan, c.chain, address)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var info contracts.SourceInfo
		if err := json.Unmarshal(raw, &info); err == nil {
			return info, nil
		}
	}

	info, err := c.next.ContractSource(ctx, address)
	if err != nil {
		return info, err
	}

	if raw, err := json.Marshal(info); err == nil {
		if err := c.cache.Set(ctx, key, raw, sourceCacheTTL); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("cache write skipped")
		}
	}
	return info, nil
}

// CachedDEXProvider fronts a DEXProvider with a short-TTL pair cache.
type CachedDEXProvider struct {
	next  liquidity.DEXProvider
	cache cache.Cache
	log   zerolog.Logger
}

func NewCachedDEXProvider(next liquidity.DEXProvider, c cache.Cache, log zerolog.Logger) *CachedDEXProvider {
	return &CachedDEXProvider{
		next:  next,
		cache: c,
		log:   log.With().Str("component", "cached_dex").Logger(),
	}
}

func (c *CachedDEXProvider) TokenPairs(ctx context.Context, chain, address string) ([]liquidity.Pair, error) {
	key := cache.Key(ProviderDexScreener, chain, address)
	if raw, err := c.cache.Get(ctx, key); err == nil {
		var pairs []liquidity.Pair
		if err := json.Unmarshal(raw, &pairs); err == nil {
			return pairs, nil
		}
	}

	pairs, err := c.next.TokenPairs(ctx, chain, address)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(pairs); err == nil {
		if err := c.cache.Set(ctx, key, raw, pairsCacheTTL); err != nil {
			c.log.Debug().Err(err).Str("key", key).Msg("cache write skipped")
		}
	}
	return pairs, nil
}
