package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/liquidity"
)

// DexScreenerConfig points at the keyless DexScreener pairs API.
type DexScreenerConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport
}

// DexScreenerClient implements liquidity.DEXProvider.
type DexScreenerClient struct {
	baseURL string
	client  *ClientPool
	log     zerolog.Logger
}

func NewDexScreenerClient(config DexScreenerConfig, log zerolog.Logger) *DexScreenerClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}

	return &DexScreenerClient{
		baseURL: config.BaseURL,
		client:  config.Transport.Pool(ProviderDexScreener, clientConfig, log),
		log:     log.With().Str("component", "dexscreener").Logger(),
	}
}

type dexScreenerResponse struct {
	Pairs []dexScreenerPair `json:"pairs"`
}

type dexScreenerPair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	PairAddress string `json:"pairAddress"`
	// price arrives as a decimal string
	PriceUSD  string `json:"priceUsd"`
	Liquidity struct {
		USD float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	FDV float64 `json:"fdv"`
}

// TokenPairs fetches every pair for the token and keeps only the requested
// chain; DexScreener answers across all chains it indexes.
func (c *DexScreenerClient) TokenPairs(ctx context.Context, chain, address string) ([]liquidity.Pair, error) {
	reqURL := fmt.Sprintf("%s/latest/dex/tokens/%s", c.baseURL, address)
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("pairs request failed")
		return nil, upstreamError(ProviderDexScreener, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(ProviderDexScreener, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var body dexScreenerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode pairs response: %w", err)
	}

	pairs := make([]liquidity.Pair, 0, len(body.Pairs))
	for _, p := range body.Pairs {
		if chain != "" && !strings.EqualFold(p.ChainID, chain) {
			continue
		}
		price, _ := strconv.ParseFloat(p.PriceUSD, 64)
		pairs = append(pairs, liquidity.Pair{
			Address:      p.PairAddress,
			DEX:          p.DexID,
			PriceUSD:     price,
			LiquidityUSD: p.Liquidity.USD,
			Volume24hUSD: p.Volume.H24,
			FDVUSD:       p.FDV,
		})
	}

	c.log.Debug().
		Str("chain", chain).
		Str("address", address).
		Int("pairs", len(pairs)).
		Dur("duration", time.Since(startTime)).
		Msg("token pairs retrieved")

	return pairs, nil
}
