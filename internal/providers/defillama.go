package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// DefiLlamaConfig points at the keyless DefiLlama price API.
type DefiLlamaConfig struct {
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport
}

// DefiLlamaClient implements liquidity.PriceEnricher: an independent price
// reference used for evidence, never for scoring.
type DefiLlamaClient struct {
	baseURL string
	client  *ClientPool
	log     zerolog.Logger
}

func NewDefiLlamaClient(config DefiLlamaConfig, log zerolog.Logger) *DefiLlamaClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}

	return &DefiLlamaClient{
		baseURL: config.BaseURL,
		client:  config.Transport.Pool(ProviderDefiLlama, clientConfig, log),
		log:     log.With().Str("component", "defillama").Logger(),
	}
}

type defiLlamaResponse struct {
	Coins map[string]struct {
		Price float64 `json:"price"`
	} `json:"coins"`
}

func (c *DefiLlamaClient) TokenPrice(ctx context.Context, chain, address string) (float64, error) {
	coinKey := fmt.Sprintf("%s:%s", chain, address)
	reqURL := fmt.Sprintf("%s/prices/current/%s", c.baseURL, coinKey)
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, err
	}

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return 0, upstreamError(ProviderDefiLlama, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, upstreamError(ProviderDefiLlama, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var body defiLlamaResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode price response: %w", err)
	}

	coin, ok := body.Coins[coinKey]
	if !ok {
		return 0, fmt.Errorf("no price for %s", coinKey)
	}

	c.log.Debug().Str("coin", coinKey).Float64("price", coin.Price).Msg("reference price retrieved")

	return coin.Price, nil
}
