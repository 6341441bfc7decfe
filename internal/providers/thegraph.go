package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TheGraphConfig maps each chain to a DEX subgraph endpoint.
type TheGraphConfig struct {
	Endpoints      map[string]string // chain -> subgraph URL
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport
}

// TheGraphClient implements liquidity.PoolEnricher by counting pools that
// reference the token in a Uniswap-style subgraph.
type TheGraphClient struct {
	endpoints map[string]string
	client    *ClientPool
	log       zerolog.Logger
}

func NewTheGraphClient(config TheGraphConfig, log zerolog.Logger) *TheGraphClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}

	return &TheGraphClient{
		endpoints: config.Endpoints,
		client:    config.Transport.Pool(ProviderTheGraph, clientConfig, log),
		log:       log.With().Str("component", "thegraph").Logger(),
	}
}

const poolCountQuery = `query($token: String!) {
  asToken0: pools(first: 1000, where: {token0: $token}) { id }
  asToken1: pools(first: 1000, where: {token1: $token}) { id }
}`

type graphQLRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type poolCountResponse struct {
	Data struct {
		AsToken0 []struct {
			ID string `json:"id"`
		} `json:"asToken0"`
		AsToken1 []struct {
			ID string `json:"id"`
		} `json:"asToken1"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *TheGraphClient) TokenPoolCount(ctx context.Context, chain, address string) (int, error) {
	endpoint, ok := c.endpoints[chain]
	if !ok {
		return 0, fmt.Errorf("no subgraph configured for chain %s", chain)
	}

	body, err := json.Marshal(graphQLRequest{
		Query:     poolCountQuery,
		Variables: map[string]interface{}{"token": strings.ToLower(address)},
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(ctx, req)
	if err != nil {
		return 0, upstreamError(ProviderTheGraph, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, upstreamError(ProviderTheGraph, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var result poolCountResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decode subgraph response: %w", err)
	}
	if len(result.Errors) > 0 {
		return 0, fmt.Errorf("subgraph error: %s", result.Errors[0].Message)
	}

	count := len(result.Data.AsToken0) + len(result.Data.AsToken1)

	c.log.Debug().Str("chain", chain).Str("address", address).Int("pools", count).Msg("pool count retrieved")

	return count, nil
}
