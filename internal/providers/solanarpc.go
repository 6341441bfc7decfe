package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/contracts"
)

// SolanaRPCConfig points at a Solana JSON-RPC endpoint.
type SolanaRPCConfig struct {
	Endpoint       string
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport
}

// SolanaRPCClient implements contracts.SolanaRPC via getAccountInfo with
// base64 account data.
type SolanaRPCClient struct {
	endpoint string
	client   *ClientPool
	log      zerolog.Logger
}

func NewSolanaRPCClient(config SolanaRPCConfig, log zerolog.Logger) *SolanaRPCClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}

	return &SolanaRPCClient{
		endpoint: config.Endpoint,
		client:   config.Transport.Pool(ProviderSolanaRPC, clientConfig, log),
		log:      log.With().Str("component", "solana_rpc").Logger(),
	}
}

type solanaAccountValue struct {
	Owner string   `json:"owner"`
	Data  []string `json:"data"` // [base64 payload, "base64"]
}

type solanaAccountResult struct {
	Value *solanaAccountValue `json:"value"`
}

// AccountInfo returns nil without error when the account does not exist;
// the analyzer decides what absence means.
func (c *SolanaRPCClient) AccountInfo(ctx context.Context, address string) (*contracts.SolanaAccount, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "getAccountInfo",
		Params: []interface{}{
			address,
			map[string]string{"encoding": "base64"},
		},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	startTime := time.Now()
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("getAccountInfo failed")
		return nil, upstreamError(ProviderSolanaRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(ProviderSolanaRPC, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	var result solanaAccountResult
	if err := json.Unmarshal(rpcResp.Result, &result); err != nil {
		return nil, fmt.Errorf("unexpected getAccountInfo result: %w", err)
	}
	if result.Value == nil {
		return nil, nil
	}
	if len(result.Value.Data) < 1 {
		return nil, fmt.Errorf("getAccountInfo: missing account data")
	}

	data, err := base64.StdEncoding.DecodeString(result.Value.Data[0])
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}

	c.log.Debug().
		Str("address", address).
		Str("owner", result.Value.Owner).
		Int("bytes", len(data)).
		Dur("duration", time.Since(startTime)).
		Msg("account info retrieved")

	return &contracts.SolanaAccount{
		Owner: result.Value.Owner,
		Data:  data,
	}, nil
}
