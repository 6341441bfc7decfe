package providers

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// EVMRPCConfig points at any Ethereum JSON-RPC endpoint.
type EVMRPCConfig struct {
	Endpoint       string
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport
}

// EVMRPCClient implements contracts.EVMClient over JSON-RPC 2.0.
type EVMRPCClient struct {
	endpoint string
	client   *ClientPool
	log      zerolog.Logger
}

func NewEVMRPCClient(config EVMRPCConfig, log zerolog.Logger) *EVMRPCClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}

	return &EVMRPCClient{
		endpoint: config.Endpoint,
		client:   config.Transport.Pool(ProviderEVMRPC, clientConfig, log),
		log:      log.With().Str("component", "evm_rpc").Logger(),
	}
}

type rpcRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      int           `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

func (c *EVMRPCClient) StorageAt(ctx context.Context, address, slot string) ([]byte, error) {
	return c.callHex(ctx, "eth_getStorageAt", address, slot, "latest")
}

func (c *EVMRPCClient) Call(ctx context.Context, to, data string) ([]byte, error) {
	params := map[string]string{"to": to, "data": data}
	return c.callHex(ctx, "eth_call", params, "latest")
}

func (c *EVMRPCClient) Code(ctx context.Context, address string) ([]byte, error) {
	return c.callHex(ctx, "eth_getCode", address, "latest")
}

// callHex issues one RPC call and decodes the 0x-hex result. Node-side
// errors pass through verbatim so callers can distinguish reverts from
// transport failures.
func (c *EVMRPCClient) callHex(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
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
		c.log.Error().Err(err).Str("method", method).Msg("RPC request failed")
		return nil, upstreamError(ProviderEVMRPC, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, upstreamError(ProviderEVMRPC, fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, fmt.Errorf("decode RPC response: %w", err)
	}
	if rpcResp.Error != nil {
		return nil, rpcResp.Error
	}

	var hexResult string
	if err := json.Unmarshal(rpcResp.Result, &hexResult); err != nil {
		return nil, fmt.Errorf("unexpected RPC result for %s: %w", method, err)
	}

	decoded, err := decodeHexBytes(hexResult)
	if err != nil {
		return nil, fmt.Errorf("decode %s result: %w", method, err)
	}

	c.log.Debug().
		Str("method", method).
		Int("bytes", len(decoded)).
		Dur("duration", time.Since(startTime)).
		Msg("RPC call completed")

	return decoded, nil
}

func decodeHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if s == "" {
		return nil, nil
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hex.DecodeString(s)
}
