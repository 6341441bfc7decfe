package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
)

// EtherscanConfig covers any Etherscan-compatible explorer API; BscScan,
// PolygonScan and friends all speak the same protocol.
type EtherscanConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
	MaxRetries     int
	Transport      *Transport // nil for an ungated pool
}

// EtherscanClient implements contracts.Explorer against the Etherscan
// contract verification API.
type EtherscanClient struct {
	baseURL string
	apiKey  string
	client  *ClientPool
	log     zerolog.Logger
}

func NewEtherscanClient(config EtherscanConfig, log zerolog.Logger) *EtherscanClient {
	clientConfig := DefaultClientConfig()
	if config.RequestTimeout > 0 {
		clientConfig.RequestTimeout = config.RequestTimeout
	}
	if config.MaxRetries > 0 {
		clientConfig.MaxRetries = config.MaxRetries
	}
	// Free-tier explorer keys allow very little concurrency.
	clientConfig.MaxConcurrency = 2

	return &EtherscanClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		client:  config.Transport.Pool(ProviderEtherscan, clientConfig, log),
		log:     log.With().Str("component", "etherscan").Logger(),
	}
}

type etherscanEnvelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

type etherscanSourceRecord struct {
	SourceCode      string `json:"SourceCode"`
	ABI             string `json:"ABI"`
	CompilerVersion string `json:"CompilerVersion"`
	ContractName    string `json:"ContractName"`
}

// ContractSource fetches the verified source record. An unverified contract
// is a successful answer, not an error: Etherscan returns an empty source
// body with status 1.
func (c *EtherscanClient) ContractSource(ctx context.Context, address string) (contracts.SourceInfo, error) {
	if c.apiKey == "" {
		return contracts.SourceInfo{}, certainty.NewError(certainty.CodeMissingAPIKey, ProviderEtherscan,
			"explorer API key not configured")
	}

	q := url.Values{}
	q.Set("module", "contract")
	q.Set("action", "getsourcecode")
	q.Set("address", address)
	q.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s/api?%s", c.baseURL, q.Encode())
	req, err := http.NewRequest(http.MethodGet, reqURL, nil)
	if err != nil {
		return contracts.SourceInfo{}, err
	}

	startTime := time.Now()
	resp, err := c.client.Do(ctx, req)
	if err != nil {
		c.log.Error().Err(err).Str("address", address).Msg("explorer request failed")
		return contracts.SourceInfo{}, upstreamError(ProviderEtherscan, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return contracts.SourceInfo{}, certainty.NewError(certainty.CodeRateLimited, ProviderEtherscan,
			"rate limited by explorer")
	}
	if resp.StatusCode != http.StatusOK {
		return contracts.SourceInfo{}, certainty.NewError(certainty.CodeUpstreamError, ProviderEtherscan,
			fmt.Sprintf("HTTP %d: %s", resp.StatusCode, resp.Status))
	}

	var envelope etherscanEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return contracts.SourceInfo{}, certainty.NewError(certainty.CodeParseError, ProviderEtherscan, err.Error())
	}

	var records []etherscanSourceRecord
	if err := json.Unmarshal(envelope.Result, &records); err != nil || len(records) == 0 {
		// status 0 carries the error text in result as a plain string
		return contracts.SourceInfo{}, certainty.NewError(certainty.CodeUpstreamError, ProviderEtherscan,
			fmt.Sprintf("explorer error: %s", envelope.Message))
	}

	record := records[0]
	info := contracts.SourceInfo{
		Verified:        record.SourceCode != "",
		SourceCode:      record.SourceCode,
		CompilerVersion: record.CompilerVersion,
		ABIAvailable:    record.ABI != "" && record.ABI != "Contract source code not verified",
	}

	c.log.Debug().
		Str("address", address).
		Bool("verified", info.Verified).
		Dur("duration", time.Since(startTime)).
		Msg("contract source retrieved")

	return info, nil
}

// upstreamError maps transport failures onto the structured codes the
// analyzers publish. Timeouts keep their own code so retry policy can see
// them.
func upstreamError(source string, err error) certainty.StructuredError {
	if err == nil {
		return certainty.NewError(certainty.CodeUpstreamError, source, "unknown upstream failure")
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return certainty.NewError(certainty.CodeUpstreamTimeout, source, err.Error())
	}
	return certainty.NewError(certainty.CodeUpstreamError, source, err.Error())
}
