// Package config loads the service configuration from YAML with environment
// variable overrides for secrets and deployment-specific endpoints.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Chains    map[string]ChainConfig   `yaml:"chains"`
	Solana    SolanaConfig             `yaml:"solana"`
	Providers ProvidersConfig          `yaml:"providers"`
	Cache     CacheConfig              `yaml:"cache"`
	Database  DatabaseConfig           `yaml:"database"`
	Analysis  AnalysisConfig           `yaml:"analysis"`
}

type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// ChainConfig describes one EVM chain: its Etherscan-compatible explorer
// and a JSON-RPC endpoint.
type ChainConfig struct {
	ExplorerBaseURL string `yaml:"explorer_base_url"`
	ExplorerAPIKey  string `yaml:"explorer_api_key"`
	RPCEndpoint     string `yaml:"rpc_endpoint"`
}

type SolanaConfig struct {
	RPCEndpoint string `yaml:"rpc_endpoint"`
}

type ProvidersConfig struct {
	DexScreenerBaseURL string            `yaml:"dexscreener_base_url"`
	DefiLlamaBaseURL   string            `yaml:"defillama_base_url"`
	SubgraphEndpoints  map[string]string `yaml:"subgraph_endpoints"` // chain -> URL
	CryptoPanicBaseURL string            `yaml:"cryptopanic_base_url"`
	CryptoPanicToken   string            `yaml:"cryptopanic_token"`
	RequestTimeout     time.Duration     `yaml:"request_timeout"`
	MaxRetries         int               `yaml:"max_retries"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"` // empty disables Redis
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// DatabaseConfig enables the Postgres-backed social mention baseline. When
// disabled the analyzer falls back to a static baseline.
type DatabaseConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type AnalysisConfig struct {
	RequestTimeout time.Duration `yaml:"request_timeout"` // per upstream dimension
	TotalTimeout   time.Duration `yaml:"total_timeout"`   // whole analysis fan-out
}

// Load reads the YAML file when it exists, applies environment overrides,
// then fills defaults. A missing file is not an error: env plus defaults is
// a complete configuration.
func Load(configPath string) (*Config, error) {
	var config Config

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
			}
		}
	}

	applyEnvOverrides(&config)
	applyDefaults(&config)

	return &config, nil
}

// Default returns the configuration used when no file and no environment
// are present. Free-tier public endpoints everywhere.
func Default() *Config {
	config := &Config{}
	applyDefaults(config)
	return config
}

func applyEnvOverrides(config *Config) {
	if addr := os.Getenv("TOKENTRUTH_LISTEN_ADDR"); addr != "" {
		config.Server.ListenAddr = addr
	}
	if key := os.Getenv("TOKENTRUTH_ETHERSCAN_API_KEY"); key != "" {
		if config.Chains == nil {
			config.Chains = make(map[string]ChainConfig)
		}
		chain := config.Chains["ethereum"]
		chain.ExplorerAPIKey = key
		config.Chains["ethereum"] = chain
	}
	if token := os.Getenv("TOKENTRUTH_CRYPTOPANIC_TOKEN"); token != "" {
		config.Providers.CryptoPanicToken = token
	}
	if addr := os.Getenv("TOKENTRUTH_REDIS_ADDR"); addr != "" {
		config.Cache.RedisAddr = addr
	}
	if dsn := os.Getenv("TOKENTRUTH_PG_DSN"); dsn != "" {
		config.Database.DSN = dsn
		config.Database.Enabled = true
	}
	if enabled := os.Getenv("TOKENTRUTH_PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			config.Database.Enabled = val
		}
	}
	if timeout := os.Getenv("TOKENTRUTH_REQUEST_TIMEOUT"); timeout != "" {
		if val, err := time.ParseDuration(timeout); err == nil {
			config.Analysis.RequestTimeout = val
		}
	}
}

func applyDefaults(config *Config) {
	if config.Server.ListenAddr == "" {
		config.Server.ListenAddr = ":8080"
	}
	if config.Server.ReadTimeout == 0 {
		config.Server.ReadTimeout = 15 * time.Second
	}
	if config.Server.WriteTimeout == 0 {
		config.Server.WriteTimeout = 30 * time.Second
	}
	if config.Server.ShutdownTimeout == 0 {
		config.Server.ShutdownTimeout = 10 * time.Second
	}

	if config.Chains == nil {
		config.Chains = make(map[string]ChainConfig)
	}
	for chain, defaults := range defaultChains() {
		current, exists := config.Chains[chain]
		if !exists {
			config.Chains[chain] = defaults
			continue
		}
		if current.ExplorerBaseURL == "" {
			current.ExplorerBaseURL = defaults.ExplorerBaseURL
		}
		if current.RPCEndpoint == "" {
			current.RPCEndpoint = defaults.RPCEndpoint
		}
		config.Chains[chain] = current
	}

	if config.Solana.RPCEndpoint == "" {
		config.Solana.RPCEndpoint = "https://api.mainnet-beta.solana.com"
	}

	if config.Providers.DexScreenerBaseURL == "" {
		config.Providers.DexScreenerBaseURL = "https://api.dexscreener.com"
	}
	if config.Providers.DefiLlamaBaseURL == "" {
		config.Providers.DefiLlamaBaseURL = "https://coins.llama.fi"
	}
	if config.Providers.CryptoPanicBaseURL == "" {
		config.Providers.CryptoPanicBaseURL = "https://cryptopanic.com"
	}
	if config.Providers.RequestTimeout == 0 {
		config.Providers.RequestTimeout = 10 * time.Second
	}
	if config.Providers.MaxRetries == 0 {
		config.Providers.MaxRetries = 2
	}

	if config.Analysis.RequestTimeout == 0 {
		config.Analysis.RequestTimeout = 10 * time.Second
	}
	if config.Analysis.TotalTimeout == 0 {
		config.Analysis.TotalTimeout = 20 * time.Second
	}
}

func defaultChains() map[string]ChainConfig {
	return map[string]ChainConfig{
		"ethereum": {
			ExplorerBaseURL: "https://api.etherscan.io",
			RPCEndpoint:     "https://eth.llamarpc.com",
		},
		"bsc": {
			ExplorerBaseURL: "https://api.bscscan.com",
			RPCEndpoint:     "https://binance.llamarpc.com",
		},
		"polygon": {
			ExplorerBaseURL: "https://api.polygonscan.com",
			RPCEndpoint:     "https://polygon.llamarpc.com",
		},
	}
}

// Save writes the configuration back to disk; used by the CLI to scaffold a
// starter config file.
func Save(config *Config, configPath string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}
