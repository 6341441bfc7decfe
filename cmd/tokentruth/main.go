package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"tokentruth/internal/cache"
	"tokentruth/internal/config"
	"tokentruth/internal/contracts"
	httpapi "tokentruth/internal/interfaces/http"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/pipeline"
	"tokentruth/internal/providers"
	"tokentruth/internal/social"
)

const (
	appName = "tokentruth"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	var configPath string

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Token due-diligence engine: contract truth, liquidity, sentiment, listing decisions",
		Version: version,
		Long: `tokentruth aggregates on-chain and off-chain signals about a crypto token,
classifies every derived fact by evidential certainty (PROVEN/INFERRED/UNKNOWN),
and fuses per-domain risk scores into a listing recommendation.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP analysis service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath)
		},
	}

	analyzeCmd := &cobra.Command{
		Use:   "analyze",
		Short: "One-shot analysis of a single token, printed as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			chain, _ := cmd.Flags().GetString("chain")
			address, _ := cmd.Flags().GetString("address")
			symbol, _ := cmd.Flags().GetString("symbol")
			return runAnalyze(configPath, chain, address, symbol)
		},
	}
	analyzeCmd.Flags().String("chain", "ethereum", "Chain of the deployment (ethereum|bsc|polygon|solana)")
	analyzeCmd.Flags().String("address", "", "Contract address or SPL mint (required)")
	analyzeCmd.Flags().String("symbol", "", "Ticker symbol for social analysis (optional)")
	analyzeCmd.MarkFlagRequired("address")

	rootCmd.AddCommand(serveCmd, analyzeCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

// buildPipeline wires providers and analyzers from configuration.
func buildCache(cfg *config.Config, logger zerolog.Logger) cache.Cache {
	if cfg.Cache.RedisAddr == "" {
		return cache.Noop{}
	}
	redisCache := cache.NewRedis(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := redisCache.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Str("addr", cfg.Cache.RedisAddr).Msg("redis unavailable, caching disabled")
		return cache.Noop{}
	}
	logger.Info().Str("addr", cfg.Cache.RedisAddr).Msg("response cache enabled")
	return redisCache
}

func buildPipeline(cfg *config.Config, logger zerolog.Logger) (*pipeline.Pipeline, *providers.Transport, error) {
	responseCache := buildCache(cfg, logger)
	transport := providers.NewTransport(logger)

	evm := make(map[string]pipeline.ContractAnalyzer, len(cfg.Chains))
	for chain, chainCfg := range cfg.Chains {
		var explorer contracts.Explorer = providers.NewEtherscanClient(providers.EtherscanConfig{
			BaseURL:        chainCfg.ExplorerBaseURL,
			APIKey:         chainCfg.ExplorerAPIKey,
			RequestTimeout: cfg.Providers.RequestTimeout,
			MaxRetries:     cfg.Providers.MaxRetries,
			Transport:      transport,
		}, logger)
		explorer = providers.NewCachedExplorer(explorer, responseCache, chain, logger)
		rpc := providers.NewEVMRPCClient(providers.EVMRPCConfig{
			Endpoint:       chainCfg.RPCEndpoint,
			RequestTimeout: cfg.Providers.RequestTimeout,
			MaxRetries:     cfg.Providers.MaxRetries,
			Transport:      transport,
		}, logger)
		evm[chain] = contracts.NewEVMAnalyzer(chain, explorer, rpc, nil, logger)
	}

	solanaRPC := providers.NewSolanaRPCClient(providers.SolanaRPCConfig{
		Endpoint:       cfg.Solana.RPCEndpoint,
		RequestTimeout: cfg.Providers.RequestTimeout,
		MaxRetries:     cfg.Providers.MaxRetries,
		Transport:      transport,
	}, logger)

	var dex liquidity.DEXProvider = providers.NewDexScreenerClient(providers.DexScreenerConfig{
		BaseURL:        cfg.Providers.DexScreenerBaseURL,
		RequestTimeout: cfg.Providers.RequestTimeout,
		MaxRetries:     cfg.Providers.MaxRetries,
		Transport:      transport,
	}, logger)
	dex = providers.NewCachedDEXProvider(dex, responseCache, logger)
	price := providers.NewDefiLlamaClient(providers.DefiLlamaConfig{
		BaseURL:        cfg.Providers.DefiLlamaBaseURL,
		RequestTimeout: cfg.Providers.RequestTimeout,
		MaxRetries:     cfg.Providers.MaxRetries,
		Transport:      transport,
	}, logger)
	pools := providers.NewTheGraphClient(providers.TheGraphConfig{
		Endpoints:      cfg.Providers.SubgraphEndpoints,
		RequestTimeout: cfg.Providers.RequestTimeout,
		MaxRetries:     cfg.Providers.MaxRetries,
		Transport:      transport,
	}, logger)

	news := providers.NewCryptoPanicClient(providers.CryptoPanicConfig{
		BaseURL:        cfg.Providers.CryptoPanicBaseURL,
		AuthToken:      cfg.Providers.CryptoPanicToken,
		RequestTimeout: cfg.Providers.RequestTimeout,
		MaxRetries:     cfg.Providers.MaxRetries,
		Transport:      transport,
	}, logger)

	var baseline social.BaselineProvider
	if cfg.Database.Enabled && cfg.Database.DSN != "" {
		db, err := sqlx.Connect("postgres", cfg.Database.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to baseline database: %w", err)
		}
		baseline = social.NewSQLBaseline(db)
		logger.Info().Msg("SQL mention baseline enabled")
	}

	return pipeline.New(pipeline.Options{
		EVM:            evm,
		Solana:         contracts.NewSolanaAnalyzer(solanaRPC, logger),
		// No CEX depth provider ships in this binary; venue queries report
		// unsupported until one is registered here.
		Liquidity:      liquidity.NewAnalyzer(dex, price, pools, nil, logger),
		Social:         social.NewAnalyzer(news, baseline, logger),
		RequestTimeout: cfg.Analysis.RequestTimeout,
	}, logger), transport, nil
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.Logger
	p, transport, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	metrics := httpapi.NewMetricsRegistry()
	transport.Breakers.SetHealthHook(metrics.SetProviderHealth)
	for provider := range providers.DefaultBreakerConfigs() {
		metrics.SetProviderHealth(provider, true)
	}
	handlers := httpapi.NewHandlers(p, metrics, logger)
	server := httpapi.NewServer(httpapi.ServerConfig{
		ListenAddr:     cfg.Server.ListenAddr,
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		IdleTimeout:    60 * time.Second,
		RequestTimeout: cfg.Analysis.TotalTimeout + 5*time.Second,
	}, handlers, metrics, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return server.Shutdown(ctx)
}

func runAnalyze(configPath, chain, address, symbol string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := log.Logger
	p, _, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Analysis.TotalTimeout)
	defer cancel()

	resp := p.Recommend(ctx, pipeline.RecommendRequest{
		Symbol: symbol,
		Instances: []contracts.ChainInstance{
			{Chain: chain, Address: address},
		},
	})

	out, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
