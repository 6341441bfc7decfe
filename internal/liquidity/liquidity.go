// Package liquidity answers "can this token be traded at size" from DEX pair
// data plus optional CEX depth. Totals and rankings are PROVEN from provider
// data; price impact is always INFERRED from a simplified AMM model.
package liquidity

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

// Pair is one normalized DEX pair.
type Pair struct {
	Address      string  `json:"pair"`
	DEX          string  `json:"dex,omitempty"`
	PriceUSD     float64 `json:"price_usd"`
	LiquidityUSD float64 `json:"liquidity_usd"`
	Volume24hUSD float64 `json:"volume_24h_usd"`
	FDVUSD       float64 `json:"fdv_usd,omitempty"`
}

// DEXProvider fetches every known pair for a token on one chain.
type DEXProvider interface {
	TokenPairs(ctx context.Context, chain, address string) ([]Pair, error)
}

// PriceEnricher supplies an independent USD price reference. Best effort:
// results land in evidence, never in scoring.
type PriceEnricher interface {
	TokenPrice(ctx context.Context, chain, address string) (float64, error)
}

// PoolEnricher supplies on-chain pool detail for deeper math. Best effort.
type PoolEnricher interface {
	TokenPoolCount(ctx context.Context, chain, address string) (int, error)
}

// CEXDepth is resting order-book depth around mid.
type CEXDepth struct {
	Within10BpsUSD *float64 `json:"within_10bps_usd"`
	Within25BpsUSD *float64 `json:"within_25bps_usd"`
	Within50BpsUSD *float64 `json:"within_50bps_usd"`
}

// CEXProvider serves order-book depth for one venue.
type CEXProvider interface {
	Depth(ctx context.Context, symbol string) (CEXDepth, error)
}

// VenueQuery asks for one CEX venue's view of a symbol.
type VenueQuery struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// CEXResult is the per-venue outcome; all-null depth for unsupported venues.
type CEXResult struct {
	Venue     string   `json:"venue"`
	Symbol    string   `json:"symbol"`
	Supported bool     `json:"supported"`
	Depth     CEXDepth `json:"depth"`
}

// ImpactEstimate is the modeled price impact for one trade size.
type ImpactEstimate struct {
	TradeSizeUSD float64                 `json:"trade_size_usd"`
	ImpactPct    certainty.Data[float64] `json:"impact_pct"`
}

// Snapshot is the full liquidity analysis for one token.
type Snapshot struct {
	Chain   string `json:"chain"`
	Address string `json:"address"`

	TotalLiquidityUSD certainty.Data[float64] `json:"total_liquidity_usd"`
	Volume24hUSD      certainty.Data[float64] `json:"volume_24h_usd"`
	TurnoverRatio     certainty.Data[float64] `json:"volume_to_liquidity_ratio"`
	PairCount         certainty.Data[int]     `json:"pair_count"`
	TopPairs          []Pair                  `json:"top_pairs"`
	TopPoolShare      certainty.Data[float64] `json:"top_pool_share"`
	HHI               certainty.Data[float64] `json:"hhi"`

	Impacts []ImpactEstimate `json:"impact_estimates"`
	CEX     []CEXResult      `json:"cex,omitempty"`

	Flags     []flags.Flag `json:"flags"`
	Score     float64      `json:"score"`      // 0-1 tradability
	Label     flags.Level  `json:"label"`      // from Score
	RiskScore float64      `json:"risk_score"` // 0-100 for the decision engine

	Evidence []certainty.Evidence        `json:"evidence,omitempty"`
	Warnings []string                    `json:"warnings,omitempty"`
	Errors   []certainty.StructuredError `json:"errors,omitempty"`
}

// topPairCount bounds how many pairs are reported and ranked.
const topPairCount = 10

// Flag thresholds, all USD.
const (
	lowLiquidityHighUSD   = 100_000
	lowLiquidityMediumUSD = 500_000
	lowVolumeUSD          = 50_000
	highSlippagePct       = 5.0
	slippageProbeUSD      = 10_000
	concentrationHigh     = 0.7
	concentrationMedium   = 0.5
)

// Analyzer runs the snapshot pipeline. Enrichers and CEX providers are
// optional; a venue missing from the registry is reported as unsupported.
type Analyzer struct {
	dex    DEXProvider
	price  PriceEnricher
	pools  PoolEnricher
	venues map[string]CEXProvider
	log    zerolog.Logger
}

func NewAnalyzer(dex DEXProvider, price PriceEnricher, pools PoolEnricher, venues map[string]CEXProvider, log zerolog.Logger) *Analyzer {
	return &Analyzer{
		dex:    dex,
		price:  price,
		pools:  pools,
		venues: venues,
		log:    log.With().Str("component", "liquidity").Logger(),
	}
}

// Snapshot analyzes one token. A DEX provider failure degrades the whole DEX
// side to UNKNOWN with a retryable error; CEX venues fail independently.
func (a *Analyzer) Snapshot(ctx context.Context, chain, address string, venues []VenueQuery, tradeSizesUSD []float64) *Snapshot {
	snap := &Snapshot{Chain: chain, Address: address}

	pairs, err := a.dex.TokenPairs(ctx, chain, address)
	if err != nil {
		a.log.Warn().Err(err).Str("chain", chain).Str("address", address).Msg("DEX pair fetch failed")
		a.markUnknown(snap, "DEX provider error: "+err.Error(), tradeSizesUSD)
		snap.Errors = append(snap.Errors, certainty.NewError(certainty.CodeUpstreamError, "dexscreener", err.Error()))
	} else {
		a.analyzeDEX(snap, pairs, tradeSizesUSD)
	}

	a.analyzeCEX(ctx, snap, venues)
	a.enrich(ctx, snap, chain, address)

	snap.Score = tradabilityScore(snap)
	snap.Label = scoreLabel(snap.Score)
	snap.RiskScore = riskScore(snap)
	return snap
}

func (a *Analyzer) analyzeDEX(snap *Snapshot, pairs []Pair, tradeSizesUSD []float64) {
	src := "DexScreener aggregated DEX data"

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].LiquidityUSD > pairs[j].LiquidityUSD })

	totalLiq, totalVol := 0.0, 0.0
	for _, p := range pairs {
		totalLiq += p.LiquidityUSD
		totalVol += p.Volume24hUSD
	}
	top := pairs
	if len(top) > topPairCount {
		top = top[:topPairCount]
	}
	snap.TopPairs = top
	snap.PairCount = certainty.ProvenData(len(pairs), src)
	snap.TotalLiquidityUSD = certainty.ProvenData(totalLiq, src)
	snap.Volume24hUSD = certainty.ProvenData(totalVol, "DexScreener 24h volume data")

	if totalLiq > 0 {
		snap.TurnoverRatio = certainty.ProvenData(totalVol/totalLiq, "calculated from 24h volume / liquidity")
		share := pairs[0].LiquidityUSD / totalLiq
		snap.TopPoolShare = certainty.ProvenData(share, "calculated from DEX pair data")
		hhi := 0.0
		for _, p := range pairs {
			s := p.LiquidityUSD / totalLiq
			hhi += s * s
		}
		snap.HHI = certainty.ProvenData(hhi, "calculated from DEX pair data")
	} else {
		snap.TurnoverRatio = certainty.UnknownData[float64]("no liquidity reported")
		snap.TopPoolShare = certainty.UnknownData[float64]("no liquidity reported")
		snap.HHI = certainty.UnknownData[float64]("no liquidity reported")
	}

	snap.Flags = append(snap.Flags, liquidityFlags(totalLiq, totalVol, snap.TopPoolShare)...)
	snap.Impacts = impactEstimates(totalLiq, tradeSizesUSD)

	// the slippage flag always probes a fixed $10K trade, independent of the
	// sizes the caller asked for
	probe := impactEstimates(totalLiq, []float64{slippageProbeUSD})[0]
	if probe.ImpactPct.Value != nil && *probe.ImpactPct.Value > highSlippagePct {
		snap.Flags = append(snap.Flags, flags.New(flags.HighSlippage,
			fmt.Sprintf("estimated %.2f%% impact for $%.0f trade", *probe.ImpactPct.Value, probe.TradeSizeUSD),
			certainty.Inferred))
	}
}

func liquidityFlags(totalLiq, totalVol float64, topShare certainty.Data[float64]) []flags.Flag {
	var fs []flags.Flag

	switch {
	case totalLiq < lowLiquidityHighUSD:
		fs = append(fs, flags.New(flags.LowLiquidity,
			fmt.Sprintf("total DEX liquidity $%.0f below $100K", totalLiq), certainty.Proven))
	case totalLiq < lowLiquidityMediumUSD:
		f := flags.New(flags.LowLiquidity,
			fmt.Sprintf("total DEX liquidity $%.0f below $500K", totalLiq), certainty.Proven)
		f.Level = flags.LevelMedium // tier, not severity table
		fs = append(fs, f)
	}

	if totalVol < lowVolumeUSD {
		fs = append(fs, flags.New(flags.LowVolume,
			fmt.Sprintf("24h volume $%.0f below $50K", totalVol), certainty.Proven))
	}

	if topShare.Value != nil {
		share := *topShare.Value
		switch {
		case share > concentrationHigh:
			f := flags.New(flags.ConcentratedPools,
				fmt.Sprintf("top pool holds %.0f%% of liquidity", share*100), certainty.Proven)
			f.Level = flags.LevelHigh
			fs = append(fs, f)
		case share > concentrationMedium:
			fs = append(fs, flags.New(flags.ConcentratedPools,
				fmt.Sprintf("top pool holds %.0f%% of liquidity", share*100), certainty.Proven))
		}
	}

	if totalLiq < lowLiquidityMediumUSD {
		fs = append(fs, flags.New(flags.NoCEXSupport,
			"no CEX listings detected and low DEX liquidity", certainty.Inferred))
	}
	return fs
}

// impactEstimates models price impact against half the pooled depth with a
// 1.5x amplification over the linear term. Always INFERRED.
func impactEstimates(totalLiq float64, tradeSizesUSD []float64) []ImpactEstimate {
	if len(tradeSizesUSD) == 0 {
		tradeSizesUSD = []float64{1_000, 10_000, 100_000}
	}
	out := make([]ImpactEstimate, 0, len(tradeSizesUSD))
	for _, size := range tradeSizesUSD {
		if totalLiq <= 0 {
			out = append(out, ImpactEstimate{
				TradeSizeUSD: size,
				ImpactPct:    certainty.UnknownData[float64]("no liquidity data"),
			})
			continue
		}
		pct := size / (2 * 1.5 * totalLiq) * 100
		if pct > 100 {
			pct = 100
		}
		out = append(out, ImpactEstimate{
			TradeSizeUSD: size,
			ImpactPct: certainty.InferredData(pct, "constant product AMM approximation",
				"simplified AMM curve; actual impact varies by DEX"),
		})
	}
	return out
}

func (a *Analyzer) analyzeCEX(ctx context.Context, snap *Snapshot, venues []VenueQuery) {
	for _, q := range venues {
		provider, ok := a.venues[q.Venue]
		if !ok {
			snap.CEX = append(snap.CEX, CEXResult{Venue: q.Venue, Symbol: q.Symbol})
			snap.Errors = append(snap.Errors, certainty.NewError(certainty.CodeUnsupportedSource, q.Venue,
				fmt.Sprintf("CEX venue %q not supported", q.Venue)))
			continue
		}
		depth, err := provider.Depth(ctx, q.Symbol)
		if err != nil {
			snap.CEX = append(snap.CEX, CEXResult{Venue: q.Venue, Symbol: q.Symbol, Supported: true})
			snap.Errors = append(snap.Errors, certainty.NewError(certainty.CodeUpstreamError, q.Venue, err.Error()))
			continue
		}
		snap.CEX = append(snap.CEX, CEXResult{Venue: q.Venue, Symbol: q.Symbol, Supported: true, Depth: depth})
	}
}

// enrich adds best-effort third-party context. Failures become warnings,
// never errors, and nothing here feeds the score.
func (a *Analyzer) enrich(ctx context.Context, snap *Snapshot, chain, address string) {
	if a.price != nil {
		if price, err := a.price.TokenPrice(ctx, chain, address); err == nil {
			snap.Evidence = append(snap.Evidence, certainty.Evidence{
				Provider:  "defillama",
				Timestamp: time.Now().UTC(),
				Note:      fmt.Sprintf("price reference: $%.6f", price),
			})
		} else {
			snap.Warnings = append(snap.Warnings, "DefiLlama unavailable: "+err.Error())
		}
	}
	if a.pools != nil {
		if n, err := a.pools.TokenPoolCount(ctx, chain, address); err == nil {
			snap.Evidence = append(snap.Evidence, certainty.Evidence{
				Provider:  "thegraph",
				Timestamp: time.Now().UTC(),
				Note:      fmt.Sprintf("queried %d pools for deep math", n),
			})
		} else {
			snap.Warnings = append(snap.Warnings, "The Graph unavailable: "+err.Error())
		}
	}
}

func (a *Analyzer) markUnknown(snap *Snapshot, reason string, tradeSizesUSD []float64) {
	snap.TotalLiquidityUSD = certainty.UnknownData[float64](reason)
	snap.Volume24hUSD = certainty.UnknownData[float64](reason)
	snap.TurnoverRatio = certainty.UnknownData[float64](reason)
	snap.PairCount = certainty.UnknownData[int](reason)
	snap.TopPoolShare = certainty.UnknownData[float64](reason)
	snap.HHI = certainty.UnknownData[float64](reason)
	snap.Impacts = impactEstimates(0, tradeSizesUSD)
	for i := range snap.Impacts {
		snap.Impacts[i].ImpactPct = certainty.UnknownData[float64](reason)
	}
}
