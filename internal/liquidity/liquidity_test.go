package liquidity

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

type fakeDEX struct {
	pairs []Pair
	err   error
}

func (f fakeDEX) TokenPairs(_ context.Context, _, _ string) ([]Pair, error) {
	return f.pairs, f.err
}

type fakeCEX struct {
	depth CEXDepth
	err   error
}

func (f fakeCEX) Depth(_ context.Context, _ string) (CEXDepth, error) {
	return f.depth, f.err
}

func newTestAnalyzer(dex DEXProvider, venues map[string]CEXProvider) *Analyzer {
	return NewAnalyzer(dex, nil, nil, venues, zerolog.Nop())
}

func pairsWithLiquidity(amounts ...float64) []Pair {
	ps := make([]Pair, len(amounts))
	for i, amt := range amounts {
		ps[i] = Pair{Address: "pair", LiquidityUSD: amt, Volume24hUSD: amt}
	}
	return ps
}

func TestSnapshot_TotalsAndRankingProven(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(200_000, 500_000, 300_000)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)

	require.NotNil(t, snap.TotalLiquidityUSD.Value)
	assert.InDelta(t, 1_000_000, *snap.TotalLiquidityUSD.Value, 1e-6)
	assert.Equal(t, certainty.Proven, snap.TotalLiquidityUSD.Certainty)
	assert.Equal(t, 500_000.0, snap.TopPairs[0].LiquidityUSD, "ranked by liquidity desc")
	assert.InDelta(t, 0.5, *snap.TopPoolShare.Value, 1e-9)
	assert.InDelta(t, 0.25+0.09+0.04, *snap.HHI.Value, 1e-9)
}

func TestSnapshot_TopPairsCapped(t *testing.T) {
	amounts := make([]float64, 15)
	for i := range amounts {
		amounts[i] = 1_000_000
	}
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(amounts...)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)

	assert.Len(t, snap.TopPairs, 10)
	assert.Equal(t, 15, *snap.PairCount.Value)
}

func TestSnapshot_LowLiquidityTiers(t *testing.T) {
	tests := []struct {
		name      string
		liquidity float64
		wantLevel flags.Level
	}{
		{"below 100K is high", 99_999, flags.LevelHigh},
		{"exactly 100K falls in 500K tier", 100_000, flags.LevelMedium},
		{"below 500K is medium", 400_000, flags.LevelMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(tt.liquidity)}, nil)
			snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)

			var found *flags.Flag
			for i := range snap.Flags {
				if snap.Flags[i].ID == flags.LowLiquidity {
					found = &snap.Flags[i]
				}
			}
			require.NotNil(t, found)
			assert.Equal(t, tt.wantLevel, found.Level)
		})
	}
}

func TestSnapshot_NoLowLiquidityFlagAtHalfMillion(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(500_000)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)
	assert.False(t, flags.IDs(snap.Flags)[flags.LowLiquidity])
}

func TestSnapshot_FullConcentrationFlagged(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(1_000_000)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)

	require.NotNil(t, snap.TopPoolShare.Value)
	assert.InDelta(t, 1.0, *snap.TopPoolShare.Value, 1e-9)
	var conc *flags.Flag
	for i := range snap.Flags {
		if snap.Flags[i].ID == flags.ConcentratedPools {
			conc = &snap.Flags[i]
		}
	}
	require.NotNil(t, conc, "100%% concentration must flag")
	assert.Equal(t, flags.LevelHigh, conc.Level)
}

func TestImpactEstimates_FormulaAndCap(t *testing.T) {
	ests := impactEstimates(100_000, []float64{10_000, 100_000_000})
	require.Len(t, ests, 2)

	// 10_000 / (2 * 1.5 * 100_000) * 100
	assert.InDelta(t, 3.333333, *ests[0].ImpactPct.Value, 1e-4)
	assert.Equal(t, certainty.Inferred, ests[0].ImpactPct.Certainty)
	assert.Equal(t, 100.0, *ests[1].ImpactPct.Value, "capped at 100")
}

func TestSnapshot_HighSlippageFlag(t *testing.T) {
	// 10k probe against 50k liquidity: 10000/(3*50000)*100 = 6.67% > 5%
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(50_000)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, []float64{10_000})

	assert.True(t, flags.IDs(snap.Flags)[flags.HighSlippage])
}

func TestSnapshot_HighSlippageFlagIndependentOfRequestedSizes(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(50_000)}, nil)
	// the $10K probe is not among the requested sizes; the flag still fires
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, []float64{1_000, 100_000})

	assert.True(t, flags.IDs(snap.Flags)[flags.HighSlippage])
	for _, imp := range snap.Impacts {
		assert.NotEqual(t, 10_000.0, imp.TradeSizeUSD)
	}
}

func TestSnapshot_ProviderErrorIsAllUnknown(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{err: errors.New("dexscreener 502")}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", nil, nil)

	assert.True(t, snap.TotalLiquidityUSD.IsUnknown())
	assert.True(t, snap.Volume24hUSD.IsUnknown())
	assert.Empty(t, snap.Flags)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, certainty.CodeUpstreamError, snap.Errors[0].Code)
	assert.True(t, snap.Errors[0].Retryable)
	assert.Equal(t, 50.0, snap.RiskScore)
	assert.Equal(t, 2, snap.CriticalUnknowns())
}

func TestSnapshot_UnsupportedVenue(t *testing.T) {
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(1_000_000)}, nil)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", []VenueQuery{{Venue: "hyperexchange", Symbol: "TKN/USD"}}, nil)

	require.Len(t, snap.CEX, 1)
	assert.False(t, snap.CEX[0].Supported)
	assert.Nil(t, snap.CEX[0].Depth.Within10BpsUSD)
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, certainty.CodeUnsupportedSource, snap.Errors[0].Code)
	assert.False(t, snap.Errors[0].Retryable)
}

func TestTradabilityScore_TiersAndBonuses(t *testing.T) {
	depth := 1_000_000.0
	tests := []struct {
		name string
		snap *Snapshot
		want float64
	}{
		{
			name: "deep balanced book",
			snap: &Snapshot{
				TotalLiquidityUSD: certainty.ProvenData(20_000_000.0, "t"),
				Volume24hUSD:      certainty.ProvenData(20_000_000.0, "t"), // ratio 1.0
				CEX:               []CEXResult{{Supported: true, Depth: CEXDepth{Within10BpsUSD: &depth}}},
			},
			want: 0.5 + 0.2 + 0.15 + 0.15,
		},
		{
			name: "thin pool",
			snap: &Snapshot{
				TotalLiquidityUSD: certainty.ProvenData(50_000.0, "t"),
				Volume24hUSD:      certainty.ProvenData(500_000.0, "t"), // ratio 10, no bonus
			},
			want: 0.05 + 0.15,
		},
		{
			name: "single high concentration flag",
			snap: &Snapshot{
				TotalLiquidityUSD: certainty.ProvenData(2_000_000.0, "t"),
				Volume24hUSD:      certainty.ProvenData(2_000_000.0, "t"),
				Flags: []flags.Flag{{ID: flags.ConcentratedPools, Level: flags.LevelHigh}},
			},
			want: 0.35 + 0.2 + 0.05,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tradabilityScore(tt.snap), 1e-9)
		})
	}
}

func TestScoreLabel(t *testing.T) {
	assert.Equal(t, flags.LevelHigh, scoreLabel(0.7))
	assert.Equal(t, flags.LevelMedium, scoreLabel(0.4))
	assert.Equal(t, flags.LevelLow, scoreLabel(0.39))
}

func TestSnapshot_SupportedVenueGetsDepth(t *testing.T) {
	d := 250_000.0
	venues := map[string]CEXProvider{"kraken": fakeCEX{depth: CEXDepth{Within10BpsUSD: &d}}}
	a := newTestAnalyzer(fakeDEX{pairs: pairsWithLiquidity(20_000_000)}, venues)
	snap := a.Snapshot(context.Background(), "eth", "0xabc", []VenueQuery{{Venue: "kraken", Symbol: "TKN/USD"}}, nil)

	require.Len(t, snap.CEX, 1)
	assert.True(t, snap.CEX[0].Supported)
	require.NotNil(t, snap.CEX[0].Depth.Within10BpsUSD)
	assert.Empty(t, snap.Errors)
}
