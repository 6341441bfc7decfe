package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/decision"
	"tokentruth/internal/flags"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/social"
)

type fakeContractAnalyzer struct {
	result *contracts.Analysis
	calls  int
}

func (f *fakeContractAnalyzer) Analyze(ctx context.Context, inst contracts.ChainInstance, opts contracts.Options) *contracts.Analysis {
	f.calls++
	a := *f.result
	a.Chain = inst.Chain
	a.Address = inst.Address
	return &a
}

type fakeLiquidity struct {
	snap *liquidity.Snapshot
}

func (f *fakeLiquidity) Snapshot(ctx context.Context, chain, address string, venues []liquidity.VenueQuery, tradeSizesUSD []float64) *liquidity.Snapshot {
	return f.snap
}

type fakeSocial struct {
	report *social.Report
}

func (f *fakeSocial) Analyze(ctx context.Context, symbol string, window social.Window, opts social.AnalyzeOptions) *social.Report {
	return f.report
}

func cleanResult() *contracts.Analysis {
	return &contracts.Analysis{
		Verified:    certainty.ProvenData(true, "etherscan"),
		Upgradeable: certainty.ProvenData(false, "rpc"),
		CanMint:     certainty.ProvenData(false, "source scan"),
		IsProxy:     certainty.InferredData(false, "storage probe", "all strategies empty"),
		Owner:       certainty.UnknownData[string]("owner() reverted"),
		RiskScore:   10,
	}
}

func newPipeline(evm ContractAnalyzer, liq LiquidityAnalyzer, soc SocialAnalyzer) *Pipeline {
	return New(Options{
		EVM:       map[string]ContractAnalyzer{"ethereum": evm, "bsc": evm},
		Liquidity: liq,
		Social:    soc,
		Decider:   decision.NewEngine(nil, zerolog.Nop()),
	}, zerolog.Nop())
}

func TestEnvelopeFields(t *testing.T) {
	env := newEnvelope()

	_, err := uuid.Parse(env.RequestID)
	require.NoError(t, err)
	_, err = time.Parse(time.RFC3339, env.AsOf)
	require.NoError(t, err)
}

func TestFactSetSplitsByCertainty(t *testing.T) {
	fs := contractFacts(cleanResult())

	require.Contains(t, fs.Proven, "verified")
	assert.Equal(t, true, fs.Proven["verified"].Value)
	assert.Equal(t, "etherscan", fs.Proven["verified"].Source)

	require.Contains(t, fs.Inferred, "is_proxy")
	assert.Equal(t, "all strategies empty", fs.Inferred["is_proxy"].Reason)

	require.Contains(t, fs.Unknown, "owner")
	assert.Equal(t, "owner() reverted", fs.Unknown["owner"])

	// a fact lives in exactly one section
	assert.NotContains(t, fs.Inferred, "verified")
	assert.NotContains(t, fs.Proven, "is_proxy")
	assert.NotContains(t, fs.Proven, "owner")
}

func TestContractTruthFansOutPerInstance(t *testing.T) {
	analyzer := &fakeContractAnalyzer{result: cleanResult()}
	p := newPipeline(analyzer, nil, nil)

	resp := p.ContractTruth(context.Background(), ContractRequest{
		Instances: []contracts.ChainInstance{
			{Chain: "ethereum", Address: "0xaaa"},
			{Chain: "bsc", Address: "0xbbb"},
		},
	})

	require.Len(t, resp.Instances, 2)
	assert.Equal(t, 2, analyzer.calls)
	assert.Equal(t, "ethereum", resp.Instances[0].Chain)
	assert.Equal(t, "bsc", resp.Instances[1].Chain)
	// two instances produce one equivalence pair
	require.Len(t, resp.Equivalence, 1)
}

func TestContractTruthSingleInstanceSkipsEquivalence(t *testing.T) {
	p := newPipeline(&fakeContractAnalyzer{result: cleanResult()}, nil, nil)

	resp := p.ContractTruth(context.Background(), ContractRequest{
		Instances: []contracts.ChainInstance{{Chain: "ethereum", Address: "0xaaa"}},
	})

	assert.Empty(t, resp.Equivalence)
}

func TestContractTruthUnsupportedChainPlaceholder(t *testing.T) {
	p := newPipeline(&fakeContractAnalyzer{result: cleanResult()}, nil, nil)

	resp := p.ContractTruth(context.Background(), ContractRequest{
		Instances: []contracts.ChainInstance{{Chain: "dogechain", Address: "0xaaa"}},
	})

	require.Len(t, resp.Instances, 1)
	inst := resp.Instances[0]
	assert.Equal(t, 3, inst.CriticalUnknowns)
	require.Len(t, inst.Errors, 1)
	assert.Equal(t, certainty.CodeUnsupportedChain, inst.Errors[0].Code)
	assert.False(t, inst.Errors[0].Retryable)
	assert.Empty(t, inst.Facts.Proven)
}

func TestRecommendRunsAllDimensions(t *testing.T) {
	liq := &fakeLiquidity{snap: &liquidity.Snapshot{
		TotalLiquidityUSD: certainty.ProvenData(2_000_000.0, "dexscreener"),
		Volume24hUSD:      certainty.ProvenData(500_000.0, "dexscreener"),
		RiskScore:         10,
	}}
	soc := &fakeSocial{report: &social.Report{RiskScore: 10}}
	p := newPipeline(&fakeContractAnalyzer{result: cleanResult()}, liq, soc)

	resp := p.Recommend(context.Background(), RecommendRequest{
		Symbol:    "TKN",
		Instances: []contracts.ChainInstance{{Chain: "ethereum", Address: "0xaaa"}},
	})

	require.NotNil(t, resp.Decision)
	assert.Equal(t, decision.List, resp.Decision.Recommendation)
	require.NotNil(t, resp.Contracts)
	require.NotNil(t, resp.Liquidity)
	require.NotNil(t, resp.Social)
}

func TestRecommendCriticalFlagPropagates(t *testing.T) {
	flagged := cleanResult()
	flagged.Flags = []flags.Flag{flags.New(flags.Pausable, "source scan", certainty.Proven)}
	p := newPipeline(&fakeContractAnalyzer{result: flagged}, nil, nil)

	resp := p.Recommend(context.Background(), RecommendRequest{
		Instances: []contracts.ChainInstance{{Chain: "ethereum", Address: "0xaaa"}},
	})

	assert.Equal(t, decision.DoNotList, resp.Decision.Recommendation)
}

func TestSocialSentimentDefaultsWindow(t *testing.T) {
	soc := &fakeSocial{report: &social.Report{
		Sentiment: certainty.ProvenData(0.4, "cryptopanic"),
	}}
	p := newPipeline(&fakeContractAnalyzer{result: cleanResult()}, nil, soc)

	resp := p.SocialSentiment(context.Background(), SocialRequest{Symbol: "TKN"})

	require.Contains(t, resp.Facts.Proven, "sentiment")
	assert.Equal(t, 0.4, resp.Facts.Proven["sentiment"].Value)
}
