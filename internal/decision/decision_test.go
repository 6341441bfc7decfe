package decision

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/flags"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/social"
)

func newEngine() *Engine {
	return NewEngine(nil, zerolog.Nop())
}

func cleanAnalysis(score float64, flagIDs ...flags.ID) *contracts.Analysis {
	a := &contracts.Analysis{
		Chain:       "ethereum",
		Address:     "0xaaa",
		Verified:    certainty.ProvenData(true, "etherscan"),
		Upgradeable: certainty.ProvenData(false, "rpc"),
		CanMint:     certainty.ProvenData(false, "source"),
		RiskScore:   score,
	}
	for _, id := range flagIDs {
		a.Flags = append(a.Flags, flags.New(id, "test", certainty.Proven))
	}
	return a
}

func unknownAnalysis() *contracts.Analysis {
	return &contracts.Analysis{
		Chain:       "ethereum",
		Address:     "0xaaa",
		Verified:    certainty.UnknownData[bool]("explorer unavailable"),
		Upgradeable: certainty.UnknownData[bool]("rpc unavailable"),
		CanMint:     certainty.UnknownData[bool]("source unavailable"),
		RiskScore:   50,
	}
}

func cleanLiquidity(score float64, flagIDs ...flags.ID) *liquidity.Snapshot {
	s := &liquidity.Snapshot{
		TotalLiquidityUSD: certainty.ProvenData(2_000_000.0, "dexscreener"),
		Volume24hUSD:      certainty.ProvenData(500_000.0, "dexscreener"),
		RiskScore:         score,
	}
	for _, id := range flagIDs {
		s.Flags = append(s.Flags, flags.New(id, "test", certainty.Proven))
	}
	return s
}

func TestRecommendCleanAssetLists(t *testing.T) {
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(10)},
		Liquidity: cleanLiquidity(10),
		Social:    &social.Report{RiskScore: 10},
	})

	assert.Equal(t, List, res.Recommendation)
	assert.InDelta(t, 10.0, res.CompositeScore, 0.001)
	assert.Empty(t, res.TriggeredFlags)
	assert.NotEmpty(t, res.Justification)
}

func TestRecommendCriticalUnknownsForceReview(t *testing.T) {
	// Three unknown contract facts trip the gate even with clean scores.
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{unknownAnalysis()},
		Liquidity: cleanLiquidity(0),
	})

	assert.Equal(t, NeedsReview, res.Recommendation)
	assert.Equal(t, 3, res.CriticalUnknowns)
	assert.Contains(t, res.Justification[0], "manual review")
}

func TestRecommendUnknownsAccumulateAcrossDimensions(t *testing.T) {
	// Two contract unknowns plus one liquidity unknown reach the gate.
	a := cleanAnalysis(0)
	a.Verified = certainty.UnknownData[bool]("explorer down")
	a.Upgradeable = certainty.UnknownData[bool]("rpc down")
	liq := cleanLiquidity(0)
	liq.Volume24hUSD = certainty.UnknownData[float64]("no pairs")

	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{a},
		Liquidity: liq,
	})

	assert.Equal(t, NeedsReview, res.Recommendation)
	assert.Equal(t, 3, res.CriticalUnknowns)
}

func TestRecommendCriticalFlagBlocksListing(t *testing.T) {
	for _, id := range []flags.ID{flags.UnverifiedContract, flags.UpgradeableProxy, flags.Pausable, flags.Freezable} {
		res := newEngine().Recommend(Input{
			Contracts: []*contracts.Analysis{cleanAnalysis(5, id)},
		})

		assert.Equal(t, DoNotList, res.Recommendation, "flag %s", id)
		require.Len(t, res.TriggeredFlags, 1)
		assert.Equal(t, id, res.TriggeredFlags[0])
		assert.Contains(t, res.Justification[0], string(id))
	}
}

func TestRecommendHighCompositeBlocksListing(t *testing.T) {
	// 0.5*90 + 0.35*80 + 0.15*60 = 82.
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(90)},
		Liquidity: cleanLiquidity(80),
		Social:    &social.Report{RiskScore: 60},
	})

	assert.Equal(t, DoNotList, res.Recommendation)
	assert.InDelta(t, 82.0, res.CompositeScore, 0.001)
	assert.Contains(t, res.Justification[0], "do-not-list threshold")
}

func TestRecommendWarningFlagCapsAtLimits(t *testing.T) {
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(10, flags.Mintable)},
		Liquidity: cleanLiquidity(10, flags.LowLiquidity),
	})

	assert.Equal(t, ListWithLimits, res.Recommendation)
	assert.Equal(t, []flags.ID{flags.LowLiquidity, flags.Mintable}, res.TriggeredFlags)
}

func TestRecommendMidCompositeCapsAtLimits(t *testing.T) {
	// No warning flags but composite 0.5*60+0.35*40 = 44 >= 40.
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(60)},
		Liquidity: cleanLiquidity(40),
	})

	assert.Equal(t, ListWithLimits, res.Recommendation)
	assert.Empty(t, res.TriggeredFlags)
	assert.Contains(t, res.Justification[0], "limits threshold")
}

func TestRecommendWorstContractInstanceWins(t *testing.T) {
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(10), cleanAnalysis(90)},
	})

	assert.Equal(t, 90.0, res.ContractScore)
}

func TestRecommendMissingSocialIsNeutral(t *testing.T) {
	// No social report: the 0.15 weight contributes nothing and the flag
	// NO_SOCIAL_DATA obviously cannot appear.
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(20)},
		Liquidity: cleanLiquidity(20),
	})

	assert.Equal(t, List, res.Recommendation)
	assert.InDelta(t, 17.0, res.CompositeScore, 0.001)
}

func TestRecommendRuleOrderCriticalFlagBeatsComposite(t *testing.T) {
	// A pausable contract is DO_NOT_LIST by flag before the composite rule
	// runs, so the justification names the flag not the score.
	res := newEngine().Recommend(Input{
		Contracts: []*contracts.Analysis{cleanAnalysis(95, flags.Pausable)},
		Liquidity: cleanLiquidity(95),
	})

	assert.Equal(t, DoNotList, res.Recommendation)
	assert.Contains(t, res.Justification[0], string(flags.Pausable))
}

func TestRecommendUnknownGateBeatsCriticalFlag(t *testing.T) {
	a := unknownAnalysis()
	a.Flags = append(a.Flags, flags.New(flags.Pausable, "test", certainty.Proven))

	res := newEngine().Recommend(Input{Contracts: []*contracts.Analysis{a}})

	assert.Equal(t, NeedsReview, res.Recommendation)
}
