// Package decision turns the per-dimension analyses into a single listing
// recommendation. Rules apply in strict order: unresolvable unknowns first,
// then critical flags, then the weighted composite.
package decision

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"tokentruth/internal/contracts"
	"tokentruth/internal/flags"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/social"
)

// Recommendation values, ordered from most to least restrictive.
const (
	NeedsReview    = "NEEDS_REVIEW"
	DoNotList      = "DO_NOT_LIST"
	ListWithLimits = "LIST_WITH_LIMITS"
	List           = "LIST"
)

// Config holds the decision thresholds and flag classifications.
type Config struct {
	// Composite weights; contract risk dominates.
	ContractWeight  float64 `yaml:"contract_weight"`  // 0.5
	LiquidityWeight float64 `yaml:"liquidity_weight"` // 0.35
	SocialWeight    float64 `yaml:"social_weight"`    // 0.15

	// Thresholds on the weighted composite (0-100).
	DoNotListScore float64 `yaml:"do_not_list_score"` // ≥70
	LimitsScore    float64 `yaml:"limits_score"`      // ≥40

	// Unknown gate: this many unresolved critical facts forces review.
	MaxCriticalUnknowns int `yaml:"max_critical_unknowns"` // 3

	// Flags that block listing outright vs. flags that cap it at limits.
	CriticalFlags []flags.ID `yaml:"critical_flags"`
	WarningFlags  []flags.ID `yaml:"warning_flags"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() *Config {
	return &Config{
		ContractWeight:      0.5,
		LiquidityWeight:     0.35,
		SocialWeight:        0.15,
		DoNotListScore:      70,
		LimitsScore:         40,
		MaxCriticalUnknowns: 3,
		CriticalFlags: []flags.ID{
			flags.UnverifiedContract,
			flags.UpgradeableProxy,
			flags.Pausable,
			flags.Freezable,
		},
		WarningFlags: []flags.ID{
			flags.Mintable,
			flags.LowLiquidity,
			flags.HighSlippage,
			flags.OwnershipNotRenounced,
		},
	}
}

// Input bundles the analyses a recommendation draws on. Liquidity and
// social may be nil when those dimensions were not requested; contract
// analysis is required.
type Input struct {
	Contracts []*contracts.Analysis
	Liquidity *liquidity.Snapshot
	Social    *social.Report
}

// Result is the recommendation plus the evidence trail that produced it.
type Result struct {
	Recommendation   string     `json:"recommendation"`
	CompositeScore   float64    `json:"composite_score"`
	ContractScore    float64    `json:"contract_risk_score"`
	LiquidityScore   float64    `json:"liquidity_risk_score"`
	SocialScore      float64    `json:"social_risk_score"`
	CriticalUnknowns int        `json:"critical_unknowns"`
	TriggeredFlags   []flags.ID `json:"triggered_flags,omitempty"`
	Justification    []string   `json:"justification"`
}

// Engine evaluates inputs against a fixed config.
type Engine struct {
	cfg *Config
	log zerolog.Logger
}

func NewEngine(cfg *Config, log zerolog.Logger) *Engine {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Engine{
		cfg: cfg,
		log: log.With().Str("component", "decision").Logger(),
	}
}

// Recommend applies the decision rules in order. Earlier rules win: a
// contract with three unknown critical facts is reviewed even if every
// known fact looks clean.
func (e *Engine) Recommend(in Input) *Result {
	res := &Result{}
	res.ContractScore = worstContractScore(in.Contracts)
	res.LiquidityScore = dimensionScore(in.Liquidity)
	res.SocialScore = socialScore(in.Social)
	res.CompositeScore = e.cfg.ContractWeight*res.ContractScore +
		e.cfg.LiquidityWeight*res.LiquidityScore +
		e.cfg.SocialWeight*res.SocialScore
	res.CriticalUnknowns = criticalUnknowns(in)

	present := presentFlags(in)

	if res.CriticalUnknowns >= e.cfg.MaxCriticalUnknowns {
		res.Recommendation = NeedsReview
		res.Justification = append(res.Justification,
			fmt.Sprintf("%d critical facts could not be established; manual review required", res.CriticalUnknowns))
		e.logResult(res)
		return res
	}

	if hit := matchFlags(present, e.cfg.CriticalFlags); len(hit) > 0 {
		res.Recommendation = DoNotList
		res.TriggeredFlags = hit
		res.Justification = append(res.Justification,
			"critical risk flags present: "+joinIDs(hit))
		e.logResult(res)
		return res
	}

	if res.CompositeScore >= e.cfg.DoNotListScore {
		res.Recommendation = DoNotList
		res.Justification = append(res.Justification,
			fmt.Sprintf("composite risk %.1f exceeds do-not-list threshold %.0f (contract %.1f, liquidity %.1f, social %.1f)",
				res.CompositeScore, e.cfg.DoNotListScore, res.ContractScore, res.LiquidityScore, res.SocialScore))
		e.logResult(res)
		return res
	}

	warnings := matchFlags(present, e.cfg.WarningFlags)
	if len(warnings) > 0 || res.CompositeScore >= e.cfg.LimitsScore {
		res.Recommendation = ListWithLimits
		res.TriggeredFlags = warnings
		if len(warnings) > 0 {
			res.Justification = append(res.Justification,
				"warning flags present: "+joinIDs(warnings))
		}
		if res.CompositeScore >= e.cfg.LimitsScore {
			res.Justification = append(res.Justification,
				fmt.Sprintf("composite risk %.1f exceeds limits threshold %.0f", res.CompositeScore, e.cfg.LimitsScore))
		}
		e.logResult(res)
		return res
	}

	res.Recommendation = List
	res.Justification = append(res.Justification,
		fmt.Sprintf("no blocking flags; composite risk %.1f below limits threshold %.0f", res.CompositeScore, e.cfg.LimitsScore))
	e.logResult(res)
	return res
}

func (e *Engine) logResult(res *Result) {
	e.log.Info().
		Str("recommendation", res.Recommendation).
		Float64("composite", res.CompositeScore).
		Int("critical_unknowns", res.CriticalUnknowns).
		Msg("recommendation computed")
}

// worstContractScore takes the riskiest deployment: one bad chain instance
// is enough to taint the asset.
func worstContractScore(analyses []*contracts.Analysis) float64 {
	worst := 0.0
	for _, a := range analyses {
		if a != nil && a.RiskScore > worst {
			worst = a.RiskScore
		}
	}
	return worst
}

func dimensionScore(s *liquidity.Snapshot) float64 {
	if s == nil {
		return 0
	}
	return s.RiskScore
}

// socialScore treats a missing social report as neutral rather than risky;
// absence of chatter never blocks a listing on its own.
func socialScore(r *social.Report) float64 {
	if r == nil {
		return 0
	}
	return r.RiskScore
}

func criticalUnknowns(in Input) int {
	n := 0
	for _, a := range in.Contracts {
		if a != nil {
			n += a.CriticalUnknowns()
		}
	}
	if in.Liquidity != nil {
		n += in.Liquidity.CriticalUnknowns()
	}
	return n
}

// presentFlags unions raised flags across every dimension.
func presentFlags(in Input) map[flags.ID]bool {
	out := make(map[flags.ID]bool)
	for _, a := range in.Contracts {
		if a == nil {
			continue
		}
		for _, f := range a.Flags {
			out[f.ID] = true
		}
	}
	if in.Liquidity != nil {
		for _, f := range in.Liquidity.Flags {
			out[f.ID] = true
		}
	}
	if in.Social != nil {
		for _, f := range in.Social.Flags {
			out[f.ID] = true
		}
	}
	return out
}

func matchFlags(present map[flags.ID]bool, wanted []flags.ID) []flags.ID {
	var hit []flags.ID
	for _, id := range wanted {
		if present[id] {
			hit = append(hit, id)
		}
	}
	sort.Slice(hit, func(i, j int) bool { return hit[i] < hit[j] })
	return hit
}

func joinIDs(ids []flags.ID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return strings.Join(parts, ", ")
}
