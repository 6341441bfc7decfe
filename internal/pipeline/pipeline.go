// Package pipeline fans each request out across chain instances and data
// sources, bounds every upstream dimension with its own timeout, and
// assembles the wire responses. One instance failing never aborts the rest.
package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/decision"
	"tokentruth/internal/equivalence"
	"tokentruth/internal/flags"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/social"
)

// ContractAnalyzer is one chain family's analyzer (EVM or Solana).
type ContractAnalyzer interface {
	Analyze(ctx context.Context, inst contracts.ChainInstance, opts contracts.Options) *contracts.Analysis
}

// LiquidityAnalyzer matches liquidity.Analyzer.
type LiquidityAnalyzer interface {
	Snapshot(ctx context.Context, chain, address string, venues []liquidity.VenueQuery, tradeSizesUSD []float64) *liquidity.Snapshot
}

// SocialAnalyzer matches social.Analyzer.
type SocialAnalyzer interface {
	Analyze(ctx context.Context, symbol string, window social.Window, opts social.AnalyzeOptions) *social.Report
}

// Pipeline owns the analyzers and the per-dimension timeout policy.
type Pipeline struct {
	evm            map[string]ContractAnalyzer // keyed by chain name
	solana         ContractAnalyzer
	liquidity      LiquidityAnalyzer
	social         SocialAnalyzer
	decider        *decision.Engine
	requestTimeout time.Duration
	log            zerolog.Logger
}

type Options struct {
	EVM            map[string]ContractAnalyzer
	Solana         ContractAnalyzer
	Liquidity      LiquidityAnalyzer
	Social         SocialAnalyzer
	Decider        *decision.Engine
	RequestTimeout time.Duration // per upstream dimension
}

func New(opts Options, log zerolog.Logger) *Pipeline {
	timeout := opts.RequestTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	decider := opts.Decider
	if decider == nil {
		decider = decision.NewEngine(nil, log)
	}
	return &Pipeline{
		evm:            opts.EVM,
		solana:         opts.Solana,
		liquidity:      opts.Liquidity,
		social:         opts.Social,
		decider:        decider,
		requestTimeout: timeout,
		log:            log.With().Str("component", "pipeline").Logger(),
	}
}

// Envelope is stamped on every top-level response.
type Envelope struct {
	RequestID string `json:"request_id"`
	AsOf      string `json:"as_of"`
}

func newEnvelope() Envelope {
	return Envelope{
		RequestID: uuid.NewString(),
		AsOf:      time.Now().UTC().Format(time.RFC3339),
	}
}

// ContractRequest asks for contract truth across one or more deployments.
type ContractRequest struct {
	Instances []contracts.ChainInstance `json:"instances"`
	Options   contracts.Options         `json:"options"`
}

// InstanceResult is one deployment's analysis on the wire.
type InstanceResult struct {
	Chain            string                      `json:"chain"`
	Address          string                      `json:"address"`
	TokenType        string                      `json:"token_type,omitempty"`
	Facts            FactSet                     `json:"facts"`
	Flags            []flags.Flag                `json:"risk_flags"`
	RiskScore        float64                     `json:"contract_risk_score"`
	CriticalUnknowns int                         `json:"critical_unknowns"`
	Evidence         []certainty.Evidence        `json:"evidence,omitempty"`
	Errors           []certainty.StructuredError `json:"errors,omitempty"`
}

type ContractResponse struct {
	Envelope
	Instances   []InstanceResult   `json:"instances"`
	Equivalence []equivalence.Pair `json:"cross_chain_equivalence,omitempty"`
}

// ContractTruth analyzes every instance concurrently. Unsupported chains get
// an all-unknown placeholder with an UNSUPPORTED_CHAIN error.
func (p *Pipeline) ContractTruth(ctx context.Context, req ContractRequest) *ContractResponse {
	resp, _ := p.contractTruth(ctx, req)
	return resp
}

func (p *Pipeline) contractTruth(ctx context.Context, req ContractRequest) (*ContractResponse, []*contracts.Analysis) {
	resp := &ContractResponse{Envelope: newEnvelope()}

	analyses := make([]*contracts.Analysis, len(req.Instances))
	var wg sync.WaitGroup
	for i, inst := range req.Instances {
		wg.Add(1)
		go func(i int, inst contracts.ChainInstance) {
			defer wg.Done()
			analyses[i] = p.analyzeInstance(ctx, inst, req.Options)
		}(i, inst)
	}
	wg.Wait()

	for _, a := range analyses {
		resp.Instances = append(resp.Instances, instanceResult(a))
	}
	if len(analyses) >= 2 {
		resp.Equivalence = equivalence.Infer(analyses)
	}

	p.log.Info().
		Str("request_id", resp.RequestID).
		Int("instances", len(resp.Instances)).
		Msg("contract truth assembled")

	return resp, analyses
}

func (p *Pipeline) analyzeInstance(ctx context.Context, inst contracts.ChainInstance, opts contracts.Options) *contracts.Analysis {
	analyzer := p.analyzerFor(inst.Chain)
	if analyzer == nil {
		e := certainty.NewError(certainty.CodeUnsupportedChain, "pipeline", "no analyzer for chain "+inst.Chain)
		return contracts.UnknownAnalysis(inst, "unsupported chain: "+inst.Chain, e)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()
	return analyzer.Analyze(callCtx, inst, opts)
}

func (p *Pipeline) analyzerFor(chain string) ContractAnalyzer {
	if chain == "solana" {
		return p.solana
	}
	if a, ok := p.evm[chain]; ok {
		return a
	}
	return nil
}

func instanceResult(a *contracts.Analysis) InstanceResult {
	return InstanceResult{
		Chain:            a.Chain,
		Address:          a.Address,
		TokenType:        a.TokenType,
		Facts:            contractFacts(a),
		Flags:            a.Flags,
		RiskScore:        a.RiskScore,
		CriticalUnknowns: a.CriticalUnknowns(),
		Evidence:         a.Evidence,
		Errors:           a.Errors,
	}
}

// LiquidityRequest asks for a liquidity snapshot of one deployment.
type LiquidityRequest struct {
	Chain         string                 `json:"chain"`
	Address       string                 `json:"address"`
	Venues        []liquidity.VenueQuery `json:"cex,omitempty"`
	TradeSizesUSD []float64              `json:"trade_sizes_usd,omitempty"`
}

type LiquidityResponse struct {
	Envelope
	Facts    FactSet             `json:"facts"`
	Snapshot *liquidity.Snapshot `json:"snapshot"`
}

func (p *Pipeline) LiquiditySnapshot(ctx context.Context, req LiquidityRequest) *LiquidityResponse {
	callCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	snap := p.liquidity.Snapshot(callCtx, req.Chain, req.Address, req.Venues, req.TradeSizesUSD)

	return &LiquidityResponse{
		Envelope: newEnvelope(),
		Facts:    liquidityFacts(snap),
		Snapshot: snap,
	}
}

// SocialRequest asks for a sentiment/attention report.
type SocialRequest struct {
	Symbol  string                `json:"asset"`
	Window  social.Window         `json:"lookback"`
	Options social.AnalyzeOptions `json:"options"`
}

type SocialResponse struct {
	Envelope
	Facts  FactSet        `json:"facts"`
	Report *social.Report `json:"report"`
}

func (p *Pipeline) SocialSentiment(ctx context.Context, req SocialRequest) *SocialResponse {
	callCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	window := req.Window
	if window.From.IsZero() && window.To.IsZero() {
		window.To = time.Now().UTC()
		window.From = window.To.Add(-24 * time.Hour)
	}

	report := p.social.Analyze(callCtx, req.Symbol, window, req.Options)

	return &SocialResponse{
		Envelope: newEnvelope(),
		Facts:    socialFacts(report),
		Report:   report,
	}
}

// RecommendRequest runs all three dimensions plus the decision engine.
type RecommendRequest struct {
	Symbol        string                    `json:"asset"`
	Instances     []contracts.ChainInstance `json:"instances"`
	Venues        []liquidity.VenueQuery    `json:"cex,omitempty"`
	TradeSizesUSD []float64                 `json:"trade_sizes_usd,omitempty"`
	Social        social.AnalyzeOptions     `json:"social_options"`
}

type RecommendResponse struct {
	Envelope
	Decision  *decision.Result   `json:"decision"`
	Contracts *ContractResponse  `json:"contracts"`
	Liquidity *LiquidityResponse `json:"liquidity,omitempty"`
	Social    *SocialResponse    `json:"social,omitempty"`
}

// Recommend fans the three dimensions out in parallel and folds the results
// through the decision engine. Liquidity runs against the first instance;
// the contract side covers every instance.
func (p *Pipeline) Recommend(ctx context.Context, req RecommendRequest) *RecommendResponse {
	resp := &RecommendResponse{Envelope: newEnvelope()}

	var wg sync.WaitGroup
	var analyses []*contracts.Analysis

	wg.Add(1)
	go func() {
		defer wg.Done()
		resp.Contracts, analyses = p.contractTruth(ctx, ContractRequest{Instances: req.Instances})
	}()

	if p.liquidity != nil && len(req.Instances) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Liquidity = p.LiquiditySnapshot(ctx, LiquidityRequest{
				Chain:         req.Instances[0].Chain,
				Address:       req.Instances[0].Address,
				Venues:        req.Venues,
				TradeSizesUSD: req.TradeSizesUSD,
			})
		}()
	}

	if p.social != nil && req.Symbol != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp.Social = p.SocialSentiment(ctx, SocialRequest{Symbol: req.Symbol, Options: req.Social})
		}()
	}

	wg.Wait()

	in := decision.Input{Contracts: analyses}
	if resp.Liquidity != nil {
		in.Liquidity = resp.Liquidity.Snapshot
	}
	if resp.Social != nil {
		in.Social = resp.Social.Report
	}
	resp.Decision = p.decider.Recommend(in)

	return resp
}
