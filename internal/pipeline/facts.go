package pipeline

import (
	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/liquidity"
	"tokentruth/internal/social"
)

// Fact is one classified value on the wire. Proven facts carry a source,
// inferred facts a source and reason.
type Fact struct {
	Value  interface{} `json:"value"`
	Source string      `json:"source,omitempty"`
	Reason string      `json:"reason,omitempty"`
}

// FactSet keeps proven and inferred facts in separate sections; a fact never
// appears under both. Unknowns carry only the reason they stayed unknown.
type FactSet struct {
	Proven   map[string]Fact   `json:"proven"`
	Inferred map[string]Fact   `json:"inferred"`
	Unknown  map[string]string `json:"unknown"`
}

func newFactSet() FactSet {
	return FactSet{
		Proven:   make(map[string]Fact),
		Inferred: make(map[string]Fact),
		Unknown:  make(map[string]string),
	}
}

func addFact[T any](fs FactSet, name string, d certainty.Data[T]) {
	switch d.Certainty {
	case certainty.Proven:
		var value interface{}
		if d.Value != nil {
			value = *d.Value
		}
		fs.Proven[name] = Fact{Value: value, Source: d.Source}
	case certainty.Inferred:
		var value interface{}
		if d.Value != nil {
			value = *d.Value
		}
		fs.Inferred[name] = Fact{Value: value, Source: d.Source, Reason: d.Reason}
	default:
		fs.Unknown[name] = d.Reason
	}
}

func contractFacts(a *contracts.Analysis) FactSet {
	fs := newFactSet()
	addFact(fs, "verified", a.Verified)
	addFact(fs, "source_available", a.SourceAvailable)
	addFact(fs, "compiler_version", a.CompilerVersion)
	addFact(fs, "is_proxy", a.IsProxy)
	addFact(fs, "proxy_type", a.ProxyType)
	addFact(fs, "implementation", a.Implementation)
	addFact(fs, "upgradeable", a.Upgradeable)
	addFact(fs, "admin_is_contract", a.AdminIsContract)
	addFact(fs, "timelock_detected", a.TimelockDetected)
	addFact(fs, "upgrade_authority", a.UpgradeAuthority)
	addFact(fs, "can_mint", a.CanMint)
	addFact(fs, "can_burn", a.CanBurn)
	addFact(fs, "can_pause", a.CanPause)
	addFact(fs, "can_blacklist_or_freeze", a.CanFreeze)
	addFact(fs, "owner", a.Owner)
	addFact(fs, "ownership_renounced", a.OwnershipRenounced)
	addFact(fs, "total_supply", a.TotalSupply)
	addFact(fs, "decimals", a.Decimals)
	addFact(fs, "runtime_code_hash", a.RuntimeCodeHash)
	return fs
}

func liquidityFacts(s *liquidity.Snapshot) FactSet {
	fs := newFactSet()
	addFact(fs, "total_liquidity_usd", s.TotalLiquidityUSD)
	addFact(fs, "volume_24h_usd", s.Volume24hUSD)
	addFact(fs, "volume_to_liquidity_ratio", s.TurnoverRatio)
	addFact(fs, "pair_count", s.PairCount)
	addFact(fs, "top_pool_share", s.TopPoolShare)
	addFact(fs, "hhi", s.HHI)
	return fs
}

func socialFacts(r *social.Report) FactSet {
	fs := newFactSet()
	addFact(fs, "sentiment", r.Sentiment)
	addFact(fs, "mention_velocity_per_min", r.VelocityPerMin)
	addFact(fs, "zscore_vs_30d", r.ZScore)
	addFact(fs, "unique_authors", r.UniqueAuthors)
	addFact(fs, "narrative_keywords", r.Keywords)
	return fs
}
