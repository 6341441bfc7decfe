package liquidity

import "tokentruth/internal/flags"

// tradabilityScore maps the snapshot onto [0,1]: a liquidity-tier base, a
// turnover bonus for healthy volume/liquidity, a concentration penalty, and
// a CEX depth bonus.
func tradabilityScore(snap *Snapshot) float64 {
	totalLiq := snap.TotalLiquidityUSD.ValueOr(0)
	totalVol := snap.Volume24hUSD.ValueOr(0)

	score := 0.05
	switch {
	case totalLiq >= 10_000_000:
		score = 0.5
	case totalLiq >= 1_000_000:
		score = 0.35
	case totalLiq >= 500_000:
		score = 0.25
	case totalLiq >= 100_000:
		score = 0.15
	}

	if totalLiq > 0 {
		ratio := totalVol / totalLiq
		switch {
		case ratio >= 0.5 && ratio <= 2.0:
			score += 0.2
		case ratio >= 0.2 && ratio <= 5.0:
			score += 0.1
		}
	}

	highConcentration := 0
	for _, f := range snap.Flags {
		if f.ID == flags.ConcentratedPools && f.Level == flags.LevelHigh {
			highConcentration++
		}
	}
	switch highConcentration {
	case 0:
		score += 0.15
	case 1:
		score += 0.05
	}

	for _, c := range snap.CEX {
		if c.Depth.Within10BpsUSD != nil {
			score += 0.15
			break
		}
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}

func scoreLabel(score float64) flags.Level {
	switch {
	case score >= 0.7:
		return flags.LevelHigh
	case score >= 0.4:
		return flags.LevelMedium
	default:
		return flags.LevelLow
	}
}

// riskScore is the 0-100 input the decision engine consumes. Flag severities
// count double, with adjustments for absolute liquidity and volume. A fully
// unknown snapshot sits at 50.
func riskScore(snap *Snapshot) float64 {
	if snap.TotalLiquidityUSD.IsUnknown() && snap.Volume24hUSD.IsUnknown() {
		return 50
	}

	score := float64(flags.SeveritySum(snap.Flags)) * 2

	if snap.TotalLiquidityUSD.Value != nil {
		liq := *snap.TotalLiquidityUSD.Value
		switch {
		case liq < 50_000:
			score += 30
		case liq < 100_000:
			score += 20
		case liq < 500_000:
			score += 10
		case liq > 5_000_000:
			score -= 10
		}
	}
	if snap.Volume24hUSD.Value != nil {
		vol := *snap.Volume24hUSD.Value
		switch {
		case vol < 10_000:
			score += 15
		case vol < 50_000:
			score += 10
		}
	}

	if score > 100 {
		return 100
	}
	if score < 0 {
		return 0
	}
	return score
}

// CriticalUnknowns counts the facts the decision engine treats as blocking
// when unresolved: total liquidity and 24h volume.
func (s *Snapshot) CriticalUnknowns() int {
	n := 0
	if s.TotalLiquidityUSD.IsUnknown() {
		n++
	}
	if s.Volume24hUSD.IsUnknown() {
		n++
	}
	return n
}
