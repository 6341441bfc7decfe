package flags

// SeveritySum adds up the table weights of every flag present.
func SeveritySum(fs []Flag) int {
	total := 0
	for _, f := range fs {
		total += f.Severity
	}
	return total
}

// normalizerDivisor scales the severity sum so that roughly six high-weight
// flags saturate the score.
const normalizerDivisor = 50.0

// Score maps a flag set onto a 0-100 risk score. The sum of severities is
// divided by a fixed normalizer and clamped, so stacking flags past the
// saturation point cannot push the score above 100.
func Score(fs []Flag) float64 {
	s := float64(SeveritySum(fs)) / normalizerDivisor * 100.0
	if s > 100.0 {
		return 100.0
	}
	if s < 0 {
		return 0
	}
	return s
}

// RiskLabel buckets a 0-100 risk score for human consumption.
func RiskLabel(score float64) Level {
	switch {
	case score >= 70:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}
