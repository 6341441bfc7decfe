// Package flags holds the closed risk-flag vocabulary, the severity table,
// and the scoring utility shared by all domain analyzers. Severity weights
// live in one table so the weighting policy can be audited and tested apart
// from the detection logic that emits the flags.
package flags

import (
	"sort"

	"tokentruth/internal/certainty"
)

// ID identifies a risk flag. Vocabulary is per-domain but all flags share
// the same shape.
type ID string

// Contract flags.
const (
	UnverifiedContract    ID = "UNVERIFIED_CONTRACT"
	UpgradeableProxy      ID = "UPGRADEABLE_PROXY"
	ProxyNoTimelock       ID = "PROXY_NO_TIMELOCK"
	Mintable              ID = "MINTABLE"
	Burnable              ID = "BURNABLE"
	Pausable              ID = "PAUSABLE"
	Freezable             ID = "FREEZABLE"
	UpgradeAuthoritySet   ID = "UPGRADE_AUTHORITY_PRESENT"
	OwnershipNotRenounced ID = "OWNERSHIP_NOT_RENOUNCED"
)

// Liquidity flags.
const (
	LowLiquidity      ID = "LOW_LIQUIDITY"
	LowVolume         ID = "LOW_VOLUME"
	HighSlippage      ID = "HIGH_SLIPPAGE"
	ConcentratedPools ID = "CONCENTRATED_POOLS"
	NoCEXSupport      ID = "NO_CEX_SUPPORT"
)

// Social flags.
const (
	NegativeSentiment    ID = "NEGATIVE_SENTIMENT"
	LowAttention         ID = "LOW_ATTENTION"
	CoordinatedNarrative ID = "COORDINATED_NARRATIVE"
	NoSocialData         ID = "NO_SOCIAL_DATA"
)

// severityTable is the single source of truth for flag weights (1-10).
var severityTable = map[ID]int{
	UnverifiedContract:    8,
	UpgradeableProxy:      7,
	ProxyNoTimelock:       7,
	Mintable:              6,
	Burnable:              3,
	Pausable:              7,
	Freezable:             8,
	UpgradeAuthoritySet:   5,
	OwnershipNotRenounced: 5,

	LowLiquidity:      9,
	LowVolume:         7,
	HighSlippage:      8,
	ConcentratedPools: 6,
	NoCEXSupport:      6,

	NegativeSentiment:    6,
	LowAttention:         4,
	CoordinatedNarrative: 5,
	NoSocialData:         3,
}

// SeverityOf looks up the fixed severity weight for a flag. Unknown flags
// weigh zero so a typo cannot silently inflate a score.
func SeverityOf(id ID) int {
	return severityTable[id]
}

// Level buckets a 1-10 severity into the three-step scale used on the wire.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// LevelOf maps a numeric severity to its wire label.
func LevelOf(severity int) Level {
	switch {
	case severity >= 7:
		return LevelHigh
	case severity >= 4:
		return LevelMedium
	default:
		return LevelLow
	}
}

// Flag is one triggered risk condition with its evidence. A flag is only
// emitted after its condition has been verified against already-classified
// facts, never directly against raw provider JSON.
type Flag struct {
	ID        ID                  `json:"id"`
	Severity  int                 `json:"severity"`
	Level     Level               `json:"level"`
	Evidence  string              `json:"evidence"`
	Certainty certainty.Certainty `json:"certainty"`
}

// New builds a flag with its severity looked up from the table.
func New(id ID, evidence string, c certainty.Certainty) Flag {
	sev := SeverityOf(id)
	return Flag{ID: id, Severity: sev, Level: LevelOf(sev), Evidence: evidence, Certainty: c}
}

// IDs returns the set of flag identifiers present in fs.
func IDs(fs []Flag) map[ID]bool {
	set := make(map[ID]bool, len(fs))
	for _, f := range fs {
		set[f.ID] = true
	}
	return set
}

// SortByID orders flags deterministically for stable output.
func SortByID(fs []Flag) {
	sort.Slice(fs, func(i, j int) bool { return fs[i].ID < fs[j].ID })
}
