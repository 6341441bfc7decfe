// Package equivalence infers whether token deployments on different chains
// are the same asset. The conclusion is always INFERRED: capability and flag
// agreement is evidence of sameness, never proof.
package equivalence

import (
	"fmt"
	"math"
	"sort"

	"tokentruth/internal/certainty"
	"tokentruth/internal/contracts"
	"tokentruth/internal/flags"
)

// Label values for a scored pair.
const (
	LabelProvenSameAsset = "proven_same_asset"
	LabelLikelySameAsset = "likely_same_asset"
	LabelUnknown         = "unknown"
)

// Pair is the scored comparison of two chain instances.
type Pair struct {
	Instances  [2]string               `json:"pair"` // "chain:address"
	Confidence certainty.Data[float64] `json:"confidence"`
	Label      string                  `json:"label"`
	Reasons    []string                `json:"reasons"`
}

// Component weights. Capability agreement dominates because mint/pause/
// freeze behavior is what listing policy cares about.
const (
	weightControls       = 0.4
	weightUpgradeability = 0.3
	weightFlags          = 0.3
)

// Infer scores every unordered pair among the instances. Fewer than two
// instances yields nothing to compare.
func Infer(instances []*contracts.Analysis) []Pair {
	if len(instances) < 2 {
		return nil
	}
	pairs := make([]Pair, 0, len(instances)*(len(instances)-1)/2)
	for i := 0; i < len(instances); i++ {
		for j := i + 1; j < len(instances); j++ {
			pairs = append(pairs, Compare(instances[i], instances[j]))
		}
	}
	return pairs
}

// Compare scores one pair. The score is symmetric: Compare(a,b) and
// Compare(b,a) produce the same confidence.
func Compare(a, b *contracts.Analysis) Pair {
	score := 0.0
	var reasons []string

	matches, total := 0, 0
	capability := func(name string, av, bv certainty.Data[bool]) {
		total++
		if av.ValueOr(false) == bv.ValueOr(false) {
			matches++
			return
		}
		reasons = append(reasons, fmt.Sprintf("%s capability differs: %s=%v, %s=%v",
			name, a.Chain, av.ValueOr(false), b.Chain, bv.ValueOr(false)))
	}
	capability("mint", a.CanMint, b.CanMint)
	capability("pause", a.CanPause, b.CanPause)
	capability("freeze", a.CanFreeze, b.CanFreeze)
	score += weightControls * float64(matches) / float64(total)

	if a.IsProxy.ValueOr(false) == b.IsProxy.ValueOr(false) {
		score += weightUpgradeability
	} else {
		reasons = append(reasons, fmt.Sprintf("upgradeability differs: %s=%v, %s=%v",
			a.Chain, a.IsProxy.ValueOr(false), b.Chain, b.IsProxy.ValueOr(false)))
	}

	flagsA, flagsB := flags.IDs(a.Flags), flags.IDs(b.Flags)
	if sameFlagSet(flagsA, flagsB) {
		score += weightFlags
		reasons = append(reasons, fmt.Sprintf("risk profiles match (%d flags)", len(flagsA)))
	} else {
		reasons = append(reasons, "risk profiles differ: "+flagDiff(flagsA, flagsB))
	}

	score = math.Round(score*100) / 100

	return Pair{
		Instances: [2]string{
			a.Chain + ":" + a.Address,
			b.Chain + ":" + b.Address,
		},
		Confidence: certainty.InferredData(score, "capability and flag agreement",
			"sameness inferred from behavioral agreement, not deployment provenance"),
		Label:   labelFor(score),
		Reasons: reasons,
	}
}

func labelFor(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return LabelProvenSameAsset
	case confidence >= 0.5:
		return LabelLikelySameAsset
	default:
		return LabelUnknown
	}
}

func sameFlagSet(a, b map[flags.ID]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}

// flagDiff names the symmetric difference in stable order.
func flagDiff(a, b map[flags.ID]bool) string {
	var diff []string
	for id := range a {
		if !b[id] {
			diff = append(diff, string(id))
		}
	}
	for id := range b {
		if !a[id] {
			diff = append(diff, string(id))
		}
	}
	sort.Strings(diff)
	out := ""
	for i, d := range diff {
		if i > 0 {
			out += ", "
		}
		out += d
	}
	return out
}
