package contracts

import "regexp"

// Capability names an admin power a token contract may carry.
type Capability string

const (
	CapMint   Capability = "mint"
	CapBurn   Capability = "burn"
	CapPause  Capability = "pause"
	CapFreeze Capability = "freeze"
)

// Detection is one capability verdict with its supporting evidence string.
type Detection struct {
	Found    bool
	Evidence string
}

// CapabilityDetector scans verified source code for admin capabilities.
// Pluggable so a bytecode- or ABI-based detector can replace the default.
type CapabilityDetector interface {
	Detect(sourceCode string) map[Capability]Detection
}

// RegexDetector is the default detector. It pattern-matches function
// declarations and known modifiers in Solidity source.
type RegexDetector struct{}

var capabilityPatterns = map[Capability]struct {
	patterns []*regexp.Regexp
	found    string
	missing  string
}{
	CapMint: {
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfunction\s+mint\s*\(`),
			regexp.MustCompile(`(?i)\bfunction\s+_mint\s*\(`),
		},
		found:   "mint() function found in source",
		missing: "no mint function detected",
	},
	CapBurn: {
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfunction\s+burn\s*\(`),
			regexp.MustCompile(`(?i)\bfunction\s+_burn\s*\(`),
			regexp.MustCompile(`(?i)\bfunction\s+burnFrom\s*\(`),
		},
		found:   "burn() function found in source",
		missing: "no burn function detected",
	},
	CapPause: {
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfunction\s+pause\s*\(`),
			regexp.MustCompile(`(?i)\bwhenNotPaused\b`),
		},
		found:   "pause mechanism found in source",
		missing: "no pause mechanism detected",
	},
	CapFreeze: {
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)\bfunction\s+freeze\s*\(`),
			regexp.MustCompile(`(?i)\bfunction\s+blacklist\s*\(`),
			regexp.MustCompile(`(?i)\bfreeze\w*Account\b`),
		},
		found:   "freeze/blacklist function found in source",
		missing: "no freeze mechanism detected",
	},
}

func (RegexDetector) Detect(sourceCode string) map[Capability]Detection {
	out := make(map[Capability]Detection, len(capabilityPatterns))
	for c, spec := range capabilityPatterns {
		found := false
		for _, re := range spec.patterns {
			if re.MatchString(sourceCode) {
				found = true
				break
			}
		}
		d := Detection{Found: found, Evidence: spec.missing}
		if found {
			d.Evidence = spec.found
		}
		out[c] = d
	}
	return out
}
