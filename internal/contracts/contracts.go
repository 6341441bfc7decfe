// Package contracts answers "what can this token contract actually do" for
// EVM chains and Solana SPL mints. Every derived fact is classified by
// certainty before any flag or score is computed from it.
package contracts

import (
	"context"
	"regexp"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

// ChainInstance names one deployment of a token.
type ChainInstance struct {
	Chain     string `json:"chain"`      // eth, bsc, polygon, arbitrum, solana, ...
	Address   string `json:"address"`    // contract address or SPL mint
	TokenType string `json:"token_type"` // erc20, spl, ...
}

// Options selects which checks to run.
type Options struct {
	Checks          []string `json:"checks,omitempty"` // empty = all checks
	ComputeCodeHash bool     `json:"compute_code_hash"`
}

// Check names accepted in Options.Checks.
const (
	CheckVerification   = "verification"
	CheckUpgradeability = "upgradeability"
	CheckControls       = "controls"
	CheckOwnership      = "ownership"
	CheckSupply         = "supply"
)

func (o Options) wants(check string) bool {
	if len(o.Checks) == 0 {
		return true
	}
	for _, c := range o.Checks {
		if c == check {
			return true
		}
	}
	return false
}

// SourceInfo is what a block explorer reports about a contract.
type SourceInfo struct {
	Verified        bool   // source verified on the explorer
	SourceCode      string // empty when unavailable
	CompilerVersion string
	ABIAvailable    bool
}

// Explorer fetches verification status and source code.
type Explorer interface {
	ContractSource(ctx context.Context, address string) (SourceInfo, error)
}

// EVMClient is the minimal RPC surface the analyzer needs.
type EVMClient interface {
	// StorageAt reads one 32-byte storage word. slot is a 0x-prefixed hex key.
	StorageAt(ctx context.Context, address, slot string) ([]byte, error)
	// Call performs eth_call with data as 0x-prefixed calldata.
	Call(ctx context.Context, to, data string) ([]byte, error)
	// Code returns the runtime bytecode at address.
	Code(ctx context.Context, address string) ([]byte, error)
}

// SolanaAccount is a decoded getAccountInfo result.
type SolanaAccount struct {
	Owner string // owning program
	Data  []byte // raw account data
}

// SolanaRPC is the minimal RPC surface for SPL analysis.
type SolanaRPC interface {
	AccountInfo(ctx context.Context, address string) (*SolanaAccount, error)
}

// Analysis is the per-instance result. Facts are carried as classified data;
// flags and the score are derived from the classified facts only.
type Analysis struct {
	Chain     string `json:"chain"`
	Address   string `json:"address"`
	TokenType string `json:"token_type,omitempty"`

	Verified        certainty.Data[bool]   `json:"verified"`
	SourceAvailable certainty.Data[bool]   `json:"source_available"`
	CompilerVersion certainty.Data[string] `json:"compiler_version"`

	IsProxy          certainty.Data[bool]   `json:"is_proxy"`
	ProxyType        certainty.Data[string] `json:"proxy_type"`
	Implementation   certainty.Data[string] `json:"implementation"`
	Upgradeable      certainty.Data[bool]   `json:"upgradeable"`
	AdminIsContract  certainty.Data[bool]   `json:"admin_is_contract"`
	TimelockDetected certainty.Data[bool]   `json:"timelock_detected"`
	UpgradeAuthority certainty.Data[string] `json:"upgrade_authority"`

	CanMint   certainty.Data[bool] `json:"can_mint"`
	CanBurn   certainty.Data[bool] `json:"can_burn"`
	CanPause  certainty.Data[bool] `json:"can_pause"`
	CanFreeze certainty.Data[bool] `json:"can_blacklist_or_freeze"`

	Owner              certainty.Data[string]  `json:"owner"`
	OwnershipRenounced certainty.Data[bool]    `json:"ownership_renounced"`
	TotalSupply        certainty.Data[float64] `json:"total_supply"`
	Decimals           certainty.Data[int]     `json:"decimals"`
	RuntimeCodeHash    certainty.Data[string]  `json:"runtime_code_hash"`

	Flags     []flags.Flag                `json:"risk_flags"`
	RiskScore float64                     `json:"contract_risk_score"`
	Evidence  []certainty.Evidence        `json:"evidence,omitempty"`
	Errors    []certainty.StructuredError `json:"errors,omitempty"`
}

// CriticalUnknowns counts unresolved facts the decision engine treats as
// blocking: verification, upgradeability, and mint capability.
func (a *Analysis) CriticalUnknowns() int {
	n := 0
	for _, d := range []bool{a.Verified.IsUnknown(), a.Upgradeable.IsUnknown(), a.CanMint.IsUnknown()} {
		if d {
			n++
		}
	}
	return n
}

var evmAddressRe = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidEVMAddress reports whether s looks like a 20-byte hex address.
func ValidEVMAddress(s string) bool {
	return evmAddressRe.MatchString(s)
}

// UnknownAnalysis builds an all-unknown placeholder for an instance whose
// analysis could not run at all. The pipeline keeps going with it.
func UnknownAnalysis(inst ChainInstance, reason string, errs ...certainty.StructuredError) *Analysis {
	a := &Analysis{Chain: inst.Chain, Address: inst.Address, TokenType: inst.TokenType, Errors: errs}
	a.Verified = certainty.UnknownData[bool](reason)
	a.SourceAvailable = certainty.UnknownData[bool](reason)
	a.CompilerVersion = certainty.UnknownData[string](reason)
	a.IsProxy = certainty.UnknownData[bool](reason)
	a.ProxyType = certainty.UnknownData[string](reason)
	a.Implementation = certainty.UnknownData[string](reason)
	a.Upgradeable = certainty.UnknownData[bool](reason)
	a.AdminIsContract = certainty.UnknownData[bool](reason)
	a.TimelockDetected = certainty.UnknownData[bool](reason)
	a.UpgradeAuthority = certainty.UnknownData[string](reason)
	a.CanMint = certainty.UnknownData[bool](reason)
	a.CanBurn = certainty.UnknownData[bool](reason)
	a.CanPause = certainty.UnknownData[bool](reason)
	a.CanFreeze = certainty.UnknownData[bool](reason)
	a.Owner = certainty.UnknownData[string](reason)
	a.OwnershipRenounced = certainty.UnknownData[bool](reason)
	a.TotalSupply = certainty.UnknownData[float64](reason)
	a.Decimals = certainty.UnknownData[int](reason)
	a.RuntimeCodeHash = certainty.UnknownData[string](reason)
	return a
}
