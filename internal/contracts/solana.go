package contracts

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/mr-tron/base58"
	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

// BPF loader program IDs. The loader that owns a program account decides
// whether the program can ever be upgraded.
const (
	loaderUpgradeable    = "BPFLoaderUpgradeab1e11111111111111111111111"
	loaderNonUpgradeable = "BPFLoader2111111111111111111111111111111111"
)

// splMintLen is the fixed serialized size of an SPL token mint account.
const splMintLen = 82

// splMint is the decoded mint account layout:
//
//	[0:4]   mint_authority_option (u32 LE, 0 or 1)
//	[4:36]  mint_authority pubkey
//	[36:44] supply (u64 LE)
//	[44]    decimals
//	[45]    is_initialized
//	[46:50] freeze_authority_option (u32 LE)
//	[50:82] freeze_authority pubkey
type splMint struct {
	MintAuthority   string // empty when the option flag is 0
	FreezeAuthority string
	Supply          uint64
	Decimals        uint8
	Initialized     bool
}

func decodeSPLMint(data []byte) (splMint, error) {
	if len(data) < splMintLen {
		return splMint{}, fmt.Errorf("mint account data too short: %d bytes", len(data))
	}
	var m splMint
	if binary.LittleEndian.Uint32(data[0:4]) == 1 {
		m.MintAuthority = base58.Encode(data[4:36])
	}
	m.Supply = binary.LittleEndian.Uint64(data[36:44])
	m.Decimals = data[44]
	m.Initialized = data[45] == 1
	if binary.LittleEndian.Uint32(data[46:50]) == 1 {
		m.FreezeAuthority = base58.Encode(data[50:82])
	}
	return m, nil
}

// SolanaAnalyzer runs the contract-truth checks for SPL tokens.
type SolanaAnalyzer struct {
	rpc SolanaRPC
	log zerolog.Logger
}

func NewSolanaAnalyzer(rpc SolanaRPC, log zerolog.Logger) *SolanaAnalyzer {
	return &SolanaAnalyzer{rpc: rpc, log: log.With().Str("component", "contracts.solana").Logger()}
}

// Analyze decodes the mint account for inst.Address and maps its authorities
// onto the shared capability model. SPL tokens are always burnable by their
// holders, so can_burn is PROVEN true whenever the mint decodes.
func (a *SolanaAnalyzer) Analyze(ctx context.Context, inst ChainInstance, opts Options) *Analysis {
	const source = "solana_rpc"

	acct, err := a.rpc.AccountInfo(ctx, inst.Address)
	if err != nil {
		a.log.Warn().Err(err).Str("address", inst.Address).Msg("getAccountInfo failed")
		return UnknownAnalysis(inst, "Solana RPC unavailable", toStructuredError(err, source))
	}
	if acct == nil {
		e := certainty.NewError(certainty.CodeInvalidAddress, source, "account not found on Solana")
		return UnknownAnalysis(inst, "account not found on Solana", e)
	}

	mint, err := decodeSPLMint(acct.Data)
	if err != nil {
		e := certainty.NewError(certainty.CodeParseError, source, err.Error())
		return UnknownAnalysis(inst, "invalid SPL token mint data", e)
	}

	res := UnknownAnalysis(inst, "not applicable to SPL tokens")
	var fs []flags.Flag

	mintLayout := "SPL mint account layout"
	res.Verified = certainty.ProvenData(true, mintLayout) // a decodable mint follows the standard program
	res.SourceAvailable = certainty.ProvenData(false, mintLayout)
	res.IsProxy = certainty.ProvenData(false, mintLayout)

	res.CanMint = certainty.ProvenData(mint.MintAuthority != "", mintLayout)
	res.CanBurn = certainty.ProvenData(true, mintLayout)
	res.CanPause = certainty.ProvenData(false, mintLayout)
	res.CanFreeze = certainty.ProvenData(mint.FreezeAuthority != "", mintLayout)

	if mint.MintAuthority != "" {
		res.Owner = certainty.ProvenData(mint.MintAuthority, mintLayout)
		res.OwnershipRenounced = certainty.ProvenData(false, mintLayout)
		fs = append(fs, flags.New(flags.Mintable, "mint authority is set", certainty.Proven))
	} else {
		res.Owner = certainty.UnknownData[string]("mint authority renounced")
		res.OwnershipRenounced = certainty.ProvenData(true, mintLayout)
	}
	if mint.FreezeAuthority != "" {
		fs = append(fs, flags.New(flags.Freezable, "freeze authority is set", certainty.Proven))
	}

	res.Decimals = certainty.ProvenData(int(mint.Decimals), mintLayout)
	res.TotalSupply = certainty.ProvenData(
		float64(mint.Supply)/math.Pow10(int(mint.Decimals)), mintLayout)

	a.checkProgramUpgradeable(ctx, inst, res, &fs)

	flags.SortByID(fs)
	res.Flags = fs
	res.RiskScore = flags.Score(fs)
	res.Evidence = append(res.Evidence, certainty.Evidence{
		Provider:  "contracts.solana",
		Timestamp: time.Now().UTC(),
		Ref:       "solana:" + inst.Address,
		Note:      fmt.Sprintf("%d risk flag(s), score %.0f", len(fs), res.RiskScore),
	})
	return res
}

// checkProgramUpgradeable inspects the loader that owns the token program
// account. Owned by the upgradeable loader means the program code can change
// under the holder.
func (a *SolanaAnalyzer) checkProgramUpgradeable(ctx context.Context, inst ChainInstance, res *Analysis, fs *[]flags.Flag) {
	owningProgram := inst.TokenType
	if owningProgram != "" && owningProgram != "spl" {
		res.Upgradeable = certainty.UnknownData[bool]("unsupported token type: " + owningProgram)
		return
	}

	acct, err := a.rpc.AccountInfo(ctx, tokenProgramID)
	if err != nil {
		res.Upgradeable = certainty.UnknownData[bool]("loader check failed: " + err.Error())
		res.UpgradeAuthority = certainty.UnknownData[string]("loader check failed")
		return
	}
	if acct == nil {
		res.Upgradeable = certainty.UnknownData[bool]("token program account not found")
		res.UpgradeAuthority = certainty.UnknownData[string]("token program account not found")
		return
	}

	loaderSrc := "BPF loader owner check"
	switch acct.Owner {
	case loaderUpgradeable:
		res.Upgradeable = certainty.ProvenData(true, loaderSrc)
		res.UpgradeAuthority = certainty.InferredData("", loaderSrc,
			"upgradeable loader confirmed; authority requires the ProgramData account")
		*fs = append(*fs, flags.New(flags.UpgradeAuthoritySet, "program owned by the upgradeable BPF loader", certainty.Proven))
	case loaderNonUpgradeable:
		res.Upgradeable = certainty.ProvenData(false, loaderSrc)
		res.UpgradeAuthority = certainty.UnknownData[string]("program is not upgradeable")
	default:
		res.Upgradeable = certainty.UnknownData[bool]("unknown program loader: " + acct.Owner)
		res.UpgradeAuthority = certainty.UnknownData[string]("unknown program loader")
	}
}

// tokenProgramID is the canonical SPL token program.
const tokenProgramID = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
