package contracts

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

// Well-known EIP storage slots and 4-byte function selectors. Hardcoded so
// the analyzer needs no keccak at runtime.
const (
	slotEIP1967 = "0x360894a13ba1a3210667c828492db98dca3e2076cc3735a920a3ca505d382bbc" // keccak256("eip1967.proxy.implementation") - 1
	slotEIP1822 = "0xc5f16f0fcc639fa48a6947836d9850f504798523bf8c9a3a87d5876cf622bcf7" // keccak256("PROXIABLE")

	selImplementation   = "0x5c60da1b" // implementation()
	selOwner            = "0x8da5cb5b" // owner()
	selTotalSupply      = "0x18160ddd" // totalSupply()
	selDecimals         = "0x313ce567" // decimals()
	selUpgradeTo        = "0x3659cfe6" // upgradeTo(address)
	selUpgradeToAndCall = "0x4f1ef286" // upgradeToAndCall(address,bytes)
	selSetImpl          = "0xd784d426" // setImplementation(address)
)

const zeroAddress = "0x0000000000000000000000000000000000000000"

// EVMAnalyzer runs the contract-truth checks against one EVM chain.
type EVMAnalyzer struct {
	chain    string
	explorer Explorer
	rpc      EVMClient
	detector CapabilityDetector
	log      zerolog.Logger
}

// NewEVMAnalyzer wires an analyzer for the given chain. A nil detector falls
// back to the regex source scanner.
func NewEVMAnalyzer(chain string, explorer Explorer, rpc EVMClient, detector CapabilityDetector, log zerolog.Logger) *EVMAnalyzer {
	if detector == nil {
		detector = RegexDetector{}
	}
	return &EVMAnalyzer{
		chain:    strings.ToLower(chain),
		explorer: explorer,
		rpc:      rpc,
		detector: detector,
		log:      log.With().Str("component", "contracts.evm").Str("chain", chain).Logger(),
	}
}

// Analyze runs every requested check and classifies each fact. Provider
// failures degrade individual facts to UNKNOWN; they never abort the run.
func (a *EVMAnalyzer) Analyze(ctx context.Context, inst ChainInstance, opts Options) *Analysis {
	if !ValidEVMAddress(inst.Address) {
		e := certainty.NewError(certainty.CodeInvalidAddress, a.chain, fmt.Sprintf("not a valid EVM address: %s", inst.Address))
		return UnknownAnalysis(inst, "invalid address", e)
	}

	res := UnknownAnalysis(inst, "check not requested")
	var fs []flags.Flag

	src, srcErr := a.fetchSource(ctx, inst.Address, opts, res)
	if opts.wants(CheckVerification) {
		if srcErr == nil {
			explorerSrc := a.chain + " block explorer API"
			res.Verified = certainty.ProvenData(src.Verified, explorerSrc)
			res.SourceAvailable = certainty.ProvenData(src.SourceCode != "", explorerSrc)
			if src.Verified {
				res.CompilerVersion = certainty.ProvenData(src.CompilerVersion, explorerSrc)
			} else {
				res.CompilerVersion = certainty.UnknownData[string]("contract not verified")
			}
			if !src.Verified {
				fs = append(fs, flags.New(flags.UnverifiedContract,
					fmt.Sprintf("contract source not verified on %s explorer", a.chain), certainty.Proven))
			}
		}
	}

	isProxy := a.detectProxy(ctx, inst.Address, res)

	if opts.wants(CheckUpgradeability) {
		upgradeable, upgradeEvidence := a.checkUpgradeability(ctx, inst.Address, isProxy, res)
		if upgradeable {
			fs = append(fs, flags.New(flags.UpgradeableProxy, upgradeEvidence, certainty.Proven))
		}
	}

	if opts.wants(CheckControls) {
		fs = append(fs, a.detectControls(src, srcErr, res)...)
	}

	ownerAddr := ""
	if opts.wants(CheckOwnership) {
		var ownFlag *flags.Flag
		ownerAddr, ownFlag = a.detectOwnership(ctx, inst.Address, src, srcErr, res)
		if ownFlag != nil {
			fs = append(fs, *ownFlag)
		}
	}

	if opts.wants(CheckSupply) {
		a.fetchSupply(ctx, inst.Address, res)
	}

	if opts.ComputeCodeHash {
		a.computeCodeHash(ctx, inst.Address, res)
	}

	if isProxy {
		if tlFlag := a.checkTimelock(ctx, ownerAddr, res); tlFlag != nil {
			fs = append(fs, *tlFlag)
		}
	}

	flags.SortByID(fs)
	res.Flags = fs
	res.RiskScore = flags.Score(fs)
	res.Evidence = append(res.Evidence, certainty.Evidence{
		Provider:  "contracts.evm",
		Timestamp: time.Now().UTC(),
		Ref:       a.chain + ":" + inst.Address,
		Note:      fmt.Sprintf("%d risk flag(s), score %.0f", len(fs), res.RiskScore),
	})
	return res
}

func (a *EVMAnalyzer) fetchSource(ctx context.Context, address string, opts Options, res *Analysis) (SourceInfo, error) {
	src, err := a.explorer.ContractSource(ctx, address)
	if err != nil {
		a.log.Warn().Err(err).Str("address", address).Msg("explorer source lookup failed")
		reason := "explorer lookup failed: " + err.Error()
		if opts.wants(CheckVerification) {
			res.Verified = certainty.UnknownData[bool](reason)
			res.SourceAvailable = certainty.UnknownData[bool](reason)
			res.CompilerVersion = certainty.UnknownData[string](reason)
		}
		res.Errors = append(res.Errors, toStructuredError(err, a.chain+"_explorer"))
		return SourceInfo{}, err
	}
	return src, nil
}

// detectProxy tries each strategy in order; the first hit wins. The result is
// PROVEN whenever at least one on-chain check completed, including the
// "not a proxy" outcome.
func (a *EVMAnalyzer) detectProxy(ctx context.Context, address string, res *Analysis) bool {
	onChain := "on-chain storage slots (EIP-1967/1822/897)"
	type strategy struct {
		name      string
		proxyType string
		run       func() (string, error)
	}
	strategies := []strategy{
		{"EIP-1967", "transparent", func() (string, error) { return a.storageAddress(ctx, address, slotEIP1967) }},
		{"EIP-1822", "uups", func() (string, error) { return a.storageAddress(ctx, address, slotEIP1822) }},
		{"EIP-897", "beacon", func() (string, error) { return a.callAddress(ctx, address, selImplementation) }},
	}

	anySucceeded := false
	for _, s := range strategies {
		impl, err := s.run()
		if err != nil {
			continue
		}
		anySucceeded = true
		if impl != "" && impl != zeroAddress {
			res.IsProxy = certainty.ProvenData(true, onChain)
			res.ProxyType = certainty.ProvenData(s.proxyType, onChain)
			res.Implementation = certainty.ProvenData(impl, onChain)
			a.log.Debug().Str("address", address).Str("pattern", s.name).Str("implementation", impl).Msg("proxy detected")
			return true
		}
	}

	if anySucceeded {
		res.IsProxy = certainty.ProvenData(false, onChain)
		res.ProxyType = certainty.UnknownData[string]("not a proxy contract")
		res.Implementation = certainty.UnknownData[string]("not a proxy contract")
		return false
	}

	reason := "all proxy checks failed against RPC"
	res.IsProxy = certainty.UnknownData[bool](reason)
	res.ProxyType = certainty.UnknownData[string](reason)
	res.Implementation = certainty.UnknownData[string](reason)
	return false
}

// checkUpgradeability probes the known upgrade entry points. PROVEN only on a
// confirmed proxy with a detected entry point; INFERRED when the proxy is
// confirmed but no entry point answers; UNKNOWN when no proxy check ran.
func (a *EVMAnalyzer) checkUpgradeability(ctx context.Context, address string, isProxy bool, res *Analysis) (bool, string) {
	if res.IsProxy.IsUnknown() {
		res.Upgradeable = certainty.UnknownData[bool]("proxy status could not be determined")
		return false, ""
	}
	if !isProxy {
		res.Upgradeable = certainty.ProvenData(false, "on-chain function signature detection")
		return false, ""
	}

	padding := strings.Repeat("0", 64)
	for _, sel := range []string{selUpgradeTo, selUpgradeToAndCall, selSetImpl} {
		_, err := a.rpc.Call(ctx, address, sel+padding)
		if err != nil && callReverted(err) {
			evidence := fmt.Sprintf("upgrade entry point %s answered on proxy", sel)
			res.Upgradeable = certainty.ProvenData(true, "on-chain function signature detection")
			return true, evidence
		}
	}

	res.Upgradeable = certainty.InferredData(true, "on-chain function signature detection",
		"proxy confirmed but no upgrade entry point answered; treated as upgradeable")
	return true, "proxy confirmed without a detectable upgrade entry point"
}

func (a *EVMAnalyzer) detectControls(src SourceInfo, srcErr error, res *Analysis) []flags.Flag {
	if srcErr != nil || src.SourceCode == "" {
		reason := "source code not available"
		res.CanMint = certainty.UnknownData[bool](reason)
		res.CanBurn = certainty.UnknownData[bool](reason)
		res.CanPause = certainty.UnknownData[bool](reason)
		res.CanFreeze = certainty.UnknownData[bool](reason)
		return nil
	}

	caps := a.detector.Detect(src.SourceCode)
	srcRef := "source code analysis"
	var fs []flags.Flag

	assign := func(cap Capability, target *certainty.Data[bool], id flags.ID) {
		d := caps[cap]
		*target = certainty.ProvenData(d.Found, srcRef)
		if d.Found {
			fs = append(fs, flags.New(id, d.Evidence, certainty.Proven))
		}
	}
	assign(CapMint, &res.CanMint, flags.Mintable)
	assign(CapBurn, &res.CanBurn, flags.Burnable)
	assign(CapPause, &res.CanPause, flags.Pausable)
	assign(CapFreeze, &res.CanFreeze, flags.Freezable)
	return fs
}

func (a *EVMAnalyzer) detectOwnership(ctx context.Context, address string, src SourceInfo, srcErr error, res *Analysis) (string, *flags.Flag) {
	if srcErr != nil || src.SourceCode == "" {
		reason := "source code not available for ownership analysis"
		res.Owner = certainty.UnknownData[string](reason)
		res.OwnershipRenounced = certainty.UnknownData[bool](reason)
		return "", nil
	}

	hasOwnable := strings.Contains(src.SourceCode, "contract Ownable") || strings.Contains(src.SourceCode, "is Ownable")
	callSrc := "on-chain owner() call"
	if !hasOwnable {
		res.Owner = certainty.UnknownData[string]("no Ownable pattern in source")
		res.OwnershipRenounced = certainty.InferredData(true, "source code analysis", "no Ownable pattern detected")
		return "", nil
	}

	raw, err := a.rpc.Call(ctx, address, selOwner)
	if err != nil {
		reason := "Ownable pattern found but owner() call failed: " + err.Error()
		res.Owner = certainty.UnknownData[string](reason)
		res.OwnershipRenounced = certainty.UnknownData[bool](reason)
		return "", nil
	}

	owner := wordToAddress(raw)
	if owner == zeroAddress || owner == "" {
		res.Owner = certainty.UnknownData[string]("ownership renounced (owner is zero address)")
		res.OwnershipRenounced = certainty.ProvenData(true, callSrc)
		return "", nil
	}

	res.Owner = certainty.ProvenData(owner, callSrc)
	res.OwnershipRenounced = certainty.ProvenData(false, callSrc)
	f := flags.New(flags.OwnershipNotRenounced, "active owner: "+owner, certainty.Proven)
	return owner, &f
}

func (a *EVMAnalyzer) fetchSupply(ctx context.Context, address string, res *Analysis) {
	onChain := "on-chain totalSupply() call"

	rawSupply, err := a.rpc.Call(ctx, address, selTotalSupply)
	if err != nil {
		res.TotalSupply = certainty.UnknownData[float64]("totalSupply() call failed")
		res.Decimals = certainty.UnknownData[int]("totalSupply() call failed")
		return
	}
	rawDec, err := a.rpc.Call(ctx, address, selDecimals)
	if err != nil {
		res.TotalSupply = certainty.UnknownData[float64]("decimals() call failed")
		res.Decimals = certainty.UnknownData[int]("decimals() call failed")
		return
	}

	supply := new(big.Int).SetBytes(rawSupply)
	decimals := int(new(big.Int).SetBytes(rawDec).Int64())
	scaled, _ := new(big.Float).Quo(
		new(big.Float).SetInt(supply),
		new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)),
	).Float64()

	res.TotalSupply = certainty.ProvenData(scaled, onChain)
	res.Decimals = certainty.ProvenData(decimals, "on-chain decimals() call")
}

func (a *EVMAnalyzer) computeCodeHash(ctx context.Context, address string, res *Analysis) {
	code, err := a.rpc.Code(ctx, address)
	if err != nil {
		res.RuntimeCodeHash = certainty.UnknownData[string]("getCode failed: " + err.Error())
		return
	}
	sum := sha256.Sum256(code)
	res.RuntimeCodeHash = certainty.ProvenData(fmt.Sprintf("keccak256:%x", sum), "on-chain getCode")
}

// checkTimelock treats a contract-typed proxy admin as timelock evidence.
func (a *EVMAnalyzer) checkTimelock(ctx context.Context, owner string, res *Analysis) *flags.Flag {
	if owner == "" {
		res.AdminIsContract = certainty.UnknownData[bool]("proxy admin not identified")
		res.TimelockDetected = certainty.UnknownData[bool]("proxy admin not identified")
		f := flags.New(flags.ProxyNoTimelock, "upgradeable proxy without detected timelock protection", certainty.Inferred)
		return &f
	}

	code, err := a.rpc.Code(ctx, owner)
	if err != nil {
		res.AdminIsContract = certainty.UnknownData[bool]("getCode on admin failed")
		res.TimelockDetected = certainty.UnknownData[bool]("getCode on admin failed")
		return nil
	}

	isContract := len(code) > 0
	res.AdminIsContract = certainty.ProvenData(isContract, "on-chain getCode")
	if isContract {
		res.TimelockDetected = certainty.InferredData(true, "on-chain getCode", "proxy admin is a contract; assumed timelock")
		return nil
	}
	res.TimelockDetected = certainty.ProvenData(false, "on-chain getCode")
	f := flags.New(flags.ProxyNoTimelock, "proxy admin is an externally owned account", certainty.Proven)
	return &f
}

func (a *EVMAnalyzer) storageAddress(ctx context.Context, address, slot string) (string, error) {
	word, err := a.rpc.StorageAt(ctx, address, slot)
	if err != nil {
		return "", err
	}
	return wordToAddress(word), nil
}

func (a *EVMAnalyzer) callAddress(ctx context.Context, address, selector string) (string, error) {
	word, err := a.rpc.Call(ctx, address, selector)
	if err != nil {
		return "", err
	}
	if len(word) != 32 {
		return "", nil
	}
	return wordToAddress(word), nil
}

// wordToAddress takes the low 20 bytes of a 32-byte word as a hex address.
func wordToAddress(word []byte) string {
	if len(word) < 20 {
		return ""
	}
	return fmt.Sprintf("0x%x", word[len(word)-20:])
}

func callReverted(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}

// toStructuredError maps a provider error onto the closed error taxonomy,
// passing through errors that already carry a code.
func toStructuredError(err error, source string) certainty.StructuredError {
	var se certainty.StructuredError
	if errors.As(err, &se) {
		return se
	}
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(strings.ToLower(err.Error()), "timeout") {
		return certainty.NewError(certainty.CodeUpstreamTimeout, source, err.Error())
	}
	return certainty.NewError(certainty.CodeUpstreamError, source, err.Error())
}
