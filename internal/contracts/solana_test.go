package contracts

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tokentruth/internal/certainty"
	"tokentruth/internal/flags"
)

type fakeSolana struct {
	accounts map[string]*SolanaAccount
	err      error
}

func (f fakeSolana) AccountInfo(_ context.Context, address string) (*SolanaAccount, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[address], nil
}

// buildMint serializes a valid 82-byte SPL mint account.
func buildMint(mintAuth, freezeAuth []byte, supply uint64, decimals uint8) []byte {
	data := make([]byte, splMintLen)
	if mintAuth != nil {
		binary.LittleEndian.PutUint32(data[0:4], 1)
		copy(data[4:36], mintAuth)
	}
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1 // initialized
	if freezeAuth != nil {
		binary.LittleEndian.PutUint32(data[46:50], 1)
		copy(data[50:82], freezeAuth)
	}
	return data
}

const mintAddr = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"

func solanaAccounts(mint []byte, loader string) map[string]*SolanaAccount {
	return map[string]*SolanaAccount{
		mintAddr:       {Owner: tokenProgramID, Data: mint},
		tokenProgramID: {Owner: loader},
	}
}

func TestDecodeSPLMint_FullLayout(t *testing.T) {
	auth := make([]byte, 32)
	auth[0] = 0xab
	freeze := make([]byte, 32)
	freeze[0] = 0xcd

	m, err := decodeSPLMint(buildMint(auth, freeze, 123_456, 6))
	require.NoError(t, err)
	assert.NotEmpty(t, m.MintAuthority)
	assert.NotEmpty(t, m.FreezeAuthority)
	assert.NotEqual(t, m.MintAuthority, m.FreezeAuthority)
	assert.Equal(t, uint64(123_456), m.Supply)
	assert.Equal(t, uint8(6), m.Decimals)
	assert.True(t, m.Initialized)
}

func TestDecodeSPLMint_RenouncedAuthorities(t *testing.T) {
	m, err := decodeSPLMint(buildMint(nil, nil, 1, 0))
	require.NoError(t, err)
	assert.Empty(t, m.MintAuthority)
	assert.Empty(t, m.FreezeAuthority)
}

func TestDecodeSPLMint_ShortDataFails(t *testing.T) {
	_, err := decodeSPLMint(make([]byte, 40))
	assert.Error(t, err)
}

func TestSolanaAnalyze_AuthoritiesMapToCapabilities(t *testing.T) {
	auth := make([]byte, 32)
	auth[0] = 1
	mint := buildMint(auth, auth, 1_000_000, 6)
	a := NewSolanaAnalyzer(fakeSolana{accounts: solanaAccounts(mint, loaderNonUpgradeable)}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	assert.True(t, *res.CanMint.Value)
	assert.True(t, *res.CanFreeze.Value)
	assert.True(t, *res.CanBurn.Value, "SPL tokens are always burnable")
	assert.Equal(t, certainty.Proven, res.CanBurn.Certainty)
	assert.False(t, *res.CanPause.Value)
	assert.InDelta(t, 1.0, *res.TotalSupply.Value, 1e-9)

	ids := flags.IDs(res.Flags)
	assert.True(t, ids[flags.Mintable])
	assert.True(t, ids[flags.Freezable])
	assert.False(t, ids[flags.UpgradeAuthoritySet])
}

func TestSolanaAnalyze_RenouncedMintIsClean(t *testing.T) {
	mint := buildMint(nil, nil, 500, 2)
	a := NewSolanaAnalyzer(fakeSolana{accounts: solanaAccounts(mint, loaderNonUpgradeable)}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	assert.False(t, *res.CanMint.Value)
	assert.True(t, *res.OwnershipRenounced.Value)
	assert.Empty(t, res.Flags)
	assert.Equal(t, 0.0, res.RiskScore)
}

func TestSolanaAnalyze_UpgradeableLoaderFlagged(t *testing.T) {
	mint := buildMint(nil, nil, 500, 2)
	a := NewSolanaAnalyzer(fakeSolana{accounts: solanaAccounts(mint, loaderUpgradeable)}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	require.NotNil(t, res.Upgradeable.Value)
	assert.True(t, *res.Upgradeable.Value)
	assert.True(t, flags.IDs(res.Flags)[flags.UpgradeAuthoritySet])
}

func TestSolanaAnalyze_RPCErrorIsAllUnknown(t *testing.T) {
	a := NewSolanaAnalyzer(fakeSolana{err: errors.New("rpc timeout")}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	assert.True(t, res.CanMint.IsUnknown())
	require.Len(t, res.Errors, 1)
	assert.Equal(t, certainty.CodeUpstreamTimeout, res.Errors[0].Code)
	assert.True(t, res.Errors[0].Retryable)
}

func TestSolanaAnalyze_MissingAccount(t *testing.T) {
	a := NewSolanaAnalyzer(fakeSolana{accounts: map[string]*SolanaAccount{}}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, certainty.CodeInvalidAddress, res.Errors[0].Code)
	assert.False(t, res.Errors[0].Retryable)
}

func TestSolanaAnalyze_MalformedMintData(t *testing.T) {
	accounts := map[string]*SolanaAccount{mintAddr: {Owner: tokenProgramID, Data: []byte{1, 2, 3}}}
	a := NewSolanaAnalyzer(fakeSolana{accounts: accounts}, zerolog.Nop())

	res := a.Analyze(context.Background(), ChainInstance{Chain: "solana", Address: mintAddr}, Options{})

	require.Len(t, res.Errors, 1)
	assert.Equal(t, certainty.CodeParseError, res.Errors[0].Code)
}
