package certainty

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_ProvenRequiresSource(t *testing.T) {
	v := true
	_, err := Classify(&v, Proven, "", "")
	assert.Error(t, err, "PROVEN without a source must be rejected")

	d, err := Classify(&v, Proven, "etherscan", "")
	require.NoError(t, err)
	assert.Equal(t, Proven, d.Certainty)
	assert.Equal(t, "etherscan", d.Source)
}

func TestClassify_UnknownRequiresReason(t *testing.T) {
	_, err := Classify[bool](nil, Unknown, "", "")
	assert.Error(t, err, "UNKNOWN without a reason must be rejected")

	v := false
	_, err = Classify(&v, Unknown, "", "")
	assert.Error(t, err, "UNKNOWN with a value but no reason must be rejected")

	d, err := Classify[bool](nil, Unknown, "", "RPC error")
	require.NoError(t, err)
	assert.True(t, d.IsUnknown())
	assert.Equal(t, "RPC error", d.Reason)
	assert.Nil(t, d.Value)
}

func TestClassify_UnrecognizedCertainty(t *testing.T) {
	v := 1
	_, err := Classify(&v, Certainty("MAYBE"), "src", "")
	assert.Error(t, err)
}

func TestConstructors(t *testing.T) {
	p := ProvenData(42.0, "rpc")
	assert.Equal(t, Proven, p.Certainty)
	assert.Equal(t, 42.0, *p.Value)

	i := InferredData(0.5, "amm model", "constant-product approximation")
	assert.Equal(t, Inferred, i.Certainty)

	u := UnknownData[float64]("provider unavailable")
	assert.True(t, u.IsUnknown())
	assert.Equal(t, 0.0, u.ValueOr(0.0))
	assert.Equal(t, 42.0, p.ValueOr(0.0))
}

func TestNewError_RetryableByCode(t *testing.T) {
	cases := []struct {
		code      ErrorCode
		retryable bool
	}{
		{CodeUpstreamTimeout, true},
		{CodeUpstreamError, true},
		{CodeRateLimited, true},
		{CodeUnsupportedSource, false},
		{CodeUnsupportedChain, false},
		{CodeInvalidAddress, false},
		{CodeMissingAPIKey, false},
		{CodeParseError, false},
		{CodeInternalError, false},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			e := NewError(tc.code, "src", "msg")
			assert.Equal(t, tc.retryable, e.Retryable)
			assert.False(t, e.Timestamp.IsZero())
			assert.Contains(t, e.Error(), string(tc.code))
		})
	}
}
