package flags

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tokentruth/internal/certainty"
)

func TestSeverityOf_KnownAndUnknown(t *testing.T) {
	assert.Equal(t, 8, SeverityOf(UnverifiedContract))
	assert.Equal(t, 9, SeverityOf(LowLiquidity))
	assert.Equal(t, 3, SeverityOf(NoSocialData))
	assert.Equal(t, 0, SeverityOf(ID("NOT_A_FLAG")))
}

func TestLevelOf(t *testing.T) {
	tests := []struct {
		severity int
		want     Level
	}{
		{9, LevelHigh},
		{7, LevelHigh},
		{6, LevelMedium},
		{4, LevelMedium},
		{3, LevelLow},
		{1, LevelLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LevelOf(tt.severity), "severity %d", tt.severity)
	}
}

func TestNew_FillsSeverityAndLevel(t *testing.T) {
	f := New(Freezable, "freeze authority set", certainty.Proven)
	assert.Equal(t, Freezable, f.ID)
	assert.Equal(t, 8, f.Severity)
	assert.Equal(t, LevelHigh, f.Level)
	assert.Equal(t, certainty.Proven, f.Certainty)
}

func TestScore_SingleSeverityEight(t *testing.T) {
	fs := []Flag{New(UnverifiedContract, "no verified source", certainty.Proven)}
	assert.InDelta(t, 16.0, Score(fs), 1e-9)
}

func TestScore_ClampsAtHundred(t *testing.T) {
	fs := []Flag{
		New(UnverifiedContract, "", certainty.Proven),
		New(Freezable, "", certainty.Proven),
		New(LowLiquidity, "", certainty.Proven),
		New(HighSlippage, "", certainty.Inferred),
		New(Pausable, "", certainty.Proven),
		New(UpgradeableProxy, "", certainty.Proven),
		New(Mintable, "", certainty.Proven),
	}
	assert.Greater(t, SeveritySum(fs), 50)
	assert.Equal(t, 100.0, Score(fs))
}

func TestScore_EmptyIsZero(t *testing.T) {
	assert.Equal(t, 0.0, Score(nil))
}

func TestRiskLabel(t *testing.T) {
	assert.Equal(t, LevelHigh, RiskLabel(70))
	assert.Equal(t, LevelMedium, RiskLabel(40))
	assert.Equal(t, LevelMedium, RiskLabel(69.9))
	assert.Equal(t, LevelLow, RiskLabel(39.9))
}

func TestIDsAndSort(t *testing.T) {
	fs := []Flag{
		New(Mintable, "", certainty.Proven),
		New(Burnable, "", certainty.Proven),
	}
	set := IDs(fs)
	assert.True(t, set[Mintable])
	assert.True(t, set[Burnable])
	assert.False(t, set[Pausable])

	SortByID(fs)
	assert.Equal(t, Burnable, fs[0].ID)
	assert.Equal(t, Mintable, fs[1].ID)
}
