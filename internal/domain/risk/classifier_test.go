package risk

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupredict/risk-monitor/internal/domain/shared"
)

func defaultClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(DefaultThresholds())
	require.NoError(t, err)
	return c
}

func TestClassify_CombinedDeficitIsHigh(t *testing.T) {
	c := defaultClassifier(t)

	tier, score, err := c.Classify(Metrics{AttendancePercentage: 60, SGPA: 5.5, RawRiskScore: 50})
	require.NoError(t, err)

	assert.Equal(t, TierHigh, tier)
	assert.Equal(t, 0.5, score)
}

func TestClassify_ScoreThresholdIsHigh(t *testing.T) {
	c := defaultClassifier(t)

	tier, score, err := c.Classify(Metrics{AttendancePercentage: 90, SGPA: 8.0, RawRiskScore: 85})
	require.NoError(t, err)

	assert.Equal(t, TierHigh, tier)
	assert.Equal(t, 0.85, score)
}

func TestClassify_Table(t *testing.T) {
	c := defaultClassifier(t)

	tests := []struct {
		name string
		m    Metrics
		want Tier
	}{
		{"healthy", Metrics{AttendancePercentage: 95, SGPA: 8.5, RawRiskScore: 10}, TierLow},
		{"only attendance low", Metrics{AttendancePercentage: 70, SGPA: 7.0, RawRiskScore: 10}, TierMedium},
		{"only sgpa low", Metrics{AttendancePercentage: 80, SGPA: 5.9, RawRiskScore: 10}, TierMedium},
		{"score at band floor", Metrics{AttendancePercentage: 90, SGPA: 8, RawRiskScore: 50}, TierMedium},
		{"score just below band", Metrics{AttendancePercentage: 90, SGPA: 8, RawRiskScore: 49.9}, TierLow},
		{"score exactly high", Metrics{AttendancePercentage: 90, SGPA: 8, RawRiskScore: 70}, TierHigh},
		{"attendance at threshold is not low", Metrics{AttendancePercentage: 75, SGPA: 5.0, RawRiskScore: 0}, TierMedium},
		{"both at threshold", Metrics{AttendancePercentage: 75, SGPA: 6.0, RawRiskScore: 0}, TierLow},
		{"bounds accepted", Metrics{AttendancePercentage: 0, SGPA: 0, RawRiskScore: 100}, TierHigh},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tier, _, err := c.Classify(tt.m)
			require.NoError(t, err)
			assert.Equal(t, tt.want, tier)
		})
	}
}

func TestClassify_ZeroBandDisablesScoreMedium(t *testing.T) {
	th := DefaultThresholds()
	th.MediumBand = 0
	c := MustClassifier(th)

	tier, _, err := c.Classify(Metrics{AttendancePercentage: 90, SGPA: 8, RawRiskScore: 69})
	require.NoError(t, err)
	assert.Equal(t, TierLow, tier)
}

func TestClassify_InvalidMetrics(t *testing.T) {
	c := defaultClassifier(t)

	invalid := []Metrics{
		{AttendancePercentage: 101, SGPA: 7, RawRiskScore: 10},
		{AttendancePercentage: -1, SGPA: 7, RawRiskScore: 10},
		{AttendancePercentage: 80, SGPA: -0.1, RawRiskScore: 10},
		{AttendancePercentage: 80, SGPA: 10.5, RawRiskScore: 10},
		{AttendancePercentage: 80, SGPA: 7, BacklogCount: -2, RawRiskScore: 10},
		{AttendancePercentage: 80, SGPA: 7, RawRiskScore: 100.1},
		{AttendancePercentage: math.NaN(), SGPA: 7, RawRiskScore: 10},
		{AttendancePercentage: 80, SGPA: 7, RawRiskScore: math.Inf(1)},
	}

	for _, m := range invalid {
		_, _, err := c.Classify(m)
		assert.ErrorIs(t, err, shared.ErrInvalidMetric, "%+v", m)
		assert.True(t, shared.IsValidation(err))
	}
}

func TestClassify_Deterministic(t *testing.T) {
	c := defaultClassifier(t)

	for att := 0.0; att <= 100; att += 12.5 {
		for sgpa := 0.0; sgpa <= 10; sgpa += 2.5 {
			for score := 0.0; score <= 100; score += 10 {
				m := Metrics{AttendancePercentage: att, SGPA: sgpa, RawRiskScore: score}
				t1, s1, err1 := c.Classify(m)
				t2, s2, err2 := c.Classify(m)
				require.NoError(t, err1)
				require.NoError(t, err2)
				assert.Equal(t, t1, t2)
				assert.Equal(t, s1, s2)
				assert.True(t, t1.IsValid())
			}
		}
	}
}

func TestAssess_ReportsConditions(t *testing.T) {
	a, err := defaultClassifier(t).Assess(Metrics{AttendancePercentage: 60, SGPA: 7, RawRiskScore: 55})
	require.NoError(t, err)

	assert.Equal(t, TierMedium, a.Tier)
	assert.True(t, a.LowAttendance)
	assert.False(t, a.LowSGPA)
	assert.False(t, a.ScoreHigh)
	assert.True(t, a.ScoreInBand)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())

	bad := DefaultThresholds()
	bad.LowAttendance = 120
	bad.MediumBand = 80
	err := bad.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidThresholds)

	var verr *shared.ValidationError
	require.ErrorAs(t, err, &verr)
	fields := map[string]string{}
	for _, f := range verr.Fields {
		fields[f.Field] = f.Message
	}
	assert.Equal(t, "must be at most 100", fields["LowAttendance"])
	assert.Equal(t, "must not exceed HighRiskScore", fields["MediumBand"])

	_, err = NewClassifier(bad)
	assert.Error(t, err)
}

func TestNormalizeTier(t *testing.T) {
	ok := map[string]Tier{
		"High":          TierHigh,
		"High Risk":     TierHigh,
		"  medium risk": TierMedium,
		"LOW":           TierLow,
		"Low Risk Now":  TierLow,
	}
	for label, want := range ok {
		got, err := NormalizeTier(label)
		require.NoError(t, err, label)
		assert.Equal(t, want, got, label)
	}

	for _, label := range []string{"", "   ", "Critical", "Risk High", "Hi"} {
		_, err := NormalizeTier(label)
		assert.ErrorIs(t, err, shared.ErrInvalidTier, label)
	}
}

func TestTier_LabelAndColor(t *testing.T) {
	assert.Equal(t, "High Risk", TierHigh.Label())
	assert.Equal(t, "#EF4444", TierHigh.Color())
	assert.Equal(t, "#F59E0B", TierMedium.Color())
	assert.Equal(t, "#10B981", TierLow.Color())
}
