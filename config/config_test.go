package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.App.Environment)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, DefaultRiskConfig().HighRiskScore, cfg.Risk.HighRiskScore)
	assert.True(t, cfg.Features.IsEnabled(FeatureReportExport))
}

func TestLoad_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("HTTP_PORT=9191\nFEATURE_REPORTS_EXPORT=false\n"), 0o600))
	t.Setenv("ENV_FILE", envFile)
	t.Cleanup(func() {
		os.Unsetenv("HTTP_PORT")
		os.Unsetenv("FEATURE_REPORTS_EXPORT")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9191, cfg.HTTP.Port)
	assert.False(t, cfg.Features.IsEnabled(FeatureReportExport))
}

func TestLoad_PolicyFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	policy := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(policy, []byte("thresholds:\n  low_attendance: 80\n  high_risk_score: 65\n"), 0o600))

	t.Setenv("ENV_FILE", filepath.Join(dir, "missing.env"))
	t.Setenv("RISK_POLICY_FILE", policy)
	t.Setenv("RISK_LOW_SGPA", "5.5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 80.0, cfg.Risk.LowAttendance)
	assert.Equal(t, 65.0, cfg.Risk.HighRiskScore)
	assert.Equal(t, 5.5, cfg.Risk.LowSGPA)
	assert.Equal(t, 20.0, cfg.Risk.MediumBand)
	assert.Equal(t, policy, cfg.Risk.PolicyFile)
}

func TestValidate_AggregatesErrors(t *testing.T) {
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
	t.Setenv("APP_ENV", "production")
	t.Setenv("RISK_LOW_ATTENDANCE", "140")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration errors:")
	assert.Contains(t, err.Error(), "DATABASE_URL is required in production")
	assert.Contains(t, err.Error(), "STAFF_API_KEY_HASH is required in production")
	assert.Contains(t, err.Error(), "RISK_LOW_ATTENDANCE must be 0-100")
}

func TestFeatureFlags(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled("unknown.flag"))
	require.NoError(t, ff.Set(FeatureDocumentUploads, false))
	assert.False(t, ff.IsEnabled(FeatureDocumentUploads))
	assert.ErrorIs(t, ff.Set("unknown.flag", true), ErrFeatureNotFound)
	assert.Equal(t, "FEATURE_REPORTS_EXPORT", featureNameToEnvKey(FeatureReportExport))
	assert.Len(t, ff.All(), 5)
}
