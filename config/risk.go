package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskConfig is the bootstrap risk policy. Env values override the YAML
// policy file, which overrides the built-in defaults. The API can publish
// newer versions at runtime; those are persisted and take precedence at the
// next startup.
type RiskConfig struct {
	PolicyFile string `yaml:"-"`

	LowAttendance float64 `yaml:"low_attendance"`
	LowSGPA       float64 `yaml:"low_sgpa"`
	HighRiskScore float64 `yaml:"high_risk_score"`
	MediumBand    float64 `yaml:"medium_band"`
	SGPAScale     float64 `yaml:"sgpa_scale"`
	ScoreScale    float64 `yaml:"score_scale"`
}

// DefaultRiskConfig mirrors the admin settings shipped with the dashboard.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		LowAttendance: 75,
		LowSGPA:       6.0,
		HighRiskScore: 70,
		MediumBand:    20,
		SGPAScale:     10,
		ScoreScale:    100,
	}
}

func loadRiskConfig() (RiskConfig, error) {
	cfg := DefaultRiskConfig()
	cfg.PolicyFile = getEnv("RISK_POLICY_FILE", "")

	if cfg.PolicyFile != "" {
		if err := cfg.readPolicyFile(cfg.PolicyFile); err != nil {
			return RiskConfig{}, err
		}
	}

	cfg.LowAttendance = getEnvFloat("RISK_LOW_ATTENDANCE", cfg.LowAttendance)
	cfg.LowSGPA = getEnvFloat("RISK_LOW_SGPA", cfg.LowSGPA)
	cfg.HighRiskScore = getEnvFloat("RISK_HIGH_SCORE", cfg.HighRiskScore)
	cfg.MediumBand = getEnvFloat("RISK_MEDIUM_BAND", cfg.MediumBand)
	cfg.SGPAScale = getEnvFloat("RISK_SGPA_SCALE", cfg.SGPAScale)
	cfg.ScoreScale = getEnvFloat("RISK_SCORE_SCALE", cfg.ScoreScale)

	return cfg, nil
}

// readPolicyFile overlays the YAML document onto the current values.
// Keys missing from the file keep their previous value.
func (r *RiskConfig) readPolicyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read policy file: %w", err)
	}

	var doc struct {
		Thresholds RiskConfig `yaml:"thresholds"`
	}
	doc.Thresholds = *r
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	file := r.PolicyFile
	*r = doc.Thresholds
	r.PolicyFile = file
	return nil
}

// validate performs cheap sanity checks; the risk package re-validates the
// full threshold set before building a classifier.
func (r RiskConfig) validate() []string {
	var errs []string
	if r.LowAttendance < 0 || r.LowAttendance > 100 {
		errs = append(errs, "RISK_LOW_ATTENDANCE must be 0-100")
	}
	if r.SGPAScale <= 0 {
		errs = append(errs, "RISK_SGPA_SCALE must be positive")
	}
	if r.LowSGPA < 0 || r.LowSGPA > r.SGPAScale {
		errs = append(errs, "RISK_LOW_SGPA must be within the SGPA scale")
	}
	if r.ScoreScale <= 0 {
		errs = append(errs, "RISK_SCORE_SCALE must be positive")
	}
	if r.HighRiskScore <= 0 || r.HighRiskScore > r.ScoreScale {
		errs = append(errs, "RISK_HIGH_SCORE must be within the score scale")
	}
	if r.MediumBand < 0 || r.MediumBand > r.HighRiskScore {
		errs = append(errs, "RISK_MEDIUM_BAND must be between 0 and RISK_HIGH_SCORE")
	}
	return errs
}
