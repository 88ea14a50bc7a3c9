package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages on/off toggles for optional API surfaces.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// Feature represents a single feature flag.
type Feature struct {
	Name        string
	Description string
	Enabled     bool
}

// Predefined feature flag names.
const (
	FeatureDocumentUploads   = "interventions.document_uploads"
	FeatureReportExport      = "reports.export"
	FeatureDashboardInsights = "dashboard.insights"
	FeatureRefreshBroadcast  = "registry.refresh_broadcast"
	FeatureThresholdEditing  = "settings.threshold_editing"
)

// LoadFeatureFlags builds the defaults and applies FEATURE_<NAME>=true|false
// overrides from the environment.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}

	ff.define(FeatureDocumentUploads, "Accept supporting documents when assigning interventions", true)
	ff.define(FeatureReportExport, "Proxy report generation to the reporting backend", true)
	ff.define(FeatureDashboardInsights, "Include generated insights in the dashboard summary", true)
	ff.define(FeatureRefreshBroadcast, "Publish registry refresh events over Redis", true)
	ff.define(FeatureThresholdEditing, "Allow staff to publish new risk thresholds", true)

	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) define(name, description string, enabled bool) {
	ff.features[name] = &Feature{Name: name, Description: description, Enabled: enabled}
}

func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		if val := os.Getenv(featureNameToEnvKey(name)); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				feature.Enabled = b
			}
		}
	}
}

// featureNameToEnvKey converts "reports.export" to "FEATURE_REPORTS_EXPORT".
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether the named feature is on. Unknown names are off.
func (ff *FeatureFlags) IsEnabled(name string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[name]
	return ok && f.Enabled
}

// Set toggles a feature at runtime.
func (ff *FeatureFlags) Set(name string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[name]
	if !ok {
		return ErrFeatureNotFound
	}
	f.Enabled = enabled
	return nil
}

// All returns copies of all features sorted by name.
func (ff *FeatureFlags) All() []Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make([]Feature, 0, len(ff.features))
	for _, f := range ff.features {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var ErrFeatureNotFound = &FeatureFlagError{Message: "feature not found"}

// FeatureFlagError represents a feature flag error.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}
