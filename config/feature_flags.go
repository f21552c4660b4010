package config

import (
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// FeatureFlags manages deployment toggles for optional components.
// Flags are read once from FEATURE_* variables and may be flipped at
// runtime (tests, admin tooling).
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
	// Read-through Redis cache in front of donor profile reads.
	FeatureDonorCache = "donor_cache"

	// Fan lifecycle events out over Redis pub/sub instead of in-process only.
	FeatureEventBusRedis = "event_bus_redis"

	// Scheduled donor.eligibility_restored announcements in the worker.
	FeatureEligibilityNotifier = "eligibility_notifier"
)

// LoadFeatureFlags loads feature flags from environment variables.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{features: make(map[string]*Feature)}
	ff.initializeDefaults()
	ff.loadFromEnvironment()
	return ff
}

func (ff *FeatureFlags) initializeDefaults() {
	ff.features[FeatureDonorCache] = &Feature{
		Name:        FeatureDonorCache,
		Description: "Cache donor profiles in Redis",
		Enabled:     false,
	}
	ff.features[FeatureEventBusRedis] = &Feature{
		Name:        FeatureEventBusRedis,
		Description: "Publish domain events over Redis pub/sub",
		Enabled:     false,
	}
	ff.features[FeatureEligibilityNotifier] = &Feature{
		Name:        FeatureEligibilityNotifier,
		Description: "Announce donors whose cooldown has ended",
		Enabled:     true,
	}
}

// loadFromEnvironment loads feature flag overrides from env vars.
// Invalid values keep the default.
func (ff *FeatureFlags) loadFromEnvironment() {
	for name, feature := range ff.features {
		val := os.Getenv(featureNameToEnvKey(name))
		if val == "" {
			continue
		}
		if b, err := strconv.ParseBool(val); err == nil {
			feature.Enabled = b
		}
	}
}

// featureNameToEnvKey converts feature name to environment variable key.
// "donor_cache" -> "FEATURE_DONOR_CACHE"
func featureNameToEnvKey(name string) string {
	key := strings.ToUpper(name)
	key = strings.ReplaceAll(key, ".", "_")
	return "FEATURE_" + key
}

// IsEnabled reports whether a feature is on. Unknown features are off.
func (ff *FeatureFlags) IsEnabled(featureName string) bool {
	if ff == nil {
		return false
	}
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	feature, ok := ff.features[featureName]
	return ok && feature.Enabled
}

// EnableFeature enables a feature globally.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.set(featureName, true)
}

// DisableFeature disables a feature globally.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.set(featureName, false)
}

func (ff *FeatureFlags) set(featureName string, enabled bool) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return &FeatureFlagError{Feature: featureName, Message: "feature not found"}
	}
	feature.Enabled = enabled
	return nil
}

// EnabledFeatures returns the names of enabled features, sorted.
func (ff *FeatureFlags) EnabledFeatures() []string {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	names := make([]string, 0, len(ff.features))
	for name, f := range ff.features {
		if f.Enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// FeatureFlagError represents an error related to feature flags.
type FeatureFlagError struct {
	Feature string
	Message string
}

func (e *FeatureFlagError) Error() string {
	return "feature flag " + e.Feature + ": " + e.Message
}
