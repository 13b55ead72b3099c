package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateMatching(); err != nil {
		return err
	}
	if err := c.validateConfidence(); err != nil {
		return err
	}
	if err := c.validateConsensus(); err != nil {
		return err
	}
	if err := c.validateValidation(); err != nil {
		return err
	}
	if err := c.validateSources(); err != nil {
		return err
	}
	if err := c.validateStore(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateLog()
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) validateMatching() error {
	w := c.Matching.Weights
	if w.NameWeight < 0 || w.DistanceWeight < 0 {
		return invalid("matching.weights name_weight and distance_weight must be non-negative")
	}
	if w.NameWeight+w.DistanceWeight == 0 {
		return invalid("matching.weights must not both be zero")
	}
	for _, v := range []float64{w.ExactName, w.SubstringName, w.SharedToken, w.OverrideScore} {
		if v < 0 || v > 100 {
			return invalid("matching.weights name scores must be between 0 and 100")
		}
	}
	if w.MinTokenLength < 1 {
		return invalid("matching.weights.min_token_length must be at least 1")
	}
	prev := 0.0
	for i, band := range w.DistanceBands {
		if band.MaxKm <= prev {
			return invalid("matching.weights.distance_bands[%d].max_km must be greater than %.2f", i, prev)
		}
		if band.Score < 0 || band.Score > 100 {
			return invalid("matching.weights.distance_bands[%d].score must be between 0 and 100", i)
		}
		prev = band.MaxKm
	}
	if c.Matching.Workers < 1 {
		return invalid("matching.workers must be at least 1")
	}
	return nil
}

func (c *Config) validateConfidence() error {
	t := c.Confidence
	for _, v := range []float64{t.HighMinScore, t.MediumMinScore, t.MediumAltMinScore} {
		if v < 0 || v > 100 {
			return invalid("confidence scores must be between 0 and 100")
		}
	}
	if t.HighMinScore < t.MediumMinScore {
		return invalid("confidence.high_min_score must not be below medium_min_score")
	}
	if t.HighMaxDistanceKm <= 0 || t.MediumAltMaxDistance <= 0 {
		return invalid("confidence distances must be positive")
	}
	return nil
}

func (c *Config) validateConsensus() error {
	l := c.Consensus
	if l.PreferredDistanceKm <= 0 {
		return invalid("consensus.preferred_distance_km must be positive")
	}
	if l.MaxVarianceMeters <= 0 || l.MinImprovementMeters < 0 {
		return invalid("consensus.max_variance_meters must be positive and min_improvement_meters non-negative")
	}
	if l.VerifiedVarianceMeters > l.ConfirmedVarianceMeters || l.ConfirmedVarianceMeters > l.MaxVarianceMeters {
		return invalid("consensus variance bands must satisfy verified <= confirmed <= max")
	}
	return nil
}

func (c *Config) validateValidation() error {
	b := c.Validation.Bounds
	if b.IsZero() {
		return nil
	}
	if b.MinLat >= b.MaxLat || b.MinLng >= b.MaxLng {
		return invalid("validation.bounds min values must be below max values")
	}
	if b.MinLat < -90 || b.MaxLat > 90 || b.MinLng < -180 || b.MaxLng > 180 {
		return invalid("validation.bounds must lie within ±90/±180")
	}
	return nil
}

func (c *Config) validateSources() error {
	seen := make(map[string]bool)
	for i, s := range c.Sources {
		if s.ID == "" {
			return invalid("sources[%d].id must be set", i)
		}
		if s.Path == "" {
			return invalid("sources[%d].path must be set", i)
		}
		if seen[s.ID] {
			return invalid("sources[%d].id %q is repeated", i, s.ID)
		}
		seen[s.ID] = true
	}
	if c.Analysis.DiscrepancyKm <= 0 {
		return invalid("analysis.discrepancy_km must be positive")
	}
	if c.Analysis.Unmatched.RadiusKm <= 0 {
		return invalid("analysis.unmatched.radius_km must be positive")
	}
	return nil
}

func (c *Config) validateStore() error {
	switch c.Store.HistoryDriver {
	case "", "sqlite", "postgres":
	default:
		return invalid("store.history_driver must be sqlite or postgres, got %q", c.Store.HistoryDriver)
	}
	// postgres falls back to the PG* environment variables
	if c.Store.HistoryDriver == "sqlite" && c.Store.HistoryDSN == "" {
		return invalid("store.history_dsn must be set when history_driver is sqlite")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535")
	}
	return nil
}

func (c *Config) validateLog() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil || c.Log.Level == "" {
		return invalid("log.level %q is not a known level", c.Log.Level)
	}
	switch c.Log.Format {
	case "", "auto", "json", "console", "text":
		return nil
	default:
		return invalid("log.format must be auto, json or console")
	}
}
