package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/validation"
)

//go:embed sample_config.toml
var sampleConfig string

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Environment variables consulted by Load.
const (
	EnvConfig        = "SPOTMATCH_CONFIG"
	EnvDataset       = "SPOTMATCH_DATASET"
	EnvHistoryDriver = "SPOTMATCH_HISTORY_DRIVER"
	EnvHistoryDSN    = "SPOTMATCH_HISTORY_DSN"
	EnvLogLevel      = "SPOTMATCH_LOG_LEVEL"
	EnvPort          = "SPOTMATCH_PORT"
	EnvWorkers       = "SPOTMATCH_WORKERS"
	EnvDiscrepancyKm = "SPOTMATCH_DISCREPANCY_KM"
	EnvApplyReview   = "SPOTMATCH_APPLY_REQUIRES_REVIEW"
)

// DefaultSQLiteDSN is the history database used when sqlite is selected without a DSN.
const DefaultSQLiteDSN = "spotmatch.db"

// Matching contains correlation settings.
type Matching struct {
	OverridesFile    string               `toml:"overrides_file"`
	DisableOverrides bool                 `toml:"disable_overrides"`
	Workers          int                  `toml:"workers"`
	Weights          match.FeatureWeights `toml:"weights"`
}

// Analysis contains the curation report settings.
type Analysis struct {
	Unmatched           match.AnalysisOptions `toml:"unmatched"`
	DiscrepancyKm       float64               `toml:"discrepancy_km"`
	ApplyRequiresReview bool                  `toml:"apply_requires_review"`
}

// Source describes one external candidate list.
type Source struct {
	ID   string `toml:"id"`
	Path string `toml:"path"`
}

// Store contains the canonical dataset and run history locations.
type Store struct {
	Dataset       string `toml:"dataset"`
	HistoryDriver string `toml:"history_driver"`
	HistoryDSN    string `toml:"history_dsn"`
}

// Server contains HTTP server settings.
type Server struct {
	Host           string   `toml:"host"`
	Port           int      `toml:"port"`
	AllowedOrigins []string `toml:"allowed_origins"`
}

// Logging contains configuration for log output.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values for spotmatch.
//
// Configuration sections by subsystem:
//   - Matching: override table, workers and scoring weights
//   - Confidence: tier thresholds
//   - Consensus: variance ceiling, improvement floor and accuracy bands
//   - Validation: optional bounding box for plausible coordinates
//   - Analysis: unmatched-entity search radius and discrepancy threshold
//   - Sources: candidate files, loaded in order
//   - Store: canonical dataset path and run history database
//   - Server: read API bind address
//   - Log: level and format
type Config struct {
	Matching   Matching              `toml:"matching"`
	Confidence match.MatchTiers      `toml:"confidence"`
	Consensus  match.ConsensusLimits `toml:"consensus"`
	Validation validation.Rules      `toml:"validation"`
	Analysis   Analysis              `toml:"analysis"`
	Sources    []Source              `toml:"sources"`
	Store      Store                 `toml:"store"`
	Server     Server                `toml:"server"`
	Log        Logging               `toml:"log"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Matching: Matching{
			Workers: 1,
			Weights: *match.DefaultWeights(),
		},
		Confidence: *match.DefaultTiers(),
		Consensus:  *match.DefaultConsensusLimits(),
		Validation: validation.DefaultRules(),
		Analysis: Analysis{
			Unmatched:     *match.DefaultAnalysisOptions(),
			DiscrepancyKm: 5,
		},
		Store: Store{
			Dataset:       "data/surf-spots.json",
			HistoryDriver: "sqlite",
		},
		Server: Server{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Log: Logging{
			Level:  "info",
			Format: "auto",
		},
	}
}

// SampleConfig returns the annotated sample configuration file.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the per-user configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spotmatch/config.toml")
}

// Load locates, parses, and validates a configuration file. A missing file is
// not an error: the defaults are used. Environment overrides are applied after
// the file.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config %s: %w", resolvedPath, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(filepath.Dir(resolvedPath), exists); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func (c *Config) applyEnv() {
	c.Store.Dataset = GetEnv(EnvDataset, c.Store.Dataset)
	c.Store.HistoryDriver = GetEnv(EnvHistoryDriver, c.Store.HistoryDriver)
	c.Store.HistoryDSN = GetEnv(EnvHistoryDSN, c.Store.HistoryDSN)
	c.Log.Level = GetEnv(EnvLogLevel, c.Log.Level)
	c.Server.Port = GetEnvInt(EnvPort, c.Server.Port)
	c.Matching.Workers = GetEnvInt(EnvWorkers, c.Matching.Workers)
	c.Analysis.DiscrepancyKm = GetEnvFloat(EnvDiscrepancyKm, c.Analysis.DiscrepancyKm)
	c.Analysis.ApplyRequiresReview = GetEnvBool(EnvApplyReview, c.Analysis.ApplyRequiresReview)
}

// normalize resolves relative file paths against the config file's directory.
func (c *Config) normalize(baseDir string, fromFile bool) error {
	resolve := func(p string) (string, error) {
		p = strings.TrimSpace(p)
		if p == "" {
			return "", nil
		}
		if fromFile && !filepath.IsAbs(p) && !strings.HasPrefix(p, "~") {
			p = filepath.Join(baseDir, p)
		}
		return expandPath(p)
	}

	var err error
	if c.Store.Dataset, err = resolve(c.Store.Dataset); err != nil {
		return err
	}
	if c.Matching.OverridesFile, err = resolve(c.Matching.OverridesFile); err != nil {
		return err
	}
	for i := range c.Sources {
		c.Sources[i].ID = strings.TrimSpace(c.Sources[i].ID)
		if c.Sources[i].Path, err = resolve(c.Sources[i].Path); err != nil {
			return err
		}
	}
	c.Store.HistoryDriver = strings.ToLower(strings.TrimSpace(c.Store.HistoryDriver))
	c.Store.HistoryDSN = strings.TrimSpace(c.Store.HistoryDSN)
	if c.Store.HistoryDriver == "sqlite" {
		if c.Store.HistoryDSN == "" {
			c.Store.HistoryDSN = DefaultSQLiteDSN
		}
		if c.Store.HistoryDSN, err = resolve(c.Store.HistoryDSN); err != nil {
			return err
		}
	}

	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Log.Format = strings.ToLower(strings.TrimSpace(c.Log.Format))
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path == "" {
		path = GetEnv(EnvConfig, "")
	}

	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	projectPath, err := filepath.Abs("spotmatch.toml")
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}

	return defaultPath, false, nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// WriteSample writes the sample configuration to path, refusing to overwrite.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config %s already exists", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
