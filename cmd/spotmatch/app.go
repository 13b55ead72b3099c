package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/spotmatch/internal/audit"
	"github.com/spotmatch/internal/config"
	"github.com/spotmatch/internal/db"
	"github.com/spotmatch/internal/debug"
	"github.com/spotmatch/internal/match"
	"github.com/spotmatch/internal/report"
	"github.com/spotmatch/internal/source"
	"github.com/spotmatch/internal/store"
	"github.com/spotmatch/internal/validation"
)

// app holds the state shared by every subcommand.
type app struct {
	configFlag string
	logLevel   string
	verbose    bool
	formatFlag string

	cfg         *config.Config
	configPath  string
	configFound bool
	format      report.Format
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "spotmatch",
		Short:         "Surf spot correlation and coordinate consensus",
		Long:          `Correlates surf spots reported by external sources with a canonical dataset and proposes corrected coordinates where the sources agree`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.configFlag, "config", "", "Path to config.toml")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Verbose output with matching traces")
	rootCmd.PersistentFlags().StringVar(&a.formatFlag, "format", "table", "Output format (table, markdown, csv, json, geojson)")

	rootCmd.AddCommand(createCorrelateCmd(a))
	rootCmd.AddCommand(createConsensusCmd(a))
	rootCmd.AddCommand(createApplyCmd(a))
	rootCmd.AddCommand(createAnalyzeUnmatchedCmd(a))
	rootCmd.AddCommand(createDiscrepanciesCmd(a))
	rootCmd.AddCommand(createRunsCmd(a))
	rootCmd.AddCommand(createServeCmd(a))
	rootCmd.AddCommand(createPingCmd(a))
	rootCmd.AddCommand(createConfigCmd(a))

	return rootCmd
}

// init loads .env, the config file and the logger.
func (a *app) init() error {
	if err := config.LoadEnv(); err != nil {
		return err
	}

	cfg, path, exists, err := config.Load(a.configFlag)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.configPath = path
	a.configFound = exists

	format, err := report.ParseFormat(a.formatFlag)
	if err != nil {
		return err
	}
	a.format = format

	debug.SetLogger(debug.NewLogger(os.Stderr, a.resolveLogLevel(), cfg.Log.Format))
	if exists {
		debug.Logger().Debug().Str("path", path).Msg("loaded config")
	}
	return nil
}

// resolveLogLevel applies flag > verbose > config (which already holds the env override).
func (a *app) resolveLogLevel() string {
	if a.logLevel != "" {
		return strings.ToLower(a.logLevel)
	}
	if a.verbose {
		return "debug"
	}
	return a.cfg.Log.Level
}

// overrides returns the configured override table, nil when disabled.
func (a *app) overrides() (*match.OverrideTable, error) {
	if a.cfg.Matching.DisableOverrides {
		return nil, nil
	}
	if a.cfg.Matching.OverridesFile != "" {
		table, err := match.LoadOverrides(a.cfg.Matching.OverridesFile)
		if err != nil {
			return nil, err
		}
		return table, nil
	}
	return match.DefaultOverrides(), nil
}

func (a *app) engine() (*match.Engine, *match.OverrideTable, error) {
	overrides, err := a.overrides()
	if err != nil {
		return nil, nil, err
	}

	weights := a.cfg.Matching.Weights
	tiers := a.cfg.Confidence
	limits := a.cfg.Consensus

	engine := match.NewEngine(match.EngineConfig{
		Weights:   &weights,
		Tiers:     &tiers,
		Limits:    &limits,
		Overrides: overrides,
		Validator: validation.NewCoordinateValidatorWithRules(a.cfg.Validation),
		Workers:   a.cfg.Matching.Workers,
		Debug:     a.verbose,
	})
	return engine, overrides, nil
}

func (a *app) store() *store.FileStore {
	return store.NewFileStore(a.cfg.Store.Dataset).AllowReview(a.cfg.Analysis.ApplyRequiresReview)
}

// loader reads the given files, or the configured sources when none are given.
func (a *app) loader(args []string) (*source.FileLoader, error) {
	var specs []source.Spec
	if len(args) > 0 {
		for _, path := range args {
			specs = append(specs, source.Spec{Path: path})
		}
	} else {
		for _, s := range a.cfg.Sources {
			specs = append(specs, source.Spec{ID: s.ID, Path: s.Path})
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("no candidate sources: pass files as arguments or add [[sources]] to %s", a.configPathOrDefault())
	}
	return source.NewFileLoader(specs...), nil
}

func (a *app) configPathOrDefault() string {
	if a.configFound {
		return a.configPath
	}
	return "the config file"
}

func (a *app) historyEnabled() bool {
	return a.cfg.Store.HistoryDriver != ""
}

func (a *app) openHistory(ctx context.Context) (*db.Connection, *audit.Tracker, error) {
	if !a.historyEnabled() {
		return nil, nil, fmt.Errorf("run history is disabled: set store.history_driver")
	}
	conn, err := db.Open(ctx, a.cfg.Store.HistoryDriver, a.cfg.Store.HistoryDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open run history: %w", err)
	}
	return conn, audit.NewTracker(conn).WithDebug(a.verbose), nil
}

// loadInputs reads canonical entities and candidates and warns about
// override entries that point at unknown entities.
func (a *app) loadInputs(ctx context.Context, args []string, overrides *match.OverrideTable) ([]match.CanonicalEntity, []match.CandidateRecord, []match.Diagnostic, error) {
	loader, err := a.loader(args)
	if err != nil {
		return nil, nil, nil, err
	}

	entities, err := a.store().LoadEntities(ctx)
	if err != nil {
		return nil, nil, nil, err
	}
	candidates, diags, err := loader.LoadCandidates(ctx)
	if err != nil {
		return nil, nil, nil, err
	}

	warnMissingOverrides(overrides, entities)
	return entities, candidates, diags, nil
}

func warnMissingOverrides(overrides *match.OverrideTable, entities []match.CanonicalEntity) {
	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}
	for _, e := range overrides.MissingTargets(func(id string) bool { return known[id] }) {
		debug.Logger().Warn().Str("alias", e.Alias).Str("entity_id", e.EntityID).
			Msg("override points at an entity missing from the dataset")
	}
}

func (a *app) renderTables(w io.Writer, tables ...report.Table) error {
	for _, t := range tables {
		if err := report.Render(w, a.format, t); err != nil {
			return err
		}
	}
	return nil
}

func (a *app) encodeJSON(w io.Writer, v interface{}) error {
	enc := newJSONEncoder(w)
	return enc.Encode(v)
}
