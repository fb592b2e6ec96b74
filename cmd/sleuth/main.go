package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sleuth/internal/config"
	"sleuth/internal/gemini"
	"sleuth/internal/logging"
	"sleuth/internal/orchestrator"
	"sleuth/internal/websearch"
)

var version = "0.3.0"

var (
	// Global flags
	cfgPath    string
	verbose    bool
	focusFlag  string
	plainFlag  bool
	iterations int
	singleShot bool

	// Loaded in PersistentPreRunE
	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sleuth",
	Short: "sleuth - iterative web search assistant",
	Long: `sleuth answers questions by orchestrating web searches.

It generates diverse search queries, runs them concurrently, grades how
completely the collected results cover the question, searches again to fill
the gaps, and synthesizes a cited answer from everything it found.

Focus modes (general, academic, creative, news, technical, medical, legal)
tune query phrasing, completeness criteria, and answer style.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if cfgPath == "" {
			cfgPath = config.DefaultConfigPath()
		}
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logOpts := logging.Options{
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		}
		if err := logging.Initialize(cfg.Logging.Directory, logOpts); err != nil {
			logger.Warn("file logging unavailable", zap.Error(err))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// buildEngine wires the configured clients into an orchestration engine.
func buildEngine(observer orchestrator.Observer) (*orchestrator.Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	gen := gemini.NewClient(gemini.Config{
		APIKey:          cfg.Generation.APIKey,
		Model:           cfg.Generation.Model,
		BaseURL:         cfg.Generation.BaseURL,
		Timeout:         cfg.GetGenerationTimeout(),
		MaxOutputTokens: cfg.Generation.MaxOutputTokens,
	})
	search := websearch.NewClient(websearch.Config{
		APIKey:   cfg.Search.APIKey,
		EngineID: cfg.Search.EngineID,
		BaseURL:  cfg.Search.BaseURL,
		Timeout:  cfg.GetSearchTimeout(),
	})

	opts := orchestrator.Options{
		MaxGeneratedQueries:   cfg.Orchestration.MaxGeneratedQueries,
		MaxFollowupQueries:    cfg.Orchestration.MaxFollowupQueries,
		TotalResultBudget:     cfg.Orchestration.TotalResultBudget,
		MaxAggregatedResults:  cfg.Orchestration.MaxAggregatedResults,
		MaxIterations:         cfg.Orchestration.MaxIterations,
		CompletenessThreshold: cfg.Orchestration.CompletenessThreshold,
		SingleShot:            !cfg.Orchestration.Iterative,
		SafeMode:              cfg.Search.SafeMode,
		Observer:              observer,
	}
	if iterations > 0 {
		opts.MaxIterations = iterations
	}
	if singleShot {
		opts.SingleShot = true
	}

	return orchestrator.New(gen, search, opts), nil
}

func searchContext(query string) (orchestrator.SearchContext, error) {
	sc := orchestrator.SearchContext{
		Query:     query,
		FocusMode: orchestrator.FocusMode(focusFlag),
		Language:  cfg.Search.Language,
		Region:    cfg.Search.Region,
	}
	if focusFlag != "" && !sc.FocusMode.Valid() {
		return sc, fmt.Errorf("unknown focus mode %q", focusFlag)
	}
	return sc, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "config file (default ~/.sleuth/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")

	for _, cmd := range []*cobra.Command{askCmd, streamCmd} {
		cmd.Flags().StringVarP(&focusFlag, "focus", "f", "", "focus mode: general, academic, creative, news, technical, medical, legal")
	}
	askCmd.Flags().IntVar(&iterations, "max-iterations", 0, "override maximum search iterations")
	askCmd.Flags().BoolVar(&singleShot, "no-iterate", false, "single search round, no gap analysis")
	askCmd.Flags().BoolVar(&plainFlag, "plain", false, "plain text output, no markdown rendering")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(streamCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
