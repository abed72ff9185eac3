package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/katescodes/bidaudit/internal/engine"
	"github.com/katescodes/bidaudit/internal/judge"
	"github.com/katescodes/bidaudit/internal/output"
	"github.com/katescodes/bidaudit/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store
	logger    *zap.Logger

	verbose bool
	dryRun  bool
)

var rootCmd = &cobra.Command{
	Use:   "bidaudit",
	Short: "Bid audit - review bidder responses against tender requirements",
	Long: `bidaudit runs the review pipeline over extracted tender requirements
and bid responses. Every requirement is matched to candidate responses,
evaluated by the appropriate checker, and persisted with full evidence
so a human reviewer can verify each verdict.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVarP(&dryRun, "dry-run", "n", false, "Show what would happen without making changes")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/bidaudit/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "bidaudit")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("BIDAUDIT")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultConfigDir := filepath.Join(home, ".config", "bidaudit")

	viper.SetDefault("db_path", filepath.Join(defaultConfigDir, "bidaudit.db"))
	viper.SetDefault("anthropic.api_key", "")
	viper.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	viper.SetDefault("review.top_k", 5)
	viper.SetDefault("review.min_similarity", 0.1)
	viper.SetDefault("review.judge_concurrency", 5)
	viper.SetDefault("review.judge_timeout", "30s")
	viper.SetDefault("review.judge_min_confidence", 0.6)
	viper.SetDefault("review.price_rounding_tolerance", 0.005)
	viper.SetDefault("review.price_reject_over", 0.0)

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
	ui.DryRun = dryRun

	if verbose {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Store and judge are initialized lazily so config/version commands
	// run without a db or API key.
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := s.Migrate(rootCmd.Context()); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	dataStore = s
	return dataStore, nil
}

// getJudge returns the semantic judge, or nil when no API key is configured.
// The pipeline degrades semantic items to PENDING without a judge.
func getJudge() judge.Judge {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil
	}
	return judge.NewAnthropicJudge(apiKey, viper.GetString("anthropic.model"))
}

// getOrchestrator wires the engine from shared dependencies.
func getOrchestrator() (*engine.Orchestrator, error) {
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	return engine.New(s, getJudge(), engine.DefaultConfig(), logger), nil
}
