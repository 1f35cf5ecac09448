package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/pipewatch/internal/common"
)

var (
	// Persistent flags
	configFiles []string // Multiple --config flags supported
	envFiles    []string
	backendURL  string
	verbose     bool

	// Global state, resolved before any subcommand runs
	config *common.Config
	logger arbor.ILogger
)

var rootCmd = &cobra.Command{
	Use:           "pipewatch",
	Short:         "Control and monitor long-running backend collection jobs",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		return loadConfig(cmd.Name() != "serve" && cmd.Name() != "simulate")
	},
}

func init() {
	rootCmd.PersistentFlags().StringSliceVarP(&configFiles, "config", "c", nil, "Configuration file path (can be specified multiple times, later files override earlier ones)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Dotenv file loaded before the configuration (default: .env when present)")
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at the configured level instead of warnings only")

	rootCmd.AddCommand(serveCmd, simulateCmd, versionCmd)
	rootCmd.AddCommand(statusCmd, startCmd, resumeCmd, stopCmd, watchCmd)
}

// loadConfig runs the startup sequence (REQUIRED ORDER):
// 1. Load dotenv files so PIPEWATCH_* overrides can come from them
// 2. Load config (defaults -> file1 -> file2 -> ... -> env)
// 3. Apply CLI overrides (highest priority)
// 4. Validate and initialize the logger
func loadConfig(quiet bool) error {
	if len(envFiles) == 0 {
		if _, err := os.Stat(".env"); err == nil {
			envFiles = append(envFiles, ".env")
		}
	}
	for _, path := range envFiles {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
	}

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("pipewatch.toml"); err == nil {
			configFiles = append(configFiles, "pipewatch.toml")
		} else if _, err := os.Stat("deployments/local/pipewatch.toml"); err == nil {
			configFiles = append(configFiles, "deployments/local/pipewatch.toml")
		}
	}

	var err error
	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	common.ApplyFlagOverrides(config, servePort, serveHost, backendURL)

	// One-shot commands print their own output; only warnings are logged
	if quiet && !verbose {
		config.Logging.Level = "warn"
	}

	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger = common.InitLogger(config)

	logger.Debug().
		Strs("config_files", configFiles).
		Str("backend", config.Backend.BaseURL).
		Strs("kinds", config.KindNames()).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	return nil
}

func main() {
	defer common.RecoverWithCrashFile()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}
