// Package cli wires flags, environment and config files into the runner's
// startup configuration and owns the root command.
package cli

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/coverbot-io/sandbox-runner/pkg/config"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:     "sandbox-runner",
	Version: Version,
	Short:   "Remote-controlled command executor for testing sandboxes",
	Long: `sandbox-runner polls a control plane for commands, executes them against a
local workspace (file operations, lint/test/coverage scripts, arbitrary
shell scripts) under a concurrency bound, and reports the results back.`,
	SilenceUsage: true,
	RunE:         runRoot,
}

func init() {
	cobra.OnInitialize(initConfig)

	// Control plane flags
	rootCmd.PersistentFlags().String("run-id", "", "Run identifier assigned by the control plane")
	rootCmd.PersistentFlags().String("base-url", "", "Control plane base URL")
	rootCmd.PersistentFlags().String("token", "", "Bearer token for control plane calls")

	// Workspace flags
	rootCmd.PersistentFlags().String("root", ".", "Workspace root directory")

	// Script templates
	rootCmd.PersistentFlags().String("test-script", "", "Test script template ({{file}}, {{originalFile}})")
	rootCmd.PersistentFlags().String("lint-script", "", "Lint script template ({{file}})")
	rootCmd.PersistentFlags().String("coverage-script", "", "Coverage script template ({{testFilePaths}})")

	// Loop tuning
	rootCmd.PersistentFlags().Duration("poll-duration", config.DefaultPollDuration, "Total polling duration")
	rootCmd.PersistentFlags().Duration("poll-interval", config.DefaultPollInterval, "Delay between polls")
	rootCmd.PersistentFlags().Duration("inactivity-timeout", config.DefaultInactivityTimeout, "Stop after this long without commands")
	rootCmd.PersistentFlags().Int("max-poll-failures", config.DefaultMaxPollFailures, "Consecutive poll failures before giving up")
	rootCmd.PersistentFlags().String("max-concurrency", "", "Local max concurrent command executions (overrides server)")

	// Journal flags
	rootCmd.PersistentFlags().Bool("journal", false, "Record command lifecycle events to a local SQLite journal")
	rootCmd.PersistentFlags().String("journal-path", config.DefaultJournalPath, "Journal database path")

	// Sandbox flags
	rootCmd.PersistentFlags().Bool("sandbox", false, "Run scripts inside Docker containers")
	rootCmd.PersistentFlags().String("sandbox-image", config.DefaultSandboxImage, "Docker image for sandboxed scripts")
	rootCmd.PersistentFlags().String("sandbox-memory", config.DefaultSandboxMemory, "Memory limit for sandboxed scripts")
	rootCmd.PersistentFlags().Int("sandbox-cpu", config.DefaultSandboxCPU, "CPU limit for sandboxed scripts")

	// Observability flags
	rootCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address (empty disables)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Verbose (debug) logging")

	viper.BindPFlags(rootCmd.PersistentFlags())
}

func init() {
	config.SetViperDefaults()

	viper.SetConfigName("sandbox-runner.config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME")

	viper.SetEnvPrefix("SANDBOX_RUNNER")
	viper.AutomaticEnv()
}

// initConfig reads the .env file and config file when present.
func initConfig() {
	_ = godotenv.Load()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Printf("Error reading config file: %v\n", err)
		}
		// Config file not found; defaults, env and flags apply.
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("failed to build config: %w", err)
	}
	return run(cmd.Context(), cfg)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
