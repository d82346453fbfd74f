package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/coverbot-io/sandbox-runner/internal/config"
)

// buildConfig constructs the runner configuration from Viper values.
func buildConfig() (*config.Config, error) {
	root, err := filepath.Abs(viper.GetString("root"))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve workspace root: %w", err)
	}

	cfg := &config.Config{
		RunID:         viper.GetString("run-id"),
		BaseURL:       viper.GetString("base-url"),
		AuthToken:     viper.GetString("token"),
		WorkspaceRoot: root,

		TestScript:     viper.GetString("test-script"),
		LintScript:     viper.GetString("lint-script"),
		CoverageScript: viper.GetString("coverage-script"),

		PollDuration:      viper.GetDuration("poll-duration"),
		PollInterval:      viper.GetDuration("poll-interval"),
		InactivityTimeout: viper.GetDuration("inactivity-timeout"),
		MaxPollFailures:   viper.GetInt("max-poll-failures"),
		MaxConcurrency:    viper.GetString("max-concurrency"),

		JournalEnabled: viper.GetBool("journal"),
		JournalPath:    viper.GetString("journal-path"),

		SandboxEnabled: viper.GetBool("sandbox"),
		SandboxImage:   viper.GetString("sandbox-image"),
		SandboxMemory:  viper.GetString("sandbox-memory"),
		SandboxCPU:     viper.GetInt("sandbox-cpu"),

		MetricsAddr: viper.GetString("metrics-addr"),
		Verbose:     viper.GetBool("verbose"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
