// Package config owns the Viper default values and key names shared by the
// CLI layer.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default tuning values.
const (
	DefaultPollDuration      = 2 * time.Hour
	DefaultPollInterval      = 2 * time.Second
	DefaultInactivityTimeout = 10 * time.Minute
	DefaultMaxPollFailures   = 10
	DefaultJournalPath       = "./sandbox-runner.journal.db"
	DefaultSandboxImage      = "ubuntu:22.04"
	DefaultSandboxMemory     = "2g"
	DefaultSandboxCPU        = 2
)

// SetViperDefaults sets all default configuration values in Viper.
func SetViperDefaults() {
	viper.SetDefault("root", ".")
	viper.SetDefault("poll-duration", DefaultPollDuration)
	viper.SetDefault("poll-interval", DefaultPollInterval)
	viper.SetDefault("inactivity-timeout", DefaultInactivityTimeout)
	viper.SetDefault("max-poll-failures", DefaultMaxPollFailures)

	viper.SetDefault("journal", false)
	viper.SetDefault("journal-path", DefaultJournalPath)

	viper.SetDefault("sandbox", false)
	viper.SetDefault("sandbox-image", DefaultSandboxImage)
	viper.SetDefault("sandbox-memory", DefaultSandboxMemory)
	viper.SetDefault("sandbox-cpu", DefaultSandboxCPU)

	viper.SetDefault("metrics-addr", "")
	viper.SetDefault("verbose", false)
}
