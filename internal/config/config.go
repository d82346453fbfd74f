// Package config defines the runner's startup configuration, constructed
// once at bootstrap and passed explicitly into the components that need it.
package config

import (
	"fmt"
	"os"
	"time"
)

// Config is everything the runner needs to start. No component reads
// configuration ambiently; the struct is handed into constructors.
type Config struct {
	RunID         string
	BaseURL       string
	AuthToken     string
	WorkspaceRoot string

	TestScript     string
	LintScript     string
	CoverageScript string

	PollDuration      time.Duration
	PollInterval      time.Duration
	InactivityTimeout time.Duration
	MaxPollFailures   int

	// MaxConcurrency is kept raw so an invalid value can be detected,
	// warned about and ignored rather than silently defaulted.
	MaxConcurrency string

	JournalEnabled bool
	JournalPath    string

	SandboxEnabled bool
	SandboxImage   string
	SandboxMemory  string
	SandboxCPU     int

	MetricsAddr string

	Verbose bool
}

// Validate checks the fields the runner cannot start without.
func (c *Config) Validate() error {
	if c.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if c.BaseURL == "" {
		return fmt.Errorf("control plane base URL is required")
	}
	if c.AuthToken == "" {
		return fmt.Errorf("auth token is required")
	}
	if _, err := os.Stat(c.WorkspaceRoot); err != nil {
		return fmt.Errorf("workspace root does not exist: %w", err)
	}
	return nil
}
