// Package command defines the wire-level data model shared between the
// runner and the control plane: commands, their payloads, and results.
package command

import (
	"fmt"
	"time"
)

// Action identifies what a command asks the runner to do.
type Action string

// File actions operate on the workspace; runner actions address the
// runner process itself.
const (
	ActionRead          Action = "read"
	ActionWrite         Action = "write"
	ActionLint          Action = "lint"
	ActionTest          Action = "test"
	ActionLintRead      Action = "lint_read"
	ActionWriteLintRead Action = "write_lint_read"
	ActionCoverage      Action = "coverage"
	ActionDelete        Action = "delete"
	ActionScript        Action = "script"
	ActionTerminate     Action = "terminate"
)

// IsFileAction reports whether the action targets workspace files.
func (a Action) IsFileAction() bool {
	switch a {
	case ActionRead, ActionWrite, ActionLint, ActionTest, ActionLintRead,
		ActionWriteLintRead, ActionCoverage, ActionDelete:
		return true
	}
	return false
}

// IsRunnerAction reports whether the action addresses the runner itself.
func (a Action) IsRunnerAction() bool {
	return a == ActionScript || a == ActionTerminate
}

// Known reports whether the action is part of the wire contract.
func (a Action) Known() bool {
	return a.IsFileAction() || a.IsRunnerAction()
}

// Payload is the tagged union carried by a command. Action is the
// discriminant; which of the optional fields are required depends on it.
type Payload struct {
	Action Action `json:"action"`

	// File payload fields.
	FilePath         string   `json:"filePath,omitempty"`
	FileContents     *string  `json:"fileContents,omitempty"`
	OriginalFilePath string   `json:"originalFilePath,omitempty"`
	AppDir           string   `json:"appDir,omitempty"`
	TestFilePaths    []string `json:"testFilePaths,omitempty"`

	// Runner payload fields.
	Script string `json:"script,omitempty"`
}

// Validate checks that the discriminant is known and that the fields the
// action requires are present. Execution-time requirements (configured
// scripts) are checked by the executor, not here.
func (p Payload) Validate() error {
	if !p.Action.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownAction, p.Action)
	}
	if p.Action.IsFileAction() && p.Action != ActionCoverage && p.FilePath == "" {
		return fmt.Errorf("action %q requires filePath", p.Action)
	}
	switch p.Action {
	case ActionWrite, ActionWriteLintRead:
		if p.FileContents == nil {
			return fmt.Errorf("action %q requires fileContents", p.Action)
		}
	case ActionCoverage:
		if len(p.TestFilePaths) == 0 {
			return fmt.Errorf("action %q requires testFilePaths", p.Action)
		}
	case ActionScript:
		if p.Script == "" {
			return fmt.Errorf("action %q requires script", p.Action)
		}
	}
	return nil
}

// Command is a single unit of work emitted by the control plane.
// Commands are immutable once received; identity is ID.
type Command struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   Payload   `json:"payload"`
}

// OutcomeType distinguishes file results from runner results on the wire.
type OutcomeType string

const (
	OutcomeFile   OutcomeType = "file"
	OutcomeRunner OutcomeType = "runner"
)

// Outcome describes how a single command finished. A non-zero exit code is
// a normal outcome, not an error; Error is populated when the command could
// not be carried out at all (missing script, spawn failure, timeout).
type Outcome struct {
	Type        OutcomeType `json:"type"`
	Stdout      string      `json:"stdout"`
	Stderr      string      `json:"stderr"`
	ExitCode    int         `json:"exitCode"`
	Error       string      `json:"error,omitempty"`
	CompletedAt time.Time   `json:"completedAt"`

	// FileContents is set by read-like file actions.
	FileContents string `json:"fileContents,omitempty"`
}

// Result pairs a command id with its outcome for reporting.
type Result struct {
	ID      string  `json:"id"`
	Outcome Outcome `json:"outcome"`
}

// ExecutionConfig is the server-supplied execution tuning. All fields are
// optional; absent values fall back to local configuration and defaults.
type ExecutionConfig struct {
	MaxConcurrency *int `json:"maxConcurrency,omitempty"`
}

// OutcomeTypeFor returns the wire outcome type for an action.
func OutcomeTypeFor(a Action) OutcomeType {
	if a.IsRunnerAction() {
		return OutcomeRunner
	}
	return OutcomeFile
}
