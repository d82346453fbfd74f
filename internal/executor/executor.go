// Package executor maps abstract command actions onto concrete filesystem
// operations and child-process executions.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/coverbot-io/sandbox-runner/internal/command"
	"github.com/coverbot-io/sandbox-runner/internal/template"
)

// LintSkippedMarker is written to stderr when a lint action runs without a
// configured lint script. The pipeline treats this as success.
const LintSkippedMarker = "LINT_SKIPPED"

// Scripts holds the configured script templates. Empty templates mean the
// corresponding action is unavailable (lint degrades to a skip, the others
// fail the command).
type Scripts struct {
	Test     string
	Lint     string
	Coverage string
}

// Timeouts are the per-action-class process deadlines.
type Timeouts struct {
	Lint     time.Duration
	Coverage time.Duration
	Script   time.Duration
}

// DefaultTimeouts returns the contract timeouts: lint 2m, coverage 10m,
// everything else 5m.
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Lint:     2 * time.Minute,
		Coverage: 10 * time.Minute,
		Script:   5 * time.Minute,
	}
}

// Executor performs command actions against a workspace root. Errors local
// to a command become failed outcomes; Execute never panics and never
// returns an error to the dispatch loop.
type Executor struct {
	root     string
	scripts  Scripts
	runner   ScriptRunner
	timeouts Timeouts
	logger   *slog.Logger
}

// New creates an Executor rooted at the workspace directory.
func New(root string, scripts Scripts, runner ScriptRunner, logger *slog.Logger) *Executor {
	return &Executor{
		root:     root,
		scripts:  scripts,
		runner:   runner,
		timeouts: DefaultTimeouts(),
		logger:   logger,
	}
}

// SetTimeouts overrides the action-class timeouts. Zero fields keep their
// defaults.
func (e *Executor) SetTimeouts(t Timeouts) {
	if t.Lint > 0 {
		e.timeouts.Lint = t.Lint
	}
	if t.Coverage > 0 {
		e.timeouts.Coverage = t.Coverage
	}
	if t.Script > 0 {
		e.timeouts.Script = t.Script
	}
}

// Execute performs one command and normalizes the result. Configuration
// problems (unknown action, missing field, missing script) are returned as
// failed outcomes with exit code 1.
func (e *Executor) Execute(ctx context.Context, cmd command.Command) command.Outcome {
	p := cmd.Payload
	if err := p.Validate(); err != nil {
		return e.failure(p.Action, err)
	}

	switch p.Action {
	case command.ActionRead:
		return e.read(p)
	case command.ActionWrite:
		return e.write(p)
	case command.ActionDelete:
		return e.delete(p)
	case command.ActionLint:
		return e.lint(ctx, p)
	case command.ActionTest:
		return e.test(ctx, p)
	case command.ActionCoverage:
		return e.coverage(ctx, p)
	case command.ActionLintRead:
		return e.lintRead(ctx, p)
	case command.ActionWriteLintRead:
		return e.writeLintRead(ctx, p)
	case command.ActionScript:
		return e.script(ctx, p)
	case command.ActionTerminate:
		// Termination is handled by the dispatch loop; the outcome only
		// confirms receipt.
		return e.success(p.Action, Output{})
	}
	return e.failure(p.Action, fmt.Errorf("%w: %q", command.ErrUnknownAction, p.Action))
}

func (e *Executor) read(p command.Payload) command.Outcome {
	abs, _ := e.resolve(p.FilePath, p.AppDir)
	data, err := os.ReadFile(abs)
	if err != nil {
		return e.failure(p.Action, fmt.Errorf("cannot read %s: %w", abs, err))
	}
	out := e.success(p.Action, Output{})
	out.FileContents = string(data)
	return out
}

func (e *Executor) write(p command.Payload) command.Outcome {
	abs, _ := e.resolve(p.FilePath, p.AppDir)
	if err := os.MkdirAll(filepath.Dir(abs), 0755); err != nil {
		return e.failure(p.Action, fmt.Errorf("cannot create parent directory for %s: %w", abs, err))
	}
	if err := os.WriteFile(abs, []byte(*p.FileContents), 0644); err != nil {
		return e.failure(p.Action, fmt.Errorf("cannot write %s: %w", abs, err))
	}
	return e.success(p.Action, Output{})
}

func (e *Executor) delete(p command.Payload) command.Outcome {
	abs, _ := e.resolve(p.FilePath, p.AppDir)
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return e.failure(p.Action, fmt.Errorf("cannot delete %s: %w", abs, err))
	}
	// A missing file counts as a successful delete.
	return e.success(p.Action, Output{})
}

func (e *Executor) lint(ctx context.Context, p command.Payload) command.Outcome {
	if e.scripts.Lint == "" {
		return e.success(p.Action, Output{Stderr: LintSkippedMarker + ": no lint script configured"})
	}
	_, rel := e.resolve(p.FilePath, p.AppDir)
	script := template.Render(e.scripts.Lint, template.Vars{File: rel})
	return e.runScript(ctx, p.Action, script, e.baseDir(p.AppDir), e.timeouts.Lint)
}

func (e *Executor) test(ctx context.Context, p command.Payload) command.Outcome {
	if e.scripts.Test == "" {
		return e.failure(p.Action, fmt.Errorf("no test script configured"))
	}
	_, rel := e.resolve(p.FilePath, p.AppDir)
	vars := template.Vars{File: rel}
	if p.OriginalFilePath != "" {
		_, vars.OriginalFile = e.resolve(p.OriginalFilePath, p.AppDir)
	}
	script := template.Render(e.scripts.Test, vars)
	return e.runScript(ctx, p.Action, script, e.baseDir(p.AppDir), e.timeouts.Script)
}

func (e *Executor) coverage(ctx context.Context, p command.Payload) command.Outcome {
	if e.scripts.Coverage == "" {
		return e.failure(p.Action, fmt.Errorf("no coverage script configured"))
	}
	rels := make([]string, 0, len(p.TestFilePaths))
	for _, tp := range p.TestFilePaths {
		rels = append(rels, e.relativize(tp, p.AppDir))
	}
	script := template.Render(e.scripts.Coverage, template.Vars{TestFilePaths: rels})
	return e.runScript(ctx, p.Action, script, e.baseDir(p.AppDir), e.timeouts.Coverage)
}

// lintRead lints, then reads the file and returns its contents under the
// lint step's exit code and output. A failing lint short-circuits with
// empty contents; a skipped lint still proceeds to the read.
func (e *Executor) lintRead(ctx context.Context, p command.Payload) command.Outcome {
	lintOut := e.lint(ctx, p)
	if lintOut.ExitCode != 0 || lintOut.Error != "" {
		lintOut.FileContents = ""
		return lintOut
	}
	readOut := e.read(p)
	if readOut.Error != "" {
		return readOut
	}
	lintOut.FileContents = readOut.FileContents
	lintOut.CompletedAt = readOut.CompletedAt
	return lintOut
}

func (e *Executor) writeLintRead(ctx context.Context, p command.Payload) command.Outcome {
	writeOut := e.write(p)
	if writeOut.ExitCode != 0 || writeOut.Error != "" {
		writeOut.FileContents = ""
		return writeOut
	}
	return e.lintRead(ctx, p)
}

func (e *Executor) script(ctx context.Context, p command.Payload) command.Outcome {
	// Raw scripts run in the process's current working directory.
	return e.runScript(ctx, p.Action, p.Script, "", e.timeouts.Script)
}

// runScript executes a rendered script and folds every process-level
// failure into the outcome.
func (e *Executor) runScript(ctx context.Context, action command.Action, script, dir string, timeout time.Duration) command.Outcome {
	e.logger.Debug("running script", "action", action, "dir", dir, "timeout", timeout)
	out, err := e.runner.Run(ctx, script, dir, timeout)
	outcome := command.Outcome{
		Type:        command.OutcomeTypeFor(action),
		Stdout:      out.Stdout,
		Stderr:      out.Stderr,
		ExitCode:    out.ExitCode,
		CompletedAt: time.Now().UTC(),
	}
	if err != nil {
		outcome.Error = err.Error()
		if outcome.ExitCode == 0 {
			outcome.ExitCode = 1
		}
	}
	return outcome
}

func (e *Executor) success(action command.Action, out Output) command.Outcome {
	return command.Outcome{
		Type:        command.OutcomeTypeFor(action),
		Stdout:      out.Stdout,
		Stderr:      out.Stderr,
		ExitCode:    0,
		CompletedAt: time.Now().UTC(),
	}
}

func (e *Executor) failure(action command.Action, err error) command.Outcome {
	return command.Outcome{
		Type:        command.OutcomeTypeFor(action),
		ExitCode:    1,
		Error:       err.Error(),
		CompletedAt: time.Now().UTC(),
	}
}
