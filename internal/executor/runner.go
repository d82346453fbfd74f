package executor

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"time"
)

// MaxOutputBytes caps combined stdout+stderr of a child process. Exceeding
// it is a fatal error for that command.
const MaxOutputBytes = 10 << 20

// ErrTimeout marks a child process killed for exceeding its action-class
// timeout.
var ErrTimeout = errors.New("command timed out")

// ErrOutputLimit marks a child process killed for producing more than
// MaxOutputBytes of combined output.
var ErrOutputLimit = errors.New("command output exceeded limit")

// timeoutExitCode mirrors the conventional shell exit code for a killed,
// timed-out command.
const timeoutExitCode = 124

// Output holds what a child process produced. A non-zero ExitCode is a
// normal outcome; errors are reserved for spawn failures, timeouts and the
// output cap.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// ScriptRunner executes a rendered command string through a shell in the
// given working directory. Implementations must honor the timeout and the
// combined output cap.
type ScriptRunner interface {
	Run(ctx context.Context, script, workDir string, timeout time.Duration) (Output, error)
}

// ShellRunner runs scripts on the host through `sh -c`.
type ShellRunner struct{}

// NewShellRunner returns the host-shell script runner.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

// Run implements ScriptRunner.
func (r *ShellRunner) Run(ctx context.Context, script, workDir string, timeout time.Duration) (Output, error) {
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "sh", "-c", script)
	cmd.Dir = workDir

	limit := newOutputCap(MaxOutputBytes, cancel)
	stdout := limit.stream()
	stderr := limit.stream()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return Output{ExitCode: 1}, fmt.Errorf("failed to spawn process: %w", err)
	}
	waitErr := cmd.Wait()

	out := Output{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if limit.exceeded() {
		out.ExitCode = 1
		return out, fmt.Errorf("%w (%d bytes)", ErrOutputLimit, MaxOutputBytes)
	}
	if runCtx.Err() == context.DeadlineExceeded {
		out.ExitCode = killedExitCode(cmd)
		return out, fmt.Errorf("%w after %v", ErrTimeout, timeout)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		out.ExitCode = 1
		return out, fmt.Errorf("process failed: %w", waitErr)
	}
	return out, nil
}

// killedExitCode derives a non-zero exit code from a killed process,
// falling back to the conventional timeout code when the platform reports
// none.
func killedExitCode(cmd *exec.Cmd) int {
	if cmd.ProcessState != nil {
		if code := cmd.ProcessState.ExitCode(); code > 0 {
			return code
		}
	}
	return timeoutExitCode
}

// outputCap shares one byte budget across the stdout and stderr streams of
// a process and cancels the process when the budget is spent.
type outputCap struct {
	mu       sync.Mutex
	budget   int
	breached bool
	cancel   context.CancelFunc
}

func newOutputCap(budget int, cancel context.CancelFunc) *outputCap {
	return &outputCap{budget: budget, cancel: cancel}
}

func (c *outputCap) exceeded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.breached
}

func (c *outputCap) stream() *cappedStream {
	return &cappedStream{cap: c}
}

// cappedStream buffers one output stream against the shared budget. Writes
// past the budget are discarded so the pipe keeps draining until the kill
// takes effect.
type cappedStream struct {
	cap *outputCap
	buf []byte
}

func (s *cappedStream) Write(p []byte) (int, error) {
	s.cap.mu.Lock()
	defer s.cap.mu.Unlock()
	if s.cap.breached {
		return len(p), nil
	}
	n := len(p)
	if n > s.cap.budget {
		n = s.cap.budget
	}
	s.buf = append(s.buf, p[:n]...)
	s.cap.budget -= n
	if n < len(p) {
		s.cap.breached = true
		s.cap.cancel()
	}
	return len(p), nil
}

func (s *cappedStream) String() string {
	s.cap.mu.Lock()
	defer s.cap.mu.Unlock()
	return string(s.buf)
}
