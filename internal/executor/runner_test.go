package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShellRunnerCapturesStreams(t *testing.T) {
	r := NewShellRunner()
	out, err := r.Run(context.Background(), "echo out; echo err 1>&2", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 0, out.ExitCode)
	assert.Equal(t, "out\n", out.Stdout)
	assert.Equal(t, "err\n", out.Stderr)
}

func TestShellRunnerNonZeroExitIsNotAnError(t *testing.T) {
	r := NewShellRunner()
	out, err := r.Run(context.Background(), "echo failing; exit 3", t.TempDir(), 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 3, out.ExitCode)
	assert.Equal(t, "failing\n", out.Stdout)
}

func TestShellRunnerHonorsWorkDir(t *testing.T) {
	dir := t.TempDir()
	r := NewShellRunner()
	out, err := r.Run(context.Background(), "pwd", dir, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, dir, strings.TrimSpace(out.Stdout))
}

func TestShellRunnerTimeout(t *testing.T) {
	r := NewShellRunner()
	start := time.Now()
	out, err := r.Run(context.Background(), "sleep 5", t.TempDir(), 100*time.Millisecond)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotZero(t, out.ExitCode)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShellRunnerOutputCap(t *testing.T) {
	if testing.Short() {
		t.Skip("generates tens of megabytes of output")
	}
	r := NewShellRunner()
	// ~16 MiB of zeroes, well past the 10 MiB budget.
	out, err := r.Run(context.Background(), "head -c 16777216 /dev/zero", t.TempDir(), 30*time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutputLimit)
	assert.Equal(t, 1, out.ExitCode)
	assert.LessOrEqual(t, len(out.Stdout)+len(out.Stderr), MaxOutputBytes)
}

func TestOutputCapSharedAcrossStreams(t *testing.T) {
	cancelled := false
	limit := newOutputCap(10, func() { cancelled = true })
	stdout := limit.stream()
	stderr := limit.stream()

	n, err := stdout.Write([]byte("123456"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.False(t, limit.exceeded())

	// Second stream spends the remaining budget and trips the cap.
	n, err = stderr.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	assert.True(t, limit.exceeded())
	assert.True(t, cancelled)

	// Post-breach writes are swallowed.
	_, err = stdout.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, "123456", stdout.String())
	assert.Equal(t, "abcd", stderr.String())
}
