// Package sandbox runs command scripts inside Docker containers instead of
// a host shell. It implements the same runner contract as the shell runner:
// per-action timeout, combined output cap, non-zero exits captured as data.
package sandbox

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/strslice"
	"github.com/docker/docker/client"

	"github.com/coverbot-io/sandbox-runner/internal/executor"
)

const timeoutExitCode = 124

// Config holds sandbox tuning. WorkspaceRoot is bind-mounted read-write at
// /workspace so file-producing scripts behave like the host runner.
type Config struct {
	Image         string
	WorkspaceRoot string
	MemoryLimit   string
	CPULimit      int
}

// Runner executes scripts in one-shot containers. It satisfies
// executor.ScriptRunner.
type Runner struct {
	cfg Config
	cli *client.Client
}

// NewRunner verifies Docker availability, ensures the image is present and
// returns a container-backed script runner.
func NewRunner(ctx context.Context, cfg Config) (*Runner, error) {
	if cfg.Image == "" {
		return nil, fmt.Errorf("sandbox: container image cannot be empty")
	}
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("sandbox: Docker not available: %w", err)
	}
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("sandbox: Docker not available: %w", err)
	}
	if err := pullImage(ctx, cli, cfg.Image); err != nil {
		cli.Close()
		return nil, err
	}
	return &Runner{cfg: cfg, cli: cli}, nil
}

// Close releases the Docker client.
func (r *Runner) Close() error {
	return r.cli.Close()
}

// Run executes the script with `sh -c` inside a fresh container. workDir is
// interpreted relative to the mounted workspace; an empty workDir runs at
// the workspace root.
func (r *Runner) Run(ctx context.Context, script, workDir string, timeout time.Duration) (executor.Output, error) {
	start := time.Now()
	out := executor.Output{}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	containerCfg := &container.Config{
		Image:      r.cfg.Image,
		Cmd:        strslice.StrSlice{"sh", "-c", script},
		WorkingDir: containerWorkDir(r.cfg.WorkspaceRoot, workDir),
	}
	hostCfg := &container.HostConfig{
		NetworkMode: "none",
		Resources: container.Resources{
			Memory:   parseMemoryLimit(r.cfg.MemoryLimit),
			NanoCPUs: int64(r.cfg.CPULimit) * 1_000_000_000,
		},
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: r.cfg.WorkspaceRoot,
				Target: "/workspace",
			},
		},
		CapDrop:     strslice.StrSlice{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
	}

	resp, err := r.cli.ContainerCreate(runCtx, containerCfg, hostCfg, nil, nil, "")
	if err != nil {
		out.ExitCode = 1
		return out, fmt.Errorf("failed to spawn container: %w", err)
	}
	defer r.cli.ContainerRemove(context.Background(), resp.ID, types.ContainerRemoveOptions{Force: true})

	if err := r.cli.ContainerStart(runCtx, resp.ID, types.ContainerStartOptions{}); err != nil {
		out.ExitCode = 1
		return out, fmt.Errorf("failed to start container: %w", err)
	}

	timedOut := false
	statusCh, errCh := r.cli.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		if err != nil {
			if runCtx.Err() == context.DeadlineExceeded {
				timedOut = true
			} else {
				out.ExitCode = 1
				return out, fmt.Errorf("error waiting for container: %w", err)
			}
		}
	case status := <-statusCh:
		out.ExitCode = int(status.StatusCode)
	case <-runCtx.Done():
		timedOut = true
	}

	// Logs are read with a fresh context so a timed-out run still reports
	// the output it produced before the kill.
	logCtx, logCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer logCancel()
	logReader, err := r.cli.ContainerLogs(logCtx, resp.ID, types.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err == nil {
		var stdout, stderr strings.Builder
		_ = demuxLogs(io.LimitReader(logReader, executor.MaxOutputBytes+1), &stdout, &stderr)
		logReader.Close()
		out.Stdout = stdout.String()
		out.Stderr = stderr.String()
	}
	out.Duration = time.Since(start)

	if len(out.Stdout)+len(out.Stderr) > executor.MaxOutputBytes {
		out.Stdout = truncate(out.Stdout, executor.MaxOutputBytes)
		out.Stderr = truncate(out.Stderr, executor.MaxOutputBytes-len(out.Stdout))
		out.ExitCode = 1
		return out, fmt.Errorf("%w (%d bytes)", executor.ErrOutputLimit, executor.MaxOutputBytes)
	}
	if timedOut {
		out.ExitCode = timeoutExitCode
		return out, fmt.Errorf("%w after %v", executor.ErrTimeout, timeout)
	}
	return out, nil
}

// containerWorkDir maps a host working directory beneath the workspace root
// to its in-container path.
func containerWorkDir(root, workDir string) string {
	if workDir == "" || workDir == root {
		return "/workspace"
	}
	rel := strings.TrimPrefix(workDir, strings.TrimSuffix(root, "/")+"/")
	if rel == workDir {
		// Outside the workspace; fall back to the root mount.
		return "/workspace"
	}
	return "/workspace/" + rel
}

func truncate(s string, n int) string {
	if n < 0 {
		n = 0
	}
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func pullImage(ctx context.Context, cli *client.Client, image string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}
	reader, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("sandbox: failed to pull image %s: %w", image, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("sandbox: failed to pull image %s: %w", image, err)
	}
	return nil
}

// parseMemoryLimit converts a memory limit string (e.g. "512m", "2g") to
// bytes. Unknown formats disable the limit.
func parseMemoryLimit(limit string) int64 {
	if limit == "" {
		return 0
	}
	if strings.HasSuffix(limit, "m") || strings.HasSuffix(limit, "M") {
		var mb int64
		fmt.Sscanf(limit, "%d", &mb)
		return mb * 1024 * 1024
	}
	if strings.HasSuffix(limit, "g") || strings.HasSuffix(limit, "G") {
		var gb int64
		fmt.Sscanf(limit, "%d", &gb)
		return gb * 1024 * 1024 * 1024
	}
	return 0
}

// demuxLogs separates stdout and stderr from Docker's multiplexed log
// stream (8-byte headers: stream type, three zero bytes, big-endian size).
func demuxLogs(reader io.Reader, stdout, stderr io.Writer) error {
	buf := make([]byte, 8)
	for {
		if _, err := io.ReadFull(reader, buf); err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			return err
		}
		streamType := buf[0]
		size := int(buf[4])<<24 | int(buf[5])<<16 | int(buf[6])<<8 | int(buf[7])
		payload := make([]byte, size)
		if _, err := io.ReadFull(reader, payload); err != nil {
			return err
		}
		switch streamType {
		case 1:
			stdout.Write(payload)
		case 2:
			stderr.Write(payload)
		}
	}
}
