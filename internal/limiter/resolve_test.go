package limiter

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coverbot-io/sandbox-runner/internal/command"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func intPtr(n int) *int { return &n }

func TestResolveMaxConcurrency(t *testing.T) {
	tests := []struct {
		name   string
		local  string
		server *command.ExecutionConfig
		want   int
	}{
		{"local wins over server", "8", &command.ExecutionConfig{MaxConcurrency: intPtr(3)}, 8},
		{"server when local absent", "", &command.ExecutionConfig{MaxConcurrency: intPtr(3)}, 3},
		{"default when both absent", "", nil, DefaultMaxConcurrency},
		{"default when server config empty", "", &command.ExecutionConfig{}, DefaultMaxConcurrency},
		{"invalid local falls through to server", "lots", &command.ExecutionConfig{MaxConcurrency: intPtr(4)}, 4},
		{"non-positive local falls through", "0", &command.ExecutionConfig{MaxConcurrency: intPtr(4)}, 4},
		{"negative server ignored", "", &command.ExecutionConfig{MaxConcurrency: intPtr(-2)}, DefaultMaxConcurrency},
		{"invalid local and no server hits default", "-1", nil, DefaultMaxConcurrency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveMaxConcurrency(tt.local, tt.server, testLogger())
			assert.Equal(t, tt.want, got)
		})
	}
}
