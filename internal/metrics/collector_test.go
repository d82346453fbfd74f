package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coverbot-io/sandbox-runner/internal/limiter"
)

func TestCollectorCounts(t *testing.T) {
	lim := limiter.New(1)
	defer lim.Close()
	reg := prometheus.NewRegistry()
	c := NewCollector(reg, lim)

	c.Poll(false)
	c.Poll(false)
	c.Poll(true)
	c.Dispatched()
	c.Finished(false)
	c.Finished(true)

	assert.Equal(t, float64(3), testutil.ToFloat64(c.PollsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.PollErrors))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CommandsDispatched))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CommandsCompleted))
	assert.Equal(t, float64(1), testutil.ToFloat64(c.CommandsFailed))
}

func TestGaugesSampleLimiter(t *testing.T) {
	lim := limiter.New(1)
	defer lim.Close()
	reg := prometheus.NewRegistry()
	NewCollector(reg, lim)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["sandbox_runner_jobs_queued"])
	assert.True(t, names["sandbox_runner_jobs_running"])
	assert.True(t, names["sandbox_runner_jobs_done"])
}

func TestNilCollectorIsNoOp(t *testing.T) {
	var c *Collector
	c.Poll(true)
	c.Dispatched()
	c.Finished(true)
}
