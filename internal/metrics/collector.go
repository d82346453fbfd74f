// Package metrics exposes Prometheus counters for the dispatch loop and
// gauges mirroring the limiter's occupancy.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/coverbot-io/sandbox-runner/internal/limiter"
)

// Collector holds the runner's Prometheus instruments. A nil *Collector is
// a no-op so metrics stay optional.
type Collector struct {
	PollsTotal         prometheus.Counter
	PollErrors         prometheus.Counter
	CommandsDispatched prometheus.Counter
	CommandsCompleted  prometheus.Counter
	CommandsFailed     prometheus.Counter
}

// NewCollector registers the runner instruments with reg, including gauge
// funcs sampling the limiter's queued/running/done counts.
func NewCollector(reg prometheus.Registerer, lim *limiter.Limiter) *Collector {
	c := &Collector{
		PollsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_runner_polls_total",
			Help: "Number of poll requests issued.",
		}),
		PollErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_runner_poll_errors_total",
			Help: "Number of poll requests that failed.",
		}),
		CommandsDispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_runner_commands_dispatched_total",
			Help: "Commands handed to the executor.",
		}),
		CommandsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_runner_commands_completed_total",
			Help: "Commands that finished with exit code zero.",
		}),
		CommandsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sandbox_runner_commands_failed_total",
			Help: "Commands that finished with a non-zero exit code or error.",
		}),
	}
	reg.MustRegister(c.PollsTotal, c.PollErrors, c.CommandsDispatched,
		c.CommandsCompleted, c.CommandsFailed)

	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sandbox_runner_jobs_queued",
		Help: "Jobs waiting for a limiter slot.",
	}, func() float64 { return float64(lim.Counts().Queued) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sandbox_runner_jobs_running",
		Help: "Jobs currently executing.",
	}, func() float64 { return float64(lim.Counts().Running) }))
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sandbox_runner_jobs_done",
		Help: "Jobs finished since process start.",
	}, func() float64 { return float64(lim.Counts().Done) }))

	return c
}

// Poll records a poll attempt and whether it failed.
func (c *Collector) Poll(failed bool) {
	if c == nil {
		return
	}
	c.PollsTotal.Inc()
	if failed {
		c.PollErrors.Inc()
	}
}

// Dispatched records a command handed to the executor.
func (c *Collector) Dispatched() {
	if c == nil {
		return
	}
	c.CommandsDispatched.Inc()
}

// Finished records a command outcome.
func (c *Collector) Finished(failed bool) {
	if c == nil {
		return
	}
	if failed {
		c.CommandsFailed.Inc()
	} else {
		c.CommandsCompleted.Inc()
	}
}
