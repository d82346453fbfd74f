// Package loop drives the runner: it polls the control plane, acknowledges
// and deduplicates commands, hands them to the limiter-gated executor and
// owns the process lifetime.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/coverbot-io/sandbox-runner/internal/command"
	"github.com/coverbot-io/sandbox-runner/internal/journal"
	"github.com/coverbot-io/sandbox-runner/internal/limiter"
	"github.com/coverbot-io/sandbox-runner/internal/metrics"
	"github.com/coverbot-io/sandbox-runner/internal/remote"
)

// ErrPollBudgetExhausted terminates the run after too many consecutive
// failed polls.
var ErrPollBudgetExhausted = errors.New("consecutive poll failures exhausted budget")

// API is the slice of the remote client the loop needs. Narrowed to an
// interface so tests can drive the loop without HTTP.
type API interface {
	Poll(ctx context.Context) ([]command.Command, error)
	Ack(ctx context.Context, commandID string) error
	PushResult(ctx context.Context, result command.Result) error
}

// Executor runs one command to completion. Implementations never return an
// error; failures are folded into the outcome.
type Executor interface {
	Execute(ctx context.Context, cmd command.Command) command.Outcome
}

// Config is the loop's timing and budget configuration.
type Config struct {
	PollInterval      time.Duration
	PollDuration      time.Duration
	InactivityTimeout time.Duration
	MaxPollFailures   int
	DrainTimeout      time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.PollDuration <= 0 {
		c.PollDuration = 2 * time.Hour
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 10 * time.Minute
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 10
	}
	if c.DrainTimeout <= 0 {
		c.DrainTimeout = time.Minute
	}
}

// Loop is the top-level dispatch driver. The pending-ack and dispatched
// sets are mutated only by Run's goroutine, so they need no locking.
type Loop struct {
	client  API
	exec    Executor
	lim     *limiter.Limiter
	cfg     Config
	journal *journal.Journal
	metrics *metrics.Collector
	logger  *slog.Logger

	// pendingAck holds commands polled but not yet acknowledged, ackOrder
	// preserves their receipt order. dispatched holds every command id
	// handed to the executor in this process lifetime.
	pendingAck map[string]command.Command
	ackOrder   []string
	dispatched map[string]struct{}

	// execCtx outlives the polling phase so in-flight commands can finish
	// during the drain window.
	execCtx    context.Context
	execCancel context.CancelFunc
}

// New assembles a dispatch loop. journal and collector may be nil.
func New(client API, exec Executor, lim *limiter.Limiter, cfg Config, jnl *journal.Journal, collector *metrics.Collector, logger *slog.Logger) *Loop {
	cfg.applyDefaults()
	execCtx, execCancel := context.WithCancel(context.Background())
	return &Loop{
		client:     client,
		exec:       exec,
		lim:        lim,
		cfg:        cfg,
		journal:    jnl,
		metrics:    collector,
		logger:     logger,
		pendingAck: make(map[string]command.Command),
		dispatched: make(map[string]struct{}),
		execCtx:    execCtx,
		execCancel: execCancel,
	}
}

// Run polls until the configured duration elapses, a terminate command is
// acknowledged, the inactivity window passes, or the consecutive
// poll-failure budget is spent. It returns nil for every clean stop; only
// authentication failure and the exhausted poll budget are errors.
func (l *Loop) Run(ctx context.Context) error {
	deadline := time.Now().Add(l.cfg.PollDuration)
	lastActivity := time.Now()
	failures := 0

	l.logger.Info("dispatch loop started",
		"pollInterval", l.cfg.PollInterval,
		"pollDuration", l.cfg.PollDuration,
		"inactivityTimeout", l.cfg.InactivityTimeout)

	for {
		if ctx.Err() != nil {
			l.logger.Info("dispatch loop interrupted, draining")
			return l.drain()
		}
		if time.Now().After(deadline) {
			l.logger.Info("polling duration elapsed, draining")
			return l.drain()
		}

		cmds, err := l.client.Poll(ctx)
		l.metrics.Poll(err != nil)
		if err != nil {
			if errors.Is(err, remote.ErrUnauthorized) {
				// Fatal, never retried.
				l.drainBestEffort()
				return err
			}
			failures++
			l.logger.Warn("poll failed", "consecutiveFailures", failures, "err", err)
			if failures >= l.cfg.MaxPollFailures {
				l.drainBestEffort()
				return fmt.Errorf("%w (%d)", ErrPollBudgetExhausted, failures)
			}
		} else {
			failures = 0
			if len(cmds) > 0 {
				lastActivity = time.Now()
				l.receive(cmds)
			}
			if stop := l.ackAndDispatch(ctx); stop {
				l.logger.Info("terminate command acknowledged, draining")
				return l.drain()
			}
		}

		if time.Since(lastActivity) > l.cfg.InactivityTimeout {
			l.logger.Info("no commands received within inactivity window, draining",
				"window", l.cfg.InactivityTimeout)
			return l.drain()
		}

		select {
		case <-ctx.Done():
			l.logger.Info("dispatch loop interrupted, draining")
			return l.drain()
		case <-time.After(l.cfg.PollInterval):
		}
	}
}

// receive folds a poll batch into the pending-ack set, dropping anything
// already dispatched or already pending.
func (l *Loop) receive(cmds []command.Command) {
	for _, cmd := range cmds {
		if _, ok := l.dispatched[cmd.ID]; ok {
			continue
		}
		if _, ok := l.pendingAck[cmd.ID]; ok {
			continue
		}
		l.pendingAck[cmd.ID] = cmd
		l.ackOrder = append(l.ackOrder, cmd.ID)
		if err := l.journal.Record(cmd.ID, string(cmd.Payload.Action), journal.EventReceived, 0, ""); err != nil {
			l.logger.Warn("journal write failed", "commandId", cmd.ID, "err", err)
		}
	}
}

// ackAndDispatch acknowledges pending commands in receipt order and hands
// each acknowledged command to the executor exactly once. Commands whose
// ack fails stay pending for the next cycle. Returns true when a terminate
// command was acknowledged.
func (l *Loop) ackAndDispatch(ctx context.Context) bool {
	var remaining []string
	stop := false

	for i, id := range l.ackOrder {
		cmd, ok := l.pendingAck[id]
		if !ok {
			continue
		}
		if stop {
			remaining = append(remaining, l.ackOrder[i:]...)
			break
		}
		if err := l.client.Ack(ctx, id); err != nil {
			l.logger.Warn("ack failed, will retry next cycle", "commandId", id, "err", err)
			remaining = append(remaining, id)
			continue
		}
		delete(l.pendingAck, id)
		l.dispatched[id] = struct{}{}
		if err := l.journal.Record(id, string(cmd.Payload.Action), journal.EventAcked, 0, ""); err != nil {
			l.logger.Warn("journal write failed", "commandId", id, "err", err)
		}

		if cmd.Payload.Action == command.ActionTerminate {
			l.reportOutcome(cmd, command.Outcome{
				Type:        command.OutcomeRunner,
				ExitCode:    0,
				CompletedAt: time.Now().UTC(),
			})
			stop = true
			continue
		}
		l.dispatch(cmd)
	}

	l.ackOrder = remaining
	return stop
}

// dispatch schedules one acknowledged command onto the limiter. Execution
// is fire-and-forget relative to the poll cycle.
func (l *Loop) dispatch(cmd command.Command) {
	job := func() {
		outcome := l.exec.Execute(l.execCtx, cmd)
		l.reportOutcome(cmd, outcome)
	}
	if err := l.lim.Schedule(job); err != nil {
		l.logger.Error("failed to schedule command", "commandId", cmd.ID, "err", err)
		l.reportOutcome(cmd, command.Outcome{
			Type:        command.OutcomeTypeFor(cmd.Payload.Action),
			ExitCode:    1,
			Error:       fmt.Sprintf("scheduling failed: %v", err),
			CompletedAt: time.Now().UTC(),
		})
		return
	}
	l.metrics.Dispatched()
}

// reportOutcome pushes a result to the control plane and records it. Called
// from the loop goroutine for scheduling failures and from limiter workers
// for executed commands; everything it touches is concurrency-safe.
func (l *Loop) reportOutcome(cmd command.Command, outcome command.Outcome) {
	failed := outcome.ExitCode != 0 || outcome.Error != ""
	l.metrics.Finished(failed)
	if err := l.journal.Record(cmd.ID, string(cmd.Payload.Action), journal.EventResult, outcome.ExitCode, outcome.Error); err != nil {
		l.logger.Warn("journal write failed", "commandId", cmd.ID, "err", err)
	}

	result := command.Result{ID: cmd.ID, Outcome: outcome}
	if err := l.client.PushResult(l.execCtx, result); err != nil {
		l.logger.Error("failed to push command result", "commandId", cmd.ID, "err", err)
		return
	}
	l.logger.Info("command finished",
		"commandId", cmd.ID,
		"action", cmd.Payload.Action,
		"exitCode", outcome.ExitCode,
		"failed", failed)
}

// drain stops admission and waits for in-flight commands within the drain
// window, then cancels whatever is still running.
func (l *Loop) drain() error {
	l.drainBestEffort()
	return nil
}

func (l *Loop) drainBestEffort() {
	l.lim.Close()
	drainCtx, cancel := context.WithTimeout(context.Background(), l.cfg.DrainTimeout)
	defer cancel()
	if err := l.lim.Drain(drainCtx); err != nil {
		l.logger.Warn("drain window expired with commands still running")
	}
	l.execCancel()
}
