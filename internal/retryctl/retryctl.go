// Package retryctl triggers reruns of failed workflow runs, with optional
// exponential backoff across attempts.
//
// Success means the retrigger was accepted, not that the rerun passed.
// Discovery of the new run is best effort: a triggered rerun whose new run
// cannot be located still reports success with the identifier omitted.
package retryctl

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/config"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
	"github.com/fyrsmithlabs/pipemedic/internal/scanner"
)

// Outcome is the terminal result of a retry operation. A backoff sequence
// collapses into a single Outcome summarizing all attempts.
type Outcome struct {
	OK        bool   `json:"ok"`
	NewRunID  int64  `json:"new_run_id,omitempty"`
	NewRunURL string `json:"new_run_url,omitempty"`
	Attempts  int    `json:"attempts"`
	Err       string `json:"error,omitempty"`
}

// Host is the workflow-run surface the controller needs.
type Host interface {
	Rerun(ctx context.Context, repo string, runID int64) error
	RerunFailedJobs(ctx context.Context, repo string, runID int64) error
	GetRun(ctx context.Context, repo string, runID int64) (ghapi.Run, error)
	LatestRunOfWorkflow(ctx context.Context, repo string, workflowID, excludeRunID int64) (*ghapi.Run, error)
}

// Retryable reports whether a terminal conclusion is eligible for retry.
// Only these three are accepted; anything else (success, skipped, neutral,
// action_required) is out of scope.
func Retryable(conclusion string) bool {
	switch conclusion {
	case scanner.ConclusionFailure, scanner.ConclusionTimedOut, scanner.ConclusionCancelled:
		return true
	}
	return false
}

// Controller triggers workflow reruns.
type Controller struct {
	host Host
	cfg  config.RetryConfig
	log  *zap.Logger

	// sleep is swapped in tests to avoid real waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a Controller.
func New(host Host, cfg config.RetryConfig, log *zap.Logger) *Controller {
	return &Controller{
		host:  host,
		cfg:   cfg,
		log:   log.Named("retryctl"),
		sleep: sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retry triggers a rerun of the whole failed run, then tries to discover
// the new run it produced. Discovery failure is not a retry failure.
func (c *Controller) Retry(ctx context.Context, run scanner.FailedRun) Outcome {
	if !Retryable(run.Conclusion) {
		return Outcome{Attempts: 0, Err: fmt.Sprintf("conclusion %q is not retryable", run.Conclusion)}
	}

	if err := c.host.Rerun(ctx, run.RepoFullName, run.RunID); err != nil {
		c.log.Error("rerun trigger failed", zap.String("run", run.String()), zap.Error(err))
		return Outcome{Attempts: 1, Err: fmt.Sprintf("trigger rerun: %v", err)}
	}
	c.log.Info("rerun triggered", zap.String("run", run.String()))

	// Grace period before the new run shows up in listings.
	if err := c.sleep(ctx, c.cfg.DiscoveryGrace.Duration()); err != nil {
		return Outcome{OK: true, Attempts: 1, Err: "rerun triggered, discovery interrupted"}
	}

	newRun, err := c.host.LatestRunOfWorkflow(ctx, run.RepoFullName, run.WorkflowID, run.RunID)
	if err != nil || newRun == nil {
		c.log.Warn("rerun triggered but new run not discovered",
			zap.String("run", run.String()),
			zap.Error(err),
		)
		return Outcome{OK: true, Attempts: 1, Err: "rerun triggered, new run not discovered"}
	}
	return Outcome{OK: true, NewRunID: newRun.ID, NewRunURL: newRun.URL, Attempts: 1}
}

// RerunFailed triggers a rerun of only the previously failed jobs. No new
// top-level run is produced, so there is no discovery step.
func (c *Controller) RerunFailed(ctx context.Context, run scanner.FailedRun) Outcome {
	if !Retryable(run.Conclusion) {
		return Outcome{Attempts: 0, Err: fmt.Sprintf("conclusion %q is not retryable", run.Conclusion)}
	}
	if err := c.host.RerunFailedJobs(ctx, run.RepoFullName, run.RunID); err != nil {
		c.log.Error("failed-jobs rerun trigger failed", zap.String("run", run.String()), zap.Error(err))
		return Outcome{Attempts: 1, Err: fmt.Sprintf("trigger failed-jobs rerun: %v", err)}
	}
	c.log.Info("failed-jobs rerun triggered", zap.String("run", run.String()))
	return Outcome{OK: true, Attempts: 1}
}

// RetryWithBackoff repeats Retry up to maxAttempts times with pure
// exponential delay between attempts. When configured, each triggered rerun
// is watched to completion; a successful conclusion ends the sequence
// early. Exhaustion returns a failure outcome carrying the attempt count.
func (c *Controller) RetryWithBackoff(ctx context.Context, run scanner.FailedRun, maxAttempts int) Outcome {
	if maxAttempts <= 0 {
		maxAttempts = c.cfg.MaxAttempts
	}
	delays := c.newBackoff()

	var last Outcome
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		out := c.Retry(ctx, run)
		out.Attempts = attempt
		last = out

		if out.OK {
			if !c.cfg.WaitForCompletion || out.NewRunID == 0 {
				// Triggered but unverifiable counts as success.
				return out
			}
			conclusion, done := c.waitForCompletion(ctx, run.RepoFullName, out.NewRunID)
			if done && conclusion == "success" {
				c.log.Info("rerun succeeded",
					zap.String("run", run.String()),
					zap.Int64("new_run_id", out.NewRunID),
					zap.Int("attempt", attempt),
				)
				return out
			}
			c.log.Info("rerun did not succeed",
				zap.String("run", run.String()),
				zap.String("conclusion", conclusion),
				zap.Int("attempt", attempt),
			)
		}

		if attempt == maxAttempts {
			break
		}
		delay := delays.NextBackOff()
		c.log.Info("waiting before next retry attempt",
			zap.String("run", run.String()),
			zap.Duration("delay", delay),
			zap.Int("attempt", attempt),
		)
		if err := c.sleep(ctx, delay); err != nil {
			last.OK = false
			last.Err = fmt.Sprintf("retry interrupted: %v", err)
			return last
		}
	}

	last.OK = false
	if last.Err == "" {
		last.Err = fmt.Sprintf("retry attempts exhausted after %d attempts", maxAttempts)
	}
	last.Attempts = maxAttempts
	return last
}

// newBackoff builds the inter-attempt delay schedule: pure doubling from
// the configured initial delay up to the cap, no jitter.
func (c *Controller) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.InitialDelay.Duration()
	b.MaxInterval = c.cfg.MaxDelay.Duration()
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// AwaitCompletion watches a run until it reaches a terminal status or the
// poll budget runs out. Returns the conclusion and whether a terminal
// status was observed.
func (c *Controller) AwaitCompletion(ctx context.Context, repo string, runID int64) (string, bool) {
	return c.waitForCompletion(ctx, repo, runID)
}

// waitForCompletion polls a run until it reaches a terminal status or the
// poll budget runs out. Returns the conclusion and whether a terminal
// status was observed.
func (c *Controller) waitForCompletion(ctx context.Context, repo string, runID int64) (string, bool) {
	interval := c.cfg.PollInterval.Duration()
	if interval <= 0 {
		interval = 30 * time.Second
	}
	budget := int(c.cfg.PollTimeout.Duration() / interval)
	if budget < 1 {
		budget = 1
	}

	for i := 0; i < budget; i++ {
		r, err := c.host.GetRun(ctx, repo, runID)
		if err != nil {
			c.log.Warn("poll of rerun failed", zap.Int64("run_id", runID), zap.Error(err))
		} else if r.Status == "completed" {
			return r.Conclusion, true
		}
		if err := c.sleep(ctx, interval); err != nil {
			return "", false
		}
	}
	c.log.Warn("rerun did not complete within the poll budget", zap.Int64("run_id", runID))
	return "", false
}
