// Package orchestrator drives one failed workflow run through the
// remediation state machine: classify, auto-fix when safe, retry when
// transient, escalate to a human otherwise.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/analyzer"
	"github.com/fyrsmithlabs/pipemedic/internal/commits"
	"github.com/fyrsmithlabs/pipemedic/internal/fixgen"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
	"github.com/fyrsmithlabs/pipemedic/internal/metrics"
	"github.com/fyrsmithlabs/pipemedic/internal/notify"
	"github.com/fyrsmithlabs/pipemedic/internal/retryctl"
	"github.com/fyrsmithlabs/pipemedic/internal/scanner"
)

// autoFixThreshold gates committing a model-suggested fix. Stricter than
// the candidate-generation gate: generating a candidate is cheaper and
// safer than committing one.
const autoFixThreshold = 0.8

// State is a node in the remediation state machine.
type State string

const (
	StateDetected            State = "detected"
	StateClassified          State = "classified"
	StateAutoFixing          State = "auto_fixing"
	StateFixed               State = "fixed"
	StateFixFailed           State = "fix_failed"
	StateRetrying            State = "retrying"
	StateResolved            State = "resolved"
	StatePendingVerification State = "pending_verification"
	StateEscalated           State = "escalated"
)

// Report is the full audit record of processing one failure. It carries
// every intermediate artifact so the dashboard and the final summary can
// explain what happened without re-querying anything.
type Report struct {
	TraceID    string              `json:"trace_id"`
	Run        scanner.FailedRun   `json:"run"`
	State      State               `json:"state"`
	History    []State             `json:"history"`
	Diagnosis  *analyzer.Diagnosis `json:"diagnosis,omitempty"`
	Candidates []fixgen.Candidate  `json:"candidates,omitempty"`
	Commits    []commits.Outcome   `json:"commits,omitempty"`
	Retry      *retryctl.Outcome   `json:"retry,omitempty"`
	Escalation *notify.Outcome     `json:"escalation,omitempty"`
	Note       string              `json:"note,omitempty"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// Resolved reports whether the run reached the optimistic terminal success
// state. It means a fix landed and a retry was triggered, not that the
// rerun has been verified to pass; VerifyResolved closes that gap.
func (r *Report) Resolved() bool { return r.State == StateResolved }

func (r *Report) transition(s State) {
	r.State = s
	r.History = append(r.History, s)
}

// LogSource fetches failure logs. Absence is a normal condition.
type LogSource interface {
	Logs(ctx context.Context, run scanner.FailedRun) (string, bool)
}

// Classifier produces a Diagnosis and never fails.
type Classifier interface {
	Classify(ctx context.Context, workflowName, logText, commitMessage string) analyzer.Diagnosis
}

// FixGenerator proposes candidate edits.
type FixGenerator interface {
	MatchRule(logText string) bool
	Generate(diag analyzer.Diagnosis, workflowPath, workflowText, logText string) []fixgen.Candidate
}

// Committer applies candidates to the repository.
type Committer interface {
	Apply(ctx context.Context, repo string, candidates []fixgen.Candidate, baseBranch, messagePrefix string) []commits.Outcome
	OpenPullRequest(ctx context.Context, repo, branch, baseBranch, title, body string) (string, error)
}

// Retrier triggers reruns and can watch one to completion.
type Retrier interface {
	Retry(ctx context.Context, run scanner.FailedRun) retryctl.Outcome
	AwaitCompletion(ctx context.Context, repo string, runID int64) (string, bool)
}

// Escalator routes a failure to a human.
type Escalator interface {
	Escalate(ctx context.Context, run scanner.FailedRun, diag *analyzer.Diagnosis) notify.Outcome
}

// FileSource reads repository files.
type FileSource interface {
	FileContent(ctx context.Context, repo, path, ref string) (ghapi.File, error)
	IsNotFound(err error) bool
}

// Processor runs the state machine. Each Process call is independent;
// the Processor holds no per-run state, so separate failures may be
// processed from separate goroutines.
type Processor struct {
	logs      LogSource
	classify  Classifier
	fixes     FixGenerator
	committer Committer
	retrier   Retrier
	escalator Escalator
	files     FileSource
	log       *zap.Logger
}

// New creates a Processor.
func New(logs LogSource, classify Classifier, fixes FixGenerator, committer Committer, retrier Retrier, escalator Escalator, files FileSource, log *zap.Logger) *Processor {
	return &Processor{
		logs:      logs,
		classify:  classify,
		fixes:     fixes,
		committer: committer,
		retrier:   retrier,
		escalator: escalator,
		files:     files,
		log:       log.Named("orchestrator"),
	}
}

// Process drives one failure to a terminal state. It never panics: a
// panic anywhere in the traversal is converted into an Escalated report so
// the caller's loop keeps going.
func (p *Processor) Process(ctx context.Context, run scanner.FailedRun) (report Report) {
	report = Report{
		TraceID:   uuid.NewString(),
		Run:       run,
		State:     StateDetected,
		History:   []State{StateDetected},
		StartedAt: time.Now(),
	}
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("panic while processing failure, escalating",
				zap.String("run", run.String()),
				zap.Any("panic", r),
			)
			report.Note = fmt.Sprintf("processing panicked: %v", r)
			report.transition(StateEscalated)
		}
		report.FinishedAt = time.Now()
		metrics.Dispositions.WithLabelValues(string(report.State)).Inc()
	}()

	log := p.log.With(zap.String("run", run.String()), zap.String("trace", report.TraceID))

	logText, haveLogs := p.logs.Logs(ctx, run)
	if haveLogs {
		diag := p.classify.Classify(ctx, run.WorkflowName, logText, run.HeadCommitMessage)
		report.Diagnosis = &diag
		report.transition(StateClassified)
		metrics.Classifications.WithLabelValues(diag.Category).Inc()
		log.Info("failure classified",
			zap.String("category", diag.Category),
			zap.Float64("confidence", diag.Confidence),
			zap.Bool("needs_human", diag.NeedsHuman),
		)
	} else {
		log.Info("logs unavailable, skipping classification")
	}

	if p.canAutoFix(haveLogs, logText, report.Diagnosis) {
		if done := p.autoFix(ctx, &report, logText, log); done {
			return report
		}
		// No applicable candidates; keep evaluating the later paths.
	}

	if p.transient(run, report.Diagnosis) {
		p.retryTransient(ctx, &report, log)
		return report
	}

	p.escalate(ctx, &report, log)
	return report
}

// canAutoFix is the gate in front of the fix path. A pattern-rule match
// qualifies on its own; otherwise the diagnosis must be confident and not
// flagged for a human.
func (p *Processor) canAutoFix(haveLogs bool, logText string, diag *analyzer.Diagnosis) bool {
	if !haveLogs {
		return false
	}
	if p.fixes.MatchRule(logText) {
		return true
	}
	return diag != nil && diag.Confidence >= autoFixThreshold && !diag.NeedsHuman
}

// transient reports whether the failure looks like one a bare rerun may
// clear.
func (p *Processor) transient(run scanner.FailedRun, diag *analyzer.Diagnosis) bool {
	if run.Conclusion == scanner.ConclusionTimedOut {
		return true
	}
	return diag != nil && diag.Transient()
}

// autoFix runs the fix path. Returns false when no candidate could be
// generated, handing the run back for the transient and escalation checks.
func (p *Processor) autoFix(ctx context.Context, report *Report, logText string, log *zap.Logger) bool {
	report.transition(StateAutoFixing)
	run := report.Run

	path, workflowText, ok := p.workflowFile(ctx, run)
	if !ok {
		log.Warn("workflow definition not found, cannot auto-fix")
		report.Note = "workflow definition file not found"
		return false
	}

	var diag analyzer.Diagnosis
	if report.Diagnosis != nil {
		diag = *report.Diagnosis
	}
	candidates := p.fixes.Generate(diag, path, workflowText, logText)
	report.Candidates = candidates
	if len(candidates) == 0 {
		log.Info("no safe automatic edit known")
		return false
	}

	prefix := fmt.Sprintf("Auto-fix %s workflow failure", run.WorkflowName)
	outcomes := p.committer.Apply(ctx, run.RepoFullName, candidates, run.Branch, prefix)
	report.Commits = outcomes
	for _, o := range outcomes {
		metrics.FixCommits.WithLabelValues(metrics.ResultLabel(o.OK)).Inc()
	}

	if len(outcomes) == 0 || !outcomes[len(outcomes)-1].OK {
		log.Error("fix application failed partway", zap.Int("applied", len(outcomes)))
		report.transition(StateFixFailed)
		p.escalate(ctx, report, log)
		return true
	}
	report.transition(StateFixed)
	p.openReviewPR(ctx, report, log)

	report.transition(StateRetrying)
	out := p.retrier.Retry(ctx, run)
	report.Retry = &out
	metrics.RetryTriggers.WithLabelValues(metrics.ResultLabel(out.OK)).Inc()
	if out.OK {
		// Optimistic: the fix landed and a rerun is underway. Whether the
		// rerun actually passes is VerifyResolved's job.
		report.transition(StateResolved)
	} else {
		log.Warn("retry trigger failed after fix", zap.String("error", out.Err))
		report.transition(StatePendingVerification)
	}
	return true
}

// retryTransient runs the transient path. A bare retrigger proves nothing
// about eventual success, so this path always ends PendingVerification.
func (p *Processor) retryTransient(ctx context.Context, report *Report, log *zap.Logger) {
	report.transition(StateRetrying)
	out := p.retrier.Retry(ctx, report.Run)
	report.Retry = &out
	metrics.RetryTriggers.WithLabelValues(metrics.ResultLabel(out.OK)).Inc()
	if !out.OK {
		log.Warn("transient retry trigger failed", zap.String("error", out.Err))
	}
	report.transition(StatePendingVerification)
}

// escalate routes the failure to a human. Escalation failure is logged and
// terminal for this run.
func (p *Processor) escalate(ctx context.Context, report *Report, log *zap.Logger) {
	out := p.escalator.Escalate(ctx, report.Run, report.Diagnosis)
	report.Escalation = &out
	metrics.Escalations.WithLabelValues(metrics.ResultLabel(out.OK)).Inc()
	if out.OK {
		log.Info("failure escalated", zap.Int("issue", out.IssueNumber))
	} else {
		log.Error("escalation failed", zap.String("error", out.Err))
	}
	report.transition(StateEscalated)
}

// openReviewPR surfaces the fix branch for review. Best effort.
func (p *Processor) openReviewPR(ctx context.Context, report *Report, log *zap.Logger) {
	if len(report.Commits) == 0 {
		return
	}
	branch := report.Commits[0].Branch
	title := fmt.Sprintf("Fix %s workflow failure", report.Run.WorkflowName)
	body := fmt.Sprintf("Automated fix for a failed `%s` run on `%s`.\n\nRun: %s",
		report.Run.WorkflowName, report.Run.Branch, report.Run.RunURL)
	if _, err := p.committer.OpenPullRequest(ctx, report.Run.RepoFullName, branch, report.Run.Branch, title, body); err != nil {
		log.Warn("could not open review pull request", zap.Error(err))
	}
}

// workflowFile probes the conventional paths of the failing workflow's
// definition on its branch.
func (p *Processor) workflowFile(ctx context.Context, run scanner.FailedRun) (string, string, bool) {
	for _, path := range run.WorkflowFileCandidates() {
		file, err := p.files.FileContent(ctx, run.RepoFullName, path, run.Branch)
		if err == nil {
			return path, file.Content, true
		}
		if !p.files.IsNotFound(err) {
			p.log.Warn("workflow file read failed",
				zap.String("run", run.String()),
				zap.String("path", path),
				zap.Error(err),
			)
			return "", "", false
		}
	}
	return "", "", false
}

// VerifyResolved is the follow-up hook closing the optimistic-resolution
// gap: it watches the rerun a report triggered and returns the verified
// disposition. The boolean reports whether a terminal conclusion was
// observed within the poll budget; when false the report's state stands.
func (p *Processor) VerifyResolved(ctx context.Context, report Report) (State, bool) {
	if report.Retry == nil || report.Retry.NewRunID == 0 {
		return report.State, false
	}
	conclusion, done := p.retrier.AwaitCompletion(ctx, report.Run.RepoFullName, report.Retry.NewRunID)
	if !done {
		return report.State, false
	}
	if conclusion == "success" {
		return StateResolved, true
	}
	p.log.Info("rerun concluded unsuccessfully",
		zap.String("run", report.Run.String()),
		zap.String("conclusion", conclusion),
	)
	return StateEscalated, true
}
