// Package scanner detects failed workflow runs across the configured
// repositories. It produces the immutable FailedRun values the remediation
// pipeline consumes.
package scanner

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/config"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
)

// Conclusion values the scanner reports. Any other terminal status is out
// of scope for remediation.
const (
	ConclusionFailure   = "failure"
	ConclusionTimedOut  = "timed_out"
	ConclusionCancelled = "cancelled"
)

// FailedRun identifies one failed workflow execution. Immutable once
// constructed; every downstream component reads it, none mutate it.
type FailedRun struct {
	RepoFullName      string    `json:"repo_full_name"`
	WorkflowName      string    `json:"workflow_name"`
	WorkflowID        int64     `json:"workflow_id"`
	RunID             int64     `json:"run_id"`
	RunURL            string    `json:"run_url"`
	Branch            string    `json:"branch"`
	CommitSHA         string    `json:"commit_sha"`
	Conclusion        string    `json:"conclusion"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	LogsURL           string    `json:"logs_url"`
	HeadCommitMessage string    `json:"head_commit_message,omitempty"`
}

// String returns a compact identifier for logs.
func (f FailedRun) String() string {
	return fmt.Sprintf("%s/%s#%d", f.RepoFullName, f.WorkflowName, f.RunID)
}

// WorkflowFileCandidates returns the likely repository paths of the
// workflow definition, preferred extension first.
func (f FailedRun) WorkflowFileCandidates() []string {
	return []string{
		fmt.Sprintf(".github/workflows/%s.yml", f.WorkflowName),
		fmt.Sprintf(".github/workflows/%s.yaml", f.WorkflowName),
	}
}

// Host is the GitHub surface the scanner needs.
type Host interface {
	ListRepos(ctx context.Context, explicit []string, org string) ([]string, error)
	ListFailedRuns(ctx context.Context, repo string, since time.Time) ([]ghapi.Run, error)
	RunLogs(ctx context.Context, repo string, runID int64) (string, error)
}

// Scanner walks repositories for failed runs within the lookback window.
type Scanner struct {
	host Host
	gh   config.GitHubConfig
	scan config.ScanConfig
	log  *zap.Logger
	now  func() time.Time
}

// New creates a Scanner.
func New(host Host, gh config.GitHubConfig, scan config.ScanConfig, log *zap.Logger) *Scanner {
	return &Scanner{
		host: host,
		gh:   gh,
		scan: scan,
		log:  log.Named("scanner"),
		now:  time.Now,
	}
}

// ScanAll sweeps every configured repository and returns the failures found
// within the lookback window. A repository that cannot be listed is logged
// and skipped; the sweep keeps going.
func (s *Scanner) ScanAll(ctx context.Context) ([]FailedRun, error) {
	repos, err := s.host.ListRepos(ctx, s.gh.Repos, s.gh.Org)
	if err != nil {
		return nil, fmt.Errorf("resolve repositories: %w", err)
	}

	since := s.now().Add(-s.scan.Lookback.Duration())
	s.log.Info("scanning repositories for failed workflow runs",
		zap.Int("repos", len(repos)),
		zap.Time("since", since),
	)

	var failures []FailedRun
	for _, repo := range repos {
		runs, err := s.host.ListFailedRuns(ctx, repo, since)
		if err != nil {
			s.log.Error("failed to list workflow runs, skipping repository",
				zap.String("repo", repo),
				zap.Error(err),
			)
			continue
		}
		for _, r := range runs {
			fr := failedRunFrom(repo, r)
			failures = append(failures, fr)
			s.log.Info("found failed workflow run",
				zap.String("run", fr.String()),
				zap.String("conclusion", fr.Conclusion),
				zap.String("branch", fr.Branch),
			)
		}
	}

	s.log.Info("scan complete", zap.Int("failures", len(failures)))
	return failures, nil
}

// Logs fetches the log text of a failed run. Absent logs are a normal
// condition (expired, still uploading, insufficient permissions) reported
// through the boolean, not an error.
func (s *Scanner) Logs(ctx context.Context, run FailedRun) (string, bool) {
	text, err := s.host.RunLogs(ctx, run.RepoFullName, run.RunID)
	if err != nil {
		s.log.Warn("workflow logs unavailable",
			zap.String("run", run.String()),
			zap.Error(err),
		)
		return "", false
	}
	if text == "" {
		return "", false
	}
	return text, true
}

func failedRunFrom(repo string, r ghapi.Run) FailedRun {
	name := r.Name
	if name == "" {
		name = "unknown"
	}
	branch := r.Branch
	if branch == "" {
		branch = "unknown"
	}
	return FailedRun{
		RepoFullName:      repo,
		WorkflowName:      name,
		WorkflowID:        r.WorkflowID,
		RunID:             r.ID,
		RunURL:            r.URL,
		Branch:            branch,
		CommitSHA:         r.HeadSHA,
		Conclusion:        r.Conclusion,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		LogsURL:           r.LogsURL,
		HeadCommitMessage: r.HeadCommitMessage,
	}
}
