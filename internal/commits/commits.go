// Package commits applies fix candidates to a repository as an ordered
// sequence of commits on an isolated working branch.
package commits

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/fixgen"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
)

// Outcome records the result of applying one candidate. A failed outcome
// carries the error; the batch stops at the first failure so partial
// application is visible, never hidden.
type Outcome struct {
	OK        bool   `json:"ok"`
	CommitSHA string `json:"commit_sha,omitempty"`
	CommitURL string `json:"commit_url,omitempty"`
	Branch    string `json:"branch"`
	Err       string `json:"error,omitempty"`
}

// Host is the repository surface the sequencer needs.
type Host interface {
	DefaultBranch(ctx context.Context, repo string) (string, error)
	EnsureBranch(ctx context.Context, repo, branch, base string) (bool, error)
	FileContent(ctx context.Context, repo, path, ref string) (ghapi.File, error)
	PutFile(ctx context.Context, repo, path, branch, message, content, sha string) (ghapi.CommitInfo, error)
	OpenPullRequest(ctx context.Context, repo, head, base, title, body string) (string, error)
	IsNotFound(err error) bool
}

// Sequencer commits fix candidates in order on a working branch.
type Sequencer struct {
	host Host
	log  *zap.Logger
}

// New creates a Sequencer.
func New(host Host, log *zap.Logger) *Sequencer {
	return &Sequencer{host: host, log: log.Named("commits")}
}

// BranchFor derives the working branch name for a batch. Deterministic so
// repeated remediation of the same failure category on the same source
// branch reuses one branch.
func BranchFor(baseBranch, category string) string {
	return fmt.Sprintf("fix/%s-%s", baseBranch, category)
}

// Apply commits the candidates in order. One working branch is ensured for
// the whole batch, derived from the base branch and the first candidate's
// category. The first failure aborts the rest: the returned slice has one
// outcome per attempted candidate, so its length marks where the batch
// stopped.
func (s *Sequencer) Apply(ctx context.Context, repo string, candidates []fixgen.Candidate, baseBranch, messagePrefix string) []Outcome {
	if len(candidates) == 0 {
		return nil
	}

	branch := BranchFor(baseBranch, candidates[0].Category)

	created, err := s.ensureBranch(ctx, repo, branch)
	if err != nil {
		return []Outcome{{Branch: branch, Err: fmt.Sprintf("ensure branch: %v", err)}}
	}
	s.log.Info("working branch ready",
		zap.String("repo", repo),
		zap.String("branch", branch),
		zap.Bool("created", created),
	)

	outcomes := make([]Outcome, 0, len(candidates))
	for i, cand := range candidates {
		message := fmt.Sprintf("%s (fix %d/%d): %s", messagePrefix, i+1, len(candidates), cand.Description)
		out := s.applyOne(ctx, repo, branch, cand, message)
		outcomes = append(outcomes, out)
		if !out.OK {
			s.log.Error("candidate failed, aborting remainder of batch",
				zap.String("repo", repo),
				zap.String("path", cand.Path),
				zap.Int("applied", i),
				zap.Int("remaining", len(candidates)-i-1),
				zap.String("error", out.Err),
			)
			break
		}
		s.log.Info("fix committed",
			zap.String("repo", repo),
			zap.String("path", cand.Path),
			zap.String("sha", out.CommitSHA),
		)
	}
	return outcomes
}

// ensureBranch resolves the repository default branch and creates the
// working branch from its head, reusing the branch when it already exists.
func (s *Sequencer) ensureBranch(ctx context.Context, repo, branch string) (bool, error) {
	base, err := s.host.DefaultBranch(ctx, repo)
	if err != nil {
		return false, fmt.Errorf("resolve default branch: %w", err)
	}
	return s.host.EnsureBranch(ctx, repo, branch, base)
}

// applyOne writes one candidate. The file's current SHA on the working
// branch is the optimistic-concurrency token; a mismatch rejection surfaces
// as the failed outcome rather than being re-read and retried.
func (s *Sequencer) applyOne(ctx context.Context, repo, branch string, cand fixgen.Candidate, message string) Outcome {
	var sha string
	file, err := s.host.FileContent(ctx, repo, cand.Path, branch)
	switch {
	case err == nil:
		sha = file.SHA
	case s.host.IsNotFound(err):
		// Absent file, create it.
	default:
		return Outcome{Branch: branch, Err: fmt.Sprintf("read %s: %v", cand.Path, err)}
	}

	info, err := s.host.PutFile(ctx, repo, cand.Path, branch, message, cand.Fixed, sha)
	if err != nil {
		return Outcome{Branch: branch, Err: fmt.Sprintf("write %s: %v", cand.Path, err)}
	}
	return Outcome{OK: true, CommitSHA: info.SHA, CommitURL: info.URL, Branch: branch}
}

// OpenPullRequest surfaces a committed fix branch for review. Best effort;
// remediation has already succeeded at the commit level when this runs.
func (s *Sequencer) OpenPullRequest(ctx context.Context, repo, branch, baseBranch, title, body string) (string, error) {
	url, err := s.host.OpenPullRequest(ctx, repo, branch, baseBranch, title, body)
	if err != nil {
		return "", fmt.Errorf("open pull request: %w", err)
	}
	s.log.Info("pull request opened", zap.String("repo", repo), zap.String("url", url))
	return url, nil
}
