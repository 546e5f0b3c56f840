// Package notify escalates workflow failures as GitHub issues.
//
// One open issue per workflow: escalation first looks for an open issue
// carrying the configured label whose title contains the workflow name and
// reuses it instead of filing a duplicate.
package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/analyzer"
	"github.com/fyrsmithlabs/pipemedic/internal/config"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
	"github.com/fyrsmithlabs/pipemedic/internal/scanner"
)

const (
	labelColor       = "d73a4a"
	labelDescription = "Automated workflow failure notification"
)

// Outcome is the result of one notification attempt.
type Outcome struct {
	OK          bool   `json:"ok"`
	IssueNumber int    `json:"issue_number,omitempty"`
	IssueURL    string `json:"issue_url,omitempty"`
	Err         string `json:"error,omitempty"`
}

// Host is the issue surface the notifier needs.
type Host interface {
	ListOpenIssues(ctx context.Context, repo, label string) ([]ghapi.Issue, error)
	CreateIssue(ctx context.Context, repo, title, body string, labels, assignees []string) (ghapi.Issue, error)
	CommentIssue(ctx context.Context, repo string, number int, body string) error
	CloseIssue(ctx context.Context, repo string, number int) error
	EnsureLabel(ctx context.Context, repo, name, color, description string) error
}

// Notifier files, updates and closes failure issues.
type Notifier struct {
	host Host
	cfg  config.NotifyConfig
	log  *zap.Logger
}

// New creates a Notifier.
func New(host Host, cfg config.NotifyConfig, log *zap.Logger) *Notifier {
	return &Notifier{host: host, cfg: cfg, log: log.Named("notify")}
}

// Escalate files an issue for a failure, or returns the existing open issue
// for the same workflow. diag may be nil when classification never ran.
func (n *Notifier) Escalate(ctx context.Context, run scanner.FailedRun, diag *analyzer.Diagnosis) Outcome {
	if !n.cfg.CreateIssues {
		n.log.Info("issue creation disabled", zap.String("run", run.String()))
		return Outcome{Err: "issue creation disabled in configuration"}
	}

	if existing := n.findExisting(ctx, run); existing != nil {
		n.log.Info("open issue already covers this workflow",
			zap.String("run", run.String()),
			zap.Int("issue", existing.Number),
		)
		return Outcome{OK: true, IssueNumber: existing.Number, IssueURL: existing.URL}
	}

	if err := n.host.EnsureLabel(ctx, run.RepoFullName, n.cfg.IssueLabel, labelColor, labelDescription); err != nil {
		// Issue creation still works without the label pre-check succeeding.
		n.log.Warn("could not ensure issue label", zap.String("repo", run.RepoFullName), zap.Error(err))
	}

	issue, err := n.host.CreateIssue(ctx, run.RepoFullName,
		issueTitle(run),
		issueBody(run, diag),
		[]string{n.cfg.IssueLabel},
		n.cfg.IssueAssignees,
	)
	if err != nil {
		n.log.Error("issue creation failed", zap.String("run", run.String()), zap.Error(err))
		return Outcome{Err: fmt.Sprintf("create issue: %v", err)}
	}

	n.log.Info("escalation issue created",
		zap.String("run", run.String()),
		zap.Int("issue", issue.Number),
		zap.String("url", issue.URL),
	)
	return Outcome{OK: true, IssueNumber: issue.Number, IssueURL: issue.URL}
}

// Comment posts a status update on the workflow's open issue.
func (n *Notifier) Comment(ctx context.Context, run scanner.FailedRun, status string) Outcome {
	existing := n.findExisting(ctx, run)
	if existing == nil {
		return Outcome{Err: "no existing issue found"}
	}
	if err := n.host.CommentIssue(ctx, run.RepoFullName, existing.Number, status); err != nil {
		return Outcome{IssueNumber: existing.Number, Err: fmt.Sprintf("comment on issue: %v", err)}
	}
	return Outcome{OK: true, IssueNumber: existing.Number, IssueURL: existing.URL}
}

// Close resolves the workflow's open issue with a final comment.
func (n *Notifier) Close(ctx context.Context, run scanner.FailedRun, resolution string) Outcome {
	existing := n.findExisting(ctx, run)
	if existing == nil {
		return Outcome{Err: "no existing issue found"}
	}
	if err := n.host.CommentIssue(ctx, run.RepoFullName, existing.Number, "Resolved: "+resolution); err != nil {
		n.log.Warn("resolution comment failed", zap.Int("issue", existing.Number), zap.Error(err))
	}
	if err := n.host.CloseIssue(ctx, run.RepoFullName, existing.Number); err != nil {
		return Outcome{IssueNumber: existing.Number, Err: fmt.Sprintf("close issue: %v", err)}
	}
	n.log.Info("issue closed", zap.String("run", run.String()), zap.Int("issue", existing.Number))
	return Outcome{OK: true, IssueNumber: existing.Number, IssueURL: existing.URL}
}

// findExisting returns the first open labeled issue whose title names the
// workflow, or nil. Search failures are treated as "none found" so
// escalation can still proceed to create.
func (n *Notifier) findExisting(ctx context.Context, run scanner.FailedRun) *ghapi.Issue {
	issues, err := n.host.ListOpenIssues(ctx, run.RepoFullName, n.cfg.IssueLabel)
	if err != nil {
		n.log.Error("searching for existing issues failed",
			zap.String("repo", run.RepoFullName),
			zap.Error(err),
		)
		return nil
	}
	for i := range issues {
		if strings.Contains(issues[i].Title, run.WorkflowName) {
			return &issues[i]
		}
	}
	return nil
}

func issueTitle(run scanner.FailedRun) string {
	return fmt.Sprintf("Workflow Failure: %s on %s", run.WorkflowName, run.Branch)
}

func issueBody(run scanner.FailedRun, diag *analyzer.Diagnosis) string {
	var b strings.Builder

	sha := run.CommitSHA
	if len(sha) > 8 {
		sha = sha[:8]
	}

	fmt.Fprintf(&b, "## Workflow Failure Details\n\n")
	fmt.Fprintf(&b, "| Field | Value |\n|-------|-------|\n")
	fmt.Fprintf(&b, "| **Workflow** | `%s` |\n", run.WorkflowName)
	fmt.Fprintf(&b, "| **Repository** | `%s` |\n", run.RepoFullName)
	fmt.Fprintf(&b, "| **Branch** | `%s` |\n", run.Branch)
	fmt.Fprintf(&b, "| **Conclusion** | `%s` |\n", run.Conclusion)
	fmt.Fprintf(&b, "| **Run ID** | `%d` |\n", run.RunID)
	fmt.Fprintf(&b, "| **Commit** | `%s` |\n", sha)
	fmt.Fprintf(&b, "| **Time** | %s |\n", run.CreatedAt.UTC().Format("2006-01-02 15:04:05 UTC"))

	fmt.Fprintf(&b, "\n### Links\n- [View Workflow Run](%s)\n", run.RunURL)
	if run.LogsURL != "" {
		fmt.Fprintf(&b, "- [View Logs](%s)\n", run.LogsURL)
	}

	if run.HeadCommitMessage != "" {
		fmt.Fprintf(&b, "\n### Commit Message\n```\n%s\n```\n", run.HeadCommitMessage)
	}

	if diag != nil {
		fmt.Fprintf(&b, "\n## Analysis\n\n")
		fmt.Fprintf(&b, "### Error Type\n`%s`\n\n", diag.Category)
		if diag.Summary != "" {
			fmt.Fprintf(&b, "### Summary\n%s\n\n", diag.Summary)
		}
		if diag.RootCause != "" {
			fmt.Fprintf(&b, "### Root Cause\n%s\n\n", diag.RootCause)
		}
		if diag.SuggestedFix != "" {
			fmt.Fprintf(&b, "### Suggested Fix\n%s\n\n", diag.SuggestedFix)
		}
		fmt.Fprintf(&b, "### Confidence Level\n%.0f%%\n\n", diag.Confidence*100)
		manual := "No"
		if diag.NeedsHuman {
			manual = "Yes"
		}
		fmt.Fprintf(&b, "### Manual Intervention Required\n%s\n", manual)

		if len(diag.RelevantFiles) > 0 {
			b.WriteString("\n### Relevant Files\n")
			for _, f := range diag.RelevantFiles {
				fmt.Fprintf(&b, "- `%s`\n", f)
			}
		}
		if diag.Context != "" {
			fmt.Fprintf(&b, "\n### Additional Context\n%s\n", diag.Context)
		}
	}

	b.WriteString("\n---\n*This issue was created automatically by pipemedic.*\n")
	return b.String()
}
