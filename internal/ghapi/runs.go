package ghapi

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
)

const (
	// maxLogArchiveBytes caps the downloaded log zip.
	maxLogArchiveBytes = 10 << 20
	// maxLogTextBytes caps the extracted log text.
	maxLogTextBytes = 2 << 20

	runsPerPage = 100
)

// failedConclusions are the terminal statuses the pipeline treats as failures.
var failedConclusions = map[string]bool{
	"failure":   true,
	"timed_out": true,
	"cancelled": true,
}

// ListFailedRuns walks completed workflow runs of a repository, newest
// first, and returns those with a failed conclusion created after since.
// The walk stops at the first run older than since.
func (c *Client) ListFailedRuns(ctx context.Context, repo string, since time.Time) ([]Run, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	var failed []Run
	opts := &github.ListWorkflowRunsOptions{
		Status:      "completed",
		ListOptions: github.ListOptions{PerPage: runsPerPage},
	}

	for {
		var runs *github.WorkflowRuns
		resp, err := c.withRetry(ctx, "list workflow runs", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			runs, resp, err = c.gh.Actions.ListRepositoryWorkflowRuns(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("list workflow runs for %s: %w", repo, err)
		}

		for _, r := range runs.WorkflowRuns {
			if r.GetCreatedAt().Time.Before(since) {
				return failed, nil
			}
			if failedConclusions[r.GetConclusion()] {
				failed = append(failed, runFromGitHub(r))
			}
		}

		if resp.NextPage == 0 {
			return failed, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetRun fetches a single workflow run.
func (c *Client) GetRun(ctx context.Context, repo string, runID int64) (Run, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return Run{}, err
	}

	var run *github.WorkflowRun
	_, err = c.withRetry(ctx, "get workflow run", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		run, resp, err = c.gh.Actions.GetWorkflowRunByID(ctx, owner, name, runID)
		return resp, err
	})
	if err != nil {
		return Run{}, fmt.Errorf("get run %d in %s: %w", runID, repo, err)
	}
	return runFromGitHub(run), nil
}

// LatestRunOfWorkflow returns the most recent run of a workflow whose ID
// differs from excludeRunID. Used to discover the run a rerun trigger
// created. A nil result with nil error means no such run is visible yet.
func (c *Client) LatestRunOfWorkflow(ctx context.Context, repo string, workflowID, excludeRunID int64) (*Run, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	var runs *github.WorkflowRuns
	_, err = c.withRetry(ctx, "list runs of workflow", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		runs, resp, err = c.gh.Actions.ListWorkflowRunsByID(ctx, owner, name, workflowID, &github.ListWorkflowRunsOptions{
			ListOptions: github.ListOptions{PerPage: 10},
		})
		return resp, err
	})
	if err != nil {
		return nil, fmt.Errorf("list runs of workflow %d in %s: %w", workflowID, repo, err)
	}

	for _, r := range runs.WorkflowRuns {
		if r.GetID() != excludeRunID {
			run := runFromGitHub(r)
			return &run, nil
		}
	}
	return nil, nil
}

// Rerun re-triggers a full workflow run.
func (c *Client) Rerun(ctx context.Context, repo string, runID int64) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.withRetry(ctx, "rerun workflow", func() (*github.Response, error) {
		return c.gh.Actions.RerunWorkflowByID(ctx, owner, name, runID)
	})
	if err != nil {
		return fmt.Errorf("rerun %d in %s: %w", runID, repo, err)
	}
	return nil
}

// RerunFailedJobs re-triggers only the failed jobs of a workflow run.
func (c *Client) RerunFailedJobs(ctx context.Context, repo string, runID int64) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.withRetry(ctx, "rerun failed jobs", func() (*github.Response, error) {
		return c.gh.Actions.RerunFailedJobsByID(ctx, owner, name, runID)
	})
	if err != nil {
		return fmt.Errorf("rerun failed jobs of %d in %s: %w", runID, repo, err)
	}
	return nil
}

// RunLogs downloads the log archive of a workflow run and returns the
// concatenated text. GitHub serves run logs as a zip of per-step text files;
// entries are concatenated in name order with a filename header so job
// boundaries stay visible.
func (c *Client) RunLogs(ctx context.Context, repo string, runID int64) (string, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return "", err
	}

	var logsURL string
	_, err = c.withRetry(ctx, "get run logs URL", func() (*github.Response, error) {
		u, resp, err := c.gh.Actions.GetWorkflowRunLogs(ctx, owner, name, runID, 4)
		if u != nil {
			logsURL = u.String()
		}
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("get logs URL for run %d in %s: %w", runID, repo, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, logsURL, nil)
	if err != nil {
		return "", fmt.Errorf("build logs request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download logs for run %d: %w", runID, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download logs for run %d: unexpected status %d", runID, resp.StatusCode)
	}

	archive, err := io.ReadAll(io.LimitReader(resp.Body, maxLogArchiveBytes))
	if err != nil {
		return "", fmt.Errorf("read log archive: %w", err)
	}

	return extractLogText(archive)
}

// extractLogText concatenates the text entries of a run-log zip archive.
func extractLogText(archive []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return "", fmt.Errorf("open log archive: %w", err)
	}

	files := make([]*zip.File, 0, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, ".txt") {
			files = append(files, f)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	var b strings.Builder
	for _, f := range files {
		if b.Len() >= maxLogTextBytes {
			break
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open log entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(io.LimitReader(rc, int64(maxLogTextBytes-b.Len())))
		rc.Close()
		if err != nil {
			return "", fmt.Errorf("read log entry %s: %w", f.Name, err)
		}
		fmt.Fprintf(&b, "=== %s ===\n", f.Name)
		b.Write(data)
		if len(data) > 0 && data[len(data)-1] != '\n' {
			b.WriteByte('\n')
		}
	}
	return b.String(), nil
}
