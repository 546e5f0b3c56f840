package ghapi

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// ListOpenIssues returns the open issues of a repository carrying a label.
func (c *Client) ListOpenIssues(ctx context.Context, repo, label string) ([]Issue, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return nil, err
	}

	var all []Issue
	opts := &github.IssueListByRepoOptions{
		State:       "open",
		Labels:      []string{label},
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var issues []*github.Issue
		resp, err := c.withRetry(ctx, "list issues", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			issues, resp, err = c.gh.Issues.ListByRepo(ctx, owner, name, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("list open issues in %s: %w", repo, err)
		}

		for _, is := range issues {
			all = append(all, Issue{
				Number: is.GetNumber(),
				Title:  is.GetTitle(),
				URL:    is.GetHTMLURL(),
			})
		}

		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// CreateIssue opens an issue and returns it.
func (c *Client) CreateIssue(ctx context.Context, repo, title, body string, labels, assignees []string) (Issue, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return Issue{}, err
	}

	req := &github.IssueRequest{
		Title:  github.String(title),
		Body:   github.String(body),
		Labels: &labels,
	}
	if len(assignees) > 0 {
		req.Assignees = &assignees
	}

	var is *github.Issue
	_, err = c.withRetry(ctx, "create issue", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		is, resp, err = c.gh.Issues.Create(ctx, owner, name, req)
		return resp, err
	})
	if err != nil {
		return Issue{}, fmt.Errorf("create issue in %s: %w", repo, err)
	}

	return Issue{Number: is.GetNumber(), Title: is.GetTitle(), URL: is.GetHTMLURL()}, nil
}

// CommentIssue adds a comment to an issue.
func (c *Client) CommentIssue(ctx context.Context, repo string, number int, body string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.withRetry(ctx, "comment issue", func() (*github.Response, error) {
		_, resp, err := c.gh.Issues.CreateComment(ctx, owner, name, number, &github.IssueComment{
			Body: github.String(body),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("comment on issue #%d in %s: %w", number, repo, err)
	}
	return nil
}

// CloseIssue closes an issue.
func (c *Client) CloseIssue(ctx context.Context, repo string, number int) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.withRetry(ctx, "close issue", func() (*github.Response, error) {
		_, resp, err := c.gh.Issues.Edit(ctx, owner, name, number, &github.IssueRequest{
			State: github.String("closed"),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("close issue #%d in %s: %w", number, repo, err)
	}
	return nil
}

// EnsureLabel creates a label if it does not exist yet.
func (c *Client) EnsureLabel(ctx context.Context, repo, label, color, description string) error {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return err
	}

	_, err = c.withRetry(ctx, "get label", func() (*github.Response, error) {
		_, resp, err := c.gh.Issues.GetLabel(ctx, owner, name, label)
		return resp, err
	})
	if err == nil {
		return nil
	}
	if !IsNotFound(err) {
		return fmt.Errorf("check label %q in %s: %w", label, repo, err)
	}

	_, err = c.withRetry(ctx, "create label", func() (*github.Response, error) {
		_, resp, err := c.gh.Issues.CreateLabel(ctx, owner, name, &github.Label{
			Name:        github.String(label),
			Color:       github.String(color),
			Description: github.String(description),
		})
		return resp, err
	})
	if err != nil {
		return fmt.Errorf("create label %q in %s: %w", label, repo, err)
	}
	return nil
}
