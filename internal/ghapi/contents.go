package ghapi

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
)

// DefaultBranch returns the default branch of a repository.
func (c *Client) DefaultBranch(ctx context.Context, repo string) (string, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return "", err
	}

	var r *github.Repository
	_, err = c.withRetry(ctx, "get repository", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		r, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("get repository %s: %w", repo, err)
	}
	return r.GetDefaultBranch(), nil
}

// FileContent reads a file at a ref and returns its decoded content along
// with the blob SHA used as the write token.
func (c *Client) FileContent(ctx context.Context, repo, path, ref string) (File, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return File{}, err
	}

	var fc *github.RepositoryContent
	_, err = c.withRetry(ctx, "get file content", func() (*github.Response, error) {
		var dir []*github.RepositoryContent
		var resp *github.Response
		var err error
		fc, dir, resp, err = c.gh.Repositories.GetContents(ctx, owner, name, path, &github.RepositoryContentGetOptions{Ref: ref})
		if err == nil && fc == nil && dir != nil {
			return resp, fmt.Errorf("%s is a directory", path)
		}
		return resp, err
	})
	if err != nil {
		return File{}, fmt.Errorf("get %s@%s in %s: %w", path, ref, repo, err)
	}

	content, err := fc.GetContent()
	if err != nil {
		return File{}, fmt.Errorf("decode %s@%s in %s: %w", path, ref, repo, err)
	}
	return File{Content: content, SHA: fc.GetSHA()}, nil
}

// PutFile creates or updates a file on a branch. A non-empty sha is passed
// through as the optimistic-concurrency token; the API rejects the write if
// the file changed since that SHA was read, and the rejection is returned
// as-is rather than retried with a fresh read.
func (c *Client) PutFile(ctx context.Context, repo, path, branch, message, content, sha string) (CommitInfo, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return CommitInfo{}, err
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: []byte(content),
		Branch:  github.String(branch),
	}
	if sha != "" {
		opts.SHA = github.String(sha)
	}

	var rcr *github.RepositoryContentResponse
	_, err = c.withRetry(ctx, "put file", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		if sha != "" {
			rcr, resp, err = c.gh.Repositories.UpdateFile(ctx, owner, name, path, opts)
		} else {
			rcr, resp, err = c.gh.Repositories.CreateFile(ctx, owner, name, path, opts)
		}
		return resp, err
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("put %s on %s in %s: %w", path, branch, repo, err)
	}

	return CommitInfo{
		SHA: rcr.Commit.GetSHA(),
		URL: rcr.Commit.GetHTMLURL(),
	}, nil
}

// EnsureBranch makes sure a branch exists, creating it from the head of
// base when absent. Returns true when the branch was created, false when an
// existing branch is being reused.
func (c *Client) EnsureBranch(ctx context.Context, repo, branch, base string) (bool, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return false, err
	}

	_, err = c.withRetry(ctx, "get branch ref", func() (*github.Response, error) {
		_, resp, err := c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+branch)
		return resp, err
	})
	if err == nil {
		return false, nil
	}
	if !IsNotFound(err) {
		return false, fmt.Errorf("check branch %s in %s: %w", branch, repo, err)
	}

	var baseRef *github.Reference
	_, err = c.withRetry(ctx, "get base ref", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		baseRef, resp, err = c.gh.Git.GetRef(ctx, owner, name, "refs/heads/"+base)
		return resp, err
	})
	if err != nil {
		return false, fmt.Errorf("get base branch %s in %s: %w", base, repo, err)
	}

	_, err = c.withRetry(ctx, "create branch ref", func() (*github.Response, error) {
		_, resp, err := c.gh.Git.CreateRef(ctx, owner, name, &github.Reference{
			Ref:    github.String("refs/heads/" + branch),
			Object: &github.GitObject{SHA: baseRef.Object.SHA},
		})
		return resp, err
	})
	if err != nil {
		return false, fmt.Errorf("create branch %s from %s in %s: %w", branch, base, repo, err)
	}
	return true, nil
}

// OpenPullRequest opens a pull request from head into base and returns its
// URL.
func (c *Client) OpenPullRequest(ctx context.Context, repo, head, base, title, body string) (string, error) {
	owner, name, err := SplitRepo(repo)
	if err != nil {
		return "", err
	}

	var pr *github.PullRequest
	_, err = c.withRetry(ctx, "create pull request", func() (*github.Response, error) {
		var resp *github.Response
		var err error
		pr, resp, err = c.gh.PullRequests.Create(ctx, owner, name, &github.NewPullRequest{
			Title: github.String(title),
			Head:  github.String(head),
			Base:  github.String(base),
			Body:  github.String(body),
		})
		return resp, err
	})
	if err != nil {
		return "", fmt.Errorf("open pull request %s -> %s in %s: %w", head, base, repo, err)
	}
	return pr.GetHTMLURL(), nil
}
