package ghapi

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
)

// ListRepos resolves the repositories to scan. An explicit list wins; then
// every repository of org; then the authenticated user's repositories.
// Explicit entries that fail to resolve are logged and skipped rather than
// failing the whole scan.
func (c *Client) ListRepos(ctx context.Context, explicit []string, org string) ([]string, error) {
	if len(explicit) > 0 {
		var repos []string
		for _, full := range explicit {
			owner, name, err := SplitRepo(full)
			if err != nil {
				c.log.Error("skipping invalid repository", zap.String("repo", full), zap.Error(err))
				continue
			}
			_, err = c.withRetry(ctx, "get repository", func() (*github.Response, error) {
				_, resp, err := c.gh.Repositories.Get(ctx, owner, name)
				return resp, err
			})
			if err != nil {
				c.log.Error("skipping unreachable repository", zap.String("repo", full), zap.Error(err))
				continue
			}
			repos = append(repos, full)
		}
		return repos, nil
	}

	if org != "" {
		return c.listOrgRepos(ctx, org)
	}
	return c.listUserRepos(ctx)
}

func (c *Client) listOrgRepos(ctx context.Context, org string) ([]string, error) {
	var repos []string
	opts := &github.RepositoryListByOrgOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var page []*github.Repository
		resp, err := c.withRetry(ctx, "list org repositories", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.gh.Repositories.ListByOrg(ctx, org, opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("list repositories of org %s: %w", org, err)
		}

		for _, r := range page {
			repos = append(repos, r.GetFullName())
		}
		if resp.NextPage == 0 {
			return repos, nil
		}
		opts.Page = resp.NextPage
	}
}

func (c *Client) listUserRepos(ctx context.Context) ([]string, error) {
	var repos []string
	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		var page []*github.Repository
		resp, err := c.withRetry(ctx, "list user repositories", func() (*github.Response, error) {
			var resp *github.Response
			var err error
			page, resp, err = c.gh.Repositories.List(ctx, "", opts)
			return resp, err
		})
		if err != nil {
			return nil, fmt.Errorf("list user repositories: %w", err)
		}

		for _, r := range page {
			repos = append(repos, r.GetFullName())
		}
		if resp.NextPage == 0 {
			return repos, nil
		}
		opts.Page = resp.NextPage
	}
}
