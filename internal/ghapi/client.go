// Package ghapi wraps the GitHub API surface pipemedic depends on.
//
// Every remote operation goes through a retry wrapper that understands
// GitHub rate limiting, and returns plain domain values so the rest of the
// system never touches go-github types directly.
package ghapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/pipemedic/internal/config"
)

// Client provides GitHub operations for the remediation pipeline.
type Client struct {
	gh    *github.Client
	http  *http.Client
	retry *RetryConfig
	log   *zap.Logger
}

// New creates an authenticated GitHub client.
func New(ctx context.Context, token config.Secret, log *zap.Logger) (*Client, error) {
	if !token.IsSet() {
		return nil, fmt.Errorf("GitHub token not set")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.Value()})
	tc := oauth2.NewClient(ctx, ts)

	return &Client{
		gh:    github.NewClient(tc),
		http:  &http.Client{Timeout: 60 * time.Second},
		retry: DefaultRetryConfig(),
		log:   log.Named("ghapi"),
	}, nil
}

// NewWithBaseURL creates a client pointed at a test server. Requests are
// unauthenticated and the retry wrapper is configured for fast tests.
func NewWithBaseURL(baseURL string, log *zap.Logger) (*Client, error) {
	gh, err := github.NewClient(nil).WithEnterpriseURLs(baseURL, baseURL)
	if err != nil {
		return nil, fmt.Errorf("configure base URL: %w", err)
	}
	return &Client{
		gh:    gh,
		http:  &http.Client{Timeout: 10 * time.Second},
		retry: &RetryConfig{MaxRetries: 1, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, BackoffMultiplier: 2},
		log:   log.Named("ghapi"),
	}, nil
}

// SplitRepo splits an "owner/name" repository identifier.
func SplitRepo(fullName string) (owner, name string, err error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q: want owner/name", fullName)
	}
	return parts[0], parts[1], nil
}

// Run is a workflow run reduced to the fields the pipeline consumes.
type Run struct {
	ID                int64
	WorkflowID        int64
	Name              string
	URL               string
	Branch            string
	HeadSHA           string
	Status            string
	Conclusion        string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	LogsURL           string
	HeadCommitMessage string
}

// File is a repository file snapshot: content plus the blob SHA used as the
// optimistic-concurrency token on writes.
type File struct {
	Content string
	SHA     string
}

// CommitInfo identifies a commit created through the contents API.
type CommitInfo struct {
	SHA string
	URL string
}

// Issue is a tracking issue reduced to identification fields.
type Issue struct {
	Number int
	Title  string
	URL    string
}

// runFromGitHub converts a go-github workflow run.
func runFromGitHub(r *github.WorkflowRun) Run {
	run := Run{
		ID:         r.GetID(),
		WorkflowID: r.GetWorkflowID(),
		Name:       r.GetName(),
		URL:        r.GetHTMLURL(),
		Branch:     r.GetHeadBranch(),
		HeadSHA:    r.GetHeadSHA(),
		Status:     r.GetStatus(),
		Conclusion: r.GetConclusion(),
		CreatedAt:  r.GetCreatedAt().Time,
		UpdatedAt:  r.GetUpdatedAt().Time,
		LogsURL:    r.GetLogsURL(),
	}
	if hc := r.GetHeadCommit(); hc != nil {
		run.HeadCommitMessage = hc.GetMessage()
	}
	return run
}

// IsNotFound reports whether err is a GitHub 404.
func IsNotFound(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		return ghErr.Response.StatusCode == http.StatusNotFound
	}
	return false
}

// IsNotFound lets consumers classify errors through their narrowed client
// interfaces without importing this package's helpers directly.
func (c *Client) IsNotFound(err error) bool {
	return IsNotFound(err)
}
