// Package config provides configuration loading for pipemedic.
//
// Configuration is assembled from three layers, lowest precedence first:
// hardcoded defaults, a YAML config file, and PIPEMEDIC_* environment
// variables. The resulting Config value is constructed once at startup and
// passed into component constructors; nothing reads ambient process state
// after that.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete pipemedic configuration.
type Config struct {
	GitHub    GitHubConfig    `koanf:"github"`
	AI        AIConfig        `koanf:"ai"`
	Scan      ScanConfig      `koanf:"scan"`
	Retry     RetryConfig     `koanf:"retry"`
	Notify    NotifyConfig    `koanf:"notify"`
	Dashboard DashboardConfig `koanf:"dashboard"`
	Log       LogConfig       `koanf:"log"`
}

// GitHubConfig holds source-hosting credentials and scan targets.
type GitHubConfig struct {
	// Token authenticates every GitHub API call. Required.
	Token Secret `koanf:"token"`

	// Org scans every repository of an organization when Repos is empty.
	Org string `koanf:"org"`

	// Repos is an explicit "owner/name" list. Takes precedence over Org.
	Repos []string `koanf:"repos"`
}

// AIConfig selects the language-model provider for failure classification.
// An empty Provider disables the model fallback entirely; classification
// then always degrades to a needs-human diagnosis.
type AIConfig struct {
	Provider string `koanf:"provider"` // "openai", "anthropic", or ""
	Model    string `koanf:"model"`
	APIKey   Secret `koanf:"api_key"`
}

// ScanConfig bounds the failure sweep.
type ScanConfig struct {
	// Lookback is how far back completed runs are considered.
	Lookback Duration `koanf:"lookback"`
}

// RetryConfig bounds the retry controller.
type RetryConfig struct {
	// MaxAttempts caps attempts in a backoff sequence.
	MaxAttempts int `koanf:"max_attempts"`

	// InitialDelay is the first inter-attempt delay; it doubles per attempt.
	InitialDelay Duration `koanf:"initial_delay"`

	// MaxDelay caps the doubling.
	MaxDelay Duration `koanf:"max_delay"`

	// DiscoveryGrace is the pause between triggering a rerun and trying to
	// discover the new run it created.
	DiscoveryGrace Duration `koanf:"discovery_grace"`

	// PollInterval and PollTimeout bound the wait-to-completion poll.
	PollInterval Duration `koanf:"poll_interval"`
	PollTimeout  Duration `koanf:"poll_timeout"`

	// WaitForCompletion makes backoff attempts block until the rerun
	// reaches a terminal status before deciding whether to try again.
	WaitForCompletion bool `koanf:"wait_for_completion"`
}

// NotifyConfig controls issue escalation.
type NotifyConfig struct {
	CreateIssues   bool     `koanf:"create_issues"`
	IssueLabel     string   `koanf:"issue_label"`
	IssueAssignees []string `koanf:"issue_assignees"`
}

// DashboardConfig holds the read-view HTTP server settings.
type DashboardConfig struct {
	Addr string `koanf:"http_addr"`
}

// LogConfig holds logger construction settings.
type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // console or json
}

// Default returns a Config populated with defaults. Loading layers YAML and
// environment values on top; fields absent from those sources keep these
// values.
func Default() Config {
	return Config{
		Scan: ScanConfig{
			Lookback: Duration(24 * time.Hour),
		},
		Retry: RetryConfig{
			MaxAttempts:       3,
			InitialDelay:      Duration(60 * time.Second),
			MaxDelay:          Duration(15 * time.Minute),
			DiscoveryGrace:    Duration(2 * time.Second),
			PollInterval:      Duration(30 * time.Second),
			PollTimeout:       Duration(time.Hour),
			WaitForCompletion: true,
		},
		Notify: NotifyConfig{
			CreateIssues: true,
			IssueLabel:   "workflow-failure",
		},
		Dashboard: DashboardConfig{
			Addr: "localhost:8080",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration and returns every problem found, joined
// into a single error. The CLI refuses to make any remote call while this
// returns non-nil.
func (c *Config) Validate() error {
	var errs []error

	if !c.GitHub.Token.IsSet() {
		errs = append(errs, errors.New("github.token is required (GITHUB_TOKEN)"))
	}

	switch c.AI.Provider {
	case "", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("ai.provider must be \"openai\", \"anthropic\" or empty, got %q", c.AI.Provider))
	}
	if c.AI.Provider != "" && !c.AI.APIKey.IsSet() {
		errs = append(errs, fmt.Errorf("ai.api_key is required when ai.provider is %q", c.AI.Provider))
	}

	if c.Scan.Lookback.Duration() <= 0 {
		errs = append(errs, errors.New("scan.lookback must be positive"))
	}

	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}
	if c.Retry.InitialDelay.Duration() <= 0 {
		errs = append(errs, errors.New("retry.initial_delay must be positive"))
	}
	if c.Retry.MaxDelay.Duration() < c.Retry.InitialDelay.Duration() {
		errs = append(errs, errors.New("retry.max_delay must be >= retry.initial_delay"))
	}
	if c.Retry.PollInterval.Duration() <= 0 {
		errs = append(errs, errors.New("retry.poll_interval must be positive"))
	}
	if c.Retry.PollTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("retry.poll_timeout must be positive"))
	}

	if c.Notify.CreateIssues && c.Notify.IssueLabel == "" {
		errs = append(errs, errors.New("notify.issue_label must not be empty when notify.create_issues is set"))
	}

	if c.Dashboard.Addr == "" {
		errs = append(errs, errors.New("dashboard.http_addr must not be empty"))
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be \"console\" or \"json\", got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// AIEnabled reports whether a language-model provider is configured.
func (c *Config) AIEnabled() bool {
	return c.AI.Provider != ""
}

// ModelOrDefault returns the configured model, falling back to a sensible
// default per provider.
func (c *AIConfig) ModelOrDefault() string {
	if c.Model != "" {
		return c.Model
	}
	switch c.Provider {
	case "anthropic":
		return "claude-3-5-sonnet-20241022"
	case "openai":
		return "gpt-4o"
	}
	return ""
}
