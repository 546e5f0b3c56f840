package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 24*time.Hour, cfg.Scan.Lookback.Duration())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Retry.InitialDelay.Duration())
	assert.Equal(t, 15*time.Minute, cfg.Retry.MaxDelay.Duration())
	assert.Equal(t, 2*time.Second, cfg.Retry.DiscoveryGrace.Duration())
	assert.Equal(t, 30*time.Second, cfg.Retry.PollInterval.Duration())
	assert.Equal(t, time.Hour, cfg.Retry.PollTimeout.Duration())
	assert.True(t, cfg.Retry.WaitForCompletion)
	assert.True(t, cfg.Notify.CreateIssues)
	assert.Equal(t, "workflow-failure", cfg.Notify.IssueLabel)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
github:
  token: ghp_filetoken
  repos:
    - acme/widgets
    - acme/gadgets
ai:
  provider: anthropic
  api_key: sk-ant-test
retry:
  max_attempts: 5
  initial_delay: 10s
scan:
  lookback: 48h
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ghp_filetoken", cfg.GitHub.Token.Value())
	assert.Equal(t, []string{"acme/widgets", "acme/gadgets"}, cfg.GitHub.Repos)
	assert.Equal(t, "anthropic", cfg.AI.Provider)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Retry.InitialDelay.Duration())
	assert.Equal(t, 48*time.Hour, cfg.Scan.Lookback.Duration())
	// Untouched fields keep defaults.
	assert.Equal(t, 15*time.Minute, cfg.Retry.MaxDelay.Duration())
	assert.Equal(t, "workflow-failure", cfg.Notify.IssueLabel)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("github:\n  token: fromfile\n"), 0o600))

	t.Setenv("PIPEMEDIC_GITHUB_TOKEN", "fromenv")
	t.Setenv("PIPEMEDIC_RETRY_MAX_ATTEMPTS", "7")
	t.Setenv("PIPEMEDIC_AI_PROVIDER", "openai")
	t.Setenv("PIPEMEDIC_AI_API_KEY", "sk-test")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "fromenv", cfg.GitHub.Token.Value())
	assert.Equal(t, 7, cfg.Retry.MaxAttempts)
	assert.Equal(t, "openai", cfg.AI.Provider)
	assert.Equal(t, "sk-test", cfg.AI.APIKey.Value())
}

func TestBareGithubTokenFallback(t *testing.T) {
	t.Setenv("GITHUB_TOKEN", "bare-token")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err, "explicit missing path should fail")

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "bare-token", cfg.GitHub.Token.Value())
}

func TestEnvTransform(t *testing.T) {
	cases := map[string]string{
		"PIPEMEDIC_GITHUB_TOKEN":        "github.token",
		"PIPEMEDIC_AI_API_KEY":          "ai.api_key",
		"PIPEMEDIC_RETRY_MAX_ATTEMPTS":  "retry.max_attempts",
		"PIPEMEDIC_NOTIFY_ISSUE_LABEL":  "notify.issue_label",
		"PIPEMEDIC_DASHBOARD_HTTP_ADDR": "dashboard.http_addr",
	}
	for in, want := range cases {
		assert.Equal(t, want, envTransform(in), in)
	}
}

func TestValidate(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		cfg := Default()
		cfg.GitHub.Token = "ghp_x"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing token", func(t *testing.T) {
		cfg := Default()
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "github.token is required")
	})

	t.Run("bad provider", func(t *testing.T) {
		cfg := Default()
		cfg.GitHub.Token = "ghp_x"
		cfg.AI.Provider = "cohere"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ai.provider")
	})

	t.Run("provider without key", func(t *testing.T) {
		cfg := Default()
		cfg.GitHub.Token = "ghp_x"
		cfg.AI.Provider = "openai"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "ai.api_key is required")
	})

	t.Run("multiple problems reported together", func(t *testing.T) {
		cfg := Default()
		cfg.Retry.MaxAttempts = 0
		cfg.Scan.Lookback = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "github.token")
		assert.Contains(t, err.Error(), "retry.max_attempts")
		assert.Contains(t, err.Error(), "scan.lookback")
	})
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("super-secret")
	assert.Equal(t, "[REDACTED]", s.String())
	assert.Equal(t, "super-secret", s.Value())
	assert.True(t, s.IsSet())

	data, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Equal(t, `"[REDACTED]"`, string(data))

	assert.False(t, Secret("").IsSet())
}

func TestDurationUnmarshalText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("90s")))
	assert.Equal(t, 90*time.Second, d.Duration())

	assert.Error(t, d.UnmarshalText([]byte("-5s")))
	assert.Error(t, d.UnmarshalText([]byte("not a duration")))
}

func TestModelOrDefault(t *testing.T) {
	ai := AIConfig{Provider: "openai"}
	assert.Equal(t, "gpt-4o", ai.ModelOrDefault())

	ai = AIConfig{Provider: "anthropic"}
	assert.Equal(t, "claude-3-5-sonnet-20241022", ai.ModelOrDefault())

	ai = AIConfig{Provider: "openai", Model: "gpt-4.1"}
	assert.Equal(t, "gpt-4.1", ai.ModelOrDefault())
}
