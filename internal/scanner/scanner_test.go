package scanner

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/config"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
)

type mockHost struct {
	repos    []string
	reposErr error
	runs     map[string][]ghapi.Run
	runsErr  map[string]error
	logs     map[int64]string
	logsErr  map[int64]error

	gotSince time.Time
}

func (m *mockHost) ListRepos(ctx context.Context, explicit []string, org string) ([]string, error) {
	return m.repos, m.reposErr
}

func (m *mockHost) ListFailedRuns(ctx context.Context, repo string, since time.Time) ([]ghapi.Run, error) {
	m.gotSince = since
	if err := m.runsErr[repo]; err != nil {
		return nil, err
	}
	return m.runs[repo], nil
}

func (m *mockHost) RunLogs(ctx context.Context, repo string, runID int64) (string, error) {
	if err := m.logsErr[runID]; err != nil {
		return "", err
	}
	return m.logs[runID], nil
}

func newScanner(host Host) *Scanner {
	return New(host, config.GitHubConfig{Repos: []string{"acme/widgets"}}, config.ScanConfig{
		Lookback: config.Duration(24 * time.Hour),
	}, zap.NewNop())
}

func TestScanAll(t *testing.T) {
	host := &mockHost{
		repos: []string{"acme/widgets", "acme/gadgets"},
		runs: map[string][]ghapi.Run{
			"acme/widgets": {
				{ID: 1, WorkflowID: 10, Name: "ci", Conclusion: "failure", Branch: "main", HeadSHA: "abc"},
				{ID: 2, WorkflowID: 10, Name: "ci", Conclusion: "timed_out", Branch: "main"},
			},
			"acme/gadgets": {
				{ID: 3, WorkflowID: 20, Name: "deploy", Conclusion: "cancelled", Branch: "release"},
			},
		},
	}

	s := newScanner(host)
	failures, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, failures, 3)

	assert.Equal(t, "acme/widgets", failures[0].RepoFullName)
	assert.Equal(t, "ci", failures[0].WorkflowName)
	assert.Equal(t, int64(1), failures[0].RunID)
	assert.Equal(t, "failure", failures[0].Conclusion)
	assert.Equal(t, "cancelled", failures[2].Conclusion)

	// Lookback window applied.
	assert.WithinDuration(t, time.Now().Add(-24*time.Hour), host.gotSince, time.Minute)
}

func TestScanAllSkipsBrokenRepo(t *testing.T) {
	host := &mockHost{
		repos: []string{"acme/broken", "acme/widgets"},
		runs: map[string][]ghapi.Run{
			"acme/widgets": {{ID: 1, Name: "ci", Conclusion: "failure"}},
		},
		runsErr: map[string]error{
			"acme/broken": errors.New("api exploded"),
		},
	}

	failures, err := newScanner(host).ScanAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, failures, 1)
}

func TestScanAllRepoResolutionFailure(t *testing.T) {
	host := &mockHost{reposErr: errors.New("bad credentials")}
	_, err := newScanner(host).ScanAll(context.Background())
	assert.Error(t, err)
}

func TestLogs(t *testing.T) {
	host := &mockHost{
		logs:    map[int64]string{1: "log text"},
		logsErr: map[int64]error{2: errors.New("410 gone")},
	}
	s := newScanner(host)

	text, ok := s.Logs(context.Background(), FailedRun{RunID: 1})
	assert.True(t, ok)
	assert.Equal(t, "log text", text)

	_, ok = s.Logs(context.Background(), FailedRun{RunID: 2})
	assert.False(t, ok, "fetch error means logs absent, not failure")

	_, ok = s.Logs(context.Background(), FailedRun{RunID: 3})
	assert.False(t, ok, "empty logs count as absent")
}

func TestWorkflowFileCandidates(t *testing.T) {
	run := FailedRun{WorkflowName: "ci"}
	assert.Equal(t, []string{".github/workflows/ci.yml", ".github/workflows/ci.yaml"}, run.WorkflowFileCandidates())
}

func TestFailedRunDefaults(t *testing.T) {
	fr := failedRunFrom("acme/widgets", ghapi.Run{ID: 9, Conclusion: "failure"})
	assert.Equal(t, "unknown", fr.WorkflowName)
	assert.Equal(t, "unknown", fr.Branch)
	assert.Equal(t, "acme/widgets/unknown#9", fr.String())
}
