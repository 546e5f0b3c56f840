package commits

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/fixgen"
	"github.com/fyrsmithlabs/pipemedic/internal/ghapi"
)

var errNotFound = errors.New("not found")

type mockHost struct {
	files    map[string]ghapi.File // keyed by path
	putErr   map[string]error      // keyed by path
	branches map[string]bool

	defaultBranchErr error
	ensureErr        error

	puts       []putCall
	ensured    []string
	prURL      string
	prErr      error
	gotPRHead  string
	gotPRBase  string
	putCounter int
}

type putCall struct {
	path, branch, message, content, sha string
}

func (m *mockHost) DefaultBranch(ctx context.Context, repo string) (string, error) {
	if m.defaultBranchErr != nil {
		return "", m.defaultBranchErr
	}
	return "main", nil
}

func (m *mockHost) EnsureBranch(ctx context.Context, repo, branch, base string) (bool, error) {
	if m.ensureErr != nil {
		return false, m.ensureErr
	}
	m.ensured = append(m.ensured, branch)
	created := !m.branches[branch]
	if m.branches == nil {
		m.branches = map[string]bool{}
	}
	m.branches[branch] = true
	return created, nil
}

func (m *mockHost) FileContent(ctx context.Context, repo, path, ref string) (ghapi.File, error) {
	f, ok := m.files[path]
	if !ok {
		return ghapi.File{}, errNotFound
	}
	return f, nil
}

func (m *mockHost) PutFile(ctx context.Context, repo, path, branch, message, content, sha string) (ghapi.CommitInfo, error) {
	if err := m.putErr[path]; err != nil {
		return ghapi.CommitInfo{}, err
	}
	m.puts = append(m.puts, putCall{path, branch, message, content, sha})
	m.putCounter++
	return ghapi.CommitInfo{
		SHA: fmt.Sprintf("commit%d", m.putCounter),
		URL: fmt.Sprintf("https://example.com/commit%d", m.putCounter),
	}, nil
}

func (m *mockHost) OpenPullRequest(ctx context.Context, repo, head, base, title, body string) (string, error) {
	m.gotPRHead, m.gotPRBase = head, base
	return m.prURL, m.prErr
}

func (m *mockHost) IsNotFound(err error) bool { return errors.Is(err, errNotFound) }

func cand(path, category string) fixgen.Candidate {
	return fixgen.Candidate{
		Path:        path,
		Fixed:       "fixed: " + path,
		Description: "upgrade " + path,
		Category:    category,
	}
}

func TestApply(t *testing.T) {
	host := &mockHost{
		files: map[string]ghapi.File{
			".github/workflows/ci.yml": {Content: "old", SHA: "sha-ci"},
		},
	}
	s := New(host, zap.NewNop())

	outcomes := s.Apply(context.Background(), "acme/widgets",
		[]fixgen.Candidate{
			cand(".github/workflows/ci.yml", "action_upgrade"),
			cand(".github/workflows/new.yml", "action_upgrade"),
		}, "main", "Auto-fix ci failure")

	require.Len(t, outcomes, 2)
	for _, o := range outcomes {
		assert.True(t, o.OK)
		assert.Equal(t, "fix/main-action_upgrade", o.Branch)
		assert.NotEmpty(t, o.CommitSHA)
		assert.NotEmpty(t, o.CommitURL)
	}

	require.Len(t, host.puts, 2)
	assert.Equal(t, "sha-ci", host.puts[0].sha, "existing file updated with its SHA token")
	assert.Empty(t, host.puts[1].sha, "absent file created without a SHA")
	assert.Equal(t, "Auto-fix ci failure (fix 1/2): upgrade .github/workflows/ci.yml", host.puts[0].message)
	assert.Equal(t, "Auto-fix ci failure (fix 2/2): upgrade .github/workflows/new.yml", host.puts[1].message)

	assert.Equal(t, []string{"fix/main-action_upgrade"}, host.ensured, "branch ensured exactly once")
}

func TestApplyAbortsBatchOnFailure(t *testing.T) {
	host := &mockHost{
		files: map[string]ghapi.File{
			"a.yml": {SHA: "sha-a"},
			"b.yml": {SHA: "sha-b"},
			"c.yml": {SHA: "sha-c"},
		},
		putErr: map[string]error{"b.yml": errors.New("409 sha mismatch")},
	}
	s := New(host, zap.NewNop())

	outcomes := s.Apply(context.Background(), "acme/widgets",
		[]fixgen.Candidate{cand("a.yml", "dep"), cand("b.yml", "dep"), cand("c.yml", "dep")},
		"main", "Auto-fix")

	require.Len(t, outcomes, 2, "failure at index 1 yields exactly 2 outcomes")
	assert.True(t, outcomes[0].OK)
	assert.False(t, outcomes[1].OK)
	assert.Contains(t, outcomes[1].Err, "sha mismatch")
	assert.Len(t, host.puts, 1, "c.yml never attempted")
}

func TestApplyBranchReused(t *testing.T) {
	host := &mockHost{branches: map[string]bool{"fix/main-dep": true}}
	s := New(host, zap.NewNop())

	outcomes := s.Apply(context.Background(), "acme/widgets",
		[]fixgen.Candidate{cand("a.yml", "dep")}, "main", "Auto-fix")

	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].OK)
	assert.Equal(t, []string{"fix/main-dep"}, host.ensured)
}

func TestApplyEnsureBranchFailure(t *testing.T) {
	host := &mockHost{ensureErr: errors.New("403 forbidden")}
	outcomes := New(host, zap.NewNop()).Apply(context.Background(), "acme/widgets",
		[]fixgen.Candidate{cand("a.yml", "dep")}, "main", "Auto-fix")

	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].OK)
	assert.Contains(t, outcomes[0].Err, "ensure branch")
}

func TestApplyEmptyCandidates(t *testing.T) {
	assert.Nil(t, New(&mockHost{}, zap.NewNop()).Apply(context.Background(), "acme/widgets", nil, "main", "Auto-fix"))
}

func TestBranchFor(t *testing.T) {
	assert.Equal(t, "fix/main-node_upgrade", BranchFor("main", "node_upgrade"))
	assert.Equal(t, "fix/release-dep", BranchFor("release", "dep"))
}

func TestOpenPullRequest(t *testing.T) {
	host := &mockHost{prURL: "https://example.com/pr/1"}
	s := New(host, zap.NewNop())

	url, err := s.OpenPullRequest(context.Background(), "acme/widgets", "fix/main-dep", "main", "Fix ci", "details")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/pr/1", url)
	assert.Equal(t, "fix/main-dep", host.gotPRHead)
	assert.Equal(t, "main", host.gotPRBase)

	host.prErr = errors.New("422 no diff")
	_, err = s.OpenPullRequest(context.Background(), "acme/widgets", "fix/main-dep", "main", "Fix ci", "details")
	assert.Error(t, err)
}
