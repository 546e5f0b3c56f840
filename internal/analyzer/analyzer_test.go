package analyzer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type mockCompleter struct {
	reply string
	err   error

	gotSystem string
	gotUser   string
}

func (m *mockCompleter) Complete(ctx context.Context, system, user string) (string, error) {
	m.gotSystem = system
	m.gotUser = user
	return m.reply, m.err
}

const goodReply = `{
	"error_type": "dependency",
	"error_summary": "npm install failed",
	"root_cause": "lockfile references a yanked package version",
	"suggested_fix": "regenerate package-lock.json",
	"fix_confidence": 0.85,
	"requires_manual_intervention": false,
	"relevant_files": ["package-lock.json"],
	"additional_context": "seen on node 20 runners"
}`

func TestClassify(t *testing.T) {
	m := &mockCompleter{reply: goodReply}
	a := New(m, zap.NewNop())

	d := a.Classify(context.Background(), "ci", "npm ERR! code E404", "bump deps")

	assert.Equal(t, CategoryDependency, d.Category)
	assert.Equal(t, "npm install failed", d.Summary)
	assert.InDelta(t, 0.85, d.Confidence, 1e-9)
	assert.False(t, d.NeedsHuman)
	assert.Equal(t, []string{"package-lock.json"}, d.RelevantFiles)

	assert.Contains(t, m.gotSystem, "DevOps engineer")
	assert.Contains(t, m.gotUser, "Workflow Name: ci")
	assert.Contains(t, m.gotUser, "npm ERR! code E404")
	assert.Contains(t, m.gotUser, "Commit Message: bump deps")
}

func TestClassifyFencedReply(t *testing.T) {
	m := &mockCompleter{reply: "```json\n" + goodReply + "\n```"}
	d := New(m, zap.NewNop()).Classify(context.Background(), "ci", "logs", "")

	assert.Equal(t, CategoryDependency, d.Category)
	assert.False(t, d.NeedsHuman)
}

func TestClassifyGarbageReplyDegrades(t *testing.T) {
	m := &mockCompleter{reply: "I am sorry, I cannot help with that."}
	d := New(m, zap.NewNop()).Classify(context.Background(), "ci", "logs", "")

	assert.Equal(t, CategoryUnknown, d.Category)
	assert.Zero(t, d.Confidence)
	assert.True(t, d.NeedsHuman)
	assert.Contains(t, d.RootCause, "failed to parse AI response")
	assert.Contains(t, d.Context, "I am sorry", "raw reply preserved for the escalation issue")
}

func TestClassifyCompleterErrorDegrades(t *testing.T) {
	m := &mockCompleter{err: errors.New("429 rate limited")}
	d := New(m, zap.NewNop()).Classify(context.Background(), "ci", "logs", "")

	assert.Equal(t, CategoryUnknown, d.Category)
	assert.Zero(t, d.Confidence)
	assert.True(t, d.NeedsHuman)
	assert.Contains(t, d.RootCause, "429 rate limited")
}

func TestClassifyNilCompleterDegrades(t *testing.T) {
	d := New(nil, zap.NewNop()).Classify(context.Background(), "ci", "logs", "")

	assert.Equal(t, CategoryUnknown, d.Category)
	assert.True(t, d.NeedsHuman)
	assert.Contains(t, d.RootCause, "not configured")
}

func TestClassifyConfidenceClamped(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want float64
	}{
		{"1.7", 1.0},
		{"-0.2", 0.0},
		{"0.5", 0.5},
	} {
		reply := `{"error_type":"syntax","fix_confidence":` + tc.raw + `}`
		d := New(&mockCompleter{reply: reply}, zap.NewNop()).Classify(context.Background(), "ci", "logs", "")
		assert.InDelta(t, tc.want, d.Confidence, 1e-9, "raw %s", tc.raw)
	}
}

func TestClassifyEmptyCategoryDefaults(t *testing.T) {
	d := New(&mockCompleter{reply: `{"error_summary":"hm"}`}, zap.NewNop()).
		Classify(context.Background(), "ci", "logs", "")
	assert.Equal(t, CategoryUnknown, d.Category)
}

func TestBuildPromptTruncatesLogTail(t *testing.T) {
	long := strings.Repeat("x", maxLogTail) + "TAIL-MARKER"
	prompt := buildPrompt("ci", long, "")

	require.Contains(t, prompt, "...[truncated]...")
	assert.Contains(t, prompt, "TAIL-MARKER", "tail of the log is the part that survives")
	assert.NotContains(t, prompt, strings.Repeat("x", maxLogTail), "front of the log is dropped")
}

func TestTransient(t *testing.T) {
	assert.True(t, Diagnosis{Category: CategoryTimeout}.Transient())
	assert.True(t, Diagnosis{Category: CategoryNetwork}.Transient())
	assert.True(t, Diagnosis{Category: CategoryTransient}.Transient())
	assert.False(t, Diagnosis{Category: CategorySyntax}.Transient())
	assert.False(t, Diagnosis{Category: CategoryUnknown}.Transient())
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences(`{"a":1}`))
}
