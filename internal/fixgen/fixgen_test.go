package fixgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/analyzer"
)

const checkoutWorkflow = `name: ci
jobs:
  build:
    steps:
      - uses: actions/checkout@v2
      - uses: actions/setup-node@v4
`

func newGen() *Generator { return New(zap.NewNop()) }

func TestGenerateCheckoutUpgrade(t *testing.T) {
	logs := "deprecation notice: actions/checkout@v2 will stop working"

	cands := newGen().Generate(analyzer.Diagnosis{}, ".github/workflows/ci.yml", checkoutWorkflow, logs)
	require.Len(t, cands, 1)

	c := cands[0]
	assert.Equal(t, ".github/workflows/ci.yml", c.Path)
	assert.Equal(t, "action_upgrade", c.Category)
	assert.Contains(t, c.Fixed, "actions/checkout@v4")
	assert.NotContains(t, c.Fixed, "actions/checkout@v2")
	assert.Contains(t, c.Fixed, "actions/setup-node@v4", "unrelated action untouched")
	assert.Equal(t, checkoutWorkflow, c.Original)
}

func TestGenerateNodeVersionBump(t *testing.T) {
	workflow := "steps:\n  - uses: actions/setup-node@v4\n    with:\n      node-version: '14'\n"
	logs := "Node.js version 14 is no longer supported"

	cands := newGen().Generate(analyzer.Diagnosis{}, ".github/workflows/ci.yml", workflow, logs)
	require.Len(t, cands, 1)
	assert.Contains(t, cands[0].Fixed, "node-version: '20'", "quote style preserved")
	assert.Equal(t, "node_upgrade", cands[0].Category)
}

func TestGenerateNodeVersionUnquoted(t *testing.T) {
	workflow := "with:\n  node-version: 12\n"
	logs := "The following actions uses node12"

	cands := newGen().Generate(analyzer.Diagnosis{}, "ci.yml", workflow, logs)
	require.Len(t, cands, 1)
	assert.Contains(t, cands[0].Fixed, "node-version: 20")
}

func TestGenerateNodeVersionAlreadyCurrent(t *testing.T) {
	workflow := "with:\n  node-version: '20'\n"
	logs := "Node.js version 16 is no longer supported"

	cands := newGen().Generate(analyzer.Diagnosis{}, "ci.yml", workflow, logs)
	assert.Empty(t, cands, "transform is a no-op on an up-to-date workflow")
}

func TestGenerateRecognizedSignatureWithoutTransform(t *testing.T) {
	for _, logs := range []string{
		"npm ERR! code ENOTFOUND",
		"ERROR: Could not find a version that satisfies the requirement leftpad",
		"sh: 1: ./deploy.sh: Permission denied",
	} {
		cands := newGen().Generate(analyzer.Diagnosis{}, "ci.yml", checkoutWorkflow, logs)
		assert.Empty(t, cands, "logs %q", logs)
	}
}

func TestGenerateConfidenceTierIsStubbed(t *testing.T) {
	diag := analyzer.Diagnosis{
		Category:     analyzer.CategoryConfiguration,
		Confidence:   0.95,
		SuggestedFix: "pin the toolchain version",
	}
	cands := newGen().Generate(diag, "ci.yml", checkoutWorkflow, "some unmatched log")
	assert.Empty(t, cands, "patch authoring from model suggestions is unavailable")
}

func TestGenerateLowConfidenceNoPattern(t *testing.T) {
	diag := analyzer.Diagnosis{Confidence: 0.5, SuggestedFix: "something"}
	assert.Empty(t, newGen().Generate(diag, "ci.yml", checkoutWorkflow, "unmatched"))
}

func TestMatchRule(t *testing.T) {
	g := newGen()
	assert.True(t, g.MatchRule("actions/setup-python@v2 is deprecated"))
	assert.True(t, g.MatchRule("npm ERR! code ELIFECYCLE"))
	assert.False(t, g.MatchRule("some novel failure"))
}

func TestMatchRuleFirstMatchWins(t *testing.T) {
	// Both node_version and checkout signatures are present; the table order
	// picks node_version.
	logs := "The following actions uses node12: actions/checkout@v2"
	r := matchRule(logs)
	require.NotNil(t, r)
	assert.Equal(t, "node_version", r.name)
}

func TestGenerateIdempotent(t *testing.T) {
	logs := "deprecation notice: actions/checkout@v2"
	first := newGen().Generate(analyzer.Diagnosis{}, "ci.yml", checkoutWorkflow, logs)
	require.Len(t, first, 1)

	second := newGen().Generate(analyzer.Diagnosis{}, "ci.yml", first[0].Fixed, logs)
	assert.Empty(t, second, "re-running on the fixed content proposes nothing")
}
