// Package fixgen produces candidate edits for failed workflow definitions.
//
// Two tiers, in order. The pattern tier matches failure logs against a fixed
// rule table and applies a deterministic text transform to the workflow file.
// The confidence tier is consulted only when the pattern tier produced
// nothing and the diagnosis is trustworthy; authoring an arbitrary patch from
// a model suggestion is not yet supported, so that tier returns nothing.
// An empty candidate list means "no safe automatic edit known" and is a
// normal outcome, not an error.
package fixgen

import (
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/pipemedic/internal/analyzer"
)

// aiFixThreshold is the minimum diagnosis confidence before the confidence
// tier is even consulted. It is an agreement threshold, not a "maybe" one.
const aiFixThreshold = 0.7

// Candidate is one proposed edit to a workflow file.
type Candidate struct {
	Path        string `json:"path"`
	Original    string `json:"-"`
	Fixed       string `json:"-"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// rule pairs a log signature with the transform that repairs it. A nil
// transform means the signature is recognized but no textual fix is known.
type rule struct {
	name        string
	pattern     *regexp.Regexp
	category    string
	description string
	transform   func(workflow string) string
}

// Rules are ordered: the first whose pattern matches the logs wins.
var rules = []rule{
	{
		name:        "node_version",
		pattern:     regexp.MustCompile(`(?i)Node\.js version .* is no longer supported|The following actions uses node12`),
		category:    "node_upgrade",
		description: "Upgrade Node.js version to 20 (LTS)",
		transform:   bumpNodeVersion,
	},
	{
		name:        "checkout_version",
		pattern:     regexp.MustCompile(`(?i)actions/checkout@v[12]`),
		category:    "action_upgrade",
		description: "Upgrade actions/checkout to v4",
		transform:   actionBump("actions/checkout", "v4"),
	},
	{
		name:        "setup_node_version",
		pattern:     regexp.MustCompile(`(?i)actions/setup-node@v[12]`),
		category:    "action_upgrade",
		description: "Upgrade actions/setup-node to v4",
		transform:   actionBump("actions/setup-node", "v4"),
	},
	{
		name:        "python_version",
		pattern:     regexp.MustCompile(`(?i)actions/setup-python@v[12]`),
		category:    "action_upgrade",
		description: "Upgrade actions/setup-python to v5",
		transform:   actionBump("actions/setup-python", "v5"),
	},
	{
		name:        "npm_ci_failure",
		pattern:     regexp.MustCompile(`(?i)npm ERR! code E(NOTFOUND|NOENT|LIFECYCLE)`),
		category:    "dependency",
		description: "Fix npm dependency issue",
	},
	{
		name:        "pip_install_failure",
		pattern:     regexp.MustCompile(`(?i)Could not find a version that satisfies the requirement`),
		category:    "dependency",
		description: "Fix pip dependency issue",
	},
	{
		name:        "permission_denied",
		pattern:     regexp.MustCompile(`(?i)Permission denied|EACCES`),
		category:    "permission",
		description: "Fix file permission issue",
	},
}

var nodeVersionRE = regexp.MustCompile(`(node-version:\s*['"]?)(\d+)(['"]?)`)

// bumpNodeVersion raises every node-version below 18 to 20, preserving the
// original quoting style. Versions already at 18 or newer are untouched.
func bumpNodeVersion(workflow string) string {
	return nodeVersionRE.ReplaceAllStringFunc(workflow, func(m string) string {
		groups := nodeVersionRE.FindStringSubmatch(m)
		version, err := strconv.Atoi(groups[2])
		if err != nil || version >= 18 {
			return m
		}
		return groups[1] + "20" + groups[3]
	})
}

// actionBump rewrites every "@v<n>" (or "@<n>") reference of one named
// action to the target version.
func actionBump(action, target string) func(string) string {
	re := regexp.MustCompile(regexp.QuoteMeta(action) + `@v?\d+`)
	return func(workflow string) string {
		return re.ReplaceAllString(workflow, action+"@"+target)
	}
}

// Generator produces fix candidates for diagnosed failures.
type Generator struct {
	log *zap.Logger
}

// New creates a Generator.
func New(log *zap.Logger) *Generator {
	return &Generator{log: log.Named("fixgen")}
}

// MatchRule reports whether the logs match any pattern rule. This is the
// pattern-tier predicate the auto-fix gate uses: a rule match qualifies a
// failure for auto-fix regardless of diagnosis confidence.
func (g *Generator) MatchRule(logText string) bool {
	return matchRule(logText) != nil
}

func matchRule(logText string) *rule {
	for i := range rules {
		if rules[i].pattern.MatchString(logText) {
			return &rules[i]
		}
	}
	return nil
}

// Generate returns zero or more fix candidates for a diagnosed failure.
// workflowPath and workflowText are the location and current content of the
// workflow definition on the source branch.
func (g *Generator) Generate(diag analyzer.Diagnosis, workflowPath, workflowText, logText string) []Candidate {
	if r := matchRule(logText); r != nil {
		g.log.Info("log signature matched fix rule", zap.String("rule", r.name))
		if r.transform == nil {
			// Signature known, no deterministic workflow edit for it.
			return nil
		}
		fixed := r.transform(workflowText)
		if fixed == workflowText {
			// The transform was a no-op, likely already applied. Proposing it
			// again would commit an empty change.
			g.log.Info("fix rule produced no change", zap.String("rule", r.name))
			return nil
		}
		return []Candidate{{
			Path:        workflowPath,
			Original:    workflowText,
			Fixed:       fixed,
			Description: r.description,
			Category:    r.category,
		}}
	}

	if diag.Confidence >= aiFixThreshold && !diag.NeedsHuman && diag.SuggestedFix != "" {
		return g.aiCandidates(diag)
	}
	return nil
}

// aiCandidates would turn a model-suggested fix into a concrete edit.
// Authoring arbitrary patches is not yet supported, so the suggestion is
// logged for the escalation issue and no candidate is produced. Callers must
// not assume this tier ever yields output.
func (g *Generator) aiCandidates(diag analyzer.Diagnosis) []Candidate {
	suggestion := diag.SuggestedFix
	if len(suggestion) > 100 {
		suggestion = suggestion[:100] + "..."
	}
	g.log.Info("model suggested a fix but patch authoring is unavailable",
		zap.String("category", diag.Category),
		zap.Float64("confidence", diag.Confidence),
		zap.String("suggestion", suggestion),
	)
	return nil
}
