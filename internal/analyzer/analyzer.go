// Package analyzer classifies workflow failures from their log output.
//
// Classification has one hard invariant: Classify never fails. Every remote
// or parse problem is folded into a degraded Diagnosis (category unknown,
// confidence zero, needs-human) so an unclassifiable failure flows through
// the same remediation state machine as a classified one.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// maxLogTail bounds the log text sent to the model. Longer logs are
// truncated from the front: root causes usually appear near the end.
const maxLogTail = 8000

const systemPrompt = "You are an expert DevOps engineer who specializes in debugging " +
	"GitHub Actions workflows. You provide accurate, actionable analysis of workflow failures."

// Analyzer turns raw failure logs into a Diagnosis.
type Analyzer struct {
	completer Completer
	log       *zap.Logger
}

// New creates an Analyzer. completer may be nil (model disabled); every
// classification then degrades.
func New(completer Completer, log *zap.Logger) *Analyzer {
	return &Analyzer{
		completer: completer,
		log:       log.Named("analyzer"),
	}
}

// Classify analyzes a failure. It never returns an error: any failure of
// the model call or reply parsing yields a degraded Diagnosis instead.
func (a *Analyzer) Classify(ctx context.Context, workflowName, logText, commitMessage string) Diagnosis {
	if a.completer == nil {
		return degraded("language model not configured", "")
	}

	prompt := buildPrompt(workflowName, logText, commitMessage)

	reply, err := a.completer.Complete(ctx, systemPrompt, prompt)
	if err != nil {
		a.log.Error("model call failed", zap.String("workflow", workflowName), zap.Error(err))
		return degraded(fmt.Sprintf("AI analysis failed: %v", err), "")
	}

	diag, err := parseReply(reply)
	if err != nil {
		a.log.Error("model reply unparseable", zap.String("workflow", workflowName), zap.Error(err))
		return degraded(fmt.Sprintf("failed to parse AI response: %v", err), reply)
	}

	a.log.Debug("model reply parsed",
		zap.String("workflow", workflowName),
		zap.String("category", diag.Category),
		zap.Float64("confidence", diag.Confidence),
		zap.Bool("needs_human", diag.NeedsHuman),
	)
	return diag
}

// degraded is the single shape every classification failure collapses to.
func degraded(reason, rawReply string) Diagnosis {
	return Diagnosis{
		Category:     CategoryUnknown,
		Summary:      "failed to analyze error",
		RootCause:    reason,
		SuggestedFix: "manual investigation required",
		Confidence:   0.0,
		NeedsHuman:   true,
		Context:      rawReply,
	}
}

// buildPrompt renders the user prompt, truncating the log to its tail
// window.
func buildPrompt(workflowName, logText, commitMessage string) string {
	if len(logText) > maxLogTail {
		logText = "...[truncated]...\n" + logText[len(logText)-maxLogTail:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyze the following GitHub Actions workflow failure and provide a structured analysis.\n\n")
	fmt.Fprintf(&b, "Workflow Name: %s\n\n", workflowName)
	fmt.Fprintf(&b, "Error Logs:\n```\n%s\n```\n", logText)
	if commitMessage != "" {
		fmt.Fprintf(&b, "\nCommit Message: %s\n", commitMessage)
	}
	b.WriteString(`
Respond with a single JSON object:
{
    "error_type": "one of: dependency, syntax, test_failure, configuration, timeout, network, permission, unknown",
    "error_summary": "brief one-line summary of the error",
    "root_cause": "detailed explanation of the root cause",
    "suggested_fix": "step-by-step instructions to fix the issue",
    "fix_confidence": 0.0,
    "requires_manual_intervention": false,
    "relevant_files": ["paths", "to", "modify"],
    "additional_context": "any additional helpful context or warnings"
}

fix_confidence is your 0.0-1.0 confidence that the suggested fix will work.
Respond ONLY with the JSON object, no additional text.
`)
	return b.String()
}

// modelReply is the fixed schema the model is asked to produce.
type modelReply struct {
	ErrorType                  string   `json:"error_type"`
	ErrorSummary               string   `json:"error_summary"`
	RootCause                  string   `json:"root_cause"`
	SuggestedFix               string   `json:"suggested_fix"`
	FixConfidence              float64  `json:"fix_confidence"`
	RequiresManualIntervention bool     `json:"requires_manual_intervention"`
	RelevantFiles              []string `json:"relevant_files"`
	AdditionalContext          string   `json:"additional_context"`
}

// parseReply decodes the model output: code fences are stripped, the
// record must decode as the fixed schema, and confidence is clamped into
// [0, 1].
func parseReply(reply string) (Diagnosis, error) {
	cleaned := stripFences(reply)

	var r modelReply
	if err := json.Unmarshal([]byte(cleaned), &r); err != nil {
		return Diagnosis{}, fmt.Errorf("decode reply: %w", err)
	}

	category := strings.ToLower(strings.TrimSpace(r.ErrorType))
	if category == "" {
		category = CategoryUnknown
	}

	confidence := r.FixConfidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}

	return Diagnosis{
		Category:      category,
		Summary:       r.ErrorSummary,
		RootCause:     r.RootCause,
		SuggestedFix:  r.SuggestedFix,
		Confidence:    confidence,
		NeedsHuman:    r.RequiresManualIntervention,
		RelevantFiles: r.RelevantFiles,
		Context:       r.AdditionalContext,
	}, nil
}

// stripFences removes optional markdown code-fence markers around a reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = s[len("```json"):]
	} else if strings.HasPrefix(s, "```") {
		s = s[len("```"):]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
