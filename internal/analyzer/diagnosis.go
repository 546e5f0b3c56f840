package analyzer

// Diagnosis categories. The model is asked to pick from this vocabulary;
// anything unrecognized degrades to CategoryUnknown handling downstream.
const (
	CategoryDependency    = "dependency"
	CategorySyntax        = "syntax"
	CategoryTestFailure   = "test_failure"
	CategoryConfiguration = "configuration"
	CategoryTimeout       = "timeout"
	CategoryNetwork       = "network"
	CategoryPermission    = "permission"
	CategoryTransient     = "transient"
	CategoryUnknown       = "unknown"
)

// Diagnosis is the structured classification of one workflow failure.
// Produced exactly once per failed run and never mutated; a failed
// classification attempt yields a degraded Diagnosis (unknown, confidence
// zero, needs-human) rather than an error, so every downstream decision can
// branch on a single value.
type Diagnosis struct {
	// Category tags the failure kind (see Category constants).
	Category string `json:"category"`

	// Summary is a one-line human-readable description.
	Summary string `json:"summary"`

	// RootCause explains why the run failed, or why classification itself
	// failed when the diagnosis is degraded.
	RootCause string `json:"root_cause"`

	// SuggestedFix is free-text remedy guidance for the escalation issue.
	SuggestedFix string `json:"suggested_fix"`

	// Confidence is the model's self-assessed fix confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// NeedsHuman marks failures automation must not touch.
	NeedsHuman bool `json:"needs_human"`

	// RelevantFiles lists repository paths believed involved.
	RelevantFiles []string `json:"relevant_files,omitempty"`

	// Context carries extra model output, or the raw unparseable reply on a
	// degraded diagnosis.
	Context string `json:"context,omitempty"`
}

// Transient reports whether the diagnosed category suggests a failure that
// a plain retry may clear.
func (d Diagnosis) Transient() bool {
	switch d.Category {
	case CategoryTimeout, CategoryNetwork, CategoryTransient:
		return true
	}
	return false
}
