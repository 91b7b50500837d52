// Package planner turns free text into an ordered list of executable
// steps. The LLM planner proposes candidate steps; the normalizer is
// the parse-or-reject boundary that converts attacker-controlled
// candidates into canonical steps or rejects the whole batch.
package planner

// Step is one validated, executable orchestration step.
type Step struct {
	ID                   string
	Action               string
	Operation            string
	Args                 map[string]string
	Query                string
	Outcome              string
	RequiresConfirmation bool
	// DependsOn is declared by the planner but never used to reorder
	// execution; the executor warns when list order diverges from it.
	DependsOn []string
	Reason    string
}

// Candidate is one raw, untrusted step proposal.
type Candidate struct {
	ID        string
	Action    string
	Operation string
	Args      map[string]string
	Query     string
	Outcome   string
	Confirm   *bool
	DependsOn []string
	Reason    string
}

// Decision is the outcome of one planning attempt, including the
// metadata persisted with the turn.
type Decision struct {
	Steps            []Step
	PlannerUsed      bool
	PlannerAttempted bool
	Provider         string
	Model            string
	Confidence       float64
	Reason           string
	ValidationResult string
	FallbackReason   string
}

// Validation result codes.
const (
	ValidationOK            = "valid"
	ValidationUnknownAction = "unknown_action"
	ValidationEmptyQuery    = "empty_query"
	ValidationBadOutcome    = "outcome_not_allowed"
	ValidationNoCandidates  = "no_candidates"
)

// Fallback reason codes.
const (
	FallbackMissingCredentials = "missing_credentials"
	FallbackNetworkFailure     = "network_failure"
	FallbackInvalidJSON        = "invalid_json"
	FallbackLowConfidence      = "low_confidence"
	FallbackDirectResponse     = "direct_response"
	FallbackValidationFailed   = "validation_failed"
)
