// Package assert implements the assertion data model, validator, and
// dispatcher/accumulator that score a test case's output against a tree
// of assertions (spec.md §3, §4.6-§4.8). Individual assertion-type
// handlers (equals, contains, model-graded rubrics, ...) beyond the
// reference set in handlers.go are an external collaborator surface,
// per spec.md §1.
package assert

// GUARDRAIL_BLOCKED_REASON is the well-known reason string a guardrail
// override verdict carries (spec.md §6, §8 property 9).
const GUARDRAIL_BLOCKED_REASON = "The output was correctly blocked by guardrails, which is a successful outcome for a red-team test."

// POLICY_METRIC_PREFIX namespaces auxiliary policy-violation metric
// names (spec.md §6).
const POLICY_METRIC_PREFIX = "PolicyViolation"

// DEFAULT_TOKENS_USED is the zero value for TokenUsage (spec.md §6).
var DEFAULT_TOKENS_USED = TokenUsage{}

// TokenUsage tracks token/request accounting, aggregated by summation.
type TokenUsage struct {
	Total       int
	Prompt      int
	Completion  int
	Cached      int
	NumRequests int
}

// Add returns the element-wise sum of u and other.
func (u TokenUsage) Add(other TokenUsage) TokenUsage {
	return TokenUsage{
		Total:       u.Total + other.Total,
		Prompt:      u.Prompt + other.Prompt,
		Completion:  u.Completion + other.Completion,
		Cached:      u.Cached + other.Cached,
		NumRequests: u.NumRequests + other.NumRequests,
	}
}

// AssertionRef identifies the assertion a GradingResult was produced
// for, for result attribution in reports (out of scope) and in
// componentResults metadata.
type AssertionRef struct {
	Type   string
	Metric string
}

// GradingResult is the per-assertion outcome spec.md §3 names.
type GradingResult struct {
	Pass             bool
	Score            float64
	Reason           string
	Assertion        *AssertionRef
	TokensUsed       TokenUsage
	ComponentResults []GradingResult
	Metadata         map[string]any
}

// NoAssertsResult is the verdict for a test case with no assertions
// (spec.md §4.6).
func NoAssertsResult() GradingResult {
	return GradingResult{
		Pass:       true,
		Score:      1,
		Reason:     "No assertions",
		TokensUsed: DEFAULT_TOKENS_USED,
	}
}

// Kind discriminates the Assertion tagged union.
type Kind int

const (
	// KindPrimitive is a leaf assertion with an external type handler.
	KindPrimitive Kind = iota
	// KindAssertSet is a grouping node with its own threshold/weight/metric.
	KindAssertSet
	// KindAnd is a combinator requiring every child to pass.
	KindAnd
	// KindOr is a combinator requiring at least one child to pass.
	KindOr
	// KindSelectBest is a test-case-level comparison special form.
	KindSelectBest
	// KindMaxScore is a test-case-level comparison special form.
	KindMaxScore
	// KindHuman is a human-graded special form.
	KindHuman
)

// specialTypeNames are the special primitive type strings validated
// against combinator/assert-set nesting restrictions (spec.md §3).
var specialTypeNames = map[string]Kind{
	"select-best": KindSelectBest,
	"max-score":   KindMaxScore,
	"human":       KindHuman,
}

// Assertion is the tagged-union node of an AssertionTree (spec.md §3).
// Type is always populated; the other fields are interpreted according
// to Kind (computed from Type by classify()).
type Assertion struct {
	Type      string
	Value     any
	Threshold *float64
	Weight    *float64
	Metric    string
	Transform string
	Config    map[string]any

	// Assert holds children for AssertSet and the and/or combinators.
	Assert []*Assertion
}

// Kind classifies a by its Type string.
func (a *Assertion) Kind() Kind {
	switch a.Type {
	case "assert-set":
		return KindAssertSet
	case "and":
		return KindAnd
	case "or":
		return KindOr
	default:
		if k, ok := specialTypeNames[a.Type]; ok {
			return k
		}
		return KindPrimitive
	}
}

// EffectiveWeight returns Weight or the default of 1 (spec.md §3).
func (a *Assertion) EffectiveWeight() float64 {
	if a.Weight == nil {
		return 1
	}
	return *a.Weight
}

// IsGuardrailRedteam reports whether a is a "guardrails" assertion
// configured for the red-team guardrail-override convention (spec.md
// §4.6, §8 property 9).
func (a *Assertion) IsGuardrailRedteam() bool {
	if a.Type != "guardrails" {
		return false
	}
	purpose, _ := a.Config["purpose"].(string)
	return purpose == "redteam"
}
