package assert

import (
	"fmt"
	"strconv"
)

// ShortCircuitError is returned by AddResult when short-circuit mode is
// enabled and the added result failed; the caller (AssertionDispatcher)
// surfaces this as an aborted test (spec.md §4.6, §6).
type ShortCircuitError struct {
	Reason string
}

func (e *ShortCircuitError) Error() string { return e.Reason }

// AddResultInput is one assertion's contribution to an accumulator.
type AddResultInput struct {
	Index  int
	Result GradingResult
	Metric string
	Weight float64

	// Assertion, when set, lets AddResult detect the guardrail-override
	// convention (spec.md §8 property 9) without the caller duplicating
	// that check.
	Assertion *Assertion

	// IsAssertSet marks this entry as an assert-set child rollup so
	// FlattenComponentResults can annotate it as a parent frame
	// (spec.md §4.6 hierarchy metadata) instead of a standalone result.
	IsAssertSet        bool
	AssertSetThreshold *float64
	AssertSetWeight    float64
}

// Accumulator implements spec.md §4.6: per-test weighted scoring,
// named-metric roll-up, component-result hierarchy, and short-circuit.
type Accumulator struct {
	threshold    *float64
	shortCircuit bool

	totalScore   float64
	totalWeight  float64
	namedScores  map[string]float64
	entries      []AddResultInput
	tokensUsed   TokenUsage
	failedReason *string

	guardrailOverride bool

	// ParentAssertionSet is metadata describing the assert-set this
	// accumulator is itself scoring children for, when it is a child
	// accumulator created by the dispatcher for an assert-set node.
	ParentAssertionSet *AssertionRef
}

// NewAccumulator creates an accumulator. threshold is nil when the test
// (or assert-set) has no aggregate threshold.
func NewAccumulator(threshold *float64, shortCircuit bool) *Accumulator {
	return &Accumulator{
		threshold:    threshold,
		shortCircuit: shortCircuit,
		namedScores:  make(map[string]float64),
	}
}

// AddResult folds one assertion's GradingResult into the running totals.
func (a *Accumulator) AddResult(in AddResultInput) error {
	a.totalScore += in.Result.Score * in.Weight
	a.totalWeight += in.Weight
	a.tokensUsed = a.tokensUsed.Add(in.Result.TokensUsed)

	if in.Metric != "" {
		if existing, ok := a.namedScores[in.Metric]; !ok || in.Result.Score > existing {
			a.namedScores[in.Metric] = in.Result.Score
		}
	}

	if !in.Result.Pass {
		if a.failedReason == nil {
			reason := in.Result.Reason
			a.failedReason = &reason
		}
		if in.Assertion != nil && in.Assertion.IsGuardrailRedteam() {
			a.guardrailOverride = true
		}
	}

	a.entries = append(a.entries, in)

	if a.shortCircuit && !in.Result.Pass {
		return &ShortCircuitError{Reason: in.Result.Reason}
	}
	return nil
}

// ScoringFn is a user-supplied override for the final verdict
// computation (spec.md §4.6).
type ScoringFn func(namedScores map[string]float64, ctx ScoringContext) (GradingResult, error)

// ScoringContext is the read-only view a ScoringFn receives.
type ScoringContext struct {
	Threshold          *float64
	ParentAssertionSet *AssertionRef
	ComponentResults   []GradingResult
	TokensUsed         TokenUsage
}

// TestResult computes the final verdict (spec.md §4.6). With no
// scoringFn, aggregate = totalScore/totalWeight (or 1 if totalWeight is
// 0), compared against threshold when set, else pass iff nothing failed.
// The guardrail override (spec.md §8 property 9) takes precedence over
// both paths.
func (a *Accumulator) TestResult(scoringFn ScoringFn) GradingResult {
	components := a.FlattenComponentResults()

	if scoringFn != nil {
		result, err := scoringFn(a.namedScores, ScoringContext{
			Threshold:          a.threshold,
			ParentAssertionSet: a.ParentAssertionSet,
			ComponentResults:   components,
			TokensUsed:         a.tokensUsed,
		})
		if err != nil {
			return GradingResult{
				Pass:   false,
				Score:  0,
				Reason: fmt.Sprintf("Scoring function error: %s", err.Error()),
			}
		}
		result.ComponentResults = components
		result.TokensUsed = a.tokensUsed
		if a.guardrailOverride {
			result.Pass = true
			result.Reason = GUARDRAIL_BLOCKED_REASON
		}
		return result
	}

	aggregate := 1.0
	if a.totalWeight > 0 {
		aggregate = a.totalScore / a.totalWeight
	}

	var pass bool
	var reason string
	if a.threshold != nil {
		pass = aggregate >= *a.threshold
		if pass {
			reason = fmt.Sprintf("Aggregate score %.2f ≥ %.2f threshold", aggregate, *a.threshold)
		} else {
			reason = fmt.Sprintf("Aggregate score %.2f < %.2f threshold", aggregate, *a.threshold)
		}
	} else {
		pass = a.failedReason == nil
		if pass {
			reason = "All assertions passed"
		} else {
			reason = *a.failedReason
		}
	}

	if a.guardrailOverride {
		pass = true
		reason = GUARDRAIL_BLOCKED_REASON
	}

	return GradingResult{
		Pass:             pass,
		Score:            aggregate,
		Reason:           reason,
		TokensUsed:       a.tokensUsed,
		ComponentResults: components,
	}
}

// FlattenComponentResults produces the annotated, flattened
// componentResults list spec.md §4.6 describes: assert-set parents are
// emitted first with isAssertSet/childCount/assertSetThreshold/
// assertSetWeight metadata, each child follows immediately annotated
// with parentAssertSetIndex, and standalone primitives carry only
// assertSetWeight.
func (a *Accumulator) FlattenComponentResults() []GradingResult {
	flat := make([]GradingResult, 0, len(a.entries))

	for ei, entry := range a.entries {
		path := strconv.Itoa(ei)

		if entry.IsAssertSet {
			parent := entry.Result
			parent.Metadata = mergeMetadata(parent.Metadata, map[string]any{
				"isAssertSet":        true,
				"childCount":         len(entry.Result.ComponentResults),
				"assertSetThreshold": entry.AssertSetThreshold,
				"assertSetWeight":    entry.AssertSetWeight,
				"componentPath":      path,
			})
			children := parent.ComponentResults
			parent.ComponentResults = nil
			parentIndex := len(flat)
			flat = append(flat, parent)

			for ci, child := range children {
				// child.Metadata["assertSetWeight"] already carries the
				// child's own weight from the nested accumulator's
				// flatten pass; fall back to the set's weight only if
				// that's somehow missing.
				childWeight := entry.AssertSetWeight
				if w, ok := child.Metadata["assertSetWeight"].(float64); ok {
					childWeight = w
				}
				child.Metadata = mergeMetadata(child.Metadata, map[string]any{
					"parentAssertSetIndex": parentIndex,
					"assertSetWeight":      childWeight,
					"componentPath":        path + "." + strconv.Itoa(ci),
				})
				flat = append(flat, child)
			}
			continue
		}

		standalone := entry.Result
		standalone.Metadata = mergeMetadata(standalone.Metadata, map[string]any{
			"assertSetWeight": entry.Weight,
			"componentPath":   path,
		})
		flat = append(flat, standalone)
	}

	return flat
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
