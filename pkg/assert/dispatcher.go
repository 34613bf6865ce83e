package assert

import (
	"context"
	"fmt"
)

// DispatcherConfig configures an AssertionDispatcher.
type DispatcherConfig struct {
	// ShortCircuit aborts a test on its first failing assertion instead
	// of continuing (spec.md §6's short-circuit-on-failure flag, passed
	// explicitly rather than read from a global, per spec.md §9).
	ShortCircuit bool
}

// AssertionDispatcher runs a test case's assertion list (spec.md §4.8):
// primitives go to the handler registry, assert-sets recurse into a
// child accumulator, and and/or combinators fold their children's
// verdicts into a single logical result.
type AssertionDispatcher struct {
	registry *HandlerRegistry
	cfg      DispatcherConfig
}

// NewAssertionDispatcher creates a dispatcher backed by registry.
func NewAssertionDispatcher(registry *HandlerRegistry, cfg DispatcherConfig) *AssertionDispatcher {
	return &AssertionDispatcher{registry: registry, cfg: cfg}
}

// Dispatch runs every assertion in test.Assert against output/vars and
// returns the test's final verdict. Returns NoAssertsResult() when the
// test has no assertions.
func (d *AssertionDispatcher) Dispatch(ctx context.Context, test TestCase, output string, vars map[string]any) (GradingResult, error) {
	if len(test.Assert) == 0 {
		return NoAssertsResult(), nil
	}

	acc := NewAccumulator(test.Threshold, d.cfg.ShortCircuit)
	if err := d.dispatchInto(ctx, acc, test.Assert, output, vars); err != nil {
		if sc, ok := err.(*ShortCircuitError); ok {
			return GradingResult{Pass: false, Score: 0, Reason: sc.Reason}, err
		}
		return GradingResult{}, err
	}
	return acc.TestResult(nil), nil
}

// dispatchInto walks one assertion list into acc, in source order
// (spec.md §5 ordering guarantee).
func (d *AssertionDispatcher) dispatchInto(ctx context.Context, acc *Accumulator, list []*Assertion, output string, vars map[string]any) error {
	for i, a := range list {
		switch a.Kind() {
		case KindAssertSet:
			childResult, err := d.dispatchAssertSet(ctx, a, output, vars)
			if err != nil {
				return err
			}
			if err := acc.AddResult(AddResultInput{
				Index:              i,
				Result:             childResult,
				Metric:             a.Metric,
				Weight:             a.EffectiveWeight(),
				Assertion:          a,
				IsAssertSet:        true,
				AssertSetThreshold: a.Threshold,
				AssertSetWeight:    a.EffectiveWeight(),
			}); err != nil {
				return err
			}

		case KindAnd, KindOr:
			result, err := d.evalCombinator(ctx, a, output, vars)
			if err != nil {
				return err
			}
			if err := acc.AddResult(AddResultInput{
				Index:     i,
				Result:    result,
				Metric:    a.Metric,
				Weight:    a.EffectiveWeight(),
				Assertion: a,
			}); err != nil {
				return err
			}

		case KindSelectBest, KindMaxScore:
			// These run across multiple candidate outputs at the
			// test-case level (spec.md §4.8); a single-output Dispatch
			// has nothing to compare, so they contribute no score here.
			continue

		case KindHuman:
			if err := acc.AddResult(AddResultInput{
				Index:     i,
				Result:    GradingResult{Pass: true, Score: 1, Reason: "Pending human review", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}},
				Metric:    a.Metric,
				Weight:    a.EffectiveWeight(),
				Assertion: a,
			}); err != nil {
				return err
			}

		default:
			result, err := d.evalPrimitive(ctx, a, output, vars)
			if err != nil {
				return err
			}
			if err := acc.AddResult(AddResultInput{
				Index:     i,
				Result:    result,
				Metric:    a.Metric,
				Weight:    a.EffectiveWeight(),
				Assertion: a,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// dispatchAssertSet runs an assert-set's children into a fresh child
// accumulator with its own threshold/weight/metric, then folds the
// child's verdict per spec.md §4.8. When the set has a threshold and
// fails it, the reported score is clamped up to the threshold itself
// (spec.md §8 scenario S5) rather than the raw sub-aggregate, so the
// parent's named-metric rollup reads the threshold, not the failing
// fraction.
func (d *AssertionDispatcher) dispatchAssertSet(ctx context.Context, a *Assertion, output string, vars map[string]any) (GradingResult, error) {
	child := NewAccumulator(a.Threshold, d.cfg.ShortCircuit)
	child.ParentAssertionSet = &AssertionRef{Type: a.Type, Metric: a.Metric}

	if err := d.dispatchInto(ctx, child, a.Assert, output, vars); err != nil {
		return GradingResult{}, err
	}

	result := child.TestResult(nil)
	if a.Threshold != nil && !result.Pass {
		result.Score = *a.Threshold
	}
	return result, nil
}

// evalCombinator evaluates an and/or node: and passes iff every child
// passes (score = min); or passes iff any child passes (score = max).
func (d *AssertionDispatcher) evalCombinator(ctx context.Context, a *Assertion, output string, vars map[string]any) (GradingResult, error) {
	if len(a.Assert) == 0 {
		return GradingResult{}, fmt.Errorf("assert: %q combinator has no children", a.Type)
	}

	results := make([]GradingResult, 0, len(a.Assert))
	for _, child := range a.Assert {
		var (
			r   GradingResult
			err error
		)
		switch child.Kind() {
		case KindAnd, KindOr:
			r, err = d.evalCombinator(ctx, child, output, vars)
		default:
			r, err = d.evalPrimitive(ctx, child, output, vars)
		}
		if err != nil {
			return GradingResult{}, err
		}
		results = append(results, r)
	}

	var (
		pass       bool
		score      float64
		failReason string
		allPassed  = true
		anyPassed  = false
	)
	for _, r := range results {
		if r.Pass {
			anyPassed = true
		} else {
			allPassed = false
			if failReason == "" {
				failReason = r.Reason
			}
		}
	}

	if a.Type == "and" {
		pass = allPassed
		score = minScore(results)
		if pass {
			failReason = fmt.Sprintf("All %d assertions passed", len(results))
		}
	} else {
		pass = anyPassed
		score = maxScore(results)
		if pass {
			failReason = fmt.Sprintf("At least one of %d assertions passed", len(results))
		}
	}

	return GradingResult{
		Pass:             pass,
		Score:            score,
		Reason:           failReason,
		Assertion:        &AssertionRef{Type: a.Type, Metric: a.Metric},
		ComponentResults: results,
	}, nil
}

func minScore(results []GradingResult) float64 {
	if len(results) == 0 {
		return 0
	}
	m := results[0].Score
	for _, r := range results[1:] {
		if r.Score < m {
			m = r.Score
		}
	}
	return m
}

func maxScore(results []GradingResult) float64 {
	if len(results) == 0 {
		return 0
	}
	m := results[0].Score
	for _, r := range results[1:] {
		if r.Score > m {
			m = r.Score
		}
	}
	return m
}

// evalPrimitive dispatches one leaf assertion to its registered handler.
func (d *AssertionDispatcher) evalPrimitive(ctx context.Context, a *Assertion, output string, vars map[string]any) (GradingResult, error) {
	handler, ok := d.registry.Lookup(a.Type)
	if !ok {
		return GradingResult{
			Pass:      false,
			Score:     0,
			Reason:    fmt.Sprintf("no assertion handler registered for type %q", a.Type),
			Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric},
		}, nil
	}

	result, err := handler(ctx, a, output, vars)
	if err != nil {
		return GradingResult{
			Pass:      false,
			Score:     0,
			Reason:    err.Error(),
			Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric},
		}, nil
	}
	if result.Assertion == nil {
		result.Assertion = &AssertionRef{Type: a.Type, Metric: a.Metric}
	}
	return result, nil
}
