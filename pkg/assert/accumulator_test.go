package assert

import (
	"errors"
	"testing"
)

func ptr(f float64) *float64 { return &f }

func TestAccumulatorAggregateMathWeightedAverage(t *testing.T) {
	acc := NewAccumulator(ptr(0.5), false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: false, Score: 0}, Weight: 2})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Weight: 1})

	result := acc.TestResult(nil)
	if result.Pass {
		t.Errorf("expected fail, aggregate 0.33 < 0.5 threshold")
	}
	want := 1.0 / 3.0
	if diff := result.Score - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("expected aggregate score %v, got %v", want, result.Score)
	}
}

func TestAccumulatorAggregateThresholdBelowPasses(t *testing.T) {
	acc := NewAccumulator(ptr(0.25), false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: false, Score: 0}, Weight: 2})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Weight: 1})

	result := acc.TestResult(nil)
	if !result.Pass {
		t.Errorf("expected pass, aggregate 0.33 >= 0.25 threshold, got reason %q", result.Reason)
	}
}

func TestAccumulatorNoThresholdPassesOnlyIfNothingFailed(t *testing.T) {
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1, Reason: "ok"}, Weight: 1})
	result := acc.TestResult(nil)
	if !result.Pass || result.Reason != "All assertions passed" {
		t.Errorf("expected pass with 'All assertions passed', got pass=%v reason=%q", result.Pass, result.Reason)
	}

	acc2 := NewAccumulator(nil, false)
	_ = acc2.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Weight: 1})
	_ = acc2.AddResult(AddResultInput{Result: GradingResult{Pass: false, Score: 0, Reason: "nope"}, Weight: 1})
	result2 := acc2.TestResult(nil)
	if result2.Pass || result2.Reason != "nope" {
		t.Errorf("expected fail with first failure reason, got pass=%v reason=%q", result2.Pass, result2.Reason)
	}
}

func TestAccumulatorNoWeightDefaultsAggregateToOne(t *testing.T) {
	acc := NewAccumulator(ptr(0.9), false)
	result := acc.TestResult(nil)
	if !result.Pass || result.Score != 1 {
		t.Errorf("expected aggregate=1 pass=true with zero total weight, got score=%v pass=%v", result.Score, result.Pass)
	}
}

func TestAccumulatorNamedMetricTracksMax(t *testing.T) {
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 0.4}, Metric: "m", Weight: 1})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 0.9}, Metric: "m", Weight: 1})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 0.2}, Metric: "m", Weight: 1})

	if got := acc.namedScores["m"]; got != 0.9 {
		t.Errorf("expected namedScores[m]=0.9, got %v", got)
	}
}

func TestAccumulatorGuardrailOverrideForcesPass(t *testing.T) {
	guardrail := &Assertion{Type: "guardrails", Config: map[string]any{"purpose": "redteam"}}
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{
		Result:    GradingResult{Pass: false, Score: 0, Reason: "Failed safety check"},
		Assertion: guardrail,
		Weight:    1,
	})

	result := acc.TestResult(nil)
	if !result.Pass {
		t.Fatal("expected guardrail override to force pass=true")
	}
	if result.Reason != GUARDRAIL_BLOCKED_REASON {
		t.Errorf("expected reason %q, got %q", GUARDRAIL_BLOCKED_REASON, result.Reason)
	}
}

func TestAccumulatorShortCircuitAbortsOnFirstFailure(t *testing.T) {
	acc := NewAccumulator(nil, true)
	err := acc.AddResult(AddResultInput{Result: GradingResult{Pass: false, Score: 0, Reason: "boom"}, Weight: 1})
	if err == nil {
		t.Fatal("expected short-circuit error")
	}
	sc, ok := err.(*ShortCircuitError)
	if !ok {
		t.Fatalf("expected *ShortCircuitError, got %T", err)
	}
	if sc.Reason != "boom" {
		t.Errorf("expected reason 'boom', got %q", sc.Reason)
	}
}

func TestAccumulatorScoringFnOverride(t *testing.T) {
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Metric: "m", Weight: 1})

	result := acc.TestResult(func(named map[string]float64, ctx ScoringContext) (GradingResult, error) {
		return GradingResult{Pass: named["m"] > 0.5, Score: named["m"], Reason: "custom"}, nil
	})
	if !result.Pass || result.Reason != "custom" {
		t.Errorf("expected custom scoring result, got %+v", result)
	}
}

func TestAccumulatorScoringFnErrorYieldsFailedResult(t *testing.T) {
	acc := NewAccumulator(nil, false)
	result := acc.TestResult(func(named map[string]float64, ctx ScoringContext) (GradingResult, error) {
		return GradingResult{}, errors.New("explode")
	})
	if result.Pass || result.Score != 0 {
		t.Errorf("expected failed zero-score result, got %+v", result)
	}
	want := "Scoring function error: explode"
	if result.Reason != want {
		t.Errorf("expected reason %q, got %q", want, result.Reason)
	}
}

func TestAccumulatorTokensUsedSummed(t *testing.T) {
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1, TokensUsed: TokenUsage{Total: 10, NumRequests: 1}}, Weight: 1})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1, TokensUsed: TokenUsage{Total: 5, NumRequests: 1}}, Weight: 1})

	result := acc.TestResult(nil)
	if result.TokensUsed.Total != 15 || result.TokensUsed.NumRequests != 2 {
		t.Errorf("expected summed token usage, got %+v", result.TokensUsed)
	}
}

func TestFlattenComponentResultsAnnotatesAssertSetHierarchy(t *testing.T) {
	acc := NewAccumulator(nil, false)
	childResult := GradingResult{
		Pass:  true,
		Score: 0.75,
		ComponentResults: []GradingResult{
			{Pass: true, Score: 1, Metadata: map[string]any{"assertSetWeight": 2.0}},
			{Pass: false, Score: 0.5, Metadata: map[string]any{"assertSetWeight": 1.0}},
		},
	}
	_ = acc.AddResult(AddResultInput{
		Result:             childResult,
		IsAssertSet:        true,
		AssertSetThreshold: ptr(0.5),
		AssertSetWeight:    3,
	})
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Weight: 1})

	flat := acc.FlattenComponentResults()
	if len(flat) != 4 {
		t.Fatalf("expected 4 flattened entries (parent+2 children+1 standalone), got %d", len(flat))
	}

	parent := flat[0]
	if isSet, _ := parent.Metadata["isAssertSet"].(bool); !isSet {
		t.Error("expected parent to carry isAssertSet=true")
	}
	if n, _ := parent.Metadata["childCount"].(int); n != 2 {
		t.Errorf("expected childCount=2, got %v", parent.Metadata["childCount"])
	}

	child1 := flat[1]
	if idx, _ := child1.Metadata["parentAssertSetIndex"].(int); idx != 0 {
		t.Errorf("expected parentAssertSetIndex=0, got %v", child1.Metadata["parentAssertSetIndex"])
	}
	if w, _ := child1.Metadata["assertSetWeight"].(float64); w != 2.0 {
		t.Errorf("expected child's own assertSetWeight=2.0 preserved, got %v", w)
	}

	standalone := flat[3]
	if _, ok := standalone.Metadata["isAssertSet"]; ok {
		t.Error("standalone result must not carry isAssertSet")
	}
	if _, ok := standalone.Metadata["parentAssertSetIndex"]; ok {
		t.Error("standalone result must not carry parentAssertSetIndex")
	}
}

func TestFlattenComponentResultsComponentPath(t *testing.T) {
	acc := NewAccumulator(nil, false)
	_ = acc.AddResult(AddResultInput{Result: GradingResult{Pass: true, Score: 1}, Weight: 1})
	_ = acc.AddResult(AddResultInput{
		Result: GradingResult{
			Pass:  true,
			Score: 1,
			ComponentResults: []GradingResult{
				{Pass: true, Score: 1},
				{Pass: true, Score: 1},
			},
		},
		IsAssertSet:     true,
		AssertSetWeight: 1,
	})

	flat := acc.FlattenComponentResults()
	if got := flat[0].Metadata["componentPath"]; got != "0" {
		t.Errorf("expected first entry componentPath '0', got %v", got)
	}
	if got := flat[1].Metadata["componentPath"]; got != "1" {
		t.Errorf("expected assert-set parent componentPath '1', got %v", got)
	}
	if got := flat[2].Metadata["componentPath"]; got != "1.0" {
		t.Errorf("expected first child componentPath '1.0', got %v", got)
	}
	if got := flat[3].Metadata["componentPath"]; got != "1.1" {
		t.Errorf("expected second child componentPath '1.1', got %v", got)
	}
}

func TestNoAssertsResult(t *testing.T) {
	result := NoAssertsResult()
	if !result.Pass || result.Score != 1 || result.Reason != "No assertions" {
		t.Errorf("unexpected NoAssertsResult: %+v", result)
	}
}
