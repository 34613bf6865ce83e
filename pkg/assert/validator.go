package assert

import (
	"fmt"
)

// MaxAssertionDepth is the nesting cap spec.md §3/§8 enforces across
// combinator and assert-set frames.
const MaxAssertionDepth = 10

// MaxAssertionNodes bounds the total number of assertion nodes validated
// in one tree, a defensive limit supplementing the depth cap (SPEC_FULL §9).
const MaxAssertionNodes = 500

// DefaultExemptTypes are assertion types that, alongside select-best and
// max-score, may never appear inside a combinator (spec.md §4.7's
// STRATEGY_EXEMPT_PLUGINS). Red-team strategy/plugin taxonomies are an
// external collaborator surface (spec.md §1), so this defaults to the
// handful of well-known non-combinable special types and is overridable.
var DefaultExemptTypes = []string{"select-best", "max-score", "human"}

// AssertValidationError is thrown for any structural or semantic
// violation found while validating an assertion tree (spec.md §4.7, §6).
type AssertValidationError struct {
	Path  string
	Hint  string
	Value any
}

func (e *AssertValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got %#v)", e.Path, e.Hint, e.Value)
}

// TestCase is the minimal shape AssertionValidator/AssertionDispatcher
// need from a test case; config/vars/provider loading is an external
// collaborator concern (spec.md §1). Threshold is the test-level
// aggregate score bar (spec.md §8 scenarios S3/S4); nil means no
// test-level threshold constraint, distinct from a threshold of 0
// (spec.md §8 property 6).
type TestCase struct {
	Assert    []*Assertion
	Threshold *float64
}

// ScenarioConfig is one config entry within a Scenario.
type ScenarioConfig struct {
	Assert []*Assertion
}

// Scenario groups a set of configs and tests, each independently
// validated (spec.md §4.7).
type Scenario struct {
	Config []ScenarioConfig
	Tests  []TestCase
}

// AssertionValidator performs static validation of assertion trees at
// config-load time (spec.md §4.7), grounded on the teacher's
// SecurityValidator (config-driven validation struct) and MessageRouter
// (type-keyed structural checks).
type AssertionValidator struct {
	// ExemptTypes are special types forbidden inside a combinator.
	ExemptTypes []string
}

// NewAssertionValidator returns a validator using DefaultExemptTypes.
func NewAssertionValidator() *AssertionValidator {
	return &AssertionValidator{ExemptTypes: append([]string(nil), DefaultExemptTypes...)}
}

func (v *AssertionValidator) exempt(t string) bool {
	for _, e := range v.ExemptTypes {
		if e == t {
			return true
		}
	}
	return false
}

// Validate runs all validation rules over a list of test cases, an
// optional default test, and an optional scenarios list (spec.md §4.7).
func (v *AssertionValidator) Validate(tests []TestCase, defaultTest *TestCase, scenarios []Scenario) error {
	for i, tc := range tests {
		if err := v.validateList(tc.Assert, fmt.Sprintf("tests[%d].assert", i), 0, new(int)); err != nil {
			return err
		}
	}

	if defaultTest != nil {
		if err := v.validateList(defaultTest.Assert, "defaultTest.assert", 0, new(int)); err != nil {
			return err
		}
	}

	for si, sc := range scenarios {
		for ci, cfg := range sc.Config {
			path := fmt.Sprintf("scenarios[%d].config[%d].assert", si, ci)
			if err := v.validateList(cfg.Assert, path, 0, new(int)); err != nil {
				return err
			}
		}
		for ti, tc := range sc.Tests {
			path := fmt.Sprintf("scenarios[%d].tests[%d].assert", si, ti)
			if err := v.validateList(tc.Assert, path, 0, new(int)); err != nil {
				return err
			}
		}
	}

	return nil
}

// validateList validates one assertion slice. depth counts combinator +
// assert-set nesting frames; insideCombinator/insideAssertSet track the
// immediately enclosing frame kind for the nesting restrictions.
func (v *AssertionValidator) validateList(list []*Assertion, pathPrefix string, depth int, nodeCount *int) error {
	return v.validateListCtx(list, pathPrefix, depth, nodeCount, false, false)
}

func (v *AssertionValidator) validateListCtx(list []*Assertion, pathPrefix string, depth int, nodeCount *int, insideCombinator, insideAssertSet bool) error {
	for i, a := range list {
		path := fmt.Sprintf("%s[%d]", pathPrefix, i)
		if err := v.validateNode(a, path, depth, nodeCount, insideCombinator, insideAssertSet); err != nil {
			return err
		}
	}
	return nil
}

func (v *AssertionValidator) validateNode(a *Assertion, path string, depth int, nodeCount *int, insideCombinator, insideAssertSet bool) error {
	if a == nil {
		return &AssertValidationError{Path: path, Hint: "assertion must be an object", Value: a}
	}
	*nodeCount++
	if *nodeCount > MaxAssertionNodes {
		return &AssertValidationError{Path: path, Hint: fmt.Sprintf("assertion tree exceeds %d nodes", MaxAssertionNodes), Value: *nodeCount}
	}
	if a.Type == "" {
		return &AssertValidationError{Path: path, Hint: "assertion must have a string type", Value: a.Type}
	}

	kind := a.Kind()

	if (kind == KindSelectBest || kind == KindMaxScore || v.exempt(a.Type)) && insideCombinator {
		return &AssertValidationError{Path: path, Hint: fmt.Sprintf("%q may not appear inside a combinator", a.Type), Value: a.Type}
	}
	if (kind == KindSelectBest || kind == KindMaxScore) && insideAssertSet {
		return &AssertValidationError{Path: path, Hint: fmt.Sprintf("%q may not appear inside an assert-set", a.Type), Value: a.Type}
	}
	if (kind == KindAnd || kind == KindOr) && insideAssertSet {
		return &AssertValidationError{Path: path, Hint: "combinators may not appear inside an assert-set", Value: a.Type}
	}

	switch kind {
	case KindAssertSet:
		if depth+1 > MaxAssertionDepth {
			return &AssertValidationError{Path: path, Hint: fmt.Sprintf("assertion nesting exceeds depth %d", MaxAssertionDepth), Value: depth + 1}
		}
		if a.Assert == nil {
			return &AssertValidationError{Path: path, Hint: "assert-set requires an array \"assert\" field", Value: a.Assert}
		}
		return v.validateListCtx(a.Assert, path+".assert", depth+1, nodeCount, false, true)

	case KindAnd, KindOr:
		if depth+1 > MaxAssertionDepth {
			return &AssertValidationError{Path: path, Hint: fmt.Sprintf("assertion nesting exceeds depth %d", MaxAssertionDepth), Value: depth + 1}
		}
		if len(a.Assert) == 0 {
			return &AssertValidationError{Path: path, Hint: fmt.Sprintf("%q combinator requires a non-empty \"assert\" array", a.Type), Value: a.Assert}
		}
		return v.validateListCtx(a.Assert, path+".assert", depth+1, nodeCount, true, false)

	default:
		if a.Threshold != nil && (*a.Threshold < 0 || *a.Threshold > 1) {
			return &AssertValidationError{Path: path, Hint: "threshold must be in [0,1]", Value: *a.Threshold}
		}
		if a.Weight != nil && *a.Weight < 0 {
			return &AssertValidationError{Path: path, Hint: "weight must be >= 0", Value: *a.Weight}
		}
		return nil
	}
}
