package assert

import (
	"context"
	"strings"
	"sync"
)

// Handler grades one primitive assertion against a test's rendered
// output. Individual assertion-type implementations (model-graded
// rubrics, semantic similarity, ...) are an external collaborator
// surface (spec.md §1); this package ships only the reference handlers
// below, enough to exercise the dispatcher and accumulator end to end.
type Handler func(ctx context.Context, a *Assertion, output string, vars map[string]any) (GradingResult, error)

// HandlerRegistry is a type-keyed dispatch table for assertion
// handlers, grounded on the teacher's MessageRouter
// (type-to-handler-chain registry for message content).
type HandlerRegistry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlerRegistry returns an empty registry.
func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for an assertion type.
func (r *HandlerRegistry) Register(assertionType string, h Handler) {
	if h == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[assertionType] = h
}

// Lookup returns the handler registered for an assertion type, if any.
func (r *HandlerRegistry) Lookup(assertionType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[assertionType]
	return h, ok
}

// NewReferenceRegistry returns a registry seeded with equals, contains,
// and guardrails — enough to exercise the aggregation/guardrail-override
// semantics spec.md's scenarios name (S3-S6).
func NewReferenceRegistry() *HandlerRegistry {
	r := NewHandlerRegistry()
	r.Register("equals", equalsHandler)
	r.Register("contains", containsHandler)
	r.Register("guardrails", guardrailsHandler)
	return r
}

func equalsHandler(_ context.Context, a *Assertion, output string, _ map[string]any) (GradingResult, error) {
	expected, _ := a.Value.(string)
	if output == expected {
		return GradingResult{Pass: true, Score: 1, Reason: "Output matches expected value", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
	}
	return GradingResult{Pass: false, Score: 0, Reason: "Output does not equal expected value", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
}

func containsHandler(_ context.Context, a *Assertion, output string, _ map[string]any) (GradingResult, error) {
	needle, _ := a.Value.(string)
	if strings.Contains(output, needle) {
		return GradingResult{Pass: true, Score: 1, Reason: "Output contains expected substring", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
	}
	return GradingResult{Pass: false, Score: 0, Reason: "Output does not contain expected substring", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
}

// guardrailsHandler is a minimal stand-in for the real guardrails
// plugin: it fails whenever the config marks purpose=redteam, so the
// accumulator's guardrail-override path (spec.md §8 property 9) has
// something to exercise. A production guardrails handler (out of
// scope) would call a moderation/classification backend instead.
func guardrailsHandler(_ context.Context, a *Assertion, _ string, _ map[string]any) (GradingResult, error) {
	if a.IsGuardrailRedteam() {
		return GradingResult{Pass: false, Score: 0, Reason: "Failed safety check", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
	}
	return GradingResult{Pass: true, Score: 1, Reason: "No guardrail violation detected", Assertion: &AssertionRef{Type: a.Type, Metric: a.Metric}}, nil
}
