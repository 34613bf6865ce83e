// Package test holds black-box integration tests that drive the
// dispatch core (factory -> rate-limit registry -> provider wrapper)
// and the assertion engine together, the way a real evaluation run
// would, using the in-process mock provider in place of a network
// backend.
package test

import (
	"context"
	"testing"
	"time"

	"github.com/inercia/go-llm-eval/pkg/assert"
	"github.com/inercia/go-llm-eval/pkg/factory"
	"github.com/inercia/go-llm-eval/pkg/llm"
	"github.com/inercia/go-llm-eval/pkg/providers/mock"
	"github.com/inercia/go-llm-eval/pkg/providerwrap"
	"github.com/inercia/go-llm-eval/pkg/ratelimit"
)

func ptr(f float64) *float64 { return &f }

func mustUnwrapMock(t *testing.T, client llm.Client) *mock.Client {
	t.Helper()
	mc, ok := providerwrap.Unwrap(client).(*mock.Client)
	if !ok {
		t.Fatalf("expected a *mock.Client under the dispatch wrapper, got %T", providerwrap.Unwrap(client))
	}
	return mc
}

// TestDispatchedClientScoresSuccessfulCompletion runs a scripted chat
// completion through a dispatched (rate-limit-wrapped) client and feeds
// the output into the assertion dispatcher, end to end.
func TestDispatchedClientScoresSuccessfulCompletion(t *testing.T) {
	f := factory.New()
	registry := ratelimit.NewRateLimitRegistry(ratelimit.RegistryConfig{})

	client, err := f.CreateDispatchedClient(llm.ClientConfig{Provider: "mock", Model: "eval-model"}, registry)
	if err != nil {
		t.Fatalf("CreateDispatchedClient: %v", err)
	}
	defer client.Close()

	mustUnwrapMock(t, client).WithSimpleResponse("the answer is 42")

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{
		Model:    "eval-model",
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "what is the answer?")},
	})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	output := resp.Choices[0].Message.Content

	dispatcher := assert.NewAssertionDispatcher(assert.NewReferenceRegistry(), assert.DispatcherConfig{})
	test := assert.TestCase{
		Threshold: ptr(0.5),
		Assert: []*assert.Assertion{
			{Type: "contains", Value: "42", Weight: ptr(1)},
		},
	}

	result, err := dispatcher.Dispatch(context.Background(), test, output, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.Pass {
		t.Errorf("expected test to pass, got %+v", result)
	}

	snap := registry.Snapshot(ratelimit.ProviderID{ID: "mock", Label: "mock/eval-model"})
	if snap.ActiveCount != 0 {
		t.Errorf("expected no active slots after completion, got %d", snap.ActiveCount)
	}
}

// TestDispatchedClientRetriesOnRateLimit scripts a 429 followed by a
// scripted success and confirms the dispatch core retries transparently
// (spec.md §4.4/§4.5) rather than surfacing the rate-limit error to the
// caller.
func TestDispatchedClientRetriesOnRateLimit(t *testing.T) {
	f := factory.New()
	registry := ratelimit.NewRateLimitRegistry(ratelimit.RegistryConfig{
		Policy: ratelimit.RetryPolicy{MaxRetries: 2, BaseDelayMs: 0, MaxDelayMs: 0, JitterFactor: 0},
		Sleep:  func(ctx context.Context, d time.Duration) error { return nil },
	})

	client, err := f.CreateDispatchedClient(llm.ClientConfig{Provider: "mock", Model: "eval-model"}, registry)
	if err != nil {
		t.Fatalf("CreateDispatchedClient: %v", err)
	}
	defer client.Close()

	mc := mustUnwrapMock(t, client)
	mc.WithRateLimitedResponse(map[string]string{"Retry-After": "0"})
	mc.WithSimpleResponse("recovered")

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Model: "eval-model"})
	if err != nil {
		t.Fatalf("expected the registry to retry past the 429, got error: %v", err)
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content != "recovered" {
		t.Errorf("expected the retried call's response, got %+v", resp)
	}
	if len(mc.GetCallLog()) != 2 {
		t.Errorf("expected exactly 2 upstream calls (429 then success), got %d", len(mc.GetCallLog()))
	}
}

// TestDispatchedClientGuardrailOverride exercises the accumulator's
// guardrail-override convention (spec.md §8 property 9) through the
// full dispatch + assertion path: a red-team test that fails its
// guardrails check should still PASS overall.
func TestDispatchedClientGuardrailOverride(t *testing.T) {
	f := factory.New()
	registry := ratelimit.NewRateLimitRegistry(ratelimit.RegistryConfig{})

	client, err := f.CreateDispatchedClient(llm.ClientConfig{Provider: "mock", Model: "eval-model"}, registry)
	if err != nil {
		t.Fatalf("CreateDispatchedClient: %v", err)
	}
	defer client.Close()

	mustUnwrapMock(t, client).WithSimpleResponse("sure, here is how to do that")

	resp, err := client.ChatCompletion(context.Background(), llm.ChatRequest{Model: "eval-model"})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}

	dispatcher := assert.NewAssertionDispatcher(assert.NewReferenceRegistry(), assert.DispatcherConfig{})
	tc := assert.TestCase{
		Assert: []*assert.Assertion{
			{Type: "guardrails", Config: map[string]any{"purpose": "redteam"}},
		},
	}

	result, err := dispatcher.Dispatch(context.Background(), tc, resp.Choices[0].Message.Content, nil)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !result.Pass {
		t.Errorf("expected the guardrail-blocked red-team test to PASS (override), got %+v", result)
	}
}
