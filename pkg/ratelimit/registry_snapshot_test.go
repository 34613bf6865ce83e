package ratelimit

import (
	"context"
	"testing"
)

func TestDefaultSlotQueueConfigPerProviderTuning(t *testing.T) {
	if got := DefaultSlotQueueConfig("openai").MaxConcurrency; got != 8 {
		t.Errorf("expected openai default MaxConcurrency=8, got %d", got)
	}
	if got := DefaultSlotQueueConfig("ollama").MaxConcurrency; got != 1 {
		t.Errorf("expected ollama default MaxConcurrency=1, got %d", got)
	}
	if got := DefaultSlotQueueConfig("OpenAI").MaxConcurrency; got != 8 {
		t.Errorf("expected provider id lookup to be case-insensitive, got %d", got)
	}
	if got := DefaultSlotQueueConfig("some-unknown-provider").MaxConcurrency; got != 1 {
		t.Errorf("expected unknown provider to fall back to MaxConcurrency=1, got %d", got)
	}
}

func TestRegistrySnapshotReflectsQueueState(t *testing.T) {
	registry := NewRateLimitRegistry(RegistryConfig{})
	provider := ProviderID{ID: "p1"}

	empty := registry.Snapshot(provider)
	if empty.RateLimit != (RateLimitSnapshot{}) || empty.Disposed {
		t.Errorf("expected zero-value snapshot before any queue exists, got %+v", empty)
	}

	if err := registry.QueueFor(provider).Acquire(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	after := registry.Snapshot(provider)
	if after.ActiveCount != 1 {
		t.Errorf("expected ActiveCount=1 after acquire, got %d", after.ActiveCount)
	}
	if after.QueueDepth != 0 {
		t.Errorf("expected QueueDepth=0, got %d", after.QueueDepth)
	}
	if after.Disposed {
		t.Error("expected Disposed=false")
	}
}
