package mock

import (
	"context"
	"testing"

	"github.com/inercia/go-llm-eval/pkg/llm"
)

func TestChatCompletionReturnsScriptedResponse(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	c.WithSimpleResponse("scripted answer")

	resp, err := c.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hi")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content != "scripted answer" {
		t.Errorf("expected scripted answer, got %q", resp.Choices[0].Message.Content)
	}
}

func TestChatCompletionFallsBackToGeneratedResponse(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")

	resp, err := c.ChatCompletion(context.Background(), llm.ChatRequest{
		Messages: []llm.Message{llm.NewTextMessage(llm.RoleUser, "hello there")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Choices[0].Message.Content == "" {
		t.Error("expected a generated non-empty response")
	}
}

func TestChatCompletionReturnsScriptedError(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	c.WithError("boom", "simulated failure", "api_error")

	_, err := c.ChatCompletion(context.Background(), llm.ChatRequest{})
	if err == nil {
		t.Fatal("expected scripted error")
	}
	llmErr, ok := err.(*llm.Error)
	if !ok || llmErr.Code != "boom" {
		t.Errorf("expected *llm.Error{Code: boom}, got %#v", err)
	}
}

func TestWithRateLimitedResponseCarriesHeaders(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	c.WithRateLimitedResponse(map[string]string{"Retry-After": "2"})

	resp, err := c.ChatCompletion(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Metadata == nil || resp.Metadata.HTTPStatus != 429 {
		t.Fatalf("expected 429 metadata, got %+v", resp.Metadata)
	}
	if resp.Metadata.Headers["Retry-After"] != "2" {
		t.Errorf("expected Retry-After header preserved, got %+v", resp.Metadata.Headers)
	}
}

func TestStreamChatCompletionChunksScriptedResponse(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	c.WithSimpleResponse("one two three")

	stream, err := c.StreamChatCompletion(context.Background(), llm.ChatRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var deltas, dones int
	for ev := range stream {
		if ev.IsDelta() {
			deltas++
		}
		if ev.IsDone() {
			dones++
		}
	}
	if deltas != 3 {
		t.Errorf("expected 3 delta events for 'one two three', got %d", deltas)
	}
	if dones != 1 {
		t.Errorf("expected exactly 1 done event, got %d", dones)
	}
}

func TestGetCallLogRecordsRequests(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	req := llm.ChatRequest{Model: "eval-model"}
	_, _ = c.ChatCompletion(context.Background(), req)

	if len(c.GetCallLog()) != 1 {
		t.Fatalf("expected 1 logged call, got %d", len(c.GetCallLog()))
	}
	if c.GetLastCall().Model != "eval-model" {
		t.Errorf("expected last call model 'eval-model', got %q", c.GetLastCall().Model)
	}
}

func TestResetClearsState(t *testing.T) {
	c, _ := NewClient("eval-model", "mock")
	c.WithSimpleResponse("a")
	_, _ = c.ChatCompletion(context.Background(), llm.ChatRequest{})
	c.Reset()

	if len(c.GetCallLog()) != 0 {
		t.Errorf("expected call log cleared after Reset, got %d entries", len(c.GetCallLog()))
	}
}
