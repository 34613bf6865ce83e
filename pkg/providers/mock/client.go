// Package mock implements llm.Client as an in-process fake provider for
// exercising the dispatch core (pkg/ratelimit, pkg/providerwrap) and the
// assertion engine (pkg/assert) without a real provider SDK, grounded on
// the teacher's scripted-response mock client.
package mock

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/inercia/go-llm-eval/pkg/llm"
)

// secureRandomFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureRandomFloat64() (float64, error) {
	var bytes [8]byte
	if _, err := rand.Read(bytes[:]); err != nil {
		return 0, err
	}
	return float64(binary.BigEndian.Uint64(bytes[:])) / float64(^uint64(0)), nil
}

// Client implements llm.Client with scripted responses, errors, and
// rate-limit metadata for testing.
type Client struct {
	modelInfo llm.ModelInfo

	responses     []llm.ChatResponse
	responseIndex int
	errors        []error
	errorIndex    int
	callLog       []llm.ChatRequest

	latencySimulation time.Duration
	failureRate       float64

	lastHealthCheck  *time.Time
	lastHealthStatus *bool
}

// NewClient creates a new mock LLM client for testing.
func NewClient(modelName, provider string) (*Client, error) {
	return &Client{
		modelInfo: llm.ModelInfo{
			Name:              modelName,
			Provider:          provider,
			MaxTokens:         4096,
			SupportsStreaming: true,
		},
	}, nil
}

// generateResponse builds a deterministic, content-aware response for a
// request that wasn't pre-scripted via AddResponse.
func (m *Client) generateResponse(req llm.ChatRequest) *llm.ChatResponse {
	var lastUserMessage string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == llm.RoleUser {
			lastUserMessage = req.Messages[i].Content
			break
		}
	}

	lower := strings.ToLower(lastUserMessage)
	var response string
	switch {
	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi"):
		response = "Hello! How can I help you today?"
	case strings.Contains(lower, "help"):
		response = "I'm here to help!"
	default:
		response = fmt.Sprintf("I understand you're asking about: %s.", lastUserMessage)
	}

	return &llm.ChatResponse{
		ID:    fmt.Sprintf("mock-resp-%d", time.Now().UnixNano()),
		Model: req.Model,
		Choices: []llm.Choice{
			{
				Index:        0,
				Message:      llm.Message{Role: llm.RoleAssistant, Content: response},
				FinishReason: "stop",
			},
		},
		Usage: llm.Usage{
			PromptTokens:     len(strings.Fields(lastUserMessage)) + 5,
			CompletionTokens: len(strings.Fields(response)),
			TotalTokens:      len(strings.Fields(lastUserMessage)) + len(strings.Fields(response)) + 5,
		},
	}
}

// ChatCompletion returns pre-configured responses or errors, falling back
// to a generated response when nothing was scripted.
func (m *Client) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	m.callLog = append(m.callLog, req)

	if m.latencySimulation > 0 {
		select {
		case <-time.After(m.latencySimulation):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if m.failureRate > 0 {
		randomValue, err := secureRandomFloat64()
		if err != nil {
			randomValue = 0
		}
		if randomValue < m.failureRate {
			return nil, &llm.Error{
				Code:    "mock_random_failure",
				Message: "Simulated random failure",
				Type:    "simulation_error",
			}
		}
	}

	if m.errorIndex < len(m.errors) {
		err := m.errors[m.errorIndex]
		m.errorIndex++
		return nil, err
	}

	if m.responseIndex < len(m.responses) {
		resp := m.responses[m.responseIndex]
		m.responseIndex++
		return &resp, nil
	}

	return m.generateResponse(req), nil
}

// StreamChatCompletion simulates streaming by chunking the non-streaming
// response word by word.
func (m *Client) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	resp, err := m.ChatCompletion(ctx, req)
	if err != nil {
		ch := make(chan llm.StreamEvent, 1)
		ch <- llm.NewErrorEvent(&llm.Error{Code: "mock_stream_error", Message: err.Error(), Type: "simulation_error"})
		close(ch)
		return ch, nil
	}

	text := ""
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
	}
	words := strings.Fields(text)
	ch := make(chan llm.StreamEvent, len(words)+1)

	go func() {
		defer close(ch)
		for _, word := range words {
			select {
			case <-ctx.Done():
				return
			case ch <- llm.NewDeltaEvent(0, word+" "):
			}
		}
		select {
		case <-ctx.Done():
		case ch <- llm.NewDoneEvent(0, "stop"):
		}
	}()

	return ch, nil
}

// GetRemote returns information about the remote client
func (m *Client) GetRemote() llm.ClientRemoteInfo {
	info := llm.ClientRemoteInfo{Name: "mock"}

	now := time.Now()
	needsRefresh := m.lastHealthCheck == nil || now.Sub(*m.lastHealthCheck) >= llm.DefaultHealthCheckInterval
	if needsRefresh {
		healthy := true
		m.lastHealthStatus = &healthy
		m.lastHealthCheck = &now
	}

	info.Status = &llm.ClientRemoteInfoStatus{
		Healthy:     m.lastHealthStatus,
		LastChecked: m.lastHealthCheck,
	}
	return info
}

// GetModelInfo returns the configured model info
func (m *Client) GetModelInfo() llm.ModelInfo {
	return m.modelInfo
}

// Close does nothing for the mock client
func (m *Client) Close() error {
	return nil
}

// AddResponse adds a response to be returned by subsequent calls
func (m *Client) AddResponse(response llm.ChatResponse) *Client {
	m.responses = append(m.responses, response)
	return m
}

// AddError adds an error to be returned by subsequent calls
func (m *Client) AddError(err error) *Client {
	m.errors = append(m.errors, err)
	return m
}

// GetCallLog returns all requests made to this mock client
func (m *Client) GetCallLog() []llm.ChatRequest {
	return m.callLog
}

// GetLastCall returns the most recent request made to this mock client
func (m *Client) GetLastCall() *llm.ChatRequest {
	if len(m.callLog) == 0 {
		return nil
	}
	return &m.callLog[len(m.callLog)-1]
}

// Reset clears all responses, errors, and call logs
func (m *Client) Reset() *Client {
	m.responses = nil
	m.responseIndex = 0
	m.errors = nil
	m.errorIndex = 0
	m.callLog = nil
	return m
}

// WithSimpleResponse adds a simple text response
func (m *Client) WithSimpleResponse(content string) *Client {
	return m.AddResponse(llm.ChatResponse{
		ID:    fmt.Sprintf("mock-simple-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Choices: []llm.Choice{
			{Index: 0, Message: llm.Message{Role: llm.RoleAssistant, Content: content}, FinishReason: "stop"},
		},
	})
}

// WithError adds an error response
func (m *Client) WithError(code, message, errorType string) *Client {
	return m.AddError(&llm.Error{Code: code, Message: message, Type: errorType})
}

// WithLatency configures simulated latency for requests
func (m *Client) WithLatency(duration time.Duration) *Client {
	m.latencySimulation = duration
	return m
}

// WithFailureRate configures random failure simulation (0.0 to 1.0)
func (m *Client) WithFailureRate(rate float64) *Client {
	m.failureRate = rate
	return m
}

// WithRateLimitedResponse scripts a 429 response carrying rate-limit
// headers, so tests can exercise pkg/ratelimit's HeaderParser and
// SlotQueue end to end through this provider without a real HTTP
// transport (spec.md §4.2, §4.5).
func (m *Client) WithRateLimitedResponse(headers map[string]string) *Client {
	return m.AddResponse(llm.ChatResponse{
		ID:    fmt.Sprintf("mock-429-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Metadata: &llm.ResponseMeta{
			HTTPStatus:     429,
			HTTPStatusText: "Too Many Requests",
			Headers:        headers,
		},
	})
}

// WithHeaders scripts a normal successful response carrying the given
// rate-limit headers in its metadata.
func (m *Client) WithHeaders(content string, headers map[string]string) *Client {
	return m.AddResponse(llm.ChatResponse{
		ID:    fmt.Sprintf("mock-headers-%d", time.Now().UnixNano()),
		Model: m.modelInfo.Name,
		Choices: []llm.Choice{
			{Index: 0, Message: llm.Message{Role: llm.RoleAssistant, Content: content}, FinishReason: "stop"},
		},
		Metadata: &llm.ResponseMeta{HTTPStatus: 200, Headers: headers},
	})
}
