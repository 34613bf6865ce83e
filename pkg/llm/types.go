// Core request and response types
package llm

// ChatRequest represents a chat completion request (provider-agnostic)
type ChatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    *float32        `json:"temperature,omitempty"`
	MaxTokens      *int            `json:"max_tokens,omitempty"`
	TopP           *float32        `json:"top_p,omitempty"`
	Stream         bool            `json:"stream,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse represents a chat completion response (provider-agnostic)
type ChatResponse struct {
	ID       string        `json:"id"`
	Model    string        `json:"model"`
	Choices  []Choice      `json:"choices"`
	Usage    Usage         `json:"usage,omitempty"`
	Metadata *ResponseMeta `json:"metadata,omitempty"`
}

// ResponseMeta carries transport-level metadata a provider backend
// observed while making the call, when its SDK exposes it. Rate-limit
// header parsing (pkg/ratelimit) and rate-limit detection read this
// field; it is nil for backends that didn't capture raw headers.
type ResponseMeta struct {
	HTTPStatus     int               `json:"http_status,omitempty"`
	HTTPStatusText string            `json:"http_status_text,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

// Choice represents a single response choice
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason,omitempty"`
}

// Usage represents token usage information
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}
