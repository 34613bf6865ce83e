// Package llm provides abstractions for Large Language Model clients.
// stream.go defines types for streaming chat completions.
package llm

// StreamEvent represents a single event in the streaming response
type StreamEvent struct {
	Type   string        `json:"type"` // "delta", "done", "error"
	Choice *StreamChoice `json:"choice,omitempty"`
	Error  *Error        `json:"error,omitempty"`
}

// StreamChoice represents a choice in the streaming response
type StreamChoice struct {
	Index        int           `json:"index"`
	Delta        *MessageDelta `json:"delta,omitempty"`
	FinishReason string        `json:"finish_reason,omitempty"`
}

// MessageDelta represents an incremental update to a message's text
type MessageDelta struct {
	Content string `json:"content,omitempty"`
}

// IsDelta returns true if this is a delta event
func (e StreamEvent) IsDelta() bool {
	return e.Type == "delta" && e.Choice != nil && e.Choice.Delta != nil
}

// IsDone returns true if this is a done event
func (e StreamEvent) IsDone() bool {
	return e.Type == "done" && e.Choice != nil
}

// IsError returns true if this is an error event
func (e StreamEvent) IsError() bool {
	return e.Type == "error" && e.Error != nil
}

// NewDeltaEvent creates a new delta stream event
func NewDeltaEvent(index int, content string) StreamEvent {
	return StreamEvent{
		Type:   "delta",
		Choice: &StreamChoice{Index: index, Delta: &MessageDelta{Content: content}},
	}
}

// NewDoneEvent creates a new done stream event
func NewDoneEvent(index int, finishReason string) StreamEvent {
	return StreamEvent{
		Type:   "done",
		Choice: &StreamChoice{Index: index, FinishReason: finishReason},
	}
}

// NewErrorEvent creates a new error stream event
func NewErrorEvent(err *Error) StreamEvent {
	return StreamEvent{Type: "error", Error: err}
}
