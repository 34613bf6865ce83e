package factory

import (
	"github.com/inercia/go-llm-eval/pkg/llm"
	"github.com/inercia/go-llm-eval/pkg/providers/mock"
)

func init() {
	// Register the mock provider. Real-SDK backends (OpenAI, Bedrock,
	// DeepSeek, OpenRouter, Gemini, Ollama, ...) are external
	// collaborators per spec.md §1 ("provider-specific transport (HTTP/SDK
	// code)" is out of scope) and are not carried in this module; a
	// deployment wires them in by registering additional constructors with
	// RegisterProvider the same way this file registers mock.
	RegisterProvider("mock", func(config llm.ClientConfig) (llm.Client, error) {
		return mock.NewClient(config.Model, "mock")
	})
	RegisterProvider("mocked", func(config llm.ClientConfig) (llm.Client, error) {
		return mock.NewClient(config.Model, "mock")
	})
}
