// Package llm provides the provider-agnostic client contract and wire
// vocabulary the dispatch core (pkg/ratelimit, pkg/providerwrap) and the
// assertion engine (pkg/assert) build on.
//
// The main components include:
//
//   - Client interface: the core LLM client contract every backend (and
//     pkg/providers/mock) implements
//   - Message/ChatRequest/ChatResponse: the request/response vocabulary
//   - ResponseMeta: transport-level metadata (HTTP status, headers) a
//     backend may attach to a response for rate-limit header parsing
//   - Configuration: ClientConfig, the provider-agnostic construction config
//   - Error handling: the standardized Error type
//   - Streaming: StreamEvent/MessageDelta for incremental responses
//
// Provider implementations live in separate packages under /pkg/providers/
// to avoid import cycles; this package carries only the shared contract.
package llm
