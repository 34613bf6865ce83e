// Package mock provides an in-process fake llm.Client for exercising the
// dispatch core and assertion engine in tests, without a real provider SDK.
//
// Features:
//   - Pre-configured responses and errors
//   - Rate-limit header/429 scripting via WithHeaders/WithRateLimitedResponse
//   - Streaming response simulation
//   - Latency and failure rate simulation
//   - Call logging
package mock
