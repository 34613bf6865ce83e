// Package providerwrap transparently decorates an llm.Client so every
// call routes through a pkg/ratelimit.RateLimitRegistry, generalizing the
// teacher's idempotent client-wrapping pattern to the rate-limit dispatch
// core (spec.md §4.5).
package providerwrap

import (
	"context"
	"strings"
	"time"

	"github.com/inercia/go-llm-eval/pkg/llm"
	"github.com/inercia/go-llm-eval/pkg/ratelimit"
)

// Wrapped is an llm.Client decorator that routes ChatCompletion and
// streaming calls through a RateLimitRegistry. Embedding the underlying
// client means any Client method this type doesn't override (GetRemote,
// GetModelInfo, Close) is delegated automatically.
type Wrapped struct {
	llm.Client
	registry *ratelimit.RateLimitRegistry
	provider ratelimit.ProviderID
}

// Wrap decorates client so its calls are rate-limited through registry
// under the given provider identity. Wrapping is idempotent: wrapping an
// already-wrapped client returns the same instance (spec.md §4.5,
// property 11 in §8), mirroring the teacher's check for an already-wrapped
// client before decorating again.
func Wrap(client llm.Client, registry *ratelimit.RateLimitRegistry, provider ratelimit.ProviderID) llm.Client {
	if already, ok := client.(*Wrapped); ok {
		return already
	}
	return &Wrapped{Client: client, registry: registry, provider: provider}
}

// Unwrap returns the underlying client a Wrapped instance decorates, or
// client itself if it isn't wrapped.
func Unwrap(client llm.Client) llm.Client {
	if w, ok := client.(*Wrapped); ok {
		return w.Client
	}
	return client
}

// ChatCompletion implements llm.Client by routing through the registry.
func (w *Wrapped) ChatCompletion(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	return ratelimit.Execute(ctx, w.registry, w.provider,
		func(ctx context.Context) (*llm.ChatResponse, error) {
			return w.Client.ChatCompletion(ctx, req)
		},
		chatResponseExtractors(),
	)
}

// StreamChatCompletion acquires one slot for the lifetime of the stream
// and releases it once the event channel is drained, without retrying
// mid-stream (retry only makes sense before the stream starts).
func (w *Wrapped) StreamChatCompletion(ctx context.Context, req llm.ChatRequest) (<-chan llm.StreamEvent, error) {
	queue := w.registry.QueueFor(w.provider)
	if err := queue.Acquire(ctx); err != nil {
		return nil, err
	}

	upstream, err := w.Client.StreamChatCompletion(ctx, req)
	if err != nil {
		queue.Release()
		return nil, err
	}

	out := make(chan llm.StreamEvent)
	go func() {
		defer close(out)
		defer queue.Release()
		for ev := range upstream {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// chatResponseExtractors builds the Extractors the spec names in §4.5:
// headers from response.metadata.http.headers, a 429 or rate-limit-text
// check, and a retry-after parse, all case-insensitive.
func chatResponseExtractors() ratelimit.Extractors[*llm.ChatResponse] {
	return ratelimit.Extractors[*llm.ChatResponse]{
		GetHeaders: func(resp *llm.ChatResponse) map[string]string {
			if resp == nil || resp.Metadata == nil {
				return nil
			}
			return resp.Metadata.Headers
		},
		IsRateLimited: func(resp *llm.ChatResponse, err error) bool {
			if resp != nil && resp.Metadata != nil && resp.Metadata.HTTPStatus == 429 {
				return true
			}
			text := ""
			if err != nil {
				text = err.Error()
			} else if resp != nil && resp.Metadata != nil {
				text = resp.Metadata.HTTPStatusText
			}
			text = strings.ToLower(text)
			for _, marker := range []string{"429", "rate limit", "too many requests"} {
				if strings.Contains(text, marker) {
					return true
				}
			}
			return false
		},
		GetRetryAfter: func(resp *llm.ChatResponse, err error) *time.Duration {
			if resp == nil || resp.Metadata == nil {
				return nil
			}
			for k, v := range resp.Metadata.Headers {
				if strings.EqualFold(k, "retry-after") {
					return ratelimit.ParseRetryAfter(v)
				}
			}
			return nil
		},
	}
}
