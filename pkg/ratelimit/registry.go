package ratelimit

import (
	"context"
	"time"
)

// ProviderID identifies a rate-limited provider. Two entries with the
// same ID but different labels are distinct for rate-limiting purposes,
// matching spec.md §3's provider identity rule.
type ProviderID struct {
	ID    string
	Label string
}

func (p ProviderID) key() string {
	if p.Label == "" {
		return p.ID
	}
	return p.ID + "\x00" + p.Label
}

// Extractors lets RateLimitRegistry.Execute pull rate-limit signals out
// of an arbitrary response/error pair without depending on any specific
// provider's transport shape (spec.md §4.5).
type Extractors[Resp any] struct {
	// GetHeaders returns a case-insensitive header map from a response, or nil.
	GetHeaders func(resp Resp) map[string]string

	// IsRateLimited reports whether the response/error indicates a rate limit.
	IsRateLimited func(resp Resp, err error) bool

	// GetRetryAfter extracts a server-provided retry-after hint, or nil.
	GetRetryAfter func(resp Resp, err error) *time.Duration
}

// RegistryConfig configures a RateLimitRegistry.
type RegistryConfig struct {
	// DefaultQueueConfig is used to construct a SlotQueue the first time a provider is seen.
	DefaultQueueConfig func(provider ProviderID) SlotQueueConfig

	// Policy is the retry policy applied by Execute.
	Policy RetryPolicy

	// Clock is shared with constructed SlotQueues; defaults to RealClock().
	Clock Clock

	// Sleep is the delay primitive used between retries; defaults to a
	// context-aware time.After wait. Overridable for deterministic tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

func defaultSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RateLimitRegistry maps provider identity to a SlotQueue and
// orchestrates acquire/execute/release/retry (spec.md §4.4).
type RateLimitRegistry struct {
	cfg    RegistryConfig
	queues map[string]*SlotQueue
}

// NewRateLimitRegistry creates a registry. Queues are constructed lazily
// on first use via cfg.DefaultQueueConfig.
func NewRateLimitRegistry(cfg RegistryConfig) *RateLimitRegistry {
	if cfg.Clock == nil {
		cfg.Clock = RealClock()
	}
	if cfg.Sleep == nil {
		cfg.Sleep = defaultSleep
	}
	if cfg.DefaultQueueConfig == nil {
		cfg.DefaultQueueConfig = func(provider ProviderID) SlotQueueConfig {
			qcfg := DefaultSlotQueueConfig(provider.ID)
			qcfg.Clock = cfg.Clock
			return qcfg
		}
	}
	if cfg.Policy == (RetryPolicy{}) {
		cfg.Policy = DefaultRetryPolicy()
	}
	return &RateLimitRegistry{cfg: cfg, queues: make(map[string]*SlotQueue)}
}

// QueueFor returns (creating if needed) the SlotQueue for a provider.
func (r *RateLimitRegistry) QueueFor(provider ProviderID) *SlotQueue {
	key := provider.key()
	if q, ok := r.queues[key]; ok {
		return q
	}
	qcfg := r.cfg.DefaultQueueConfig(provider)
	if qcfg.Clock == nil {
		qcfg.Clock = r.cfg.Clock
	}
	q := NewSlotQueue(provider.ID, qcfg)
	r.queues[key] = q
	return q
}

// ProviderSnapshot is the read-only view RateLimitRegistry.Snapshot
// returns for one provider: its current rate-limit state plus queue
// health, grounded on the teacher's ClientRemoteInfoStatus read-only
// status pattern (SPEC_FULL.md §9).
type ProviderSnapshot struct {
	RateLimit   RateLimitSnapshot
	ActiveCount int
	QueueDepth  int
	Disposed    bool
}

// Snapshot returns a point-in-time, read-only view of a provider's
// SlotQueue, or the zero value with RateLimit unset if the provider has
// no queue yet (Execute/QueueFor has never been called for it).
func (r *RateLimitRegistry) Snapshot(provider ProviderID) ProviderSnapshot {
	q, ok := r.queues[provider.key()]
	if !ok {
		return ProviderSnapshot{}
	}
	return ProviderSnapshot{
		RateLimit:   q.Snapshot(),
		ActiveCount: q.ActiveCount(),
		QueueDepth:  q.QueueDepth(),
		Disposed:    q.Disposed(),
	}
}

// DisposeAll disposes every queue the registry has created.
func (r *RateLimitRegistry) DisposeAll() {
	for _, q := range r.queues {
		q.Dispose()
	}
}

// Execute runs callFn under the provider's slot queue, applying retry
// policy on retryable failures and rate-limit responses. Exactly one
// Release happens per Acquire, guarded against double-release across
// the retry/error paths (spec.md §4.4 step 4, §5).
func Execute[Resp any](
	ctx context.Context,
	r *RateLimitRegistry,
	provider ProviderID,
	callFn func(ctx context.Context) (Resp, error),
	ex Extractors[Resp],
) (Resp, error) {
	queue := r.QueueFor(provider)

	var zero Resp
	attempt := 0
	for {
		if err := queue.Acquire(ctx); err != nil {
			return zero, err
		}

		released := false
		release := func() {
			if !released {
				released = true
				queue.Release()
			}
		}

		resp, callErr := callFn(ctx)

		isRateLimited := false
		var retryAfter *time.Duration

		if callErr == nil {
			if ex.GetHeaders != nil {
				if headers := ex.GetHeaders(resp); headers != nil {
					queue.UpdateRateLimitState(ParseHeaders(headers, r.cfg.Clock.Now()))
				}
			}
			if ex.IsRateLimited != nil && ex.IsRateLimited(resp, nil) {
				isRateLimited = true
				if ex.GetRetryAfter != nil {
					retryAfter = ex.GetRetryAfter(resp, nil)
				}
				queue.MarkRateLimited(retryAfter)
			}
		} else if ex.IsRateLimited != nil && ex.IsRateLimited(resp, callErr) {
			isRateLimited = true
			if ex.GetRetryAfter != nil {
				retryAfter = ex.GetRetryAfter(resp, callErr)
			}
			queue.MarkRateLimited(retryAfter)
		}

		retryableErr := callErr
		if isRateLimited && retryableErr == nil {
			retryableErr = &RateLimitedError{Provider: provider.ID}
		}

		if callErr == nil && !isRateLimited {
			release()
			return resp, nil
		}

		if ctx.Err() != nil {
			release()
			return zero, ctx.Err()
		}

		if !ShouldRetry(attempt, retryableErr, isRateLimited, r.cfg.Policy) {
			release()
			return zero, retryableErr
		}

		delay := GetRetryDelay(attempt, r.cfg.Policy, retryAfter)
		release()

		if err := r.cfg.Sleep(ctx, delay); err != nil {
			return zero, err
		}
		attempt++
	}
}

// RateLimitedError wraps a response that was classified as rate-limited
// but carried no transport-level error, so Execute has something to feed
// ShouldRetry and to surface if retries are exhausted.
type RateLimitedError struct {
	Provider string
}

func (e *RateLimitedError) Error() string {
	return "ratelimit: provider " + e.Provider + " reported a rate limit"
}
