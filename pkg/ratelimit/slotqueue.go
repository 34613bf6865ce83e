package ratelimit

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultQueueTimeout bounds how long a waiter may sit in the FIFO before
// being rejected. Zero disables the timeout.
const DefaultQueueTimeout = 5 * time.Minute

// providerConcurrencyDefaults gives known providers a tuned default
// MaxConcurrency, mirroring the teacher's per-provider default
// model/timeout tables in pkg/llm/config.go. Providers not listed here
// fall back to the package-wide default of 1.
var providerConcurrencyDefaults = map[string]int{
	"openai":     8,
	"openrouter": 8,
	"deepseek":   4,
	"bedrock":    4,
	"gemini":     4,
	"ollama":     1,
	"mock":       16,
}

// DefaultSlotQueueConfig returns the SlotQueueConfig a RateLimitRegistry
// constructs a provider's SlotQueue with on first use, tuned per known
// provider id (SPEC_FULL.md §9). Unknown provider ids get the package's
// baseline default of MaxConcurrency 1.
func DefaultSlotQueueConfig(providerID string) SlotQueueConfig {
	cfg := SlotQueueConfig{MinConcurrency: 1}
	if n, ok := providerConcurrencyDefaults[strings.ToLower(providerID)]; ok {
		cfg.MaxConcurrency = n
	} else {
		cfg.MaxConcurrency = 1
	}
	return cfg
}

// SlotQueueConfig configures a SlotQueue.
type SlotQueueConfig struct {
	// MaxConcurrency is the number of calls this provider may run at once (default 1).
	MaxConcurrency int

	// MinConcurrency is the floor SetMaxConcurrency will clamp to (default 1).
	MinConcurrency int

	// QueueTimeout bounds how long a waiter sits in the FIFO; 0 disables it (default 5m).
	QueueTimeout time.Duration

	// Clock is the time source; defaults to RealClock().
	Clock Clock

	// OnSlotAcquired, when set, fires after a successful grant with the post-grant queue depth.
	OnSlotAcquired func(queueDepth int)

	// OnSlotReleased, when set, fires on Release with the pre-promotion queue depth.
	OnSlotReleased func(queueDepth int)
}

func (c SlotQueueConfig) withDefaults() SlotQueueConfig {
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = 1
	}
	if c.MinConcurrency <= 0 {
		c.MinConcurrency = 1
	}
	if c.MaxConcurrency < c.MinConcurrency {
		c.MaxConcurrency = c.MinConcurrency
	}
	if c.QueueTimeout == 0 {
		c.QueueTimeout = DefaultQueueTimeout
	}
	if c.Clock == nil {
		c.Clock = RealClock()
	}
	return c
}

// waiter is a single suspended Acquire call sitting in the FIFO.
type waiter struct {
	done    chan struct{}
	err     error
	timer   Timer
	settled bool
	elem    *list.Element
}

func (w *waiter) resolve() {
	if w.settled {
		return
	}
	w.settled = true
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
}

func (w *waiter) reject(err error) {
	if w.settled {
		return
	}
	w.settled = true
	w.err = err
	if w.timer != nil {
		w.timer.Stop()
	}
	close(w.done)
}

// SlotQueue is the per-provider admission controller described in
// spec.md §4.3: it bounds concurrency, tracks request/token quota, and
// grants waiters FIFO once both a slot and quota are available.
type SlotQueue struct {
	providerID string
	cfg        SlotQueueConfig

	mu             sync.Mutex
	activeCount    int
	maxConcurrency int
	minConcurrency int
	fifo           *list.List // of *waiter
	snapshot       RateLimitSnapshot
	resetTimer     Timer
	disposed       bool
}

// NewSlotQueue creates a SlotQueue for one provider.
func NewSlotQueue(providerID string, cfg SlotQueueConfig) *SlotQueue {
	cfg = cfg.withDefaults()
	return &SlotQueue{
		providerID:     providerID,
		cfg:            cfg,
		maxConcurrency: cfg.MaxConcurrency,
		minConcurrency: cfg.MinConcurrency,
		fifo:           list.New(),
	}
}

// Acquire blocks until a slot is granted, the context is cancelled, the
// waiter times out, or the queue is disposed.
func (q *SlotQueue) Acquire(ctx context.Context) error {
	q.mu.Lock()

	if q.disposed {
		q.mu.Unlock()
		return &QueueDisposedError{ProviderID: q.providerID}
	}

	if !q.quotaExhaustedLocked() && q.activeCount < q.maxConcurrency {
		q.activeCount++
		depth := q.fifo.Len()
		q.mu.Unlock()
		if q.cfg.OnSlotAcquired != nil {
			q.cfg.OnSlotAcquired(depth)
		}
		return nil
	}

	w := &waiter{done: make(chan struct{})}
	w.elem = q.fifo.PushBack(w)

	if q.quotaExhaustedLocked() && q.fifo.Len() == 1 && q.resetTimer == nil && q.snapshot.ResetAt != nil {
		q.scheduleResetLocked()
	}

	if q.cfg.QueueTimeout > 0 {
		elapsed := q.cfg.QueueTimeout
		w.timer = q.cfg.Clock.AfterFunc(q.cfg.QueueTimeout, func() {
			q.timeoutWaiter(w, elapsed)
		})
	}
	q.mu.Unlock()

	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		q.cancelWaiter(w, ctx.Err())
		return ctx.Err()
	}
}

func (q *SlotQueue) timeoutWaiter(w *waiter, elapsed time.Duration) {
	q.mu.Lock()
	if w.settled {
		q.mu.Unlock()
		return
	}
	q.fifo.Remove(w.elem)
	w.reject(&TimeoutError{ProviderID: q.providerID, Elapsed: elapsed.String()})
	q.mu.Unlock()
}

func (q *SlotQueue) cancelWaiter(w *waiter, err error) {
	q.mu.Lock()
	if !w.settled {
		q.fifo.Remove(w.elem)
		w.reject(err)
	}
	q.mu.Unlock()
}

// Release returns one slot to the pool. Extra releases beyond outstanding
// acquires are tolerated and saturate at 0.
func (q *SlotQueue) Release() {
	q.mu.Lock()
	depth := q.fifo.Len()
	if q.activeCount > 0 {
		q.activeCount--
	}
	q.promoteLocked()
	q.mu.Unlock()

	if q.cfg.OnSlotReleased != nil {
		q.cfg.OnSlotReleased(depth)
	}
}

// promoteLocked must be called with q.mu held. It grants slots to queued
// waiters while quota and concurrency allow, incrementing activeCount
// atomically with each grant.
func (q *SlotQueue) promoteLocked() {
	for {
		if q.quotaExhaustedLocked() {
			return
		}
		if q.activeCount >= q.maxConcurrency {
			return
		}
		front := q.fifo.Front()
		if front == nil {
			return
		}
		w := front.Value.(*waiter)
		q.fifo.Remove(front)
		q.activeCount++
		w.resolve()
	}
}

// UpdateRateLimitState merges a freshly observed snapshot into the
// queue's state and attempts to promote waiters if quota is no longer
// exhausted.
func (q *SlotQueue) UpdateRateLimitState(snap RateLimitSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()

	prevReset := q.snapshot.ResetAt
	q.snapshot = q.snapshot.Merge(snap)

	resetChanged := (prevReset == nil) != (q.snapshot.ResetAt == nil) ||
		(prevReset != nil && q.snapshot.ResetAt != nil && !prevReset.Equal(*q.snapshot.ResetAt))

	if resetChanged && q.fifo.Len() > 0 {
		q.scheduleResetLocked()
	}

	q.promoteLocked()
}

// MarkRateLimited zeroes both remaining counters and computes a new
// ResetAt. retryAfter is nil when the server gave no explicit hint
// (falls back to a 60s default when no ResetAt was already set); a
// non-nil zero duration means "retry now": an existing ResetAt is
// preserved, and when none exists the reset is due immediately, so the
// zeroed counters clear on the next quota check instead of defaulting.
func (q *SlotQueue) MarkRateLimited(retryAfter *time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	zero := int64(0)
	q.snapshot.RemainingRequests = &zero
	zero2 := int64(0)
	q.snapshot.RemainingTokens = &zero2

	now := q.cfg.Clock.Now()
	switch {
	case retryAfter != nil && *retryAfter > 0:
		candidate := now.Add(*retryAfter)
		if q.snapshot.ResetAt == nil || candidate.After(*q.snapshot.ResetAt) {
			q.snapshot.ResetAt = &candidate
		}
	case retryAfter != nil:
		// explicit zero: preserve an existing ResetAt, never default; with
		// none tracked, reset now so the quota is not left exhausted.
		if q.snapshot.ResetAt == nil {
			q.snapshot.ResetAt = &now
		}
	default:
		// omitted entirely
		if q.snapshot.ResetAt == nil {
			t := now.Add(60 * time.Second)
			q.snapshot.ResetAt = &t
		}
	}

	if q.fifo.Len() > 0 {
		q.scheduleResetLocked()
	}
}

// SetMaxConcurrency changes the concurrency cap, clamped to
// [minConcurrency, +inf). Increasing promotes eligible waiters;
// decreasing never cancels in-flight work.
func (q *SlotQueue) SetMaxConcurrency(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n < q.minConcurrency {
		n = q.minConcurrency
	}
	q.maxConcurrency = n
	q.promoteLocked()
}

// Dispose marks the queue disposed, cancels the reset timer and every
// per-waiter timeout, and rejects every queued waiter with
// QueueDisposedError. Safe to call more than once.
func (q *SlotQueue) Dispose() {
	q.mu.Lock()
	if q.disposed {
		q.mu.Unlock()
		return
	}
	q.disposed = true
	if q.resetTimer != nil {
		q.resetTimer.Stop()
		q.resetTimer = nil
	}

	var waiters []*waiter
	for e := q.fifo.Front(); e != nil; e = e.Next() {
		waiters = append(waiters, e.Value.(*waiter))
	}
	q.fifo.Init()
	q.mu.Unlock()

	err := &QueueDisposedError{ProviderID: q.providerID}
	for _, w := range waiters {
		w.reject(err)
	}
}

// Disposed reports whether Dispose has been called.
func (q *SlotQueue) Disposed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.disposed
}

// ActiveCount returns the current number of granted, unreleased slots.
func (q *SlotQueue) ActiveCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeCount
}

// QueueDepth returns the number of waiters currently queued.
func (q *SlotQueue) QueueDepth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.fifo.Len()
}

// Snapshot returns the current rate-limit snapshot, refreshed for a
// passed reset time (mirroring the lazy clearing IsQuotaExhausted does).
func (q *SlotQueue) Snapshot() RateLimitSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quotaExhaustedLocked() // side effect: clears expired quota fields
	return q.snapshot
}

// IsQuotaExhausted reports whether the provider's request or token quota
// is currently depleted, auto-clearing it first if ResetAt has passed.
func (q *SlotQueue) IsQuotaExhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.quotaExhaustedLocked()
}

func (q *SlotQueue) quotaExhaustedLocked() bool {
	if q.snapshot.ResetAt != nil && !q.cfg.Clock.Now().Before(*q.snapshot.ResetAt) {
		q.snapshot.RemainingRequests = nil
		q.snapshot.RemainingTokens = nil
		q.snapshot.ResetAt = nil
		return false
	}
	if q.snapshot.RemainingRequests != nil && *q.snapshot.RemainingRequests == 0 {
		return true
	}
	if q.snapshot.RemainingTokens != nil && *q.snapshot.RemainingTokens == 0 {
		return true
	}
	return false
}

// scheduleResetLocked (re)schedules the single reset timer for the
// current snapshot's ResetAt, cancelling any prior one. Must be called
// with q.mu held.
func (q *SlotQueue) scheduleResetLocked() {
	if q.resetTimer != nil {
		q.resetTimer.Stop()
		q.resetTimer = nil
	}
	if q.snapshot.ResetAt == nil {
		return
	}
	d := q.snapshot.ResetAt.Sub(q.cfg.Clock.Now())
	if d < 0 {
		d = 0
	}
	q.resetTimer = q.cfg.Clock.AfterFunc(d, q.onResetFired)
}

func (q *SlotQueue) onResetFired() {
	q.mu.Lock()
	q.snapshot.RemainingRequests = nil
	q.snapshot.RemainingTokens = nil
	q.snapshot.ResetAt = nil
	q.resetTimer = nil
	q.promoteLocked()
	q.mu.Unlock()
}
