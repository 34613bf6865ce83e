// Package ratelimit implements the provider-facing dispatch core: retry
// policy, rate-limit header parsing, per-provider slot queues, and the
// registry that ties acquire/execute/release/retry together.
package ratelimit

import (
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"strings"
	"time"

	"github.com/inercia/go-llm-eval/pkg/llm"
)

// RetryPolicy controls how RateLimitRegistry.Execute classifies and
// retries failed provider calls.
type RetryPolicy struct {
	// MaxRetries is the number of retry attempts after the first try (default 5).
	MaxRetries int

	// BaseDelayMs is the starting backoff delay (default 500ms).
	BaseDelayMs time.Duration

	// MaxDelayMs caps the computed delay, including server-provided hints (default 60s).
	MaxDelayMs time.Duration

	// JitterFactor is the symmetric jitter applied to the exponential delay, in [0,1] (default 0.2).
	JitterFactor float64
}

// DefaultRetryPolicy returns the module's default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:   5,
		BaseDelayMs:  500 * time.Millisecond,
		MaxDelayMs:   60 * time.Second,
		JitterFactor: 0.2,
	}
}

// retryableMessageMarkers are substrings of an error/response message that
// indicate a transient failure worth retrying, independent of isRateLimited.
var retryableMessageMarkers = []string{
	"503",
	"timeout",
	"econnreset",
	"econnrefused",
	"eai_again",
	"429",
}

// ShouldRetry decides whether attempt number `attempt` (0-indexed, the
// attempt that just failed) should be retried.
//
// isRateLimited should be true when the caller already classified the
// response/error as a rate-limit condition (e.g. HTTP 429 or a
// provider-specific rate-limit error). err may be nil.
func ShouldRetry(attempt int, err error, isRateLimited bool, policy RetryPolicy) bool {
	if attempt >= policy.MaxRetries {
		return false
	}
	if isRateLimited {
		return true
	}
	if err == nil {
		return false
	}

	if llmErr, ok := err.(*llm.Error); ok {
		if llmErr.StatusCode >= 500 && llmErr.StatusCode < 600 {
			return true
		}
		if llmErr.StatusCode == 429 {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	if msg == "" {
		return false
	}
	for _, marker := range retryableMessageMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// GetRetryDelay computes the delay before the next attempt.
//
// serverRetryAfterMs, when non-nil, is honored verbatim (capped at
// MaxDelayMs) — a value of 0 means "retry immediately". When nil, the
// delay is computed as exponential backoff from BaseDelayMs with
// symmetric jitter.
func GetRetryDelay(attempt int, policy RetryPolicy, serverRetryAfterMs *time.Duration) time.Duration {
	if serverRetryAfterMs != nil {
		d := *serverRetryAfterMs
		if d > policy.MaxDelayMs {
			return policy.MaxDelayMs
		}
		if d < 0 {
			return 0
		}
		return d
	}

	base := float64(policy.BaseDelayMs) * pow2(attempt)
	if base > float64(policy.MaxDelayMs) {
		base = float64(policy.MaxDelayMs)
	}

	if policy.JitterFactor > 0 {
		// random in [-1, 1], scaled by JitterFactor: base * (1 ± random*jitterFactor)
		r := secureRandomFloat64()*2 - 1
		base *= 1 + r*policy.JitterFactor
	}

	if base > float64(policy.MaxDelayMs) {
		base = float64(policy.MaxDelayMs)
	}
	if base < 0 {
		base = 0
	}
	return time.Duration(base)
}

func pow2(n int) float64 {
	if n < 0 {
		return 1
	}
	result := 1.0
	for i := 0; i < n; i++ {
		result *= 2
	}
	return result
}

// secureRandomFloat64 generates a cryptographically secure random float64 in [0,1]
// (1.0 if the random source fails).
func secureRandomFloat64() float64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 1.0
	}
	return float64(binary.BigEndian.Uint64(b[:])) / float64(^uint64(0))
}

// ParseRetryAfter parses a retry-after header value, which is either a
// decimal number of seconds or an HTTP-date, into a millisecond duration
// pointer. Returns nil if the header is empty or unparseable.
func ParseRetryAfter(value string) *time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}

	if secs, err := strconv.ParseFloat(value, 64); err == nil {
		d := time.Duration(secs * float64(time.Second))
		return &d
	}

	if t, err := time.Parse(time.RFC1123, value); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}

	return nil
}
