package ratelimit

import (
	"strconv"
	"strings"
	"time"
)

// RateLimitSnapshot is a point-in-time view of a provider's rate-limit
// state. Fields are pointers so "absent" and "zero" are distinguishable.
type RateLimitSnapshot struct {
	RemainingRequests *int64
	LimitRequests     *int64
	RemainingTokens   *int64
	LimitTokens       *int64
	ResetAt           *time.Time
}

// Merge overlays non-nil fields from other onto a copy of s and returns it.
func (s RateLimitSnapshot) Merge(other RateLimitSnapshot) RateLimitSnapshot {
	out := s
	if other.RemainingRequests != nil {
		out.RemainingRequests = other.RemainingRequests
	}
	if other.LimitRequests != nil {
		out.LimitRequests = other.LimitRequests
	}
	if other.RemainingTokens != nil {
		out.RemainingTokens = other.RemainingTokens
	}
	if other.LimitTokens != nil {
		out.LimitTokens = other.LimitTokens
	}
	if other.ResetAt != nil {
		out.ResetAt = other.ResetAt
	}
	return out
}

// headerLookup is a case-insensitive header map accessor. Callers pass in
// whatever header representation they have (net/http.Header, a plain
// map[string]string, an SDK-specific map) normalized to this shape.
type headerLookup map[string]string

func normalizeHeaders(headers map[string]string) headerLookup {
	out := make(headerLookup, len(headers))
	for k, v := range headers {
		out[strings.ToLower(k)] = v
	}
	return out
}

func (h headerLookup) get(name string) (string, bool) {
	v, ok := h[strings.ToLower(name)]
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ParseHeaders normalizes a case-insensitive header map into a
// RateLimitSnapshot. Missing values are left as nil, never zeroed.
func ParseHeaders(headers map[string]string, now time.Time) RateLimitSnapshot {
	h := normalizeHeaders(headers)

	snap := RateLimitSnapshot{
		RemainingRequests: parseIntHeader(h, "x-ratelimit-remaining-requests"),
		LimitRequests:     parseIntHeader(h, "x-ratelimit-limit-requests"),
		RemainingTokens:   parseIntHeader(h, "x-ratelimit-remaining-tokens"),
		LimitTokens:       parseIntHeader(h, "x-ratelimit-limit-tokens"),
	}

	resetReqAt := parseResetHeader(h, "x-ratelimit-reset-requests", now)
	resetTokAt := parseResetHeader(h, "x-ratelimit-reset-tokens", now)
	switch {
	case resetReqAt != nil && resetTokAt != nil:
		if resetReqAt.After(*resetTokAt) {
			snap.ResetAt = resetReqAt
		} else {
			snap.ResetAt = resetTokAt
		}
	case resetReqAt != nil:
		snap.ResetAt = resetReqAt
	case resetTokAt != nil:
		snap.ResetAt = resetTokAt
	}

	return snap
}

// ParseRetryAfterHeader extracts retry-after (seconds or HTTP-date) from a
// header map, independent of ParseHeaders, returned as a duration in
// milliseconds for RateLimitRegistry to pass to MarkRateLimited.
func ParseRetryAfterHeader(headers map[string]string) *time.Duration {
	h := normalizeHeaders(headers)
	v, ok := h.get("retry-after")
	if !ok {
		return nil
	}
	return ParseRetryAfter(v)
}

func parseIntHeader(h headerLookup, name string) *int64 {
	v, ok := h.get(name)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return nil
	}
	return &n
}

// parseResetHeader interprets a reset duration header. Bare numbers are
// seconds; an explicit "ms"/"s"/"m" suffix overrides that.
func parseResetHeader(h headerLookup, name string, now time.Time) *time.Time {
	v, ok := h.get(name)
	if !ok {
		return nil
	}
	v = strings.TrimSpace(v)

	var d time.Duration
	switch {
	case strings.HasSuffix(v, "ms"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(v, "ms"), 64)
		if err != nil {
			return nil
		}
		d = time.Duration(n * float64(time.Millisecond))
	case strings.HasSuffix(v, "s"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(v, "s"), 64)
		if err != nil {
			return nil
		}
		d = time.Duration(n * float64(time.Second))
	case strings.HasSuffix(v, "m"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(v, "m"), 64)
		if err != nil {
			return nil
		}
		d = time.Duration(n * float64(time.Minute))
	default:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil
		}
		d = time.Duration(n * float64(time.Second))
	}

	t := now.Add(d)
	return &t
}
