package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/telesis-app/telesis/pkg/httputil"
	"github.com/telesis-app/telesis/pkg/security"
)

// RateLimiter is a fixed-window request counter keyed by arbitrary string
// identifiers (convention: "<userID>:<resource>:<verb>").
//
// Fixed windows are approximate: a burst straddling a window boundary can
// reach up to twice the nominal rate. That trade-off is accepted for
// simplicity; replace with token bucket or sliding log if stricter bounds
// are ever required.
//
// State is in-memory and per-instance. Multi-instance deployments that need
// shared limits use DistributedRateLimiter instead.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
}

type rateLimitEntry struct {
	count     int
	resetTime time.Time
}

// Result is the outcome of a rate limit check
type Result struct {
	Allowed bool
	// Remaining is the quota left in the window, as seen by whichever
	// limiter answered the check.
	Remaining int
	// ResetTime is when the identifier's window expires; surfaced to
	// clients as a Retry-After hint on denial.
	ResetTime time.Time
}

// NewRateLimiter creates an empty rate limiter
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		entries: make(map[string]*rateLimitEntry),
	}
}

// Check counts one request against the identifier's window.
//
// Expired entries are purged with a full scan on every call; the map stays
// small (one entry per active identifier) so this beats the bookkeeping of a
// real LRU. A new identifier starts a window with count 1. At maxRequests
// the request is denied without incrementing.
func (rl *RateLimiter) Check(identifier string, maxRequests int, window time.Duration) Result {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for key, entry := range rl.entries {
		if now.After(entry.resetTime) {
			delete(rl.entries, key)
		}
	}

	entry, ok := rl.entries[identifier]
	if !ok {
		resetTime := now.Add(window)
		rl.entries[identifier] = &rateLimitEntry{count: 1, resetTime: resetTime}
		return Result{Allowed: true, Remaining: maxRequests - 1, ResetTime: resetTime}
	}

	if entry.count < maxRequests {
		entry.count++
		return Result{Allowed: true, Remaining: maxRequests - entry.count, ResetTime: entry.resetTime}
	}

	return Result{Allowed: false, Remaining: 0, ResetTime: entry.resetTime}
}

// Remaining returns how many requests are left for the identifier in the
// current window.
func (rl *RateLimiter) Remaining(identifier string, maxRequests int) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	entry, ok := rl.entries[identifier]
	if !ok || time.Now().After(entry.resetTime) {
		return maxRequests
	}
	remaining := maxRequests - entry.count
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}

// Len returns the number of live entries (used by the janitor and tests)
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}

// Sweep removes expired entries without counting a request
func (rl *RateLimiter) Sweep() int {
	now := time.Now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for key, entry := range rl.entries {
		if now.After(entry.resetTime) {
			delete(rl.entries, key)
			removed++
		}
	}
	return removed
}

// StartCleanup starts a background goroutine that sweeps expired entries
// periodically until the context is cancelled.
func (rl *RateLimiter) StartCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				rl.Sweep()
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// RouteLimit describes per-route rate limit settings
type RouteLimit struct {
	// Resource forms part of the limiter key, e.g. "materials"
	Resource    string
	MaxRequests int
	Window      time.Duration
}

// RateLimitMiddleware applies per-user, per-route fixed-window limits and
// records denials in the security log.
type RateLimitMiddleware struct {
	limiter     *RateLimiter
	distributed *DistributedRateLimiter
	secLog      *security.Logger
	onDenial    func(resource string) // metrics hook
}

// NewRateLimitMiddleware creates a rate limit middleware backed by the given
// limiter. When distributed is non-nil, limits are shared through Redis and
// the in-memory limiter serves as the fallback on Redis errors.
func NewRateLimitMiddleware(limiter *RateLimiter, distributed *DistributedRateLimiter, secLog *security.Logger, onDenial func(string)) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:     limiter,
		distributed: distributed,
		secLog:      secLog,
		onDenial:    onDenial,
	}
}

// Handler wraps a handler with the given route limit. Must run inside the
// auth guard: the limiter key is derived from the authenticated user, with
// the client IP as fallback for partially authenticated routes.
func (m *RateLimitMiddleware) Handler(limit RouteLimit, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject := "anon"
		authCtx := GetAuthContext(r)
		if authCtx != nil && authCtx.UserID != "" {
			subject = authCtx.UserID
		} else if ip := clientIP(r); ip != "" {
			subject = "ip:" + ip
		}

		key := subject + ":" + limit.Resource + ":" + strings.ToLower(r.Method)
		result := m.check(r.Context(), key, limit)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.MaxRequests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetTime.Unix(), 10))

		if !result.Allowed {
			if m.secLog != nil {
				userID := ""
				if authCtx != nil {
					userID = authCtx.UserID
				}
				m.secLog.Log(security.RateLimitExceeded(userID, r.URL.Path, r.Method, key))
			}
			if m.onDenial != nil {
				m.onDenial(limit.Resource)
			}
			httputil.WriteRateLimited(w, result.ResetTime)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// check consults the shared limiter when configured, falling back to the
// in-process one when Redis is unavailable
func (m *RateLimitMiddleware) check(ctx context.Context, key string, limit RouteLimit) Result {
	if m.distributed != nil {
		result, err := m.distributed.Check(ctx, key, limit.MaxRequests, limit.Window)
		if err == nil {
			return result
		}
	}
	return m.limiter.Check(key, limit.MaxRequests, limit.Window)
}

// clientIP extracts the client IP, preferring proxy headers
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
