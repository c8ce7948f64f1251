package ratelimit

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/castellan-api/castellan/internal/httputil"
	"github.com/castellan-api/castellan/internal/identity"
	"github.com/castellan-api/castellan/internal/telemetry"
)

const (
	headerLimit         = "X-RateLimit-Limit"
	headerRemaining     = "X-RateLimit-Remaining"
	headerReset         = "X-RateLimit-Reset"
	headerLimitHour     = "X-RateLimit-Limit-Hour"
	headerRemainingHour = "X-RateLimit-Remaining-Hour"
	headerResetHour     = "X-RateLimit-Reset-Hour"
	headerRetryAfter    = "Retry-After"
)

// Middleware returns chi middleware that enforces the sliding-window limits
// per identity, falling back to the client IP for unauthenticated routes.
// Both windows are reported via headers on every response; denials add
// Retry-After.
func Middleware(limiter *Limiter, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := w.Header().Get("X-Request-ID")

			key := limitKey(r)
			result := limiter.Check(key)

			SetHeaders(w, result)

			if !result.Allowed {
				slog.Warn("rate limit exceeded",
					"request_id", reqID,
					"key", key,
					"window", result.LimitType,
					"retry_after", result.RetryAfter,
				)
				if metrics != nil {
					metrics.RecordRateLimitDenied(result.LimitType)
				}
				limit := result.LimitMinute
				if result.LimitType == "per_hour" {
					limit = result.LimitHour
				}
				httputil.WriteRateLimitError(w, reqID,
					fmt.Sprintf("Rate limit exceeded: %d requests %s. Retry after %d seconds", limit, windowPhrase(result.LimitType), result.RetryAfter))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SetHeaders writes both windows' limit state onto the response.
func SetHeaders(w http.ResponseWriter, result Result) {
	h := w.Header()
	h.Set(headerLimit, strconv.Itoa(result.LimitMinute))
	h.Set(headerRemaining, strconv.Itoa(result.RemainingMinute))
	h.Set(headerReset, strconv.Itoa(result.ResetMinute))
	h.Set(headerLimitHour, strconv.Itoa(result.LimitHour))
	h.Set(headerRemainingHour, strconv.Itoa(result.RemainingHour))
	h.Set(headerResetHour, strconv.Itoa(result.ResetHour))
	if !result.Allowed {
		h.Set(headerRetryAfter, strconv.Itoa(result.RetryAfter))
	}
}

// limitKey buckets by authenticated identity when present, else client IP.
func limitKey(r *http.Request) string {
	if ac, ok := identity.AuthFromContext(r.Context()); ok {
		return "id:" + ac.IdentityID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

func windowPhrase(limitType string) string {
	if limitType == "per_hour" {
		return "per hour"
	}
	return "per minute"
}
