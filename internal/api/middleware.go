/**
 * @description
 * This file contains HTTP middleware for the payment-service: the Redis-backed
 * rate limit applied to the provider webhook endpoint. The limiter is shared
 * across service replicas; when Redis is unavailable the middleware fails open
 * because dropping provider callbacks is worse than momentarily unmetered
 * traffic.
 */

package api

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WebhookRateLimiter consumes one rate-limit token for a subject within a scope.
type WebhookRateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// RateLimitMiddleware limits webhook deliveries per source IP. A nil limiter
// or a non-positive limit disables metering entirely.
func RateLimitMiddleware(limiter WebhookRateLimiter, limitPerMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil || limitPerMinute <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			subject := clientIP(r)
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), "payment_webhook", subject, limitPerMinute, time.Minute)
			if err != nil {
				log.Printf("level=warn component=api middleware=rate_limit msg=\"limiter unavailable; failing open\" err=%v", err)
				next.ServeHTTP(w, r)
				return
			}
			if count > limitPerMinute {
				log.Printf("level=warn component=api middleware=rate_limit outcome=throttled subject=%s count=%d limit=%d", subject, count, limitPerMinute)
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "Too many requests"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP extracts the originating address, honoring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.IndexByte(xff, ','); idx > 0 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndexByte(ip, ':'); idx > 0 {
		return ip[:idx]
	}
	return ip
}
