package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"registration-service/internal/util"
)

const msgTooManyRequests = "Too many requests"

// IPLimiter admits a bounded number of requests per address and window.
type IPLimiter interface {
	AllowIP(ctx context.Context, ip string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware answers 429 once a client address exceeds limit
// requests per window. Limiter failures let the request through.
func RateLimitMiddleware(limiter IPLimiter, limit int, window time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			allowed, err := limiter.AllowIP(r.Context(), ip, limit, window)
			if err != nil {
				logger.Warn("Request limiter unavailable, allowing request",
					util.String("ip", ip),
					util.ErrorField(err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				logger.Warn("Request limit exceeded",
					util.String("ip", ip),
					util.String("path", r.URL.Path),
					util.Int("limit", limit))
				respondWithJSON(w, http.StatusTooManyRequests, failed(msgTooManyRequests), logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
