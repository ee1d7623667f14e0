package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dunamismax/tryonflow/internal/ratelimit"
)

type RateLimiter interface {
	Allow(ctx context.Context, subject string) (ratelimit.Decision, error)
}

// withRateLimit counts requests per user and route. Limiter errors let the
// request through.
func (s *Server) withRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.deps.RateLimiter == nil {
			c.Next()
			return
		}

		subject := strings.TrimSpace(c.GetHeader(s.userHeader))
		if subject == "" {
			subject = "anonymous"
		}
		route := routeLabel(c)

		decision, err := s.deps.RateLimiter.Allow(c.Request.Context(), subject+":"+route)
		if err != nil {
			s.logger.Warn("rate limiter check failed", zap.String("subject", subject), zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int(decision.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		s.metrics.rateLimitRejected.WithLabelValues(route).Inc()
		writeError(c, http.StatusTooManyRequests, "rate limit exceeded")
	}
}
