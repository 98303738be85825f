package server

import (
	"context"
	"math"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/paysettle/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/paysettle/internal/observability/metrics"
	"github.com/smallbiznis/paysettle/internal/ratelimit"
	"go.uber.org/zap"
)

const rateLimitReasonClientRate = "client-rate"

// RateLimit applies the per-client token bucket of endpoint. It is a no-op
// when no redis is configured.
func (s *Server) RateLimit(endpoint ratelimit.Endpoint) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Enabled() {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		clientKey := c.ClientIP()

		result, err := s.limiter.Allow(ctx, endpoint, clientKey)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed",
				zap.String("endpoint", string(endpoint)),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		if result.Limit > 0 {
			c.Header("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			c.Header("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		}
		if !result.Allowed {
			denyRateLimit(c, endpoint, result, s.obsMetrics)
			return
		}

		recordRateLimitAllowed(ctx, endpoint, s.obsMetrics)
		c.Next()
	}
}

func denyRateLimit(c *gin.Context, endpoint ratelimit.Endpoint, result *ratelimit.RateLimitResult, metrics *obsmetrics.Metrics) {
	ctx := c.Request.Context()
	logger.FromContext(ctx).Warn("rate limit exceeded",
		zap.String("endpoint", string(endpoint)),
		zap.String("client_ip", c.ClientIP()),
	)
	recordRateLimitDenied(ctx, endpoint, rateLimitReasonClientRate, metrics)

	retryAfter := 1
	if result != nil && result.RetryAfter > 0 {
		retryAfter = int(math.Ceil(result.RetryAfter.Seconds()))
	}
	c.Header("Retry-After", strconv.Itoa(retryAfter))
	c.Header("X-Rate-Limited-Reason", rateLimitReasonClientRate)
	AbortWithError(c, ErrRateLimited)
}

func recordRateLimitAllowed(ctx context.Context, endpoint ratelimit.Endpoint, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitAllowed(ctx, string(endpoint))
}

func recordRateLimitDenied(ctx context.Context, endpoint ratelimit.Endpoint, reason string, metrics *obsmetrics.Metrics) {
	if metrics == nil {
		return
	}
	metrics.RecordRateLimitDenied(ctx, string(endpoint), reason)
}
