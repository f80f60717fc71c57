package http

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/Maverick0351a/signet-protocol-core-console/internal/domain"
)

const routeExchange = "exchange"

// quota charges the calling client address for one request on routeID.
func (s *Server) quota(routeID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.clientQuota == nil {
			c.Next()
			return
		}
		adm, err := s.clientQuota.Admit(c.Request.Context(), routeID+":"+c.ClientIP())
		if err != nil {
			s.logger.Warn("rate limiter unavailable", "route", routeID, "error", err)
			if s.rateLimitFailClosed {
				writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMIT_UNAVAILABLE", "rate limiter unavailable")
				c.Abort()
				return
			}
			c.Next()
			return
		}
		writeQuotaHeaders(c, adm)
		if !adm.Allowed {
			s.metrics.RateLimitedTotal.WithLabelValues(routeID).Inc()
			writeErrorCode(c, http.StatusTooManyRequests, "RATE_LIMITED", "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

func writeQuotaHeaders(c *gin.Context, adm domain.Admission) {
	c.Header("RateLimit-Limit", strconv.Itoa(adm.Limit))
	c.Header("RateLimit-Remaining", strconv.Itoa(adm.Remaining))
	if !adm.ResetAt.IsZero() {
		c.Header("RateLimit-Reset", strconv.FormatInt(adm.ResetAt.Unix(), 10))
	}
	if !adm.Allowed {
		c.Header("Retry-After", strconv.FormatInt(int64(math.Ceil(adm.RetryAfter.Seconds())), 10))
	}
}
