package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"

	maxIdempotencyKeyLength = 255
)

// idempotencyKey reads the Idempotency-Key header. An oversized key aborts
// the request.
func idempotencyKey(c *gin.Context) (string, bool) {
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
	if len(key) > maxIdempotencyKeyLength {
		AbortWithError(c, newValidationError("idempotency_key", "invalid_idempotency_key", "idempotency key is too long"))
		return "", false
	}
	return key, true
}

// allowPurchase applies the per-investor purchase limit. Limiter failures
// let the purchase through.
func (s *Server) allowPurchase(c *gin.Context, investorID string) bool {
	if !s.purchaseLimiter.Enabled() || strings.TrimSpace(investorID) == "" {
		return true
	}
	res, err := s.purchaseLimiter.AllowInvestor(c.Request.Context(), investorID)
	if err != nil {
		s.log.Warn("purchase rate limit check failed", zap.String("investor_id", investorID), zap.Error(err))
		return true
	}
	if res.Allowed {
		return true
	}
	c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	AbortWithError(c, ErrRateLimited)
	return false
}
