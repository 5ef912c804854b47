package resolution

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/marketlens/resolver-api/internal/ratelimit"
	"github.com/marketlens/resolver-api/pkg/response"
)

// GinHandlers contains HTTP handlers for the resolution endpoints. Tier
// limiters gate admission per caller tier before the service is invoked.
type GinHandlers struct {
	service      *Service
	tierLimiters map[string]ratelimit.Limiter
}

// NewGinHandlers creates handlers. tierLimiters maps caller-tier labels
// (anonymous/free/paid/enterprise) to their admission budgets.
func NewGinHandlers(service *Service, tierLimiters map[string]ratelimit.Limiter) *GinHandlers {
	return &GinHandlers{
		service:      service,
		tierLimiters: tierLimiters,
	}
}

// SearchHandler handles GET /search?q=<query>.
func (h *GinHandlers) SearchHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		query := c.Query("q")
		if query == "" {
			response.BadRequest(c, "query parameter 'q' is required")
			return
		}

		if !h.admit(c) {
			return
		}

		stock, found, err := h.service.Search(c.Request.Context(), query)
		if err != nil {
			response.HandleDomainError(c, err)
			return
		}
		if !found {
			response.NotFound(c, "no security matched the query")
			return
		}
		response.Success(c, stock)
	}
}

// SearchByNameHandler handles GET /search/name?name=<name>&limit=<n>.
func (h *GinHandlers) SearchByNameHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Query("name")
		if name == "" {
			response.BadRequest(c, "query parameter 'name' is required")
			return
		}
		limit := 10
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 1 || parsed > 50 {
				response.BadRequest(c, "limit must be an integer between 1 and 50")
				return
			}
			limit = parsed
		}

		if !h.admit(c) {
			return
		}

		stocks, err := h.service.SearchByName(c.Request.Context(), name, limit)
		if err != nil {
			response.HandleDomainError(c, err)
			return
		}
		response.Success(c, stocks)
	}
}

// StatsHandler handles GET /stats.
func (h *GinHandlers) StatsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Success(c, h.service.CacheStats(c.Request.Context()))
	}
}

// admit applies the caller tier's rate-limit budget, keyed by client IP
// within the tier. Missing tier context falls back to the anonymous budget.
func (h *GinHandlers) admit(c *gin.Context) bool {
	tier := c.GetString("tier")
	if tier == "" {
		tier = "anonymous"
	}
	limiter, ok := h.tierLimiters[tier]
	if !ok {
		limiter = h.tierLimiters["anonymous"]
	}
	if limiter == nil {
		return true
	}

	dec, err := limiter.Acquire(c.Request.Context(), c.ClientIP())
	if err != nil || dec.Allowed {
		return true
	}
	response.TooManyRequests(c, dec.RetryAfter)
	c.Abort()
	return false
}
