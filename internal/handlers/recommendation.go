package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/middleware"
	"storefront/internal/recommend"
)

// Recommender is the slice of recommend.Service the HTTP layer uses.
type Recommender interface {
	PopularProducts(ctx context.Context, limit int) (recommend.Result, error)
	ItemBased(ctx context.Context, productID string, limit int) (recommend.Result, error)
	UserBased(ctx context.Context, customerID string, limit int) (recommend.Result, error)
	ByCategory(ctx context.Context, category string, limit int) (recommend.Result, error)
	Hybrid(ctx context.Context, customerID string, opts recommend.HybridOptions) (recommend.HybridResult, error)
	Stats(ctx context.Context) (recommend.Stats, error)
	RefreshMetrics(ctx context.Context, customerID string) (recommend.CustomerSnapshot, error)
	CustomerSnapshot(ctx context.Context, customerID string) (recommend.CustomerSnapshot, error)
	RebuildMatrix(ctx context.Context) (recommend.Stats, error)
}

// Options are shared by every recommendation handler.
type Options struct {
	DefaultLimit int
	Timeout      time.Duration
}

func (o Options) withTimeout(c *gin.Context) (context.Context, context.CancelFunc) {
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}

func (o Options) limit(c *gin.Context, route string) (int, bool) {
	def := o.DefaultLimit
	if def <= 0 {
		def = 10
	}
	limit, err := parseLimit(c.Query("limit"), def)
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid limit")
		return 0, false
	}
	return limit, true
}

// objectIDParam reads a hex ObjectID path param.
func objectIDParam(c *gin.Context, name, route string) (string, bool) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(c.Param(name)))
	if err != nil {
		respondWithError(c, http.StatusBadRequest, route, "invalid id")
		return "", false
	}
	return id.Hex(), true
}

/* =========================
   PUBLIC
========================= */

func GetPopularProducts(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/popular"
		defer handlePanic(c, route)

		limit, ok := opts.limit(c, route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		result, err := svc.PopularProducts(ctx, limit)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": result})
	}
}

func GetItemBasedRecommendations(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/products/:id/similar"
		defer handlePanic(c, route)

		productID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}
		limit, ok := opts.limit(c, route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		result, err := svc.ItemBased(ctx, productID, limit)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"productId": productID, "data": result})
	}
}

func GetUserBasedRecommendations(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/users/:id"
		defer handlePanic(c, route)

		customerID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}
		limit, ok := opts.limit(c, route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		result, err := svc.UserBased(ctx, customerID, limit)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"customerId": customerID, "data": result})
	}
}

func GetRecommendationsByCategory(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/categories/:category"
		defer handlePanic(c, route)

		category := strings.TrimSpace(c.Param("category"))
		limit, ok := opts.limit(c, route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		result, err := svc.ByCategory(ctx, category, limit)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"category": category, "data": result})
	}
}

func GetHybridRecommendations(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/hybrid/:id"
		defer handlePanic(c, route)

		customerID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}
		hybrid(c, svc, opts, route, customerID)
	}
}

// GetMyRecommendations serves the hybrid bundle of the authenticated
// customer. It must run behind middleware.UserAuth.
func GetMyRecommendations(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/me"
		defer handlePanic(c, route)

		customerID := c.GetString(middleware.CustomerIDKey)
		if customerID == "" {
			respondWithError(c, http.StatusUnauthorized, route, "unauthorized")
			return
		}
		hybrid(c, svc, opts, route, customerID)
	}
}

func hybrid(c *gin.Context, svc Recommender, opts Options, route, customerID string) {
	limit, ok := opts.limit(c, route)
	if !ok {
		return
	}

	ctx, cancel := opts.withTimeout(c)
	defer cancel()

	result, err := svc.Hybrid(ctx, customerID, recommend.HybridOptions{Limit: limit})
	if err != nil {
		respondWithServiceError(c, route, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"customerId": customerID, "data": result})
}

func GetRecommendationStats(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /recommendations/stats"
		defer handlePanic(c, route)

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		stats, err := svc.Stats(ctx)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, stats)
	}
}

/* =========================
   ADMIN
========================= */

// RebuildMatrix forces a co-occurrence rebuild. It gets the rebuild budget
// rather than the request timeout.
func RebuildMatrix(svc Recommender, rebuildTimeout time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/recommendations/rebuild"
		defer handlePanic(c, route)

		ctx, cancel := Options{Timeout: rebuildTimeout}.withTimeout(c)
		defer cancel()

		stats, err := svc.RebuildMatrix(ctx)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "matrix rebuilt", "stats": stats})
	}
}

func RefreshCustomerMetrics(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/api/customers/:id/metrics/refresh"
		defer handlePanic(c, route)

		customerID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		snapshot, err := svc.RefreshMetrics(ctx, customerID)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}

func GetCustomerMetrics(svc Recommender, opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/api/customers/:id/metrics"
		defer handlePanic(c, route)

		customerID, ok := objectIDParam(c, "id", route)
		if !ok {
			return
		}

		ctx, cancel := opts.withTimeout(c)
		defer cancel()

		snapshot, err := svc.CustomerSnapshot(ctx, customerID)
		if err != nil {
			respondWithServiceError(c, route, err)
			return
		}
		c.JSON(http.StatusOK, snapshot)
	}
}
