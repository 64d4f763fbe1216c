package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/recommend"
)

func handlePanic(c *gin.Context, route string) {
	if r := recover(); r != nil {
		zap.L().Error("panic recovered", zap.String("route", route), zap.Any("panic", r))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func respondWithError(c *gin.Context, status int, route string, message string) {
	zap.L().Warn("returning error",
		zap.String("route", route),
		zap.Int("status", status),
		zap.String("message", message),
	)
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondWithServiceError maps recommendation errors onto HTTP statuses.
func respondWithServiceError(c *gin.Context, route string, err error) {
	_ = c.Error(err)
	switch {
	case errors.Is(err, recommend.ErrInvalidInput):
		respondWithError(c, http.StatusBadRequest, route, err.Error())
	case errors.Is(err, recommend.ErrNotFound):
		respondWithError(c, http.StatusNotFound, route, err.Error())
	case errors.Is(err, recommend.ErrServiceUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		respondWithError(c, http.StatusServiceUnavailable, route, "recommendations temporarily unavailable")
	default:
		respondWithError(c, http.StatusInternalServerError, route, "internal server error")
	}
}
