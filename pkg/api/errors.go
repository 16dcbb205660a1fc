package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/example/storefront/pkg/service"
)

// writeError maps the service error taxonomy onto HTTP. Internal errors are
// logged with full context but never detailed to the caller.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.IsInsufficientStock(err):
		var ise *service.InsufficientStockError
		errors.As(err, &ise)
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"sku":       ise.SKU,
			"available": ise.Available,
			"requested": ise.Requested,
		})
	case errors.Is(err, service.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	default:
		s.logger.Error("request failed",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
