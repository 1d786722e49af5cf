package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
)

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/orders", middleware.Auth(cfg.JWTSecret))

	g.GET("", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		list, err := cfg.Orders.ListForUser(c.Request.Context(), middleware.UserID(c), limit)
		if err != nil {
			respondError(c, cfg.Log, apperr.Persistence("Failed to load orders", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": list})
	})

	g.GET("/:id", func(c *gin.Context) {
		order, err := cfg.Orders.FindByID(c.Request.Context(), c.Param("id"))
		if errors.Is(err, orders.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		if err != nil {
			respondError(c, cfg.Log, apperr.Persistence("Failed to load order", err))
			return
		}
		// other users' orders are reported as missing
		if order.UserID != middleware.UserID(c) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}

		details, err := order.Details()
		if err != nil {
			cfg.Log.WithError(err).WithField("order_id", order.ID).Warn("order products blob unreadable")
			details = &orders.Details{Order: order, Items: []orders.Item{}}
		}
		c.JSON(http.StatusOK, details)
	})
}
