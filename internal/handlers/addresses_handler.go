package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-checkout/internal/addresses"
	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

// RegisterAddressRoutes registers the saved address endpoints.
func RegisterAddressRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/addresses", middleware.Auth(cfg.JWTSecret))

	g.GET("", func(c *gin.Context) {
		list, err := cfg.Addresses.ListForUser(c.Request.Context(), middleware.UserID(c))
		if err != nil {
			respondError(c, cfg.Log, apperr.Persistence("Failed to load addresses", err))
			return
		}
		c.JSON(http.StatusOK, gin.H{"addresses": list})
	})

	g.PUT("/default", func(c *gin.Context) {
		var a addresses.Address
		if err := validation.BindAndValidate(c, &a, cfg.Validator); err != nil {
			return
		}
		a.UserID = middleware.UserID(c)
		saved, err := cfg.Addresses.UpsertDefault(c.Request.Context(), a)
		if err != nil {
			respondError(c, cfg.Log, apperr.Persistence("Failed to save address", err))
			return
		}
		c.JSON(http.StatusOK, saved)
	})
}
