package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
)

// ReplayHeader marks a response served from an earlier verification of the same reference.
const ReplayHeader = "Idempotent-Replayed"

// RegisterCheckoutRoutes registers POST /checkout/verify. A bearer token is required unless
// AllowAnonymousVerify is set.
func RegisterCheckoutRoutes(r *gin.Engine, cfg HandlerConfig) {
	auth := middleware.Auth(cfg.JWTSecret)
	if cfg.AllowAnonymousVerify {
		auth = middleware.OptionalAuth(cfg.JWTSecret)
	}
	r.POST("/checkout/verify", auth, func(c *gin.Context) {
		var req reconcile.Request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "msg": err.Error()})
			return
		}

		// a signed-in caller may only verify for themselves
		if uid := middleware.UserID(c); uid != "" {
			if req.UserID == "" {
				req.UserID = uid
			} else if req.UserID != uid {
				c.JSON(http.StatusForbidden, gin.H{"error": "user_id does not match session"})
				return
			}
		}

		result, err := cfg.Reconciler.Verify(c.Request.Context(), req)
		if err != nil {
			respondError(c, cfg.Log, err)
			return
		}
		if result.Replayed {
			c.Header(ReplayHeader, "true")
		}
		c.JSON(http.StatusOK, result)
	})
}
