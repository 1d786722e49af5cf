package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-checkout/internal/shipping"
)

// RegisterShippingRoutes registers GET /shipping/quote?state=&city=&postal_code=.
func RegisterShippingRoutes(r *gin.Engine) {
	r.GET("/shipping/quote", func(c *gin.Context) {
		q := shipping.QuoteFor(c.Query("state"), c.Query("city"), c.Query("postal_code"))
		c.JSON(http.StatusOK, gin.H{
			"destination": q.Destination,
			"postal_code": q.PostalCode,
			"fee":         q.Fee,
			"deliverable": q.Destination.Known(),
		})
	})
}
