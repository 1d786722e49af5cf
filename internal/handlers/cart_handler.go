package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

func cartBody(c *cart.Cart) gin.H {
	return gin.H{"items": c.Items, "total": c.Total(), "item_count": c.ItemCount()}
}

func owner(c *gin.Context) cart.Owner {
	return cart.Owner{UserID: middleware.UserID(c), SessionID: middleware.SessionID(c)}
}

// RegisterCartRoutes registers the cart endpoints. Carts belong to the signed-in user when a
// token is present and to the X-Session-ID session otherwise.
func RegisterCartRoutes(r *gin.Engine, cfg HandlerConfig) {
	g := r.Group("/cart", middleware.Session(), middleware.OptionalAuth(cfg.JWTSecret))

	fail := func(c *gin.Context, err error) {
		if errors.Is(err, cart.ErrNoOwner) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		respondError(c, cfg.Log, err)
	}

	g.GET("", func(c *gin.Context) {
		ct, err := cfg.Cart.Load(c.Request.Context(), owner(c))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cartBody(ct))
	})

	g.POST("/items", func(c *gin.Context) {
		var req validation.AddItemRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ct, err := cfg.Cart.AddItem(c.Request.Context(), owner(c), cart.LineItem{
			ProductID:  req.ID,
			Name:       req.Name,
			UnitPrice:  req.Price,
			ImageRef:   req.ImageURL,
			CategoryID: req.CategoryID,
		})
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cartBody(ct))
	})

	g.PATCH("/items/:product_id", func(c *gin.Context) {
		var req validation.UpdateQuantityRequest
		if err := validation.BindAndValidate(c, &req, cfg.Validator); err != nil {
			return
		}
		ct, err := cfg.Cart.UpdateQuantity(c.Request.Context(), owner(c), c.Param("product_id"), *req.Quantity)
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cartBody(ct))
	})

	g.DELETE("/items/:product_id", func(c *gin.Context) {
		ct, err := cfg.Cart.RemoveItem(c.Request.Context(), owner(c), c.Param("product_id"))
		if err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cartBody(ct))
	})

	g.DELETE("", func(c *gin.Context) {
		if err := cfg.Cart.Clear(c.Request.Context(), owner(c)); err != nil {
			fail(c, err)
			return
		}
		c.JSON(http.StatusOK, cartBody(cart.New(nil)))
	})
}
