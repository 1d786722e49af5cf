// Package handlers exposes the checkout, cart, order and address APIs over gin.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/go-storefront-checkout/internal/addresses"
	"github.com/imrishuroy/go-storefront-checkout/internal/apperr"
	"github.com/imrishuroy/go-storefront-checkout/internal/cart"
	"github.com/imrishuroy/go-storefront-checkout/internal/middleware"
	"github.com/imrishuroy/go-storefront-checkout/internal/orders"
	"github.com/imrishuroy/go-storefront-checkout/internal/reconcile"
	"github.com/imrishuroy/go-storefront-checkout/internal/validation"
)

// Reconciler verifies payments and records orders.
type Reconciler interface {
	Verify(ctx context.Context, req reconcile.Request) (*reconcile.Result, error)
}

// CartService loads and mutates carts.
type CartService interface {
	Load(ctx context.Context, owner cart.Owner) (*cart.Cart, error)
	AddItem(ctx context.Context, owner cart.Owner, item cart.LineItem) (*cart.Cart, error)
	RemoveItem(ctx context.Context, owner cart.Owner, productID string) (*cart.Cart, error)
	UpdateQuantity(ctx context.Context, owner cart.Owner, productID string, quantity int) (*cart.Cart, error)
	Clear(ctx context.Context, owner cart.Owner) error
}

// OrderReader looks orders up.
type OrderReader interface {
	FindByID(ctx context.Context, id string) (*orders.Order, error)
	ListForUser(ctx context.Context, userID string, limit int) ([]*orders.Order, error)
}

// AddressStore saves addresses.
type AddressStore interface {
	UpsertDefault(ctx context.Context, a addresses.Address) (*addresses.Address, error)
	ListForUser(ctx context.Context, userID string) ([]*addresses.Address, error)
}

// HandlerConfig groups dependencies for the route handlers. A nil store disables its routes.
type HandlerConfig struct {
	JWTSecret            string
	AllowAnonymousVerify bool
	Validator            *validatorv10.Validate
	Reconciler           Reconciler
	Cart                 CartService
	Orders               OrderReader
	Addresses            AddressStore
	Log                  logrus.FieldLogger
}

// RegisterRoutes mounts every API route on r.
func RegisterRoutes(r *gin.Engine, cfg HandlerConfig) {
	if cfg.Validator == nil {
		cfg.Validator = validation.New()
	}
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	RegisterShippingRoutes(r)
	if cfg.Reconciler != nil {
		RegisterCheckoutRoutes(r, cfg)
	}
	if cfg.Cart != nil {
		RegisterCartRoutes(r, cfg)
	}
	if cfg.Orders != nil {
		RegisterOrdersRoutes(r, cfg)
	}
	if cfg.Addresses != nil {
		RegisterAddressRoutes(r, cfg)
	}
}

// respondError renders err as {error} with the status its kind maps to.
func respondError(c *gin.Context, log logrus.FieldLogger, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{"error": apperr.Message(err)}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		if len(ae.Fields) > 0 {
			body["fields"] = ae.Fields
		}
	} else {
		// unclassified errors do not leak internals
		body["error"] = "Internal server error"
	}
	if status >= http.StatusInternalServerError {
		middleware.Logger(c, log).WithError(err).Error("request failed")
	}
	c.JSON(status, body)
}
