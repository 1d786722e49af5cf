package cart

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned by LocalCache.Get when nothing is cached for the session.
var ErrCacheMiss = errors.New("cache miss")

// DurableStore is the per-user source of truth for authenticated carts.
type DurableStore interface {
	Load(ctx context.Context, userID string) ([]LineItem, error)
	Put(ctx context.Context, userID string, item LineItem) error
	Delete(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
}

// LocalCache is the per-session fallback used for anonymous carts and as a mirror of the
// durable store.
type LocalCache interface {
	Get(ctx context.Context, sessionID string) ([]LineItem, error)
	Set(ctx context.Context, sessionID string, items []LineItem) error
	Delete(ctx context.Context, sessionID string) error
}

// Owner identifies whose cart is being read or written.
type Owner struct {
	UserID    string
	SessionID string
}

// Authenticated reports whether the owner has a user id.
func (o Owner) Authenticated() bool { return o.UserID != "" }

func (o Owner) key() string { return "u:" + o.UserID + "|s:" + o.SessionID }
