package cart

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const durableWriteTimeout = 5 * time.Second

// ErrNoOwner is returned when neither a user id nor a session id is known.
var ErrNoOwner = errors.New("cart owner requires a user id or session id")

// Service loads carts from the durable store or the local cache and mirrors mutations back.
// Mutations are applied in memory first, then written to the local cache and, for a signed-in
// owner, to the durable store before the call returns. A later Load therefore never reads a
// durable state older than the caller's own last change. Write failures are logged and never
// reach the caller.
type Service struct {
	durable DurableStore
	local   LocalCache
	log     logrus.FieldLogger
	group   singleflight.Group
}

// NewService wires the stores. Either store may be nil.
func NewService(durable DurableStore, local LocalCache, log logrus.FieldLogger) *Service {
	return &Service{durable: durable, local: local, log: log}
}

// Load hydrates the owner's cart. A non-empty durable result replaces the local copy; an empty
// one falls back to the local cache.
func (s *Service) Load(ctx context.Context, owner Owner) (*Cart, error) {
	if owner.UserID == "" && owner.SessionID == "" {
		return nil, ErrNoOwner
	}
	v, err, _ := s.group.Do(owner.key(), func() (any, error) {
		return s.hydrate(ctx, owner), nil
	})
	if err != nil {
		return nil, err
	}
	// callers mutate the result, so never hand out the shared value
	return v.(*Cart).Clone(), nil
}

func (s *Service) hydrate(ctx context.Context, owner Owner) *Cart {
	log := s.log.WithFields(logrus.Fields{"user_id": owner.UserID, "session_id": owner.SessionID})

	if owner.Authenticated() && s.durable != nil {
		items, err := s.durable.Load(ctx, owner.UserID)
		if err != nil {
			log.WithError(err).Warn("durable cart load failed, using local cache")
		} else if len(items) > 0 {
			c := New(items)
			s.writeLocal(ctx, owner, c)
			return c
		}
	}

	if s.local == nil || owner.SessionID == "" {
		return New(nil)
	}
	items, err := s.local.Get(ctx, owner.SessionID)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			log.WithError(err).Warn("local cart load failed")
		}
		return New(nil)
	}
	return New(items)
}

// AddItem adds one unit of item.
func (s *Service) AddItem(ctx context.Context, owner Owner, item LineItem) (*Cart, error) {
	c, err := s.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.AddItem(item)
	line, _ := c.Line(item.ProductID)
	s.mirror(ctx, owner, c, "cart.put", func(ctx context.Context) error {
		return s.durable.Put(ctx, owner.UserID, line)
	})
	return c, nil
}

// RemoveItem drops a line.
func (s *Service) RemoveItem(ctx context.Context, owner Owner, productID string) (*Cart, error) {
	c, err := s.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	c.RemoveItem(productID)
	s.mirror(ctx, owner, c, "cart.delete", func(ctx context.Context) error {
		return s.durable.Delete(ctx, owner.UserID, productID)
	})
	return c, nil
}

// UpdateQuantity sets a line's quantity; 0 or less removes it.
func (s *Service) UpdateQuantity(ctx context.Context, owner Owner, productID string, quantity int) (*Cart, error) {
	c, err := s.Load(ctx, owner)
	if err != nil {
		return nil, err
	}
	if _, ok := c.Line(productID); !ok {
		return c, nil
	}
	c.UpdateQuantity(productID, quantity)
	line, ok := c.Line(productID)
	s.mirror(ctx, owner, c, "cart.quantity", func(ctx context.Context) error {
		if !ok {
			return s.durable.Delete(ctx, owner.UserID, productID)
		}
		return s.durable.Put(ctx, owner.UserID, line)
	})
	return c, nil
}

// Clear empties the cart everywhere.
func (s *Service) Clear(ctx context.Context, owner Owner) error {
	if owner.UserID == "" && owner.SessionID == "" {
		return ErrNoOwner
	}
	c := New(nil)
	s.mirror(ctx, owner, c, "cart.clear", func(ctx context.Context) error {
		return s.durable.Clear(ctx, owner.UserID)
	})
	return nil
}

func (s *Service) mirror(ctx context.Context, owner Owner, c *Cart, name string, durable func(context.Context) error) {
	s.writeLocal(ctx, owner, c)
	if !owner.Authenticated() || s.durable == nil {
		return
	}
	// a dropped request must not leave the durable copy behind the local one
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), durableWriteTimeout)
	defer cancel()
	if err := durable(ctx); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{"user_id": owner.UserID, "op": name}).Warn("durable cart write failed")
	}
}

func (s *Service) writeLocal(ctx context.Context, owner Owner, c *Cart) {
	if s.local == nil || owner.SessionID == "" {
		return
	}
	if err := s.local.Set(ctx, owner.SessionID, c.Items); err != nil {
		s.log.WithError(err).WithField("session_id", owner.SessionID).Warn("local cart write failed")
	}
}
