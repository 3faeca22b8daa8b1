package cart

import (
	"context"
	"hash/maphash"
	"sync"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/reboul/storefront/internal/domain/product"
	"github.com/reboul/storefront/internal/domain/stock"
	"github.com/reboul/storefront/internal/notify"
)

var (
	// ErrSessionNotFound is returned by a Store for unknown or expired sessions.
	ErrSessionNotFound = errors.New("cart session not found")
	// ErrInvalidPromo is returned when a promo code is not in the table.
	ErrInvalidPromo = errors.New("invalid promo code")
	// ErrUnavailable is returned when adding a product that is not active.
	ErrUnavailable = errors.New("product is not available")
)

// Store persists encoded cart blobs by session id.
type Store interface {
	Load(ctx context.Context, session string) ([]byte, error)
	Save(ctx context.Context, session string, blob []byte) error
	Delete(ctx context.Context, session string) error
}

// Notifier surfaces transition notices to a session.
type Notifier interface {
	Show(session, message string, severity notify.Severity) string
}

// ProductReader resolves catalog products for AddItem.
type ProductReader interface {
	GetByID(ctx context.Context, id string) (*product.Product, error)
}

const lockStripes = 64

// Service runs cart transitions for sessions: load, transition, save when
// changed, then notify. Transitions of one session never interleave.
type Service struct {
	store    Store
	notifier Notifier
	products ProductReader
	promos   PromoTable

	seed  maphash.Seed
	locks [lockStripes]sync.Mutex
}

// NewService creates a cart Service.
func NewService(store Store, notifier Notifier, products ProductReader, promos PromoTable) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		products: products,
		promos:   promos,
		seed:     maphash.MakeSeed(),
	}
}

func (s *Service) lock(session string) func() {
	mu := &s.locks[maphash.String(s.seed, session)%lockStripes]
	mu.Lock()
	return mu.Unlock
}

// Get returns the session cart. Unknown sessions yield an empty cart.
func (s *Service) Get(ctx context.Context, session string) (*Cart, error) {
	defer s.lock(session)()
	return s.load(ctx, session)
}

// AddItem adds qty units of the product in size, checking that the size
// has enough stock for the resulting cart quantity.
func (s *Service) AddItem(ctx context.Context, session, productID, size string, qty int) (*Cart, error) {
	if qty <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p.Status != product.StatusActive {
		return nil, ErrUnavailable
	}

	return s.apply(ctx, session, func(c *Cart) (Result, error) {
		if err := stock.Check(p.SizeStock, size, c.Quantity(productID, size)+qty); err != nil {
			return Result{}, err
		}
		return c.Add(SnapshotOf(p), qty, size)
	})
}

// RemoveItem drops an item from the session cart.
func (s *Service) RemoveItem(ctx context.Context, session, productID, size string) (*Cart, error) {
	return s.apply(ctx, session, func(c *Cart) (Result, error) {
		return c.Remove(productID, size), nil
	})
}

// UpdateQuantity sets the quantity of an item; zero removes it. A positive
// quantity for an item in the cart is checked against the size's stock like
// AddItem.
func (s *Service) UpdateQuantity(ctx context.Context, session, productID, size string, qty int) (*Cart, error) {
	return s.apply(ctx, session, func(c *Cart) (Result, error) {
		if qty > 0 && c.Quantity(productID, size) > 0 {
			p, err := s.products.GetByID(ctx, productID)
			if err != nil {
				return Result{}, err
			}
			if err := stock.Check(p.SizeStock, size, qty); err != nil {
				return Result{}, err
			}
		}
		return c.UpdateQuantity(productID, size, qty)
	})
}

// ApplyPromo activates a promo code. Unknown codes leave the cart as is,
// emit an error notice and return ErrInvalidPromo.
func (s *Service) ApplyPromo(ctx context.Context, session, code string) (*Cart, error) {
	var invalid bool
	c, err := s.apply(ctx, session, func(c *Cart) (Result, error) {
		res := c.ApplyPromo(code, s.promos)
		invalid = !res.Changed
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if invalid {
		return c, ErrInvalidPromo
	}
	return c, nil
}

// RemovePromo clears the promo code.
func (s *Service) RemovePromo(ctx context.Context, session string) (*Cart, error) {
	return s.apply(ctx, session, func(c *Cart) (Result, error) {
		return c.RemovePromo(), nil
	})
}

// Clear empties the session cart and forgets it.
func (s *Service) Clear(ctx context.Context, session string) error {
	defer s.lock(session)()

	c, err := s.load(ctx, session)
	if err != nil {
		return err
	}
	res := c.Clear()
	if err := s.store.Delete(ctx, session); err != nil {
		return errors.Wrap(err, "delete cart")
	}
	s.notify(session, res.Notice)
	return nil
}

func (s *Service) apply(ctx context.Context, session string, transition func(c *Cart) (Result, error)) (*Cart, error) {
	defer s.lock(session)()

	c, err := s.load(ctx, session)
	if err != nil {
		return nil, err
	}
	res, err := transition(c)
	if err != nil {
		return nil, err
	}
	if res.Changed {
		if err := s.store.Save(ctx, session, Encode(c)); err != nil {
			return nil, errors.Wrap(err, "save cart")
		}
	}
	s.notify(session, res.Notice)
	return c, nil
}

func (s *Service) load(ctx context.Context, session string) (*Cart, error) {
	blob, err := s.store.Load(ctx, session)
	if errors.Is(err, ErrSessionNotFound) {
		return &Cart{}, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	c, err := Decode(blob)
	if err != nil {
		// Unreadable blobs reset the session to an empty cart.
		zctx.From(ctx).Warn("Discarding unreadable cart", zap.String("session", session), zap.Error(err))
		return &Cart{}, nil
	}
	return c, nil
}

func (s *Service) notify(session string, n *Notice) {
	if n == nil {
		return
	}
	s.notifier.Show(session, n.Message, n.Severity)
}
