package cart

import (
	"context"
	"log"
	"time"

	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/store"
)

// Store is the authoritative cart persistence.
type Store interface {
	GetOrCreate(ctx context.Context, id Identity) (*Cart, error)
	Save(ctx context.Context, c *Cart) error
	DeleteBySession(ctx context.Context, sessionID string) error
}

// Ledger is the slice of the product catalog the cart needs: price and
// stock authority for item references.
type Ledger interface {
	GetByID(ctx context.Context, id string) (*catalog.Product, error)
}

type Service struct {
	Store  Store
	Ledger Ledger
	Cache  Cache
}

func (s *Service) Get(ctx context.Context, id Identity) (*Cart, error) {
	if s.Cache != nil {
		if c, err := s.Cache.Get(ctx, id); err == nil {
			return c, nil
		} else if err != ErrCacheMiss {
			log.Printf("cart cache get: %v", err)
		}
	}
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cacheSet(ctx, id, c)
	return c, nil
}

// AddItem appends the item or bumps the quantity of an existing one. The
// price stored is always the catalog's current price, whatever the client
// sent.
func (s *Service) AddItem(ctx context.Context, id Identity, item Item) (*Cart, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	p, err := s.Ledger.GetByID(ctx, item.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.Sellable() {
		return nil, store.New(store.KindBadRequest, "product out of stock")
	}
	item.Price = p.Price

	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if i := c.findItem(item.ID); i >= 0 {
		c.Items[i].Quantity += item.Quantity
		c.Items[i].Price = p.Price
		c.Items[i].UpdatedAt = now
	} else {
		item.CreatedAt = now
		item.UpdatedAt = now
		c.Items = append(c.Items, item)
	}
	return s.save(ctx, id, c)
}

// UpdateQuantity sets an item's quantity; zero removes the item.
func (s *Service) UpdateQuantity(ctx context.Context, id Identity, itemID string, quantity int) (*Cart, error) {
	if quantity < 0 {
		return nil, store.New(store.KindBadRequest, "quantity must be non-negative")
	}
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	i := c.findItem(itemID)
	if i < 0 {
		return nil, store.New(store.KindNotFound, "item not found in cart")
	}
	if quantity == 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	} else {
		c.Items[i].Quantity = quantity
		c.Items[i].UpdatedAt = time.Now().UTC()
	}
	return s.save(ctx, id, c)
}

func (s *Service) RemoveItem(ctx context.Context, id Identity, itemID string) (*Cart, error) {
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	i := c.findItem(itemID)
	if i < 0 {
		return nil, store.New(store.KindNotFound, "item not found in cart")
	}
	c.Items = append(c.Items[:i], c.Items[i+1:]...)
	return s.save(ctx, id, c)
}

func (s *Service) Clear(ctx context.Context, id Identity) (*Cart, error) {
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Items = []Item{}
	return s.save(ctx, id, c)
}

// Sync reconciles a client snapshot under the chosen strategy and stamps
// lastSyncedAt. Concurrent syncs for the same identity are not mutually
// exclusive; the max-quantity rule makes re-running them converge.
func (s *Service) Sync(ctx context.Context, id Identity, local []Item, strategy Strategy) (*Cart, []Conflict, error) {
	for _, it := range local {
		if err := validateItem(it); err != nil {
			return nil, nil, err
		}
	}
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	now := time.Now().UTC()
	var conflicts []Conflict

	switch strategy {
	case StrategyLocal:
		items := make([]Item, len(local))
		copy(items, local)
		for i := range items {
			items[i].CreatedAt = now
			items[i].UpdatedAt = now
		}
		c.Items = items
	case StrategyServer:
		// server wins, nothing to change
	default:
		merged, conf, err := Merge(c.Items, local, s.resolver(ctx), now)
		if err != nil {
			return nil, nil, err
		}
		c.Items = merged
		conflicts = conf
	}

	c.LastSyncedAt = &now
	saved, err := s.save(ctx, id, c)
	if err != nil {
		return nil, nil, err
	}
	return saved, conflicts, nil
}

// MergeGuest absorbs a guest cart into the user's cart with the same
// max-quantity reconciliation, then discards the guest cart so the session
// identifier cannot reach a duplicate. Returns the ids of newly added items.
func (s *Service) MergeGuest(ctx context.Context, userID string, guestItems []Item, sessionID string) (*Cart, []string, error) {
	for _, it := range guestItems {
		if err := validateItem(it); err != nil {
			return nil, nil, err
		}
	}
	id := Identity{UserID: userID}
	c, err := s.Store.GetOrCreate(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	before := make(map[string]bool, len(c.Items))
	for _, it := range c.Items {
		before[it.ID] = true
	}

	merged, _, err := Merge(c.Items, guestItems, s.resolver(ctx), time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}
	c.Items = merged

	var added []string
	for _, it := range merged {
		if !before[it.ID] {
			added = append(added, it.ID)
		}
	}

	saved, err := s.save(ctx, id, c)
	if err != nil {
		return nil, nil, err
	}
	if sessionID != "" {
		if err := s.Store.DeleteBySession(ctx, sessionID); err != nil {
			return nil, nil, err
		}
		s.cacheInvalidate(ctx, Identity{SessionID: sessionID})
	}
	return saved, added, nil
}

func (s *Service) resolver(ctx context.Context) ResolveFunc {
	return func(productID string) (*catalog.Product, error) {
		return s.Ledger.GetByID(ctx, productID)
	}
}

func (s *Service) save(ctx context.Context, id Identity, c *Cart) (*Cart, error) {
	c.RecomputeTotals()
	if err := s.Store.Save(ctx, c); err != nil {
		return nil, err
	}
	s.cacheInvalidate(ctx, id)
	return c, nil
}

func (s *Service) cacheSet(ctx context.Context, id Identity, c *Cart) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Set(ctx, id, c); err != nil {
		log.Printf("cart cache set: %v", err)
	}
}

func (s *Service) cacheInvalidate(ctx context.Context, id Identity) {
	if s.Cache == nil {
		return
	}
	if err := s.Cache.Invalidate(ctx, id); err != nil {
		log.Printf("cart cache invalidate: %v", err)
	}
}
