package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/store"
)

// memOrders mimics the SQL repo's contract: Create applies conditional
// per-line decrements and inserts the order only if every line fits.
type memOrders struct {
	mu      sync.Mutex
	stock   map[string]*catalog.Product
	orders  map[string]*Order
	creates int // number of Create calls, to prove validation runs first
}

func newMemOrders(products ...*catalog.Product) *memOrders {
	m := &memOrders{stock: map[string]*catalog.Product{}, orders: map[string]*Order{}}
	for _, p := range products {
		cp := *p
		m.stock[p.ID] = &cp
	}
	return m
}

func (m *memOrders) Create(_ context.Context, o *Order, lines []catalog.Line) ([]catalog.StockConflict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creates++

	var conflicts []catalog.StockConflict
	for _, l := range lines {
		p, ok := m.stock[l.ProductID]
		if !ok || !p.InStock || p.StockQuantity < l.Quantity {
			available := 0
			if ok && p.InStock {
				available = p.StockQuantity
			}
			conflicts = append(conflicts, catalog.StockConflict{
				ProductID: l.ProductID, Requested: l.Quantity, Available: available,
			})
		}
	}
	if len(conflicts) > 0 {
		return conflicts, nil // nothing committed
	}
	for _, l := range lines {
		p := m.stock[l.ProductID]
		p.StockQuantity -= l.Quantity
		if p.StockQuantity == 0 {
			p.InStock = false
		}
	}
	cp := *o
	m.orders[o.ID] = &cp
	return nil, nil
}

func (m *memOrders) GetByID(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, store.New(store.KindNotFound, "order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) ListByUser(_ context.Context, userID string, _ int) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memOrders) ListAll(context.Context, int, int) ([]Order, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Order
	for _, o := range m.orders {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, status Status, tracking string, shippedAt, deliveredAt *time.Time) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, store.New(store.KindNotFound, "order not found")
	}
	o.Status = status
	if tracking != "" {
		o.Shipping.TrackingNumber = tracking
	}
	if shippedAt != nil {
		o.ShippedAt = shippedAt
	}
	if deliveredAt != nil {
		o.DeliveredAt = deliveredAt
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetByIDs(_ context.Context, ids []string) (map[string]*catalog.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*catalog.Product{}
	for _, id := range ids {
		if p, ok := m.stock[id]; ok {
			cp := *p
			out[id] = &cp
		}
	}
	return out, nil
}

func newCheckout(products ...*catalog.Product) (*Service, *memOrders) {
	m := newMemOrders(products...)
	return &Service{Orders: m, Ledger: m, ServiceName: "test"}, m
}

func orderPayload(items ...Item) Payload {
	subtotal := 0.0
	for i := range items {
		items[i].Total = items[i].Price * float64(items[i].Quantity)
		subtotal += items[i].Total
	}
	return Payload{
		Items: items,
		Shipping: Shipping{
			Address: Address{
				FirstName: "Jo", LastName: "Doe", Address1: "1 Main St",
				City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
			},
			Method: "standard", Cost: 0,
		},
		Billing: Address{
			FirstName: "Jo", LastName: "Doe", Address1: "1 Main St",
			City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
		},
		Payment: Payment{Method: "card"},
		Totals:  Totals{Subtotal: subtotal, Total: subtotal},
	}
}

func inStock(id string, price float64, qty int) *catalog.Product {
	return &catalog.Product{ID: id, Price: price, InStock: true, StockQuantity: qty}
}

func TestPlaceCreatesPendingOrderAndReservesStock(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 2})

	o, err := svc.Place(context.Background(), "u1", "", p)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "u1", o.UserID)
	assert.Regexp(t, `^TW-`, o.OrderNumber)

	m.mu.Lock()
	assert.Equal(t, 3, m.stock["p1"].StockQuantity)
	m.mu.Unlock()
}

func TestPlaceGuestCheckoutHasNoOwner(t *testing.T) {
	svc, _ := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1})

	o, err := svc.Place(context.Background(), "", "", p)
	require.NoError(t, err)
	assert.Empty(t, o.UserID)
}

func TestPlaceTotalsMismatchRejectedBeforeStockTouched(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 2})
	p.Totals.Subtotal = 50 // items sum to 20
	p.Totals.Total = 50

	_, err := svc.Place(context.Background(), "u1", "", p)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindBadRequest))

	m.mu.Lock()
	assert.Equal(t, 5, m.stock["p1"].StockQuantity, "no stock mutation on validation failure")
	assert.Zero(t, m.creates, "store never reached")
	m.mu.Unlock()
}

func TestPlaceInsufficientStockIsConflictWithDetails(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 1))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 3})

	_, err := svc.Place(context.Background(), "u1", "", p)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindConflict))

	var stockErr *StockError
	require.ErrorAs(t, err, &stockErr)
	require.Len(t, stockErr.Conflicts, 1)
	assert.Equal(t, "p1", stockErr.Conflicts[0].ProductID)
	assert.Equal(t, 3, stockErr.Conflicts[0].Requested)
	assert.Equal(t, 1, stockErr.Conflicts[0].Available)

	m.mu.Lock()
	assert.Equal(t, 1, m.stock["p1"].StockQuantity)
	assert.Empty(t, m.orders, "no partial orders")
	m.mu.Unlock()
}

func TestPlaceWholeOrderAbortsWhenOneLineFails(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 5), inStock("p2", 4, 0))
	m.stock["p2"].InStock = false
	p := orderPayload(
		Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1},
		Item{ProductID: "p2", ProductName: "Pot", ProductImage: "p.jpg", Price: 4, Quantity: 1},
	)

	_, err := svc.Place(context.Background(), "u1", "", p)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindConflict))

	m.mu.Lock()
	assert.Equal(t, 5, m.stock["p1"].StockQuantity, "healthy line must not be decremented")
	m.mu.Unlock()
}

func TestPlaceUnresolvableItemSkipsStockByDefault(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(
		Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1},
		Item{ProductID: "legacy-sku", ProductName: "Old Thing", ProductImage: "o.jpg", Price: 7, Quantity: 2},
	)

	o, err := svc.Place(context.Background(), "u1", "", p)
	require.NoError(t, err, "unknown references are trusted as-is by default")
	assert.Len(t, o.Items, 2, "the order still snapshots every line")

	m.mu.Lock()
	assert.Equal(t, 4, m.stock["p1"].StockQuantity)
	m.mu.Unlock()
}

func TestPlaceRequireCatalogRejectsUnknownReference(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 5))
	svc.RequireCatalog = true
	p := orderPayload(
		Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1},
		Item{ProductID: "legacy-sku", ProductName: "Old Thing", ProductImage: "o.jpg", Price: 7, Quantity: 2},
	)

	_, err := svc.Place(context.Background(), "u1", "", p)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindNotFound))

	m.mu.Lock()
	assert.Equal(t, 5, m.stock["p1"].StockQuantity)
	m.mu.Unlock()
}

func TestConcurrentPlacementLastUnitGoesToExactlyOne(t *testing.T) {
	svc, m := newCheckout(inStock("p1", 10, 1))
	payload := func() Payload {
		return orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1})
	}

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Place(context.Background(), "u1", "", payload())
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	won, lost := 0, 0
	for err := range results {
		if err == nil {
			won++
			continue
		}
		lost++
		assert.True(t, store.IsKind(err, store.KindConflict), "loser must see a Conflict, got %v", err)
		var stockErr *StockError
		assert.True(t, errors.As(err, &stockErr))
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	m.mu.Lock()
	assert.Equal(t, 0, m.stock["p1"].StockQuantity)
	assert.Len(t, m.orders, 1)
	m.mu.Unlock()
}

func TestAdminUpdateEnforcesTransitions(t *testing.T) {
	svc, _ := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1})
	o, err := svc.Place(context.Background(), "u1", "", p)
	require.NoError(t, err)

	updated, err := svc.AdminUpdateOrder(context.Background(), o.ID, AdminUpdate{Status: StatusConfirmed})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, updated.Status)

	updated, err = svc.AdminUpdateOrder(context.Background(), o.ID, AdminUpdate{Status: StatusShipped, TrackingNumber: "TRK-1"})
	require.NoError(t, err)
	assert.Equal(t, StatusShipped, updated.Status)
	assert.Equal(t, "TRK-1", updated.Shipping.TrackingNumber)
	assert.NotNil(t, updated.ShippedAt)

	_, err = svc.AdminUpdateOrder(context.Background(), o.ID, AdminUpdate{Status: StatusPending})
	require.Error(t, err, "orders never reopen")
	assert.True(t, store.IsKind(err, store.KindConflict))
}

func TestGetEnforcesOwnership(t *testing.T) {
	svc, _ := newCheckout(inStock("p1", 10, 5))
	p := orderPayload(Item{ProductID: "p1", ProductName: "Mug", ProductImage: "m.jpg", Price: 10, Quantity: 1})
	o, err := svc.Place(context.Background(), "u1", "", p)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), o.ID, "u1", false)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), o.ID, "someone-else", false)
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindForbidden))

	_, err = svc.Get(context.Background(), o.ID, "someone-else", true)
	require.NoError(t, err, "admins can read any order")
}
