package cart

import (
	"time"

	"github.com/tealwick/storefront/internal/store"
)

// SubItem is one component of a composite (custom basket) cart item.
type SubItem struct {
	ID    string  `json:"id"`
	Name  string  `json:"name"`
	Image string  `json:"image"`
	Price float64 `json:"price"`
}

type BasketItem struct {
	Name     string `json:"name"`
	Image    string `json:"image"`
	Category string `json:"category"`
}

// Item is a denormalized snapshot of a product (plus variant selection)
// inside a cart. ID is unique within the cart and derived from product +
// variant. Price is the last value accepted from the catalog, never a
// client-supplied truth.
type Item struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"productId"`
	Name        string       `json:"name"`
	Price       float64      `json:"price"`
	Image       string       `json:"image"`
	Category    string       `json:"category"`
	Description string       `json:"description"`
	Quantity    int          `json:"quantity"`
	VariantName string       `json:"variantName,omitempty"`
	CustomItems []SubItem    `json:"customItems,omitempty"`
	BasketItems []BasketItem `json:"basketItems,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// Identity is what a cart is owned by: an authenticated user or an anonymous
// session, exactly one of the two.
type Identity struct {
	UserID    string
	SessionID string
}

func (id Identity) Valid() bool {
	return (id.UserID == "") != (id.SessionID == "")
}

type Cart struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId,omitempty"`
	SessionID    string     `json:"sessionId,omitempty"`
	Items        []Item     `json:"items"`
	TotalPrice   float64    `json:"totalPrice"`
	TotalItems   int        `json:"totalItems"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// RecomputeTotals rebuilds the derived fields from the item set. Called on
// every mutation; the totals are never settable independently.
func (c *Cart) RecomputeTotals() {
	items, price := 0, 0.0
	for _, it := range c.Items {
		items += it.Quantity
		price += it.Price * float64(it.Quantity)
	}
	c.TotalItems = items
	c.TotalPrice = price
}

func (c *Cart) findItem(itemID string) int {
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			return i
		}
	}
	return -1
}

func validateItem(it Item) error {
	fields := map[string]string{}
	if it.ID == "" {
		fields["id"] = "required"
	}
	if it.ProductID == "" {
		fields["productId"] = "required"
	}
	if it.Quantity < 1 {
		fields["quantity"] = "must be a positive integer"
	}
	if it.Price < 0 {
		fields["price"] = "must be non-negative"
	}
	if len(fields) > 0 {
		return store.Invalid("invalid cart item", fields)
	}
	return nil
}
