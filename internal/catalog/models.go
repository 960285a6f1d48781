package catalog

import "time"

type Product struct {
	ID            string    `json:"id"`
	Slug          string    `json:"slug"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	Image         string    `json:"image"`
	Category      string    `json:"category"`
	InStock       bool      `json:"inStock"`
	StockQuantity int       `json:"stockQuantity"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Sellable gates what carts and orders may reference: the product must be
// listed in-stock with units remaining.
func (p *Product) Sellable() bool { return p.InStock && p.StockQuantity > 0 }

// Line is a quantity request against one product's stock counter.
type Line struct {
	ProductID string
	Quantity  int
}

// StockConflict describes one line the ledger could not cover.
type StockConflict struct {
	ProductID string `json:"productId"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}
