package cart

import (
	"time"

	"github.com/tealwick/storefront/internal/catalog"
	"github.com/tealwick/storefront/internal/store"
)

type Strategy string

const (
	// StrategyLocal replaces the server cart with the client snapshot.
	StrategyLocal Strategy = "local"
	// StrategyServer keeps the server cart untouched.
	StrategyServer Strategy = "server"
	// StrategyMerge reconciles per item; the default.
	StrategyMerge Strategy = "merge"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyLocal, StrategyServer, StrategyMerge:
		return Strategy(s), nil
	case "":
		return StrategyMerge, nil
	}
	return "", store.Newf(store.KindBadRequest, "unknown merge strategy %q", s)
}

// Conflict records a quantity disagreement between the client snapshot and
// the server cart, and which side the kept quantity came from.
type Conflict struct {
	ItemID         string `json:"itemId"`
	LocalQuantity  int    `json:"localQuantity"`
	ServerQuantity int    `json:"serverQuantity"`
	Resolution     string `json:"resolution"` // local | server | combined
}

// ResolveFunc answers whether a product reference is still sellable. It must
// return a store error of kind NotFound when the product vanished.
type ResolveFunc func(productID string) (*catalog.Product, error)

// Merge reconciles a client-held snapshot against the server's items.
//
// Server items seed the result. A client item matching by ID resolves the
// conflict with the greater quantity, never the sum: summing would
// double-count items the client already saw persisted, and max keeps the
// operation idempotent across retried syncs. Price, name and image always
// come from the server copy since the client's may be stale. A client item
// unknown to the server is validated against the catalog; a vanished or
// delisted product is dropped silently so it cannot block the rest of the
// merge.
func Merge(server, local []Item, resolve ResolveFunc, now time.Time) ([]Item, []Conflict, error) {
	merged := make([]Item, len(server))
	copy(merged, server)

	var conflicts []Conflict
	for _, localItem := range local {
		idx := -1
		for i := range merged {
			if merged[i].ID == localItem.ID {
				idx = i
				break
			}
		}
		if idx >= 0 {
			serverItem := merged[idx]
			localQty, serverQty := localItem.Quantity, serverItem.Quantity

			final := max(localQty, serverQty)
			serverItem.Quantity = final
			serverItem.UpdatedAt = now
			merged[idx] = serverItem

			if localQty != serverQty {
				resolution := "combined"
				switch final {
				case localQty:
					resolution = "local"
				case serverQty:
					resolution = "server"
				}
				conflicts = append(conflicts, Conflict{
					ItemID:         localItem.ID,
					LocalQuantity:  localQty,
					ServerQuantity: serverQty,
					Resolution:     resolution,
				})
			}
			continue
		}

		p, err := resolve(localItem.ProductID)
		if err != nil {
			if store.IsKind(err, store.KindNotFound) {
				continue
			}
			return nil, nil, err
		}
		if !p.Sellable() {
			continue
		}
		localItem.CreatedAt = now
		localItem.UpdatedAt = now
		merged = append(merged, localItem)
	}
	return merged, conflicts, nil
}
