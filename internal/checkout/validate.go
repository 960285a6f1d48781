package checkout

import (
	"fmt"
	"math"

	"github.com/tealwick/storefront/internal/store"
)

// Tolerance absorbs floating-point rounding when checking the client's
// declared totals against the line items.
const Tolerance = 0.01

const maxNotesLen = 10000

// Payload is the checkout request body.
type Payload struct {
	Items    []Item   `json:"items"`
	Shipping Shipping `json:"shipping"`
	Billing  Address  `json:"billing"`
	Payment  Payment  `json:"payment"`
	Totals   Totals   `json:"totals"`
	Notes    string   `json:"notes,omitempty"`
}

// Validate is the boundary stage: structural checks first, then the
// arithmetic consistency of the declared totals. It runs before any stock
// is touched; a failure here is non-retryable without a corrected payload.
func (p *Payload) Validate() error {
	fields := map[string]string{}
	if len(p.Items) == 0 {
		fields["items"] = "at least one item required"
	}
	for i, it := range p.Items {
		prefix := fmt.Sprintf("items[%d].", i)
		if it.ProductID == "" {
			fields[prefix+"productId"] = "required"
		}
		if it.ProductName == "" {
			fields[prefix+"productName"] = "required"
		}
		if it.Quantity < 1 {
			fields[prefix+"quantity"] = "must be a positive integer"
		}
		if it.Price < 0 {
			fields[prefix+"price"] = "must be non-negative"
		}
	}
	checkAddress(fields, "shipping.", p.Shipping.Address)
	if p.Shipping.Method == "" {
		fields["shipping.method"] = "required"
	}
	if p.Shipping.Cost < 0 {
		fields["shipping.cost"] = "must be non-negative"
	}
	checkAddress(fields, "billing.", p.Billing)
	if p.Payment.Method == "" {
		fields["payment.method"] = "required"
	}
	switch p.Payment.Status {
	case "", PaymentPending, PaymentPaid, PaymentFailed, PaymentRefunded:
	default:
		fields["payment.status"] = "unknown payment status"
	}
	if p.Totals.Subtotal < 0 || p.Totals.Shipping < 0 || p.Totals.Tax < 0 ||
		p.Totals.Discount < 0 || p.Totals.Total < 0 {
		fields["totals"] = "all figures must be non-negative"
	}
	if len(p.Notes) > maxNotesLen {
		fields["notes"] = fmt.Sprintf("must be at most %d characters", maxNotesLen)
	}
	if len(fields) > 0 {
		return store.Invalid("invalid order payload", fields)
	}

	subtotal := 0.0
	for _, it := range p.Items {
		subtotal += it.Price * float64(it.Quantity)
	}
	if math.Abs(subtotal-p.Totals.Subtotal) > Tolerance {
		return store.New(store.KindBadRequest, "subtotal mismatch")
	}
	total := subtotal + p.Totals.Shipping + p.Totals.Tax - p.Totals.Discount
	if math.Abs(total-p.Totals.Total) > Tolerance {
		return store.New(store.KindBadRequest, "total mismatch")
	}
	return nil
}

func checkAddress(fields map[string]string, prefix string, a Address) {
	required := map[string]string{
		"firstName":  a.FirstName,
		"lastName":   a.LastName,
		"address1":   a.Address1,
		"city":       a.City,
		"state":      a.State,
		"postalCode": a.PostalCode,
		"country":    a.Country,
	}
	for name, v := range required {
		if v == "" {
			fields[prefix+name] = "required"
		}
	}
}
