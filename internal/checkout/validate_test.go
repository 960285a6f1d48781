package checkout

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tealwick/storefront/internal/store"
)

func validPayload() Payload {
	return Payload{
		Items: []Item{
			{ProductID: "p1", ProductName: "Mug", ProductImage: "mug.jpg", Price: 10, Quantity: 2, Total: 20},
			{ProductID: "p2", ProductName: "Pot", ProductImage: "pot.jpg", Price: 4, Quantity: 1, Total: 4},
		},
		Shipping: Shipping{
			Address: Address{
				FirstName: "Jo", LastName: "Doe", Address1: "1 Main St",
				City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
			},
			Method: "standard", Cost: 5,
		},
		Billing: Address{
			FirstName: "Jo", LastName: "Doe", Address1: "1 Main St",
			City: "Springfield", State: "IL", PostalCode: "62701", Country: "US",
		},
		Payment: Payment{Method: "card"},
		Totals:  Totals{Subtotal: 24, Shipping: 5, Tax: 2, Discount: 1, Total: 30},
	}
}

func TestValidPayloadPasses(t *testing.T) {
	p := validPayload()
	require.NoError(t, p.Validate())
}

func TestSubtotalMismatchRejected(t *testing.T) {
	p := validPayload()
	p.Totals.Subtotal = 50 // items sum to 24
	p.Totals.Total = 56

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindBadRequest))
	assert.Contains(t, err.Error(), "subtotal mismatch")
}

func TestTotalMismatchRejected(t *testing.T) {
	p := validPayload()
	p.Totals.Total = 35 // should be 24+5+2-1 = 30

	err := p.Validate()
	require.Error(t, err)
	assert.True(t, store.IsKind(err, store.KindBadRequest))
	assert.Contains(t, err.Error(), "total mismatch")
}

func TestToleranceAbsorbsRounding(t *testing.T) {
	p := validPayload()
	p.Totals.Subtotal = 24.009
	p.Totals.Total = 30.009
	require.NoError(t, p.Validate(), "sub-cent drift is within tolerance")

	p.Totals.Subtotal = 24.02
	p.Totals.Total = 30.02
	err := p.Validate()
	require.Error(t, err, "more than a cent off is a mismatch")
}

func TestStructuralFieldErrors(t *testing.T) {
	p := validPayload()
	p.Items[0].Quantity = 0
	p.Shipping.City = ""
	p.Payment.Method = ""

	err := p.Validate()
	require.Error(t, err)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Equal(t, store.KindBadRequest, se.Kind)
	assert.Contains(t, se.Fields, "items[0].quantity")
	assert.Contains(t, se.Fields, "shipping.city")
	assert.Contains(t, se.Fields, "payment.method")
}

func TestEmptyItemsRejected(t *testing.T) {
	p := validPayload()
	p.Items = nil
	err := p.Validate()
	require.Error(t, err)
	var se *store.Error
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Fields, "items")
}

func TestOrderNumberFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^TW-[0-9A-Z]+-[0-9A-F]{8}$`)
	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n := GenerateNumber()
		assert.Regexp(t, pattern, n)
		assert.False(t, seen[n], "order numbers must not repeat")
		seen[n] = true
	}
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusPending, StatusConfirmed))
	assert.True(t, CanTransition(StatusProcessing, StatusShipped))
	assert.True(t, CanTransition(StatusShipped, StatusDelivered))
	assert.False(t, CanTransition(StatusDelivered, StatusPending), "terminal states never reopen")
	assert.False(t, CanTransition(StatusRefunded, StatusConfirmed))
	assert.False(t, CanTransition(StatusPending, StatusDelivered), "no skipping the shipment step")
}
