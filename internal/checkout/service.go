package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/tealwick/storefront/internal/catalog"
	kafkax "github.com/tealwick/storefront/internal/kafka"
	"github.com/tealwick/storefront/internal/store"
)

// OrderStore persists orders; Create must reserve stock and insert the
// order atomically.
type OrderStore interface {
	Create(ctx context.Context, o *Order, lines []catalog.Line) ([]catalog.StockConflict, error)
	GetByID(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Order, error)
	ListAll(ctx context.Context, page, limit int) ([]Order, int, error)
	UpdateStatus(ctx context.Context, id string, status Status, trackingNumber string, shippedAt, deliveredAt *time.Time) (*Order, error)
}

// Ledger resolves product references for the availability pre-check.
type Ledger interface {
	GetByIDs(ctx context.Context, ids []string) (map[string]*catalog.Product, error)
}

// Publisher is the outbound event feed; *kafka.Producer satisfies it.
type Publisher interface {
	Publish(key, value []byte, headers ...kafkago.Header)
}

// StockError carries the per-item availability details of a Conflict so the
// client can re-fetch exactly what ran out.
type StockError struct {
	Conflicts []catalog.StockConflict
}

func (e *StockError) Error() string {
	return fmt.Sprintf("insufficient stock for %d item(s)", len(e.Conflicts))
}

type Service struct {
	Orders   OrderStore
	Ledger   Ledger
	Producer Publisher
	// RequireCatalog rejects lines whose product reference does not resolve.
	// Off by default: unresolvable references (legacy and externally sourced
	// items) skip stock enforcement and are trusted as-is.
	RequireCatalog bool
	ServiceName    string
}

// Place converts a checkout payload into an immutable order.
//
// Validation runs first and touches no stock. The availability pre-check is
// advisory: it produces an early, detailed Conflict but the conditional
// decrement inside OrderStore.Create is the authority, so a concurrent
// order that grabbed the same units between the two steps still fails this
// one cleanly.
func (s *Service) Place(ctx context.Context, userID, traceID string, p Payload) (*Order, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(p.Items))
	for _, it := range p.Items {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Ledger.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	var conflicts []catalog.StockConflict
	lines := make([]catalog.Line, 0, len(p.Items))
	for _, it := range p.Items {
		prod, ok := products[it.ProductID]
		if !ok {
			if s.RequireCatalog {
				return nil, store.Newf(store.KindNotFound, "unknown product %s", it.ProductID)
			}
			continue // compatibility allowance: trusted as-is
		}
		if !prod.InStock || prod.StockQuantity < it.Quantity {
			available := prod.StockQuantity
			if !prod.InStock {
				available = 0
			}
			conflicts = append(conflicts, catalog.StockConflict{
				ProductID: it.ProductID, Requested: it.Quantity, Available: available,
			})
			continue
		}
		lines = append(lines, catalog.Line{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	if len(conflicts) > 0 {
		return nil, store.Wrap(store.KindConflict, "insufficient stock", &StockError{Conflicts: conflicts})
	}

	payment := p.Payment
	if payment.Status == "" {
		payment.Status = PaymentPending
	}
	o := &Order{
		ID:          uuid.NewString(),
		OrderNumber: GenerateNumber(),
		UserID:      userID,
		Status:      StatusPending,
		Items:       p.Items,
		Shipping:    p.Shipping,
		Billing:     p.Billing,
		Payment:     payment,
		Totals:      p.Totals,
		Notes:       p.Notes,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}

	lost, err := s.Orders.Create(ctx, o, lines)
	if err != nil {
		return nil, err
	}
	if len(lost) > 0 {
		return nil, store.Wrap(store.KindConflict, "insufficient stock", &StockError{Conflicts: lost})
	}

	s.publishCreated(o, traceID)
	return o, nil
}

func (s *Service) publishCreated(o *Order, traceID string) {
	if s.Producer == nil {
		return
	}
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCreated,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       traceID,
		CorrelationID: o.ID,
	}
	ev.Payload = kafkax.MustMarshal(OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		ItemCount:   len(o.Items),
		Total:       o.Totals.Total,
	})
	s.Producer.Publish(PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(EventOrderCreated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

// Get enforces ownership: an order is visible to the identity that placed
// it and to admin roles.
func (s *Service) Get(ctx context.Context, id, requesterID string, requesterIsAdmin bool) (*Order, error) {
	o, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !requesterIsAdmin && (o.UserID == "" || o.UserID != requesterID) {
		return nil, store.New(store.KindForbidden, "forbidden")
	}
	return o, nil
}

func (s *Service) ListMine(ctx context.Context, userID string) ([]Order, error) {
	return s.Orders.ListByUser(ctx, userID, 100)
}

func (s *Service) AdminList(ctx context.Context, page, limit int) ([]Order, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	return s.Orders.ListAll(ctx, page, limit)
}

type AdminUpdate struct {
	Status         Status `json:"status,omitempty"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

// AdminUpdateOrder applies the bounded status transition plus shipment
// metadata; nothing else on an order is mutable.
func (s *Service) AdminUpdateOrder(ctx context.Context, id string, upd AdminUpdate) (*Order, error) {
	o, err := s.Orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	status := o.Status
	var shippedAt, deliveredAt *time.Time
	if upd.Status != "" && upd.Status != o.Status {
		if !ValidStatus(upd.Status) {
			return nil, store.Newf(store.KindBadRequest, "unknown status %q", upd.Status)
		}
		if !CanTransition(o.Status, upd.Status) {
			return nil, store.Newf(store.KindConflict, "cannot transition order from %s to %s", o.Status, upd.Status)
		}
		status = upd.Status
		now := time.Now().UTC()
		if status == StatusShipped {
			shippedAt = &now
		}
		if status == StatusDelivered {
			deliveredAt = &now
		}
	}
	return s.Orders.UpdateStatus(ctx, id, status, upd.TrackingNumber, shippedAt, deliveredAt)
}
