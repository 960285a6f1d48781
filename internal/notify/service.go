package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/tealwick/storefront/internal/checkout"
	kafkax "github.com/tealwick/storefront/internal/kafka"
	"github.com/tealwick/storefront/internal/redisx"
)

// Mailer is the external transactional-email collaborator. Only the handoff
// contract lives here; template rendering and delivery are someone else's
// problem.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, p checkout.OrderCreatedPayload) error
}

// LogMailer is the default Mailer: it records the handoff and nothing more.
type LogMailer struct{}

func (LogMailer) SendOrderConfirmation(_ context.Context, p checkout.OrderCreatedPayload) error {
	log.Printf("order confirmation queued: order=%s number=%s total=%.2f", p.OrderID, p.OrderNumber, p.Total)
	return nil
}

type Service struct {
	Redis       *redis.Client
	Mailer      Mailer
	ServiceName string
}

// HandleOrderCreated consumes order.created events. Delivery is at-least-
// once, so a dedup key per event id keeps retried messages from producing
// duplicate confirmations.
func (s *Service) HandleOrderCreated(ctx context.Context, m kafkago.Message) error {
	var env checkout.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		log.Printf("drop malformed event: %v", err)
		return nil // malformed forever, do not redeliver
	}
	if env.EventType != checkout.EventOrderCreated {
		return nil
	}
	payload, err := kafkax.UnwrapPayload[checkout.OrderCreatedPayload](env.Payload)
	if err != nil {
		log.Printf("drop malformed payload: %v", err)
		return nil
	}

	key := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	fresh, err := redisx.SetNX(ctx, s.Redis, key, redisx.TTLDedup)
	if err != nil {
		return err
	}
	if !fresh {
		return nil // already handled
	}

	if err := s.Mailer.SendOrderConfirmation(ctx, payload); err != nil {
		// release the dedup slot so the retry can run
		_ = s.Redis.Del(ctx, key).Err()
		return err
	}
	return nil
}
