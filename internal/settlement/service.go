package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-commerce-core/internal/commerce"
	kafkax "github.com/ariefcatur/go-commerce-core/internal/kafka"
	"github.com/ariefcatur/go-commerce-core/internal/redisx"
	"github.com/ariefcatur/go-commerce-core/internal/store"
)

// Service moves seller receivables to available balance once an order is
// paid. It consumes OrderPaid events and drives Manager.Transfer; the
// transfer itself is idempotent so redelivery is harmless.
type Service struct {
	Store       store.Store
	Manager     *commerce.Manager
	Redis       *redis.Client
	Producer    *kafkax.Producer // publishes OrderTransferred
	ServiceName string
}

// HandleOrderPaid is mounted as the consumer handler.
func (s *Service) HandleOrderPaid(ctx context.Context, m kafkago.Message) error {
	var env commerce.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != commerce.EventOrderPaid {
		return nil // ignore
	}

	// dedup via Redis on event_id
	dkey := fmt.Sprintf(redisx.KeyDedup, "settlement", env.EventID)
	won, err := redisx.SetOnce(ctx, s.Redis, dkey, redisx.TTLDedup)
	if err == nil && !won {
		return nil
	}

	p, err := kafkax.UnwrapPayload[commerce.OrderPaidPayload](env.Payload)
	if err != nil {
		return err
	}

	order, _, err := commerce.GetOrder(ctx, s.Store, p.OrderID)
	if err != nil {
		s.releaseDedup(ctx, dkey)
		return fmt.Errorf("load order %s: %w", p.OrderID, err)
	}

	if err := s.Manager.Transfer(ctx, order); err != nil {
		// Status and amount problems never fix themselves on retry, only
		// infrastructure errors are worth redelivering.
		switch commerce.KindOf(err) {
		case commerce.KindInvalidStatus, commerce.KindInvalidAmount, commerce.KindInvalidArgument:
			log.Printf("settlement: skip order %s: %v", order.ID, err)
			return nil
		}
		// give the claim back so the kafka redelivery retries the transfer
		s.releaseDedup(ctx, dkey)
		return err
	}

	s.publishTransferred(order, env.TraceID)
	return nil
}

func (s *Service) releaseDedup(ctx context.Context, key string) {
	if err := s.Redis.Del(ctx, key).Err(); err != nil {
		log.Printf("settlement: release dedup %s: %v", key, err)
	}
}

func (s *Service) publishTransferred(order *commerce.Order, trace string) {
	if s.Producer == nil {
		return
	}
	ev := commerce.Envelope{
		EventID:       uuid.NewString(),
		EventType:     commerce.EventOrderTransferred,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		TraceID:       trace,
		CorrelationID: order.ID,
		Payload: kafkax.MustMarshal(commerce.OrderTransferredPayload{
			OrderID:  order.ID,
			SellerID: order.SellerID,
			Currency: order.Currency,
			Amount:   order.Amount,
		}),
	}
	s.Producer.Publish(commerce.PartitionKey(order.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(commerce.EventOrderTransferred)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
