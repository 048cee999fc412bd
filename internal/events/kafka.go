package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	EventOrderCreated   = "checkout.order.created"
	EventPaymentOutcome = "checkout.payment.outcome"
)

// Envelope is the event schema published to Kafka. Keep it small and stable.
type Envelope struct {
	EventType    string      `json:"eventType"`
	EventVersion string      `json:"eventVersion"`
	OccurredAt   time.Time   `json:"occurredAt"`
	AggregateID  string      `json:"aggregateId"` // order id
	Data         interface{} `json:"data"`
}

// OrderCreatedData accompanies EventOrderCreated.
type OrderCreatedData struct {
	OrderID string `json:"orderId"`
	ChatID  string `json:"chatId"`
}

// PaymentOutcomeData accompanies EventPaymentOutcome. Outcome is one of
// "succeeded", "failed", "timed_out".
type PaymentOutcomeData struct {
	OrderID      string `json:"orderId"`
	ChatID       string `json:"chatId"`
	Outcome      string `json:"outcome"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// Producer publishes checkout lifecycle events, keyed by order id so that
// consumers see per-order ordering.
type Producer struct {
	w     *kafka.Writer
	topic string
}

func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		w: kafka.NewWriter(kafka.WriterConfig{
			Brokers:  brokers,
			Balancer: &kafka.Hash{}, // partition by Kafka message key
		}),
		topic: topic,
	}
}

func (p *Producer) Close() error { return p.w.Close() }

func (p *Producer) publish(ctx context.Context, key string, evt Envelope) error {
	evt.OccurredAt = time.Now().UTC()
	val, _ := json.Marshal(evt)
	return p.w.WriteMessages(ctx, kafka.Message{
		Topic: p.topic,
		Key:   []byte(key),
		Value: val,
	})
}

func (p *Producer) PublishOrderCreated(ctx context.Context, orderID, chatID string) error {
	return p.publish(ctx, orderID, Envelope{
		EventType:    EventOrderCreated,
		EventVersion: "v1",
		AggregateID:  orderID,
		Data:         OrderCreatedData{OrderID: orderID, ChatID: chatID},
	})
}

func (p *Producer) PublishPaymentOutcome(ctx context.Context, orderID, chatID, outcome, errorMessage string) error {
	return p.publish(ctx, orderID, Envelope{
		EventType:    EventPaymentOutcome,
		EventVersion: "v1",
		AggregateID:  orderID,
		Data: PaymentOutcomeData{
			OrderID:      orderID,
			ChatID:       chatID,
			Outcome:      outcome,
			ErrorMessage: errorMessage,
		},
	})
}
