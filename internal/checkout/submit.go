package checkout

import (
	"context"
	"fmt"
	"log"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
	"github.com/tg-eats/checkout-gateway/internal/idempotency"
)

// OrderCreator is the slice of the commerce client the submitter needs.
type OrderCreator interface {
	CreateOrder(ctx context.Context, chatID string, payload commerce.OrderPayload, idempotencyToken string) (*commerce.CreateOrderResult, error)
}

// Submitter issues the order-creation request exactly once per Submit call
// and classifies the response. Retries, if any, are the caller's concern;
// each retry generates a fresh token whose content segment still matches
// inside the same second.
type Submitter struct {
	api    OrderCreator
	logger *log.Logger
}

func NewSubmitter(api OrderCreator, logger *log.Logger) *Submitter {
	if logger == nil {
		logger = log.Default()
	}
	return &Submitter{api: api, logger: logger}
}

// Submit creates the order and returns its identifier. A non-200 status, a
// 200 without an order identifier, or a transport failure all come back as
// *SubmissionError.
func (s *Submitter) Submit(ctx context.Context, chatID string, payload commerce.OrderPayload) (string, error) {
	key := idempotency.Generate(payload)

	res, err := s.api.CreateOrder(ctx, chatID, payload, key.String())
	if err != nil {
		s.logger.Printf("[submit] order creation failed: %v", err)
		return "", &SubmissionError{Message: fmt.Sprintf("order creation failed: %v", err)}
	}

	if res.HTTPStatus != 200 || res.OrderNr == "" {
		msg := res.ErrorText()
		s.logger.Printf("[submit] order rejected: status=%d message=%q", res.HTTPStatus, msg)
		return "", &SubmissionError{Message: msg}
	}

	s.logger.Printf("[submit] order created: %s", res.OrderNr)
	return res.OrderNr, nil
}
