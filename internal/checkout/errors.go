package checkout

import "errors"

// ErrTimeout marks a reconciliation that exhausted its cycle cap without a
// definitive payment outcome. Distinct from PaymentError so callers can
// offer "check later" instead of "retry payment".
var ErrTimeout = errors.New("payment tracking timed out")

// genericPaymentFailure is the localized fallback when the server reports a
// failure without a message.
const genericPaymentFailure = "Оплата не прошла"

// genericSubmissionFailure is the localized fallback for a rejected order
// creation without a server message.
const genericSubmissionFailure = "Ошибка создания заказа"

// SubmissionError reports a rejected or malformed order-creation exchange.
// Surfaced once, synchronously; never retried here.
type SubmissionError struct {
	Message string
}

func (e *SubmissionError) Error() string {
	if e.Message == "" {
		return genericSubmissionFailure
	}
	return e.Message
}

// PaymentError is a terminal server-reported payment failure or
// cancellation, carrying the best available human-readable message.
type PaymentError struct {
	Message string
}

func (e *PaymentError) Error() string {
	if e.Message == "" {
		return genericPaymentFailure
	}
	return e.Message
}
