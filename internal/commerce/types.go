package commerce

import "encoding/json"

// OrderPayload is the caller-supplied order body (cart contents, delivery
// address, chosen payment method). The client treats it as opaque bytes and
// forwards it verbatim; byte-identical payloads are what the idempotency
// token hashes over.
type OrderPayload = json.RawMessage

// PaymentStatus is the status vocabulary reported by the payment tracking
// endpoint. The set is closed on our side but the server may grow it, so
// anything unlisted classifies as transient rather than fatal.
type PaymentStatus string

const (
	StatusPaid        PaymentStatus = "paid"
	StatusSuccess     PaymentStatus = "success"
	StatusSBPRequired PaymentStatus = "sbp_required"
	StatusSBP         PaymentStatus = "sbp"
	StatusPending     PaymentStatus = "pending"
	StatusProcessing  PaymentStatus = "processing"
	StatusFailed      PaymentStatus = "failed"
	StatusCancelled   PaymentStatus = "cancelled"
	StatusError       PaymentStatus = "error"
)

// StatusClass collapses the status vocabulary into the buckets the
// reconciliation loop actually acts on.
type StatusClass int

const (
	ClassUnknown StatusClass = iota
	ClassSucceeded
	ClassBankHandoff
	ClassInFlight
	ClassFailed
)

// Class maps a reported status onto its reconciliation bucket. "success" is
// an alias of "paid" and "sbp" of "sbp_required"; both aliases appear in the
// wild.
func (s PaymentStatus) Class() StatusClass {
	switch s {
	case StatusPaid, StatusSuccess:
		return ClassSucceeded
	case StatusSBPRequired, StatusSBP:
		return ClassBankHandoff
	case StatusPending, StatusProcessing:
		return ClassInFlight
	case StatusFailed, StatusCancelled, StatusError:
		return ClassFailed
	default:
		return ClassUnknown
	}
}

// CreateOrderResult is the decoded order-creation response plus the HTTP
// status it arrived with. Decoding is best-effort: a malformed body leaves
// the fields empty and the caller classifies that as a rejection.
type CreateOrderResult struct {
	HTTPStatus int
	OrderNr    string `json:"order_nr"`
	Message    string `json:"message"`
	Err        string `json:"err"`
}

// ErrorText returns the server-provided rejection message, preferring the
// "message" field over "err".
func (r *CreateOrderResult) ErrorText() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Err
}

// TrackingResponse is one payment-tracking poll result. Raw keeps the full
// response body so a success outcome can hand the untouched payload to the
// caller.
type TrackingResponse struct {
	Order              *TrackedOrder       `json:"order"`
	TransparentPayment *TransparentPayment `json:"transparentPayment"`

	Raw json.RawMessage `json:"-"`
}

type TrackedOrder struct {
	Description string       `json:"description"`
	Payment     *PaymentInfo `json:"payment"`
}

type PaymentInfo struct {
	Status       PaymentStatus   `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Payload      *PaymentPayload `json:"payload"`
}

// PaymentPayload carries the bank-transfer redirect target when the status
// asks for a handoff.
type PaymentPayload struct {
	URL string `json:"url"`
}

// TransparentPayment nests the free-text screen description some responses
// carry for the waiting UI.
type TransparentPayment struct {
	Screen *TransparentScreen `json:"screen"`
}

type TransparentScreen struct {
	Text *TransparentText `json:"text"`
}

type TransparentText struct {
	Text string `json:"text"`
}

// Status returns the reported payment status, or "" when the payment
// sub-object is absent.
func (t *TrackingResponse) Status() PaymentStatus {
	if t == nil || t.Order == nil || t.Order.Payment == nil {
		return ""
	}
	return t.Order.Payment.Status
}

// BankLink returns the bank-transfer redirect target, if any.
func (t *TrackingResponse) BankLink() string {
	if t == nil || t.Order == nil || t.Order.Payment == nil || t.Order.Payment.Payload == nil {
		return ""
	}
	return t.Order.Payment.Payload.URL
}

// ErrorMessage returns the server-provided failure message, if any.
func (t *TrackingResponse) ErrorMessage() string {
	if t == nil || t.Order == nil || t.Order.Payment == nil {
		return ""
	}
	return t.Order.Payment.ErrorMessage
}

// ProgressText returns the best human-readable progress line in the
// response: the transparent-payment screen text when present, else the
// order-level description, else "".
func (t *TrackingResponse) ProgressText() string {
	if t == nil {
		return ""
	}
	if tp := t.TransparentPayment; tp != nil && tp.Screen != nil && tp.Screen.Text != nil && tp.Screen.Text.Text != "" {
		return tp.Screen.Text.Text
	}
	if t.Order != nil {
		return t.Order.Description
	}
	return ""
}

// PromocodeResult is the outcome of applying a promocode to the current
// cart.
type PromocodeResult struct {
	OK      bool
	Message string
	Raw     json.RawMessage
}
