// Package checkout is the order submission and payment reconciliation
// engine: it creates an order against the commerce API exactly once, then
// polls the payment status until it resolves into success, failure, or
// timeout, dispatching the bank handoff at most once along the way.
package checkout

import (
	"encoding/json"
	"time"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

// Tracking defaults: 60 cycles of 2 s, about two minutes end to end.
const (
	DefaultPollInterval = 2 * time.Second
	DefaultMaxAttempts  = 60
)

// Progress messages shown while the loop runs.
const (
	MsgCreatingOrder = "Создаём заказ..."
	MsgAwaitingPay   = "Ожидаем оплату..."
	MsgConfirmInBank = "Подтвердите платёж в приложении банка"
)

// PollCycle is the loop-private state threaded through cycles. Attempt
// strictly increases; HandoffOpened flips false→true at most once and
// never back.
type PollCycle struct {
	OrderID       string `json:"order_id"`
	Attempt       int    `json:"attempt"`
	HandoffOpened bool   `json:"handoff_opened"`
}

// Observation is one poll result reduced to what the machine acts on. When
// TransportFailed is set the cycle failed before producing a status and the
// other fields are meaningless. The struct is JSON-clean so durable drivers
// can journal it.
type Observation struct {
	TransportFailed bool                   `json:"transport_failed,omitempty"`
	Status          commerce.PaymentStatus `json:"status,omitempty"`
	BankLink        string                 `json:"bank_link,omitempty"`
	ProgressText    string                 `json:"progress_text,omitempty"`
	ErrorMessage    string                 `json:"error_message,omitempty"`
	Raw             json.RawMessage        `json:"raw,omitempty"`
}

// Observe reduces a tracking response to an Observation.
func Observe(tr *commerce.TrackingResponse) Observation {
	if tr == nil {
		return Observation{TransportFailed: true}
	}
	return Observation{
		Status:       tr.Status(),
		BankLink:     tr.BankLink(),
		ProgressText: tr.ProgressText(),
		ErrorMessage: tr.ErrorMessage(),
		Raw:          tr.Raw,
	}
}

// OutcomeKind discriminates the three terminal outcomes.
type OutcomeKind int

const (
	OutcomeSucceeded OutcomeKind = iota + 1
	OutcomeFailed
	OutcomeTimedOut
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed_out"
	default:
		return "unknown"
	}
}

// Outcome is a terminal result. Payload carries the final tracking response
// on success; Err carries PaymentError or ErrTimeout otherwise.
type Outcome struct {
	Kind    OutcomeKind
	Payload json.RawMessage
	Err     error
}

// Effects is what one cycle asks the driver to do. Zero value means
// "nothing but schedule the next cycle".
type Effects struct {
	// OpenBankLink, when non-empty, dispatches the handoff once.
	OpenBankLink string
	// ProgressText, when non-empty, updates the progress signal.
	ProgressText string
	// Outcome, when non-nil, terminates the loop.
	Outcome *Outcome
}

// Machine holds the tuning of the reconciliation state machine. Its
// transition methods are pure: they touch no clock, no network, no shared
// state, which is what makes the transition table testable without a
// driver.
type Machine struct {
	MaxAttempts int
}

// NewMachine returns a machine with the default cycle cap.
func NewMachine() Machine {
	return Machine{MaxAttempts: DefaultMaxAttempts}
}

// Advance opens a new cycle: it increments the attempt counter and reports
// whether the cap is exhausted. The cap is checked before a new poll would
// be issued, so a timed-out loop never observes one more status.
func (m Machine) Advance(c PollCycle) (PollCycle, *Outcome) {
	c.Attempt++
	max := m.MaxAttempts
	if max <= 0 {
		max = DefaultMaxAttempts
	}
	if c.Attempt > max {
		return c, &Outcome{Kind: OutcomeTimedOut, Err: ErrTimeout}
	}
	return c, nil
}

// Apply evaluates the transition table for one observation.
//
//	paid/success            → Succeeded with the full response payload
//	sbp_required/sbp, first → handoff + bank-confirmation text, keep polling
//	sbp_required/sbp, later → keep polling, no second handoff
//	pending/processing      → keep polling
//	failed/cancelled/error  → Failed with server message or fallback
//	anything unrecognized   → keep polling (forward compatible)
//	transport/parse failure → keep polling (poll errors never terminate)
//
// Server-provided progress text is forwarded on every cycle regardless of
// the transition taken.
func (m Machine) Apply(c PollCycle, obs Observation) (PollCycle, Effects) {
	if obs.TransportFailed {
		return c, Effects{}
	}

	eff := Effects{ProgressText: obs.ProgressText}

	switch obs.Status.Class() {
	case commerce.ClassSucceeded:
		eff.Outcome = &Outcome{Kind: OutcomeSucceeded, Payload: obs.Raw}

	case commerce.ClassBankHandoff:
		if !c.HandoffOpened && obs.BankLink != "" {
			c.HandoffOpened = true
			eff.OpenBankLink = obs.BankLink
			eff.ProgressText = MsgConfirmInBank
		}

	case commerce.ClassFailed:
		eff.Outcome = &Outcome{Kind: OutcomeFailed, Err: &PaymentError{Message: obs.ErrorMessage}}

	case commerce.ClassInFlight, commerce.ClassUnknown:
		// schedule next cycle
	}

	return c, eff
}
