package checkout

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
	"github.com/tg-eats/checkout-gateway/internal/handoff"
	"github.com/tg-eats/checkout-gateway/internal/progress"
)

// PaymentTracker is the slice of the commerce client the runner polls.
type PaymentTracker interface {
	TrackPayment(ctx context.Context, chatID, orderID string) (*commerce.TrackingResponse, error)
}

// Callbacks receive the terminal outcome. Exactly one of the two fires,
// exactly once, unless the run context is cancelled first; cancellation
// suppresses both and Run returns ctx.Err().
type Callbacks struct {
	// OnSuccess receives the final tracking response payload.
	OnSuccess func(payload json.RawMessage)
	// OnError receives *PaymentError, *SubmissionError, or ErrTimeout.
	OnError func(err error)
}

func (cb Callbacks) success(payload json.RawMessage) {
	if cb.OnSuccess != nil {
		cb.OnSuccess(payload)
	}
}

func (cb Callbacks) failure(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// Runner drives the reconciliation machine with a real timer and the real
// tracking endpoint: one sequential cycle at a time, each round trip
// finishing before the next is scheduled.
type Runner struct {
	tracker  PaymentTracker
	opener   handoff.Opener
	machine  Machine
	interval time.Duration
	logger   *log.Logger
}

func NewRunner(tracker PaymentTracker, opener handoff.Opener, machine Machine, interval time.Duration, logger *log.Logger) *Runner {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	if opener == nil {
		opener = handoff.LogOpener{Logger: logger}
	}
	return &Runner{tracker: tracker, opener: opener, machine: machine, interval: interval, logger: logger}
}

// Run reconciles one order to a terminal outcome. The signal is updated on
// every cycle and hidden exactly once before any terminal callback. The
// context is checked at the top of every cycle; cancelling it stops the
// loop without firing a callback.
func (r *Runner) Run(ctx context.Context, orderID, chatID string, sig progress.Signal, cb Callbacks) error {
	if sig == nil {
		sig = progress.NopSignal{}
	}

	cycle := PollCycle{OrderID: orderID}
	timer := time.NewTimer(0)
	defer timer.Stop()
	first := true

	for {
		if !first {
			timer.Reset(r.interval)
		}
		first = false
		select {
		case <-ctx.Done():
			sig.Hide()
			r.logger.Printf("[reconcile %s] cancelled after %d cycles", orderID, cycle.Attempt)
			return ctx.Err()
		case <-timer.C:
		}

		var timedOut *Outcome
		cycle, timedOut = r.machine.Advance(cycle)
		if timedOut != nil {
			sig.Hide()
			r.logger.Printf("[reconcile %s] timed out after %d cycles", orderID, cycle.Attempt-1)
			cb.failure(timedOut.Err)
			return nil
		}

		obs := r.observe(ctx, chatID, orderID)

		var eff Effects
		cycle, eff = r.machine.Apply(cycle, obs)

		if eff.ProgressText != "" {
			sig.Update(eff.ProgressText)
		}
		if eff.OpenBankLink != "" {
			// Fire and forget: the handoff never blocks the loop and its
			// failure never reaches the state machine.
			go r.dispatchHandoff(context.WithoutCancel(ctx), chatID, orderID, eff.OpenBankLink)
		}

		if eff.Outcome != nil {
			sig.Hide()
			switch eff.Outcome.Kind {
			case OutcomeSucceeded:
				r.logger.Printf("[reconcile %s] paid after %d cycles", orderID, cycle.Attempt)
				cb.success(eff.Outcome.Payload)
			default:
				r.logger.Printf("[reconcile %s] failed after %d cycles: %v", orderID, cycle.Attempt, eff.Outcome.Err)
				cb.failure(eff.Outcome.Err)
			}
			return nil
		}
	}
}

// observe performs one poll. Transport and parse failures are swallowed
// into a failed observation; the machine treats those as transient.
func (r *Runner) observe(ctx context.Context, chatID, orderID string) Observation {
	tr, err := r.tracker.TrackPayment(ctx, chatID, orderID)
	if err != nil {
		r.logger.Printf("[reconcile %s] poll error: %v", orderID, err)
		return Observation{TransportFailed: true}
	}
	return Observe(tr)
}

// dispatchHandoff opens the bank link synchronously, absorbing failures.
// The durable workflow driver uses this inside a journaled side effect.
func (r *Runner) dispatchHandoff(ctx context.Context, chatID, orderID, url string) {
	if err := r.opener.Open(ctx, chatID, url); err != nil {
		r.logger.Printf("[reconcile %s] bank handoff failed: %v", orderID, err)
	}
}
