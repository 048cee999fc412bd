package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
	"github.com/tg-eats/checkout-gateway/internal/progress"
)

// Store persists checkout lifecycle rows for the read API. All methods are
// best effort from the engine's point of view: persistence failures are
// logged, never surfaced into the flow.
type Store interface {
	InsertCheckout(ctx context.Context, orderID, chatID string) error
	UpdateProgress(ctx context.Context, orderID, text string) error
	MarkOutcome(ctx context.Context, orderID, state, errorMessage string) error
}

// Publisher emits lifecycle events for downstream workers.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, orderID, chatID string) error
	PublishPaymentOutcome(ctx context.Context, orderID, chatID, outcome, errorMessage string) error
}

// Engine wires the submitter and the reconciliation runner together with
// persistence and event publishing. One Engine serves many orders; all
// per-order state lives in the run.
type Engine struct {
	submitter *Submitter
	runner    *Runner
	store     Store     // may be nil
	publisher Publisher // may be nil
	logger    *log.Logger
}

func NewEngine(submitter *Submitter, runner *Runner, store Store, publisher Publisher, logger *log.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{submitter: submitter, runner: runner, store: store, publisher: publisher, logger: logger}
}

// Submit creates the order, persists the checkout row, and publishes
// OrderCreated. Returns the order identifier or *SubmissionError.
func (e *Engine) Submit(ctx context.Context, chatID string, payload commerce.OrderPayload) (string, error) {
	orderID, err := e.submitter.Submit(ctx, chatID, payload)
	if err != nil {
		return "", err
	}

	if e.store != nil {
		if err := e.store.InsertCheckout(ctx, orderID, chatID); err != nil {
			e.logger.Printf("[checkout %s] warning: persist checkout: %v", orderID, err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishOrderCreated(ctx, orderID, chatID); err != nil {
			e.logger.Printf("[checkout %s] warning: publish OrderCreated: %v", orderID, err)
		}
	}
	return orderID, nil
}

// Reconcile drives the order to a terminal outcome, recording progress and
// the outcome as it goes. Caller callbacks fire after persistence so a
// crash between the two loses an event, not an outcome row.
func (e *Engine) Reconcile(ctx context.Context, orderID, chatID string, sig progress.Signal, cb Callbacks) error {
	wrapped := Callbacks{
		OnSuccess: func(payload json.RawMessage) {
			e.recordOutcome(orderID, chatID, OutcomeSucceeded, "")
			cb.success(payload)
		},
		OnError: func(err error) {
			kind := OutcomeFailed
			if err == ErrTimeout {
				kind = OutcomeTimedOut
			}
			e.recordOutcome(orderID, chatID, kind, err.Error())
			cb.failure(err)
		},
	}

	tracking := progressRecorder{next: sig, engine: e, orderID: orderID}
	err := e.runner.Run(ctx, orderID, chatID, tracking, wrapped)
	if errors.Is(err, context.Canceled) {
		// No callbacks fire on a user cancel, but the row must not stay
		// in "reconciling".
		if e.store != nil {
			if serr := e.store.MarkOutcome(context.Background(), orderID, StateCancelled, ""); serr != nil {
				e.logger.Printf("[checkout %s] warning: persist cancel: %v", orderID, serr)
			}
		}
	}
	return err
}

// StateCancelled is the persisted state for a run stopped by the user
// before reaching a terminal outcome.
const StateCancelled = "cancelled"

// CreateOrderAndPay is the full flow: show the waiting signal, submit,
// reconcile. Submission failures surface through OnError like any other
// terminal error, after the signal is hidden.
func (e *Engine) CreateOrderAndPay(ctx context.Context, chatID string, payload commerce.OrderPayload, sig progress.Signal, cb Callbacks) error {
	if sig == nil {
		sig = progress.NopSignal{}
	}
	sig.Show(MsgCreatingOrder)

	orderID, err := e.Submit(ctx, chatID, payload)
	if err != nil {
		sig.Hide()
		cb.failure(err)
		return nil
	}

	sig.Update(MsgAwaitingPay)
	return e.Reconcile(ctx, orderID, chatID, sig, cb)
}

func (e *Engine) recordOutcome(orderID, chatID string, kind OutcomeKind, errorMessage string) {
	// Run context may already be gone at terminal time; persistence and
	// publishing still have to happen.
	ctx := context.Background()
	if e.store != nil {
		if err := e.store.MarkOutcome(ctx, orderID, kind.String(), errorMessage); err != nil {
			e.logger.Printf("[checkout %s] warning: persist outcome: %v", orderID, err)
		}
	}
	if e.publisher != nil {
		if err := e.publisher.PublishPaymentOutcome(ctx, orderID, chatID, kind.String(), errorMessage); err != nil {
			e.logger.Printf("[checkout %s] warning: publish outcome: %v", orderID, err)
		}
	}
}

// progressRecorder tees progress updates into the store without changing
// what the caller-visible signal sees.
type progressRecorder struct {
	next    progress.Signal
	engine  *Engine
	orderID string
}

func (p progressRecorder) Show(text string) {
	if p.next != nil {
		p.next.Show(text)
	}
	p.record(text)
}

func (p progressRecorder) Update(text string) {
	if p.next != nil {
		p.next.Update(text)
	}
	p.record(text)
}

func (p progressRecorder) Hide() {
	if p.next != nil {
		p.next.Hide()
	}
}

func (p progressRecorder) record(text string) {
	p.engine.persistProgress(p.orderID, text)
}

func (e *Engine) persistProgress(orderID, text string) {
	if e.store == nil || text == "" {
		return
	}
	if err := e.store.UpdateProgress(context.Background(), orderID, text); err != nil {
		e.logger.Printf("[checkout %s] warning: persist progress: %v", orderID, err)
	}
}
