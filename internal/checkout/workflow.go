package checkout

import (
	"encoding/json"
	"log"

	restate "github.com/restatedev/sdk-go"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

// workflowEngine backs the Restate handlers. Handlers are package-level
// functions, so the engine is injected once at startup.
var workflowEngine *Engine

// SetWorkflowEngine installs the engine used by the Checkout workflow.
func SetWorkflowEngine(e *Engine) { workflowEngine = e }

// WorkflowServiceName is the Restate service the checkout workflow binds
// under, keyed by a caller-chosen checkout reference.
const WorkflowServiceName = "checkout.v1.CheckoutService"

type CheckoutRequest struct {
	ChatID string          `json:"chat_id"`
	Order  json.RawMessage `json:"order"`
}

type CheckoutResponse struct {
	OrderID string `json:"order_id,omitempty"`
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

type StatusRequest struct{}

type StatusResponse struct {
	OrderID  string `json:"order_id,omitempty"`
	Progress string `json:"progress,omitempty"`
	Outcome  string `json:"outcome,omitempty"`
}

type submitResult struct {
	OrderID string `json:"order_id,omitempty"`
	ErrMsg  string `json:"err_msg,omitempty"`
}

// Checkout is the durable rendition of CreateOrderAndPay: the submission
// and every poll run as journaled side effects, the wait between cycles is
// a durable sleep, so a crashed gateway resumes mid-reconciliation instead
// of double-submitting.
func Checkout(ctx restate.WorkflowContext, req *CheckoutRequest) (*CheckoutResponse, error) {
	eng := workflowEngine
	if eng == nil {
		return nil, restate.TerminalError(errEngineUnset)
	}

	checkoutRef := restate.Key(ctx)
	log.Printf("[workflow %s] starting checkout for chat %s", checkoutRef, req.ChatID)

	restate.Set(ctx, "progress", MsgCreatingOrder)

	sub, err := restate.Run(ctx, func(rc restate.RunContext) (submitResult, error) {
		orderID, err := eng.Submit(rc, req.ChatID, commerce.OrderPayload(req.Order))
		if err != nil {
			// Rejections are a definitive answer, not something to retry.
			return submitResult{ErrMsg: err.Error()}, nil
		}
		return submitResult{OrderID: orderID}, nil
	})
	if err != nil {
		return nil, err
	}
	if sub.ErrMsg != "" {
		log.Printf("[workflow %s] submission rejected: %s", checkoutRef, sub.ErrMsg)
		restate.Set(ctx, "outcome", OutcomeFailed.String())
		return &CheckoutResponse{Outcome: OutcomeFailed.String(), Error: sub.ErrMsg}, nil
	}

	orderID := sub.OrderID
	restate.Set(ctx, "order_id", orderID)
	restate.Set(ctx, "progress", MsgAwaitingPay)
	log.Printf("[workflow %s] order created: %s", checkoutRef, orderID)

	machine := eng.runner.machine
	cycle := PollCycle{OrderID: orderID}

	for {
		var timedOut *Outcome
		cycle, timedOut = machine.Advance(cycle)
		if timedOut != nil {
			log.Printf("[workflow %s] timed out after %d cycles", checkoutRef, cycle.Attempt-1)
			eng.recordOutcome(orderID, req.ChatID, OutcomeTimedOut, ErrTimeout.Error())
			restate.Set(ctx, "outcome", OutcomeTimedOut.String())
			return &CheckoutResponse{OrderID: orderID, Outcome: OutcomeTimedOut.String(), Error: ErrTimeout.Error()}, nil
		}

		obs, err := restate.Run(ctx, func(rc restate.RunContext) (Observation, error) {
			// Poll failures are transient by contract; journal them as a
			// failed observation rather than retrying the cycle.
			return eng.runner.observe(rc, req.ChatID, orderID), nil
		})
		if err != nil {
			return nil, err
		}

		var eff Effects
		cycle, eff = machine.Apply(cycle, obs)

		if eff.ProgressText != "" {
			restate.Set(ctx, "progress", eff.ProgressText)
			_, err = restate.Run(ctx, func(rc restate.RunContext) (any, error) {
				eng.persistProgress(orderID, eff.ProgressText)
				return nil, nil
			})
			if err != nil {
				return nil, err
			}
		}

		if eff.OpenBankLink != "" {
			_, err = restate.Run(ctx, func(rc restate.RunContext) (any, error) {
				eng.runner.dispatchHandoff(rc, req.ChatID, orderID, eff.OpenBankLink)
				return nil, nil
			})
			if err != nil {
				return nil, err
			}
		}

		if eff.Outcome != nil {
			restate.Set(ctx, "outcome", eff.Outcome.Kind.String())
			switch eff.Outcome.Kind {
			case OutcomeSucceeded:
				log.Printf("[workflow %s] order %s paid after %d cycles", checkoutRef, orderID, cycle.Attempt)
				eng.recordOutcome(orderID, req.ChatID, OutcomeSucceeded, "")
				return &CheckoutResponse{OrderID: orderID, Outcome: OutcomeSucceeded.String()}, nil
			default:
				log.Printf("[workflow %s] order %s failed: %v", checkoutRef, orderID, eff.Outcome.Err)
				eng.recordOutcome(orderID, req.ChatID, OutcomeFailed, eff.Outcome.Err.Error())
				return &CheckoutResponse{OrderID: orderID, Outcome: OutcomeFailed.String(), Error: eff.Outcome.Err.Error()}, nil
			}
		}

		if err := restate.Sleep(ctx, eng.runner.interval); err != nil {
			return nil, err
		}
	}
}

// GetStatus exposes the workflow's journaled progress to shared readers.
func GetStatus(ctx restate.WorkflowSharedContext, _ *StatusRequest) (*StatusResponse, error) {
	orderID, _ := restate.Get[string](ctx, "order_id")
	progressText, _ := restate.Get[string](ctx, "progress")
	outcome, _ := restate.Get[string](ctx, "outcome")
	return &StatusResponse{OrderID: orderID, Progress: progressText, Outcome: outcome}, nil
}

var errEngineUnset = &SubmissionError{Message: "checkout engine not configured"}
