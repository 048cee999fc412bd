package bdd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cucumber/godog"

	"github.com/tg-eats/checkout-gateway/internal/checkout"
)

func (w *CheckoutWorld) registerCheckoutSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the payment service reports statuses "([^"]*)"$`, w.paymentServiceReports)
	sc.Step(`^the bank transfer link is "([^"]*)"$`, w.bankTransferLinkIs)
	sc.Step(`^the payment failure message is "([^"]*)"$`, w.paymentFailureMessageIs)
	sc.Step(`^order creation is rejected with status (\d+) and message "([^"]*)"$`, w.orderCreationRejected)
	sc.Step(`^the reconciliation cap is (\d+) cycles$`, w.reconciliationCapIs)
	sc.Step(`^a checkout runs for chat "([^"]*)"$`, w.checkoutRuns)
	sc.Step(`^the checkout succeeds$`, w.checkoutSucceeds)
	sc.Step(`^the checkout fails with "([^"]*)"$`, w.checkoutFailsWith)
	sc.Step(`^the checkout times out$`, w.checkoutTimesOut)
	sc.Step(`^the payment service was polled (\d+) times?$`, w.paymentServicePolled)
	sc.Step(`^the bank link was opened exactly once$`, w.bankLinkOpenedOnce)
	sc.Step(`^no bank link was opened$`, w.noBankLinkOpened)
	sc.Step(`^the waiting screen showed "([^"]*)"$`, w.waitingScreenShowed)
	sc.Step(`^the waiting screen was hidden exactly once$`, w.waitingScreenHiddenOnce)
}

func (w *CheckoutWorld) paymentServiceReports(list string) error {
	for _, s := range strings.Split(list, ",") {
		w.statuses = append(w.statuses, strings.TrimSpace(s))
	}
	return nil
}

func (w *CheckoutWorld) bankTransferLinkIs(link string) error {
	w.bankLink = link
	return nil
}

func (w *CheckoutWorld) paymentFailureMessageIs(msg string) error {
	w.errorMessage = msg
	return nil
}

func (w *CheckoutWorld) orderCreationRejected(status int, msg string) error {
	w.createStatus = status
	w.createBody = fmt.Sprintf(`{"message":%q}`, msg)
	return nil
}

func (w *CheckoutWorld) reconciliationCapIs(n int) error {
	w.maxAttempts = n
	return nil
}

func (w *CheckoutWorld) checkoutRuns(chatID string) error {
	return w.runCheckout(chatID)
}

func (w *CheckoutWorld) checkoutSucceeds() error {
	if w.failure != nil {
		return fmt.Errorf("expected success, got failure: %v", w.failure)
	}
	if len(w.successBody) == 0 {
		return errors.New("success callback never received a payload")
	}
	return nil
}

func (w *CheckoutWorld) checkoutFailsWith(msg string) error {
	if w.failure == nil {
		return errors.New("expected a failure, got success")
	}
	if w.failure.Error() != msg {
		return fmt.Errorf("failure message %q, want %q", w.failure.Error(), msg)
	}
	return nil
}

func (w *CheckoutWorld) checkoutTimesOut() error {
	if !errors.Is(w.failure, checkout.ErrTimeout) {
		return fmt.Errorf("expected timeout, got %v", w.failure)
	}
	return nil
}

func (w *CheckoutWorld) paymentServicePolled(n int) error {
	if w.polls != n {
		return fmt.Errorf("polled %d times, want %d", w.polls, n)
	}
	return nil
}

func (w *CheckoutWorld) bankLinkOpenedOnce() error {
	// The handoff dispatch is asynchronous; give it a moment to land.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(w.opener.opened()) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	opened := w.opener.opened()
	if len(opened) != 1 {
		return fmt.Errorf("bank link opened %d times: %v", len(opened), opened)
	}
	if w.bankLink != "" && opened[0] != w.bankLink {
		return fmt.Errorf("opened %q, want %q", opened[0], w.bankLink)
	}
	return nil
}

func (w *CheckoutWorld) noBankLinkOpened() error {
	if opened := w.opener.opened(); len(opened) != 0 {
		return fmt.Errorf("unexpected bank handoff: %v", opened)
	}
	return nil
}

func (w *CheckoutWorld) waitingScreenShowed(text string) error {
	if !w.signal.sawText(text) {
		return fmt.Errorf("waiting screen never showed %q; saw %v", text, w.signal.texts)
	}
	return nil
}

func (w *CheckoutWorld) waitingScreenHiddenOnce() error {
	if n := w.signal.hideCount(); n != 1 {
		return fmt.Errorf("waiting screen hidden %d times, want 1", n)
	}
	return nil
}
