package bdd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/cucumber/godog"

	"github.com/tg-eats/checkout-gateway/internal/checkout"
	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

// CheckoutWorld wires a full engine against an in-process commerce stub.
// Each scenario scripts the stub, runs the flow, and asserts on what the
// recording signal, opener, and callbacks saw.
type CheckoutWorld struct {
	t *testing.T

	// Stub scripting.
	createStatus int
	createBody   string
	statuses     []string
	bankLink     string
	errorMessage string
	maxAttempts  int

	// Run results.
	orderID     string
	successBody json.RawMessage
	failure     error
	polls       int

	signal *bddSignal
	opener *bddOpener

	srv *httptest.Server
}

func NewCheckoutWorld(t *testing.T) *CheckoutWorld {
	return &CheckoutWorld{t: t}
}

func (w *CheckoutWorld) Register(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		w.reset()
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, _ error) (context.Context, error) {
		if w.srv != nil {
			w.srv.Close()
			w.srv = nil
		}
		return ctx, nil
	})

	w.registerCheckoutSteps(sc)
}

func (w *CheckoutWorld) reset() {
	w.createStatus = 200
	w.createBody = `{"order_nr":"260224-6786757"}`
	w.statuses = nil
	w.bankLink = ""
	w.errorMessage = ""
	w.maxAttempts = 60
	w.orderID = ""
	w.successBody = nil
	w.failure = nil
	w.polls = 0
	w.signal = &bddSignal{}
	w.opener = &bddOpener{}
}

// startStub serves order creation and payment tracking from the scripted
// state.
func (w *CheckoutWorld) startStub() {
	var mu sync.Mutex
	w.srv = httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/orders":
			rw.WriteHeader(w.createStatus)
			_, _ = rw.Write([]byte(w.createBody))

		case "/eats/v1/eats-payments/v1/order/tracking":
			mu.Lock()
			i := w.polls
			w.polls++
			mu.Unlock()
			if i >= len(w.statuses) {
				i = len(w.statuses) - 1
			}
			status := "pending"
			if i >= 0 {
				status = w.statuses[i]
			}

			payment := map[string]any{"status": status}
			if w.bankLink != "" && (status == "sbp_required" || status == "sbp") {
				payment["payload"] = map[string]any{"url": w.bankLink}
			}
			if w.errorMessage != "" {
				payment["error_message"] = w.errorMessage
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{
				"order": map[string]any{"payment": payment},
			})

		default:
			http.NotFound(rw, r)
		}
	}))
}

// runCheckout drives the full flow synchronously with a short poll interval.
func (w *CheckoutWorld) runCheckout(chatID string) error {
	w.startStub()

	client := commerce.NewClient(w.srv.URL, commerce.Identity{
		Bearer:   "bdd-bearer",
		DeviceID: "bdd-device",
		ChatID:   chatID,
	})
	submitter := checkout.NewSubmitter(client, nil)
	runner := checkout.NewRunner(client, w.opener, checkout.Machine{MaxAttempts: w.maxAttempts}, time.Millisecond, nil)
	eng := checkout.NewEngine(submitter, runner, nil, nil, nil)

	done := make(chan struct{})
	cb := checkout.Callbacks{
		OnSuccess: func(payload json.RawMessage) {
			w.successBody = payload
			close(done)
		},
		OnError: func(err error) {
			w.failure = err
			close(done)
		},
	}

	if err := eng.CreateOrderAndPay(context.Background(), chatID, commerce.OrderPayload(`{"cart":"bdd"}`), w.signal, cb); err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-time.After(5 * time.Second):
		w.t.Fatal("checkout did not reach a terminal outcome")
		return nil
	}
}

// bddSignal records the waiting-screen lifecycle.
type bddSignal struct {
	mu    sync.Mutex
	texts []string
	hides int
}

func (s *bddSignal) Show(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
}

func (s *bddSignal) Update(text string) { s.Show(text) }

func (s *bddSignal) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hides++
}

func (s *bddSignal) sawText(text string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.texts {
		if t == text {
			return true
		}
	}
	return false
}

func (s *bddSignal) hideCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hides
}

// bddOpener records bank handoffs.
type bddOpener struct {
	mu    sync.Mutex
	links []string
}

func (o *bddOpener) Open(_ context.Context, chatID, url string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.links = append(o.links, url)
	return nil
}

func (o *bddOpener) opened() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.links...)
}
