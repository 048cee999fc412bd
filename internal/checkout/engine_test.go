package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

type memStore struct {
	mu       sync.Mutex
	inserted []string
	progress map[string][]string
	outcomes map[string]string
	errMsgs  map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		progress: make(map[string][]string),
		outcomes: make(map[string]string),
		errMsgs:  make(map[string]string),
	}
}

func (m *memStore) InsertCheckout(_ context.Context, orderID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserted = append(m.inserted, orderID)
	return nil
}

func (m *memStore) UpdateProgress(_ context.Context, orderID, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress[orderID] = append(m.progress[orderID], text)
	return nil
}

func (m *memStore) MarkOutcome(_ context.Context, orderID, state, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[orderID] = state
	m.errMsgs[orderID] = errorMessage
	return nil
}

type memPublisher struct {
	mu       sync.Mutex
	created  []string
	outcomes map[string]string
}

func newMemPublisher() *memPublisher {
	return &memPublisher{outcomes: make(map[string]string)}
}

func (m *memPublisher) PublishOrderCreated(_ context.Context, orderID, chatID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created = append(m.created, orderID)
	return nil
}

func (m *memPublisher) PublishPaymentOutcome(_ context.Context, orderID, chatID, outcome, errorMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[orderID] = outcome
	return nil
}

func newTestEngine(creator OrderCreator, tracker PaymentTracker, store Store, pub Publisher) *Engine {
	submitter := NewSubmitter(creator, nil)
	runner := NewRunner(tracker, newRecordingOpener(), Machine{MaxAttempts: 10}, time.Millisecond, nil)
	return NewEngine(submitter, runner, store, pub, nil)
}

func TestEngineFullFlowSuccess(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{
		statusResponse(commerce.StatusPending),
		statusResponse(commerce.StatusPaid),
	}}
	store := newMemStore()
	pub := newMemPublisher()
	sig := &recordingSignal{}
	var got capture

	eng := newTestEngine(creator, tracker, store, pub)
	err := eng.CreateOrderAndPay(context.Background(), "chat-1", commerce.OrderPayload(`{"cart":"x"}`), sig, got.callbacks())
	require.NoError(t, err)

	require.Len(t, got.payloads, 1)
	require.Equal(t, []string{testOrderID}, store.inserted)
	require.Equal(t, "succeeded", store.outcomes[testOrderID])
	require.Equal(t, []string{testOrderID}, pub.created)
	require.Equal(t, "succeeded", pub.outcomes[testOrderID])

	// The caller's chat rides every upstream call, not the session default.
	require.Equal(t, []string{"chat-1"}, creator.chats)
	require.Equal(t, []string{"chat-1", "chat-1"}, tracker.chats)

	sig.mu.Lock()
	defer sig.mu.Unlock()
	require.Equal(t, MsgCreatingOrder, sig.shown[0])
	require.Contains(t, sig.shown, MsgAwaitingPay)
}

func TestEngineSubmissionFailureSkipsReconcile(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 500, Message: "internal"}}
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{nil}}
	store := newMemStore()
	pub := newMemPublisher()
	sig := &recordingSignal{}
	var got capture

	eng := newTestEngine(creator, tracker, store, pub)
	err := eng.CreateOrderAndPay(context.Background(), "chat-1", commerce.OrderPayload(`{}`), sig, got.callbacks())
	require.NoError(t, err)

	require.Len(t, got.errs, 1)
	require.EqualError(t, got.errs[0], "internal")
	require.Zero(t, tracker.polls())
	require.Empty(t, store.inserted)
	require.Empty(t, pub.created)
	require.Equal(t, 1, sig.hideCount())
}

func TestEngineTimeoutRecordedAsTimedOut(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{
		statusResponse(commerce.StatusPending),
	}}
	store := newMemStore()
	pub := newMemPublisher()
	var got capture

	eng := newTestEngine(creator, tracker, store, pub)
	err := eng.CreateOrderAndPay(context.Background(), "chat-1", commerce.OrderPayload(`{}`), nil, got.callbacks())
	require.NoError(t, err)

	require.Len(t, got.errs, 1)
	require.Equal(t, "timed_out", store.outcomes[testOrderID])
	require.Equal(t, "timed_out", pub.outcomes[testOrderID])
}

func TestEngineProgressTeedIntoStore(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	progress := statusResponse(commerce.StatusPending)
	progress.Order.Description = "Ресторан готовит заказ"
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{
		progress,
		statusResponse(commerce.StatusPaid),
	}}
	store := newMemStore()

	eng := newTestEngine(creator, tracker, store, nil)
	var got capture
	err := eng.CreateOrderAndPay(context.Background(), "chat-1", commerce.OrderPayload(`{}`), nil, got.callbacks())
	require.NoError(t, err)

	require.Contains(t, store.progress[testOrderID], "Ресторан готовит заказ")
}

func TestEngineCancelMarksCheckoutCancelled(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{
		statusResponse(commerce.StatusPending),
	}}
	store := newMemStore()
	pub := newMemPublisher()
	var got capture

	submitter := NewSubmitter(creator, nil)
	runner := NewRunner(tracker, newRecordingOpener(), Machine{MaxAttempts: 60}, 50*time.Millisecond, nil)
	eng := NewEngine(submitter, runner, store, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- eng.CreateOrderAndPay(ctx, "chat-1", commerce.OrderPayload(`{}`), nil, got.callbacks())
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("engine did not stop on cancel")
	}

	// Callbacks stay suppressed, but the row leaves "reconciling".
	require.Empty(t, got.payloads)
	require.Empty(t, got.errs)
	require.Equal(t, StateCancelled, store.outcomes[testOrderID])
	require.Empty(t, pub.outcomes)
}

func TestEngineNilStoreAndPublisher(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	tracker := &scriptedTracker{script: []*commerce.TrackingResponse{
		statusResponse(commerce.StatusPaid),
	}}

	eng := newTestEngine(creator, tracker, nil, nil)
	var got capture
	err := eng.CreateOrderAndPay(context.Background(), "chat-1", commerce.OrderPayload(`{}`), nil, got.callbacks())
	require.NoError(t, err)
	require.Len(t, got.payloads, 1)
}
