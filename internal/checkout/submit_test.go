package checkout

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

type fakeCreator struct {
	res    *commerce.CreateOrderResult
	err    error
	calls  int
	chats  []string
	tokens []string
}

func (f *fakeCreator) CreateOrder(_ context.Context, chatID string, _ commerce.OrderPayload, token string) (*commerce.CreateOrderResult, error) {
	f.calls++
	f.chats = append(f.chats, chatID)
	f.tokens = append(f.tokens, token)
	return f.res, f.err
}

func TestSubmitReturnsOrderID(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200, OrderNr: testOrderID}}
	s := NewSubmitter(creator, nil)

	orderID, err := s.Submit(context.Background(), "chat-42", commerce.OrderPayload(`{"cart":"x"}`))
	require.NoError(t, err)
	require.Equal(t, testOrderID, orderID)
	require.Equal(t, 1, creator.calls)
	require.Equal(t, []string{"chat-42"}, creator.chats)
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}\.[0-9a-f]{8}$`), creator.tokens[0])
}

func TestSubmitRejectionUsesServerMessage(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 400, Message: "Нет адреса доставки"}}
	s := NewSubmitter(creator, nil)

	_, err := s.Submit(context.Background(), "chat-42", commerce.OrderPayload(`{}`))
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.EqualError(t, err, "Нет адреса доставки")
	require.Equal(t, 1, creator.calls, "a rejection must not be retried")
}

func TestSubmitEmptyOrderIDIsRejection(t *testing.T) {
	creator := &fakeCreator{res: &commerce.CreateOrderResult{HTTPStatus: 200}}
	s := NewSubmitter(creator, nil)

	_, err := s.Submit(context.Background(), "chat-42", commerce.OrderPayload(`{}`))
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.EqualError(t, err, "Ошибка создания заказа")
}

func TestSubmitTransportFailure(t *testing.T) {
	creator := &fakeCreator{err: errors.New("dial tcp: connection refused")}
	s := NewSubmitter(creator, nil)

	_, err := s.Submit(context.Background(), "chat-42", commerce.OrderPayload(`{}`))
	var subErr *SubmissionError
	require.True(t, errors.As(err, &subErr))
	require.Equal(t, 1, creator.calls)
}
