package checkout

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tg-eats/checkout-gateway/internal/commerce"
)

func TestAdvanceCapCheckedBeforePoll(t *testing.T) {
	m := Machine{MaxAttempts: 3}
	c := PollCycle{OrderID: "260224-6786757"}

	var out *Outcome
	for i := 1; i <= 3; i++ {
		c, out = m.Advance(c)
		require.Nil(t, out, "attempt %d should stay within the cap", i)
		require.Equal(t, i, c.Attempt)
	}

	c, out = m.Advance(c)
	require.NotNil(t, out)
	require.Equal(t, OutcomeTimedOut, out.Kind)
	require.True(t, errors.Is(out.Err, ErrTimeout))
}

func TestAdvanceZeroCapUsesDefault(t *testing.T) {
	m := Machine{}
	c := PollCycle{Attempt: DefaultMaxAttempts - 1}
	c, out := m.Advance(c)
	require.Nil(t, out)
	c, out = m.Advance(c)
	require.NotNil(t, out)
	require.Equal(t, OutcomeTimedOut, out.Kind)
}

func TestApplyTransitions(t *testing.T) {
	raw := json.RawMessage(`{"payment":{"status":"paid"}}`)

	tests := []struct {
		name        string
		cycle       PollCycle
		obs         Observation
		wantOutcome OutcomeKind
		wantLink    string
		wantText    string
		wantOpened  bool
	}{
		{
			name:        "paid terminates with payload",
			obs:         Observation{Status: commerce.StatusPaid, Raw: raw},
			wantOutcome: OutcomeSucceeded,
		},
		{
			name:        "success alias terminates",
			obs:         Observation{Status: commerce.StatusSuccess},
			wantOutcome: OutcomeSucceeded,
		},
		{
			name:       "sbp first time opens bank link",
			obs:        Observation{Status: commerce.StatusSBPRequired, BankLink: "https://bank.example/pay/abc"},
			wantLink:   "https://bank.example/pay/abc",
			wantText:   MsgConfirmInBank,
			wantOpened: true,
		},
		{
			name:       "sbp alias opens bank link",
			obs:        Observation{Status: commerce.StatusSBP, BankLink: "https://bank.example/pay/abc"},
			wantLink:   "https://bank.example/pay/abc",
			wantText:   MsgConfirmInBank,
			wantOpened: true,
		},
		{
			name:       "sbp second time stays silent",
			cycle:      PollCycle{HandoffOpened: true},
			obs:        Observation{Status: commerce.StatusSBPRequired, BankLink: "https://bank.example/pay/abc"},
			wantOpened: true,
		},
		{
			name: "sbp without link keeps polling unopened",
			obs:  Observation{Status: commerce.StatusSBPRequired},
		},
		{
			name: "pending keeps polling",
			obs:  Observation{Status: commerce.StatusPending},
		},
		{
			name: "processing keeps polling",
			obs:  Observation{Status: commerce.StatusProcessing},
		},
		{
			name:        "failed terminates with server message",
			obs:         Observation{Status: commerce.StatusFailed, ErrorMessage: "карта отклонена"},
			wantOutcome: OutcomeFailed,
		},
		{
			name:        "cancelled terminates",
			obs:         Observation{Status: commerce.StatusCancelled},
			wantOutcome: OutcomeFailed,
		},
		{
			name:        "error terminates",
			obs:         Observation{Status: commerce.StatusError},
			wantOutcome: OutcomeFailed,
		},
		{
			name: "unknown status keeps polling",
			obs:  Observation{Status: "some_new_status"},
		},
		{
			name: "transport failure keeps polling without effects",
			obs:  Observation{TransportFailed: true, ProgressText: "ignored"},
		},
		{
			name:     "progress text forwarded on quiet cycles",
			obs:      Observation{Status: commerce.StatusPending, ProgressText: "Ресторан готовит заказ"},
			wantText: "Ресторан готовит заказ",
		},
	}

	m := NewMachine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, eff := m.Apply(tt.cycle, tt.obs)

			require.Equal(t, tt.wantOpened, next.HandoffOpened)
			require.Equal(t, tt.wantLink, eff.OpenBankLink)
			require.Equal(t, tt.wantText, eff.ProgressText)

			if tt.wantOutcome == 0 {
				require.Nil(t, eff.Outcome)
				return
			}
			require.NotNil(t, eff.Outcome)
			require.Equal(t, tt.wantOutcome, eff.Outcome.Kind)
			if tt.wantOutcome == OutcomeSucceeded && tt.obs.Raw != nil {
				require.JSONEq(t, string(raw), string(eff.Outcome.Payload))
			}
		})
	}
}

func TestApplyFailureMessageFallback(t *testing.T) {
	m := NewMachine()

	_, eff := m.Apply(PollCycle{}, Observation{Status: commerce.StatusFailed, ErrorMessage: "недостаточно средств"})
	require.EqualError(t, eff.Outcome.Err, "недостаточно средств")

	_, eff = m.Apply(PollCycle{}, Observation{Status: commerce.StatusFailed})
	require.EqualError(t, eff.Outcome.Err, "Оплата не прошла")
}

func TestObserveNilResponseIsTransportFailure(t *testing.T) {
	obs := Observe(nil)
	require.True(t, obs.TransportFailed)
}
