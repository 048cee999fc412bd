package commerce

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func testIdentity() Identity {
	return Identity{
		Bearer:         "bearer-token",
		DeviceID:       "device-1",
		ChatID:         "chat-1",
		AppmetricaUUID: "uuid-1",
	}
}

func TestCreateOrderSendsIdentityHeaders(t *testing.T) {
	var gotHeaders http.Header
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		gotBody, _ = io.ReadAll(r.Body)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"order_nr":"260224-6786757"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity(),
		WithLocator(StaticLocator{Coords: Coords{Lat: 55.75, Lon: 37.62}}))

	res, err := c.CreateOrder(context.Background(), "", OrderPayload(`{"cart":"x"}`), "aabbccdd112233445566778899001122.deadbeef")
	require.NoError(t, err)
	require.Equal(t, 200, res.HTTPStatus)
	require.Equal(t, "260224-6786757", res.OrderNr)

	require.Equal(t, "bearer-token", gotHeaders.Get("X-Bearer"))
	require.Equal(t, "device-1", gotHeaders.Get("X-Device-Id"))
	require.Equal(t, "chat-1", gotHeaders.Get("X-Chat-Id"))
	require.Equal(t, "uuid-1", gotHeaders.Get("X-Appmetrica-Uuid"))
	require.Equal(t, "55.75,37.62", gotHeaders.Get("X-User-Coords"))
	require.Equal(t, "aabbccdd112233445566778899001122.deadbeef", gotHeaders.Get("X-Idempotency-Token"))
	require.JSONEq(t, `{"cart":"x"}`, string(gotBody))
}

func TestCreateOrderNon200IsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"Нет адреса доставки"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	res, err := c.CreateOrder(context.Background(), "", OrderPayload(`{}`), "tok")
	require.NoError(t, err)
	require.Equal(t, 400, res.HTTPStatus)
	require.Equal(t, "Нет адреса доставки", res.ErrorText())
}

func TestCreateOrderMalformedBodyIsRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	res, err := c.CreateOrder(context.Background(), "", OrderPayload(`{}`), "tok")
	require.NoError(t, err)
	require.Empty(t, res.OrderNr)
	require.Empty(t, res.ErrorText())
}

func TestTrackPaymentParsesStatusAndLink(t *testing.T) {
	body := `{
		"order": {
			"description": "Ожидаем подтверждение",
			"payment": {
				"status": "sbp_required",
				"payload": {"url": "https://bank.example/pay/abc"}
			}
		}
	}`
	var gotReq map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/eats/v1/eats-payments/v1/order/tracking", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	tr, err := c.TrackPayment(context.Background(), "", "260224-6786757")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"order_id": "260224-6786757"}, gotReq)
	require.Equal(t, StatusSBPRequired, tr.Status())
	require.Equal(t, "https://bank.example/pay/abc", tr.BankLink())
	require.Equal(t, "Ожидаем подтверждение", tr.ProgressText())
	require.JSONEq(t, body, string(tr.Raw))
}

func TestTrackPaymentTransparentTextWins(t *testing.T) {
	body := `{
		"order": {"description": "fallback", "payment": {"status": "pending"}},
		"transparentPayment": {"screen": {"text": {"text": "Подтвердите оплату"}}}
	}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	tr, err := c.TrackPayment(context.Background(), "", "x")
	require.NoError(t, err)
	require.Equal(t, "Подтвердите оплату", tr.ProgressText())
}

func TestTrackPaymentServerErrorIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	_, err := c.TrackPayment(context.Background(), "", "x")
	require.Error(t, err)
}

func TestApplyPromocodeQueryAndOutcomes(t *testing.T) {
	var gotQuery map[string][]string
	response := `{"status":"ok"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v2/cart/promocode", r.URL.Path)
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte(response))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	res, err := c.ApplyPromocode(context.Background(), "", "FREE100", "place-slug", "")
	require.NoError(t, err)
	require.True(t, res.OK)
	require.Equal(t, []string{"true"}, gotQuery["soft_multi"])
	require.Equal(t, []string{"checkout"}, gotQuery["screen"])
	require.Equal(t, []string{"delivery"}, gotQuery["shippingType"])
	require.Equal(t, []string{"place-slug"}, gotQuery["placeSlug"])
	require.Equal(t, []string{"false"}, gotQuery["offline"])

	response = `{"status":"error","err":"Промокод истёк"}`
	res, err = c.ApplyPromocode(context.Background(), "", "OLD", "place-slug", "pickup")
	require.NoError(t, err)
	require.False(t, res.OK)
	require.Equal(t, "Промокод истёк", res.Message)
}

func TestPerCallChatBinding(t *testing.T) {
	var gotChat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotChat = r.Header.Get("X-Chat-Id")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity())
	_, err := c.CreateOrder(context.Background(), "chat-2", OrderPayload(`{}`), "tok")
	require.NoError(t, err)
	require.Equal(t, "chat-2", gotChat)

	_, err = c.TrackPayment(context.Background(), "chat-2", "260224-6786757")
	require.NoError(t, err)
	require.Equal(t, "chat-2", gotChat)

	_, err = c.ApplyPromocode(context.Background(), "chat-2", "CODE", "slug", "")
	require.NoError(t, err)
	require.Equal(t, "chat-2", gotChat)

	// An empty chat id falls back to the session identity.
	_, err = c.CreateOrder(context.Background(), "", OrderPayload(`{}`), "tok")
	require.NoError(t, err)
	require.Equal(t, "chat-1", gotChat)
}

func TestNoLocationOmitsCoordsHeader(t *testing.T) {
	var present bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present = r.Header[http.CanonicalHeaderKey("X-User-Coords")]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, testIdentity(), WithLocator(NoLocation{}))
	_, err := c.CreateOrder(context.Background(), "", OrderPayload(`{}`), "tok")
	require.NoError(t, err)
	require.False(t, present)
}
