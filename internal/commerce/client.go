package commerce

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	orderCreatePath     = "/api/v1/orders"
	paymentTrackingPath = "/eats/v1/eats-payments/v1/order/tracking"
	promocodePath       = "/api/v2/cart/promocode"
)

// Identity carries the per-session request identity the remote API expects
// on every call. It is threaded explicitly into the client; nothing is read
// from ambient state.
type Identity struct {
	Bearer         string
	DeviceID       string
	ChatID         string
	AppmetricaUUID string
}

// Client talks to the remote commerce API. One network call per method, no
// retries; retry policy belongs to the caller.
type Client struct {
	baseURL  string
	httpc    *http.Client
	identity Identity
	locator  Locator
	logger   *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client (tests use this to
// drop the default timeout).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// WithLocator installs the coordinate source attached to every request.
func WithLocator(l Locator) Option {
	return func(c *Client) { c.locator = l }
}

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient builds a commerce client for the given API base URL and request
// identity. The transport is traced via otelhttp.
func NewClient(baseURL string, identity Identity, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc: &http.Client{
			Timeout:   30 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		identity: identity,
		logger:   log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrder issues the single order-creation request carrying the given
// idempotency token. The result reports the HTTP status and whatever the
// server said; classification into created/rejected is the caller's job.
// One gateway process serves several chat sessions, so the chat binding is
// per call; an empty chatID falls back to the session identity.
func (c *Client) CreateOrder(ctx context.Context, chatID string, payload OrderPayload, idempotencyToken string) (*CreateOrderResult, error) {
	status, body, err := c.do(ctx, http.MethodPost, orderCreatePath, "", chatID, []byte(payload), idempotencyToken)
	if err != nil {
		return nil, err
	}

	res := &CreateOrderResult{HTTPStatus: status}
	// Best-effort decode: a body we cannot parse is treated as a rejection
	// with no server message.
	_ = json.Unmarshal(body, res)
	return res, nil
}

// TrackPayment polls the payment status for an order on behalf of chatID.
func (c *Client) TrackPayment(ctx context.Context, chatID, orderID string) (*TrackingResponse, error) {
	reqBody, _ := json.Marshal(map[string]string{"order_id": orderID})
	status, body, err := c.do(ctx, http.MethodPost, paymentTrackingPath, "", chatID, reqBody, "")
	if err != nil {
		return nil, err
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("payment tracking: status %d", status)
	}

	var tr TrackingResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("payment tracking: decode response: %w", err)
	}
	tr.Raw = json.RawMessage(body)
	return &tr, nil
}

// ApplyPromocode applies a promocode to the current cart. Standalone
// request/response; not part of the reconciliation loop.
func (c *Client) ApplyPromocode(ctx context.Context, chatID, code, placeSlug, shippingType string) (*PromocodeResult, error) {
	if shippingType == "" {
		shippingType = "delivery"
	}
	q := url.Values{}
	q.Set("soft_multi", "true")
	q.Set("screen", "checkout")
	q.Set("shippingType", shippingType)
	q.Set("placeSlug", placeSlug)
	q.Set("offline", "false")

	reqBody, _ := json.Marshal(map[string]string{"code": code})
	_, body, err := c.do(ctx, http.MethodPost, promocodePath, q.Encode(), chatID, reqBody, "")
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Status  string `json:"status"`
		Err     string `json:"err"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(body, &decoded)

	if decoded.Status == "error" {
		msg := decoded.Err
		if msg == "" {
			msg = decoded.Message
		}
		if msg == "" {
			msg = "Промокод не применён"
		}
		return &PromocodeResult{OK: false, Message: msg, Raw: body}, nil
	}
	return &PromocodeResult{OK: true, Raw: body}, nil
}

// do performs one API call, attaching the identity headers and, when
// provided, the idempotency token. It returns the HTTP status and the raw
// body; non-2xx is not an error here.
func (c *Client) do(ctx context.Context, method, path, rawQuery, chatID string, body []byte, idempotencyToken string) (int, []byte, error) {
	u := c.baseURL + path
	if rawQuery != "" {
		u += "?" + rawQuery
	}

	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bearer", c.identity.Bearer)
	req.Header.Set("X-Device-Id", c.identity.DeviceID)
	if chatID == "" {
		chatID = c.identity.ChatID
	}
	req.Header.Set("X-Chat-Id", chatID)
	if c.identity.AppmetricaUUID != "" {
		req.Header.Set("X-Appmetrica-Uuid", c.identity.AppmetricaUUID)
	}
	if c.locator != nil {
		if coords, ok := c.locator.Current(); ok {
			req.Header.Set("X-User-Coords", coords.String())
		}
	}
	if idempotencyToken != "" {
		req.Header.Set("X-Idempotency-Token", idempotencyToken)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	return resp.StatusCode, respBody, nil
}
