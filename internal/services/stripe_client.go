package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ctmsgb/booking-backend/internal/config"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	circuit "github.com/rubyist/circuitbreaker"
)

// ErrProviderUnavailable is returned while the circuit breaker is open
var ErrProviderUnavailable = errors.New("payment provider temporarily unavailable")

// CheckoutParams describes one hosted checkout
type CheckoutParams struct {
	BookingID   uuid.UUID
	PaymentID   uuid.UUID
	Amount      float64
	Currency    string
	Description string
}

// CheckoutSession is the provider's hosted payment page
type CheckoutSession struct {
	ID            string  `json:"id"`
	URL           string  `json:"url"`
	PaymentIntent *string `json:"payment_intent"`
}

// StripeClient creates Checkout Sessions over the Stripe REST API. Calls go
// through a threshold circuit breaker so a failing provider does not pile up
// blocked requests.
type StripeClient struct {
	cfg  config.StripeConfig
	http *circuit.HTTPClient
}

// NewStripeClient creates a new StripeClient
func NewStripeClient(cfg config.StripeConfig) *StripeClient {
	return &StripeClient{
		cfg:  cfg,
		http: circuit.NewHTTPClient(cfg.Timeout, cfg.BreakerThreshold, &http.Client{Timeout: cfg.Timeout}),
	}
}

// CreateCheckoutSession starts a one-off card payment for a booking
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", c.cfg.SuccessURL)
	form.Set("cancel_url", c.cfg.CancelURL)
	form.Set("client_reference_id", params.BookingID.String())
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(params.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(int64(math.Round(params.Amount*100)), 10))
	form.Set("line_items[0][price_data][product_data][name]", params.Description)
	form.Set("metadata[booking_id]", params.BookingID.String())
	form.Set("metadata[payment_id]", params.PaymentID.String())

	endpoint := strings.TrimRight(c.cfg.APIURL, "/") + "/v1/checkout/sessions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build checkout request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Idempotency-Key", "checkout-"+params.PaymentID.String())

	resp, err := c.http.Do(req)
	if errors.Is(err, circuit.ErrBreakerOpen) {
		return nil, ErrProviderUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("checkout request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkout response: %w", err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices {
		var apiErr struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
		}
		_ = json.Unmarshal(body, &apiErr)
		return nil, fmt.Errorf("checkout rejected with status %d: %s", resp.StatusCode, apiErr.Error.Message)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to decode checkout session: %w", err)
	}
	if session.ID == "" || session.URL == "" {
		return nil, fmt.Errorf("checkout session response is incomplete")
	}
	return &session, nil
}
