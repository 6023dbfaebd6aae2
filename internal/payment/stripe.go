package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const defaultStripeBaseURL = "https://api.stripe.com"

// Stripe implements Provider against the Stripe REST API with form-encoded
// requests, the same way the other provider clients are written by hand.
type Stripe struct {
	SecretKey     string
	WebhookSecret string
	BaseURL       string
	Tolerance     time.Duration
	Client        *http.Client

	now func() time.Time
}

// WithNow overrides the clock used for webhook tolerance checks, for tests.
func (s *Stripe) WithNow(now func() time.Time) { s.now = now }

func (s *Stripe) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

func (s *Stripe) baseURL() string {
	if strings.TrimSpace(s.BaseURL) == "" {
		return defaultStripeBaseURL
	}
	return strings.TrimRight(s.BaseURL, "/")
}

func (s *Stripe) httpClient() *http.Client {
	if s.Client != nil {
		return s.Client
	}
	return &http.Client{Timeout: 15 * time.Second}
}

// CreateCheckoutSession opens a setup-mode session: the hosted page collects
// a payment method without charging, and everything needed later rides in
// metadata.
func (s *Stripe) CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error) {
	form := url.Values{}
	form.Set("mode", "setup")
	form.Set("payment_method_types[0]", "card")
	form.Set("payment_method_types[1]", "us_bank_account")
	form.Set("customer_creation", "always")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("client_reference_id", req.QuoteID)
	if req.ClientEmail != "" {
		form.Set("customer_email", req.ClientEmail)
	}
	form.Set("metadata[quote_id]", req.QuoteID)
	form.Set("metadata[client_name]", req.ClientName)
	form.Set("metadata[agent_email]", req.AgentEmail)
	form.Set("metadata[plan]", req.Plan)
	form.Set("metadata[grand_total_cents]", strconv.FormatInt(req.GrandTotalCents, 10))
	form.Set("metadata[policies_json]", req.PoliciesJSON)
	form.Set("metadata[make_webhook_url]", req.MakeWebhookURL)

	var session Session
	if err := s.postForm(ctx, "/v1/checkout/sessions", form, &session); err != nil {
		return Session{}, err
	}
	return session, nil
}

// GetSetupIntent retrieves the setup intent created by a completed session.
func (s *Stripe) GetSetupIntent(ctx context.Context, id string) (SetupIntent, error) {
	var intent SetupIntent
	if err := s.getJSON(ctx, "/v1/setup_intents/"+url.PathEscape(id), &intent); err != nil {
		return SetupIntent{}, err
	}
	return intent, nil
}

// AttachPaymentMethod attaches the saved payment method to the customer.
func (s *Stripe) AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error {
	form := url.Values{}
	form.Set("customer", customerID)
	return s.postForm(ctx, "/v1/payment_methods/"+url.PathEscape(paymentMethodID)+"/attach", form, nil)
}

// SetDefaultPaymentMethod makes the payment method the customer's invoice
// default.
func (s *Stripe) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	form := url.Values{}
	form.Set("invoice_settings[default_payment_method]", paymentMethodID)
	return s.postForm(ctx, "/v1/customers/"+url.PathEscape(customerID), form, nil)
}

// CreateInvoiceItem adds one pending invoice line for the customer.
func (s *Stripe) CreateInvoiceItem(ctx context.Context, customerID, description string, amountCents int64) error {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("currency", "usd")
	form.Set("description", description)
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	return s.postForm(ctx, "/v1/invoiceitems", form, nil)
}

// CreateInvoice creates a draft invoice that is never auto-charged: it uses
// send_invoice collection and finalization stays explicit.
func (s *Stripe) CreateInvoice(ctx context.Context, customerID string, metadata map[string]string) (Invoice, error) {
	form := url.Values{}
	form.Set("customer", customerID)
	form.Set("collection_method", "send_invoice")
	form.Set("auto_advance", "false")
	form.Set("days_until_due", "30")
	for k, v := range metadata {
		form.Set("metadata["+k+"]", v)
	}
	var invoice Invoice
	if err := s.postForm(ctx, "/v1/invoices", form, &invoice); err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

// FinalizeInvoice finalizes the draft so a hosted invoice URL exists. The
// invoice is not sent.
func (s *Stripe) FinalizeInvoice(ctx context.Context, invoiceID string) (Invoice, error) {
	var invoice Invoice
	if err := s.postForm(ctx, "/v1/invoices/"+url.PathEscape(invoiceID)+"/finalize", url.Values{}, &invoice); err != nil {
		return Invoice{}, err
	}
	return invoice, nil
}

// VerifyWebhook checks the Stripe-Signature header (t=<ts>,v1=<hmac>) against
// the webhook secret and parses the event envelope. The signed payload is
// "<ts>.<body>"; the timestamp must fall within the configured tolerance.
func (s *Stripe) VerifyWebhook(r *http.Request, body []byte) (Event, error) {
	header := strings.TrimSpace(r.Header.Get("Stripe-Signature"))
	if header == "" {
		return Event{}, errors.New("missing signature header")
	}
	if strings.TrimSpace(s.WebhookSecret) == "" {
		return Event{}, errors.New("webhook secret not configured")
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return Event{}, fmt.Errorf("malformed timestamp: %w", err)
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, v)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return Event{}, errors.New("malformed signature header")
	}

	tolerance := s.Tolerance
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	if math.Abs(s.clock().Sub(time.Unix(ts, 0)).Seconds()) > tolerance.Seconds() {
		return Event{}, errors.New("timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(s.WebhookSecret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	valid := false
	for _, candidate := range candidates {
		if hmac.Equal([]byte(expected), []byte(candidate)) {
			valid = true
			break
		}
	}
	if !valid {
		return Event{}, errors.New("signature mismatch")
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		return Event{}, fmt.Errorf("parse event: %w", err)
	}
	return event, nil
}

// SignPayload renders a valid Stripe-Signature header value for the payload.
// Exposed for tests and local tooling.
func SignPayload(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type stripeError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (s *Stripe) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL()+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return s.do(req, out)
}

func (s *Stripe) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL()+path, nil)
	if err != nil {
		return err
	}
	return s.do(req, out)
}

func (s *Stripe) do(req *http.Request, out any) error {
	req.Header.Set("Authorization", "Bearer "+s.SecretKey)
	resp, err := s.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("stripe request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("stripe response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr stripeError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s: %s (%s)", req.URL.Path, apiErr.Error.Message, apiErr.Error.Type)
		}
		return fmt.Errorf("stripe %s: status %d", req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
