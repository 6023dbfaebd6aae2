package payment

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSessionForm(t *testing.T) {
	var form map[string][]string
	var auth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseForm())
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"cs_123","url":"https://checkout.stripe.test/cs_123"}`))
	}))
	defer server.Close()

	client := &Stripe{SecretKey: "sk_test_abc", BaseURL: server.URL}
	session, err := client.CreateCheckoutSession(context.Background(), SessionRequest{
		QuoteID:         "Q-1",
		ClientName:      "Acme Trucking LLC",
		ClientEmail:     "owner@acme.test",
		AgentEmail:      "agent@tradeguard.test",
		Plan:            "10",
		GrandTotalCents: 225000,
		PoliciesJSON:    `[{"id":"a","name":"Auto Liability","amountCents":130000}]`,
		MakeWebhookURL:  "https://hook.make.test/abc",
		SuccessURL:      "https://quotes.test/done",
		CancelURL:       "https://quotes.test/back",
	})
	require.NoError(t, err)
	require.Equal(t, "cs_123", session.ID)
	require.Equal(t, "https://checkout.stripe.test/cs_123", session.URL)

	require.Equal(t, "Bearer sk_test_abc", auth)
	require.Equal(t, "setup", form["mode"][0])
	require.Equal(t, "card", form["payment_method_types[0]"][0])
	require.Equal(t, "us_bank_account", form["payment_method_types[1]"][0])
	require.Equal(t, "always", form["customer_creation"][0])
	require.Equal(t, "Q-1", form["client_reference_id"][0])
	require.Equal(t, "owner@acme.test", form["customer_email"][0])
	require.Equal(t, "Q-1", form["metadata[quote_id]"][0])
	require.Equal(t, "225000", form["metadata[grand_total_cents]"][0])
	require.Equal(t, "https://hook.make.test/abc", form["metadata[make_webhook_url]"][0])
}

func TestCreateCheckoutSessionOmitsEmptyEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, present := r.PostForm["customer_email"]
		require.False(t, present)
		_, _ = w.Write([]byte(`{"id":"cs_1","url":"https://x"}`))
	}))
	defer server.Close()

	client := &Stripe{SecretKey: "sk", BaseURL: server.URL}
	_, err := client.CreateCheckoutSession(context.Background(), SessionRequest{QuoteID: "Q-1"})
	require.NoError(t, err)
}

func TestStripeErrorBodySurfaced(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		_, _ = w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"No such customer"}}`))
	}))
	defer server.Close()

	client := &Stripe{SecretKey: "sk", BaseURL: server.URL}
	err := client.AttachPaymentMethod(context.Background(), "pm_1", "cus_missing")
	require.Error(t, err)
	require.Contains(t, err.Error(), "No such customer")
	require.Contains(t, err.Error(), "invalid_request_error")
}

func TestVerifyWebhook(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"checkout.session.completed","data":{"object":{"id":"cs_1"}}}`)
	now := time.Now()
	client := &Stripe{WebhookSecret: "whsec_test"}
	client.WithNow(func() time.Time { return now })

	signed := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	signed.Header.Set("Stripe-Signature", SignPayload("whsec_test", now.Unix(), body))
	event, err := client.VerifyWebhook(signed, body)
	require.NoError(t, err)
	require.Equal(t, "evt_1", event.ID)
	require.Equal(t, "checkout.session.completed", event.Type)

	unsigned := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	_, err = client.VerifyWebhook(unsigned, body)
	require.Error(t, err)

	wrongSecret := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	wrongSecret.Header.Set("Stripe-Signature", SignPayload("whsec_other", now.Unix(), body))
	_, err = client.VerifyWebhook(wrongSecret, body)
	require.Error(t, err)

	tampered := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	tampered.Header.Set("Stripe-Signature", SignPayload("whsec_test", now.Unix(), []byte(`{}`)))
	_, err = client.VerifyWebhook(tampered, body)
	require.Error(t, err)

	stale := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	stale.Header.Set("Stripe-Signature", SignPayload("whsec_test", now.Add(-10*time.Minute).Unix(), body))
	_, err = client.VerifyWebhook(stale, body)
	require.Error(t, err, "timestamp outside default tolerance")

	malformed := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	malformed.Header.Set("Stripe-Signature", "v1=deadbeef")
	_, err = client.VerifyWebhook(malformed, body)
	require.Error(t, err)
}

func TestVerifyWebhookCustomTolerance(t *testing.T) {
	body := []byte(`{"id":"evt_1","type":"x"}`)
	now := time.Now()
	client := &Stripe{WebhookSecret: "whsec_test", Tolerance: 30 * time.Minute}
	client.WithNow(func() time.Time { return now })

	r := httptest.NewRequest(http.MethodPost, "/webhook", nil)
	r.Header.Set("Stripe-Signature", SignPayload("whsec_test", now.Add(-10*time.Minute).Unix(), body))
	_, err := client.VerifyWebhook(r, body)
	require.NoError(t, err)
}

func TestInvoiceAmountFallback(t *testing.T) {
	cents := func(v int64) *int64 { return &v }

	require.Equal(t, int64(130000), SelectionPolicy{AmountCents: cents(130000), TotalPaidCents: cents(1)}.InvoiceAmountCents())
	require.Equal(t, int64(104000), SelectionPolicy{TotalPaidCents: cents(104000)}.InvoiceAmountCents())
	require.Equal(t, int64(0), SelectionPolicy{}.InvoiceAmountCents())
	require.Equal(t, int64(0), SelectionPolicy{AmountCents: cents(0), TotalPaidCents: cents(104000)}.InvoiceAmountCents(),
		"an explicit zero is present, not absent")
}
