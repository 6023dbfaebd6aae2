package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradeguard/backend-quotes/internal/events"
)

type invoiceItem struct {
	Customer    string
	Description string
	AmountCents int64
}

type fakeProvider struct {
	verifier *Stripe

	setupIntent     SetupIntent
	setupIntentErr  error
	attachErr       error
	setDefaultErr   error
	invoiceErr      error
	finalizeErr     error
	attached        []string
	defaulted       []string
	invoiceItems    []invoiceItem
	invoiceMetadata map[string]string
	finalizedID     string
}

func (f *fakeProvider) CreateCheckoutSession(context.Context, SessionRequest) (Session, error) {
	return Session{}, errors.New("not used")
}

func (f *fakeProvider) VerifyWebhook(r *http.Request, body []byte) (Event, error) {
	return f.verifier.VerifyWebhook(r, body)
}

func (f *fakeProvider) GetSetupIntent(_ context.Context, id string) (SetupIntent, error) {
	if f.setupIntentErr != nil {
		return SetupIntent{}, f.setupIntentErr
	}
	intent := f.setupIntent
	intent.ID = id
	return intent, nil
}

func (f *fakeProvider) AttachPaymentMethod(_ context.Context, pm, customer string) error {
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached = append(f.attached, pm+"->"+customer)
	return nil
}

func (f *fakeProvider) SetDefaultPaymentMethod(_ context.Context, customer, pm string) error {
	if f.setDefaultErr != nil {
		return f.setDefaultErr
	}
	f.defaulted = append(f.defaulted, customer+"<-"+pm)
	return nil
}

func (f *fakeProvider) CreateInvoiceItem(_ context.Context, customer, description string, amountCents int64) error {
	f.invoiceItems = append(f.invoiceItems, invoiceItem{Customer: customer, Description: description, AmountCents: amountCents})
	return nil
}

func (f *fakeProvider) CreateInvoice(_ context.Context, customer string, metadata map[string]string) (Invoice, error) {
	if f.invoiceErr != nil {
		return Invoice{}, f.invoiceErr
	}
	f.invoiceMetadata = metadata
	return Invoice{ID: "in_1", Status: "draft"}, nil
}

func (f *fakeProvider) FinalizeInvoice(_ context.Context, id string) (Invoice, error) {
	if f.finalizeErr != nil {
		return Invoice{}, f.finalizeErr
	}
	f.finalizedID = id
	return Invoice{ID: id, Status: "open", HostedInvoiceURL: "https://invoice.stripe.test/in_1"}, nil
}

type recordedEmit struct {
	Topic       string
	AggregateID string
	Payload     any
	TargetURL   string
}

type fakeEmitter struct {
	emits []recordedEmit
	err   error
}

func (f *fakeEmitter) Emit(_ context.Context, topic, aggregateID string, payload any, targetURL string) (events.Event, error) {
	if f.err != nil {
		return events.Event{}, f.err
	}
	f.emits = append(f.emits, recordedEmit{Topic: topic, AggregateID: aggregateID, Payload: payload, TargetURL: targetURL})
	return events.Event{ID: "ev-1", Topic: topic}, nil
}

type fakeSessionRecorder struct {
	completed []string
}

func (f *fakeSessionRecorder) MarkCompleted(_ context.Context, sessionID string) error {
	f.completed = append(f.completed, sessionID)
	return nil
}

func completedEventBody(t *testing.T, metadata map[string]string) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":   "evt_1",
		"type": "checkout.session.completed",
		"data": map[string]any{
			"object": map[string]any{
				"id":                  "cs_1",
				"customer":            "cus_1",
				"setup_intent":        "seti_1",
				"client_reference_id": "Q-1",
				"metadata":            metadata,
			},
		},
	})
	require.NoError(t, err)
	return body
}

func signedRequest(t *testing.T, secret string, now time.Time, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", SignPayload(secret, now.Unix(), body))
	return req
}

func newWebhookHandler(t *testing.T, provider *fakeProvider) (*WebhookHandler, *fakeEmitter, *fakeSessionRecorder) {
	t.Helper()
	mr := miniredis.RunT(t)
	bus := &fakeEmitter{}
	sessions := &fakeSessionRecorder{}
	return &WebhookHandler{
		Provider:  provider,
		Redis:     redis.NewClient(&redis.Options{Addr: mr.Addr()}),
		ReplayTTL: time.Hour,
		Bus:       bus,
		Sessions:  sessions,
		Log:       zerolog.Nop(),
	}, bus, sessions
}

func defaultMetadata() map[string]string {
	return map[string]string{
		"quote_id":          "Q-1",
		"client_name":       "Acme Trucking LLC",
		"agent_email":       "agent@tradeguard.test",
		"plan":              "10",
		"grand_total_cents": "225000",
		"policies_json":     `[{"id":"a","name":"Auto Liability","amountCents":130000},{"id":"b","name":"Cargo","totalPaidCents":104000},{"id":"c","name":"Zero","amountCents":0}]`,
		"make_webhook_url":  "https://hook.make.test/abc",
	}
}

func TestWebhookCompletedFlow(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	provider := &fakeProvider{verifier: verifier, setupIntent: SetupIntent{PaymentMethod: "pm_1", Status: "succeeded"}}
	handler, bus, sessions := newWebhookHandler(t, provider)

	body := completedEventBody(t, defaultMetadata())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())

	require.Equal(t, []string{"pm_1->cus_1"}, provider.attached)
	require.Equal(t, []string{"cus_1<-pm_1"}, provider.defaulted)

	// Zero-amount lines are skipped.
	require.Len(t, provider.invoiceItems, 2)
	require.Equal(t, invoiceItem{Customer: "cus_1", Description: "Auto Liability", AmountCents: 130000}, provider.invoiceItems[0])
	require.Equal(t, invoiceItem{Customer: "cus_1", Description: "Cargo", AmountCents: 104000}, provider.invoiceItems[1])

	require.Equal(t, "Q-1", provider.invoiceMetadata["quote_id"])
	require.Equal(t, "10", provider.invoiceMetadata["plan"])
	require.Equal(t, "in_1", provider.finalizedID)
	require.Equal(t, []string{"cs_1"}, sessions.completed)

	require.Len(t, bus.emits, 1)
	emit := bus.emits[0]
	require.Equal(t, events.TopicSessionCompleted, emit.Topic)
	require.Equal(t, "Q-1", emit.AggregateID)
	require.Equal(t, "https://hook.make.test/abc", emit.TargetURL)

	payload, ok := emit.Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "checkout_session_completed", payload["event"])
	require.Equal(t, "Acme Trucking LLC", payload["client_name"])
	require.Equal(t, int64(225000), payload["grand_total_cents"])
	stripeInfo, ok := payload["stripe"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "cus_1", stripeInfo["customer_id"])
	require.Equal(t, "pm_1", stripeInfo["payment_method_id"])
	require.Equal(t, "https://invoice.stripe.test/in_1", stripeInfo["hosted_invoice_url"])
}

func TestWebhookInvalidSignature(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	handler, bus, _ := newWebhookHandler(t, &fakeProvider{verifier: verifier})

	body := completedEventBody(t, defaultMetadata())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_wrong", now, body))
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.JSONEq(t, `{"error":"invalid_signature"}`, rr.Body.String())
	require.Empty(t, bus.emits)
}

func TestWebhookReplaySkipped(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	provider := &fakeProvider{verifier: verifier, setupIntent: SetupIntent{PaymentMethod: "pm_1"}}
	handler, bus, _ := newWebhookHandler(t, provider)

	body := completedEventBody(t, defaultMetadata())
	for i := 0; i < 2; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
		require.Equal(t, http.StatusOK, rr.Code)
	}
	require.Len(t, bus.emits, 1, "second delivery is a replay")
	require.Len(t, provider.invoiceItems, 2)
}

func TestWebhookUnhandledEventAcknowledged(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	handler, bus, _ := newWebhookHandler(t, &fakeProvider{verifier: verifier})

	body := []byte(`{"id":"evt_2","type":"invoice.paid","data":{"object":{}}}`)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"received":true}`, rr.Body.String())
	require.Empty(t, bus.emits)
}

func TestWebhookProcessingFailure(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	provider := &fakeProvider{verifier: verifier, invoiceErr: errors.New("stripe down")}
	handler, _, _ := newWebhookHandler(t, provider)

	body := completedEventBody(t, defaultMetadata())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.JSONEq(t, `{"error":"webhook_handler_failed"}`, rr.Body.String())
}

func TestWebhookAttachFailureTolerated(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	provider := &fakeProvider{
		verifier:      verifier,
		setupIntent:   SetupIntent{PaymentMethod: "pm_1"},
		attachErr:     errors.New("already attached"),
		setDefaultErr: errors.New("nope"),
	}
	handler, bus, _ := newWebhookHandler(t, provider)

	body := completedEventBody(t, defaultMetadata())
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, bus.emits, 1)
	require.Equal(t, "in_1", provider.finalizedID, "invoice flow continues past attach failures")
}

func TestWebhookFallsBackToClientReference(t *testing.T) {
	now := time.Now()
	verifier := &Stripe{WebhookSecret: "whsec_test"}
	verifier.WithNow(func() time.Time { return now })
	provider := &fakeProvider{verifier: verifier}
	handler, bus, _ := newWebhookHandler(t, provider)

	metadata := defaultMetadata()
	delete(metadata, "quote_id")
	body := completedEventBody(t, metadata)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, signedRequest(t, "whsec_test", now, body))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Len(t, bus.emits, 1)
	require.Equal(t, "Q-1", bus.emits[0].AggregateID)
}
