// Package payment integrates the Stripe-hosted checkout flow: setup-mode
// session creation, webhook verification, and the post-completion invoice
// sequence.
package payment

import (
	"context"
	"encoding/json"
	"net/http"
)

// SessionRequest captures the information required to open a setup-mode
// checkout session.
type SessionRequest struct {
	QuoteID         string
	ClientName      string
	ClientEmail     string
	AgentEmail      string
	Plan            string
	GrandTotalCents int64
	PoliciesJSON    string
	MakeWebhookURL  string
	SuccessURL      string
	CancelURL       string
}

// Session is the minimal provider response for a created checkout session.
type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// SetupIntent carries the saved payment method reference.
type SetupIntent struct {
	ID            string `json:"id"`
	PaymentMethod string `json:"payment_method"`
	Status        string `json:"status"`
}

// Invoice is the provider invoice after creation or finalization.
type Invoice struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	HostedInvoiceURL string `json:"hosted_invoice_url"`
}

// Event is a verified webhook event envelope.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// CheckoutSession is the event object for checkout.session.* events.
type CheckoutSession struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	SetupIntent       string            `json:"setup_intent"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

// Provider abstracts the operations required from the upstream payment
// provider.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	VerifyWebhook(r *http.Request, body []byte) (Event, error)
	GetSetupIntent(ctx context.Context, id string) (SetupIntent, error)
	AttachPaymentMethod(ctx context.Context, paymentMethodID, customerID string) error
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error
	CreateInvoiceItem(ctx context.Context, customerID, description string, amountCents int64) error
	CreateInvoice(ctx context.Context, customerID string, metadata map[string]string) (Invoice, error)
	FinalizeInvoice(ctx context.Context, invoiceID string) (Invoice, error)
}

// SelectionPolicy mirrors the per-policy selection rows serialized into
// session metadata. Pointer fields keep the absent/zero distinction for the
// invoice amount fallback.
type SelectionPolicy struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	AmountCents    *int64 `json:"amountCents,omitempty"`
	TotalPaidCents *int64 `json:"totalPaidCents,omitempty"`
}

// InvoiceAmountCents resolves the amount to invoice for one policy:
// amountCents, then totalPaidCents, then 0.
func (p SelectionPolicy) InvoiceAmountCents() int64 {
	if p.AmountCents != nil {
		return *p.AmountCents
	}
	if p.TotalPaidCents != nil {
		return *p.TotalPaidCents
	}
	return 0
}
