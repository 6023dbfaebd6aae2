// Package checkout opens provider-hosted payment sessions for accepted
// quotes.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/tradeguard/backend-quotes/internal/common"
	"github.com/tradeguard/backend-quotes/internal/obs"
	"github.com/tradeguard/backend-quotes/internal/payment"
	"github.com/tradeguard/backend-quotes/internal/pricing"
)

// Request is the payload for POST /api/v1/checkout-session.
type Request struct {
	QuoteID         string                    `json:"quoteId" validate:"required"`
	ClientName      string                    `json:"clientName" validate:"required"`
	ClientEmail     string                    `json:"clientEmail" validate:"omitempty,email"`
	AgentEmail      string                    `json:"agentEmail" validate:"omitempty,email"`
	Plan            pricing.Plan              `json:"plan"`
	GrandTotalCents int64                     `json:"grandTotalCents" validate:"gte=0"`
	Policies        []payment.SelectionPolicy `json:"policies" validate:"min=1"`
	MakeWebhookURL  string                    `json:"makeWebhookUrl" validate:"omitempty,url"`
	SuccessURL      string                    `json:"successUrl" validate:"omitempty,url"`
	CancelURL       string                    `json:"cancelUrl" validate:"omitempty,url"`
}

// Result is returned to the caller; the URL is the hosted checkout page.
type Result struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

// SessionStore persists created sessions.
type SessionStore interface {
	InsertSession(ctx context.Context, id, quoteID, provider string, amountCents int64) error
}

// Service validates requests and opens sessions with the payment provider.
// A failed provider call is surfaced immediately; there is no retry, the
// client simply asks for a new session.
type Service struct {
	Provider          payment.Provider
	Store             SessionStore
	DefaultSuccessURL string
	DefaultCancelURL  string
	Log               zerolog.Logger

	validate *validator.Validate
}

func (s *Service) validator() *validator.Validate {
	if s.validate == nil {
		s.validate = validator.New(validator.WithRequiredStructEnabled())
	}
	return s.validate
}

// Create opens a setup-mode checkout session for the request.
func (s *Service) Create(ctx context.Context, req Request) (Result, error) {
	if err := s.validator().Struct(req); err != nil {
		return Result{}, common.ErrInvalid("invalid checkout request", validationDetails(err))
	}

	policiesJSON, err := json.Marshal(req.Policies)
	if err != nil {
		return Result{}, common.ErrInternal(err)
	}

	session, err := s.Provider.CreateCheckoutSession(ctx, payment.SessionRequest{
		QuoteID:         req.QuoteID,
		ClientName:      req.ClientName,
		ClientEmail:     req.ClientEmail,
		AgentEmail:      req.AgentEmail,
		Plan:            planMetadata(req.Plan),
		GrandTotalCents: req.GrandTotalCents,
		PoliciesJSON:    string(policiesJSON),
		MakeWebhookURL:  req.MakeWebhookURL,
		SuccessURL:      firstNonEmpty(req.SuccessURL, s.DefaultSuccessURL),
		CancelURL:       firstNonEmpty(req.CancelURL, s.DefaultCancelURL),
	})
	if err != nil {
		countSession("failed")
		s.Log.Error().Err(err).Str("quote_id", req.QuoteID).Msg("checkout: provider session creation failed")
		return Result{}, common.NewAppError("SESSION_CREATE_FAILED", "unable to create payment session", http.StatusBadGateway, nil)
	}
	countSession("created")

	// The provider session exists regardless of whether the local record
	// lands, so a store failure only degrades reporting.
	if s.Store != nil {
		if storeErr := s.Store.InsertSession(ctx, session.ID, req.QuoteID, "stripe", req.GrandTotalCents); storeErr != nil {
			s.Log.Warn().Err(storeErr).Str("session_id", session.ID).Msg("checkout: session record not persisted")
		}
	}

	s.Log.Info().Str("quote_id", req.QuoteID).Str("session_id", session.ID).
		Int64("grand_total_cents", req.GrandTotalCents).Msg("checkout: session created")
	return Result{SessionID: session.ID, URL: session.URL}, nil
}

func planMetadata(plan pricing.Plan) string {
	if plan.IsFull() {
		return "full"
	}
	return strconv.Itoa(plan.Count())
}

func validationDetails(err error) any {
	var invalid validator.ValidationErrors
	if !errors.As(err, &invalid) {
		return map[string]any{"error": err.Error()}
	}
	fields := make(map[string]string, len(invalid))
	for _, fe := range invalid {
		fields[fe.Field()] = fe.Tag()
	}
	return fields
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func countSession(result string) {
	if obs.CheckoutSessionsTotal != nil {
		obs.CheckoutSessionsTotal.WithLabelValues("stripe", result).Inc()
	}
}
