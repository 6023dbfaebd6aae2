package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tradeguard/backend-quotes/internal/common"
	"github.com/tradeguard/backend-quotes/internal/events"
	"github.com/tradeguard/backend-quotes/internal/obs"
)

// EventEmitter matches the events bus surface the webhook needs.
type EventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any, targetURL string) (events.Event, error)
}

// SessionRecorder marks persisted checkout sessions as completed. Optional:
// webhooks for sessions created outside this service still process.
type SessionRecorder interface {
	MarkCompleted(ctx context.Context, sessionID string) error
}

// WebhookHandler receives provider webhooks, verifies them, guards against
// replays, and runs the completion sequence for checkout.session.completed.
type WebhookHandler struct {
	Provider  Provider
	Redis     *redis.Client
	ReplayTTL time.Duration
	Bus       EventEmitter
	Sessions  SessionRecorder
	Log       zerolog.Logger
	MaxBody   int64
}

// ServeHTTP handles POST /api/v1/webhooks/stripe.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	maxBody := h.MaxBody
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		countWebhook("read_failed")
		common.JSON(w, http.StatusBadRequest, map[string]any{"error": "unreadable_body"})
		return
	}

	event, err := h.Provider.VerifyWebhook(r, body)
	if err != nil {
		countWebhook("invalid_signature")
		h.Log.Warn().Err(err).Msg("payment: webhook signature rejected")
		common.JSON(w, http.StatusBadRequest, map[string]any{"error": "invalid_signature"})
		return
	}

	if h.seenBefore(r.Context(), body) {
		countWebhook("duplicate")
		h.Log.Info().Str("event_id", event.ID).Str("type", event.Type).Msg("payment: duplicate webhook skipped")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if event.Type != "checkout.session.completed" {
		countWebhook("ignored")
		common.JSON(w, http.StatusOK, map[string]any{"received": true})
		return
	}

	if err := h.processCompleted(r.Context(), event); err != nil {
		countWebhook("failed")
		h.Log.Error().Err(err).Str("event_id", event.ID).Msg("payment: webhook processing failed")
		common.JSON(w, http.StatusInternalServerError, map[string]any{"error": "webhook_handler_failed"})
		return
	}
	countWebhook("processed")
	common.JSON(w, http.StatusOK, map[string]any{"received": true})
}

// seenBefore claims the body digest in redis. First delivery wins; redis
// outages fail open so a provider retry is never dropped.
func (h *WebhookHandler) seenBefore(ctx context.Context, body []byte) bool {
	if h.Redis == nil {
		return false
	}
	ttl := h.ReplayTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	key := "wh:stripe:" + common.Sha256Hex(string(body))
	ok, err := h.Redis.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		h.Log.Warn().Err(err).Msg("payment: replay guard unavailable")
		return false
	}
	return !ok
}

func (h *WebhookHandler) processCompleted(ctx context.Context, event Event) error {
	var session CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return fmt.Errorf("parse session object: %w", err)
	}
	quoteID := session.Metadata["quote_id"]
	if quoteID == "" {
		quoteID = session.ClientReferenceID
	}
	if quoteID == "" {
		return fmt.Errorf("session %s has no quote reference", session.ID)
	}

	var paymentMethodID string
	if session.SetupIntent != "" {
		intent, err := h.Provider.GetSetupIntent(ctx, session.SetupIntent)
		if err != nil {
			return fmt.Errorf("retrieve setup intent: %w", err)
		}
		paymentMethodID = intent.PaymentMethod
		// The saved method is a convenience for later billing; losing it does
		// not invalidate the completed session.
		if paymentMethodID != "" && session.Customer != "" {
			if err := h.Provider.AttachPaymentMethod(ctx, paymentMethodID, session.Customer); err != nil {
				h.Log.Warn().Err(err).Str("session_id", session.ID).Msg("payment: attach payment method failed")
			}
			if err := h.Provider.SetDefaultPaymentMethod(ctx, session.Customer, paymentMethodID); err != nil {
				h.Log.Warn().Err(err).Str("session_id", session.ID).Msg("payment: set default payment method failed")
			}
		}
	}

	var policies []SelectionPolicy
	if raw := session.Metadata["policies_json"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &policies); err != nil {
			return fmt.Errorf("parse policies metadata: %w", err)
		}
	}
	for _, policy := range policies {
		amount := policy.InvoiceAmountCents()
		if amount <= 0 {
			continue
		}
		if err := h.Provider.CreateInvoiceItem(ctx, session.Customer, policy.Name, amount); err != nil {
			return fmt.Errorf("invoice item for %s: %w", policy.ID, err)
		}
	}

	invoice, err := h.Provider.CreateInvoice(ctx, session.Customer, map[string]string{
		"quote_id":          quoteID,
		"plan":              session.Metadata["plan"],
		"agent_email":       session.Metadata["agent_email"],
		"grand_total_cents": session.Metadata["grand_total_cents"],
	})
	if err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	finalized, err := h.Provider.FinalizeInvoice(ctx, invoice.ID)
	if err != nil {
		return fmt.Errorf("finalize invoice: %w", err)
	}

	if h.Sessions != nil {
		if err := h.Sessions.MarkCompleted(ctx, session.ID); err != nil {
			h.Log.Warn().Err(err).Str("session_id", session.ID).Msg("payment: session completion not recorded")
		}
	}

	grandTotalCents, _ := strconv.ParseInt(session.Metadata["grand_total_cents"], 10, 64)
	payload := map[string]any{
		"event":               "checkout_session_completed",
		"client_reference_id": session.ClientReferenceID,
		"quote_id":            quoteID,
		"client_name":         session.Metadata["client_name"],
		"plan":                session.Metadata["plan"],
		"grand_total_cents":   grandTotalCents,
		"policies":            policies,
		"stripe": map[string]any{
			"customer_id":        session.Customer,
			"setup_intent_id":    session.SetupIntent,
			"payment_method_id":  paymentMethodID,
			"invoice_id":         finalized.ID,
			"hosted_invoice_url": finalized.HostedInvoiceURL,
		},
	}
	if h.Bus != nil {
		if _, err := h.Bus.Emit(ctx, events.TopicSessionCompleted, quoteID, payload, session.Metadata["make_webhook_url"]); err != nil {
			return fmt.Errorf("emit completion event: %w", err)
		}
	}

	h.Log.Info().
		Str("quote_id", quoteID).
		Str("session_id", session.ID).
		Str("invoice_id", finalized.ID).
		Msg("payment: checkout session completed")
	return nil
}

func countWebhook(result string) {
	if obs.PaymentWebhookTotal != nil {
		obs.PaymentWebhookTotal.WithLabelValues("stripe", result).Inc()
	}
}
