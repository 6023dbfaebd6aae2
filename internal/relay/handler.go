package relay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/tls"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tradeguard/backend-quotes/internal/obs"
)

// Handler executes relay deliveries. Failures are logged and swallowed so the
// task never requeues; the downstream automation flow tolerates missed events.
type Handler struct {
	Client        *http.Client
	DefaultURL    string
	APIKey        string
	SigningSecret string
	Log           zerolog.Logger
}

// ProcessTask implements asynq.Handler for TypeDeliver tasks.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p DeliverPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		h.Log.Error().Err(err).Msg("relay: malformed task payload")
		return nil
	}
	target := p.TargetURL
	if target == "" {
		target = h.DefaultURL
	}
	if target == "" {
		h.Log.Warn().Str("event_id", p.EventID).Str("topic", p.Topic).Msg("relay: no target url configured, dropping")
		h.observe("dropped", 0)
		return nil
	}

	start := time.Now()
	status, err := h.deliver(ctx, target, p)
	switch {
	case err != nil:
		h.Log.Warn().Err(err).Str("event_id", p.EventID).Str("topic", p.Topic).Msg("relay: delivery failed")
		h.observe("failed", time.Since(start))
	case status < 200 || status >= 300:
		h.Log.Warn().Int("status", status).Str("event_id", p.EventID).Str("topic", p.Topic).Msg("relay: non-2xx response")
		h.observe("failed", time.Since(start))
	default:
		h.Log.Info().Int("status", status).Str("event_id", p.EventID).Str("topic", p.Topic).Msg("relay: delivered")
		h.observe("delivered", time.Since(start))
	}
	return nil
}

func (h *Handler) deliver(ctx context.Context, target string, p DeliverPayload) (int, error) {
	// Handler is shared across asynq workers; never mutate it here.
	client := h.Client
	if client == nil {
		client = HTTPClient(5000, false)
	}
	body, err := json.Marshal(struct {
		EventID    string          `json:"eventId"`
		Topic      string          `json:"topic"`
		Data       json.RawMessage `json:"data"`
		OccurredAt time.Time       `json:"occurredAt"`
	}{p.EventID, p.Topic, p.Body, p.OccurredAt})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tradeguard-quotes/1.0")
	if h.APIKey != "" {
		req.Header.Set("x-make-apikey", h.APIKey)
	}
	if h.SigningSecret != "" {
		ts := time.Now().Unix()
		req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
		req.Header.Set("X-Event-ID", p.EventID)
		req.Header.Set("X-Signature", ComputeSignature(h.SigningSecret, ts, p.EventID, body))
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	return resp.StatusCode, nil
}

func (h *Handler) observe(result string, d time.Duration) {
	if obs.RelayDeliveriesTotal != nil {
		obs.RelayDeliveriesTotal.WithLabelValues(result).Inc()
	}
	if obs.RelayAttemptLatency != nil && d > 0 {
		obs.RelayAttemptLatency.WithLabelValues(result).Observe(obs.DurationMillis(d))
	}
}

// ComputeSignature calculates the relay signature for the provided payload.
// The format is HMAC-SHA256 over "<ts>.<eventID>.<body>" using the secret.
func ComputeSignature(secret string, ts int64, eventID string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(ts, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write([]byte(eventID))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// HTTPClient returns an HTTP client configured for relay delivery.
func HTTPClient(timeoutMs int, insecure bool) *http.Client {
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}
	transport := &http.Transport{}
	if insecure {
		transport.TLSClientConfig = insecureTLSConfig
	}
	return &http.Client{
		Timeout:   time.Duration(timeoutMs) * time.Millisecond,
		Transport: otelhttp.NewTransport(transport),
	}
}

var insecureTLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
