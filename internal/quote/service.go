package quote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tradeguard/backend-quotes/internal/common"
	"github.com/tradeguard/backend-quotes/internal/epay"
	"github.com/tradeguard/backend-quotes/internal/events"
	"github.com/tradeguard/backend-quotes/internal/obs"
	"github.com/tradeguard/backend-quotes/internal/pricing"
)

// DocumentStore abstracts quote persistence for the service.
type DocumentStore interface {
	Create(ctx context.Context, id string, document []byte) error
	Get(ctx context.Context, id string) ([]byte, error)
	List(ctx context.Context, limit, offset int) ([]ListItem, int, error)
}

// EventEmitter persists a domain event and schedules its relay.
type EventEmitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any, targetURL string) (events.Event, error)
}

// Service orchestrates document persistence, caching, and derived views.
type Service struct {
	Store    DocumentStore
	Cache    *Cache
	Bus      EventEmitter
	Epay     *epay.Builder
	ShareURL func(id string) string
	Log      zerolog.Logger
}

// CreateResult is returned after persisting a document.
type CreateResult struct {
	ID       string `json:"id"`
	ShareURL string `json:"shareUrl,omitempty"`
}

// Create validates and stores the submitted document verbatim. The id is
// derived from the quote number when one is present; an id collision falls
// back to a random identifier so re-submissions of the same quote number
// never overwrite an existing document.
func (s *Service) Create(ctx context.Context, raw []byte) (CreateResult, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return CreateResult{}, common.ErrInvalid("invalid quote document", map[string]any{"error": err.Error()})
	}
	if err := doc.Validate(); err != nil {
		return CreateResult{}, common.ErrInvalid(err.Error(), nil)
	}

	id := NewID(doc.QuoteNumber)
	err := s.Store.Create(ctx, id, raw)
	if errors.Is(err, ErrDuplicateID) {
		id = "q-" + uuid.NewString()
		err = s.Store.Create(ctx, id, raw)
	}
	if err != nil {
		return CreateResult{}, fmt.Errorf("create quote: %w", err)
	}
	if cacheErr := s.Cache.Set(ctx, id, raw); cacheErr != nil {
		s.Log.Warn().Err(cacheErr).Str("quote_id", id).Msg("quote: cache write failed")
	}
	if obs.QuotesCreatedTotal != nil {
		obs.QuotesCreatedTotal.Inc()
	}
	if s.Bus != nil {
		if _, err := s.Bus.Emit(ctx, events.TopicQuoteCreated, id, map[string]any{
			"quoteId":    id,
			"clientName": doc.Client.Name,
			"agentEmail": doc.Agent.Email,
		}, doc.WebhookURL); err != nil {
			s.Log.Warn().Err(err).Str("quote_id", id).Msg("quote: emit created event failed")
		}
	}

	result := CreateResult{ID: id}
	if s.ShareURL != nil {
		result.ShareURL = s.ShareURL(id)
	}
	return result, nil
}

// Raw returns the stored document bytes, cache first.
func (s *Service) Raw(ctx context.Context, id string) ([]byte, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, common.ErrNotFound("quote not found")
	}
	if data, hit, err := s.Cache.Get(ctx, id); err != nil {
		s.Log.Warn().Err(err).Str("quote_id", id).Msg("quote: cache read failed")
	} else if hit {
		countLoad("cache", "hit")
		return data, nil
	}
	data, err := s.Store.Get(ctx, id)
	if err != nil {
		if common.IsAppError(err) {
			countLoad("db", "miss")
		} else {
			countLoad("db", "error")
		}
		return nil, err
	}
	countLoad("db", "hit")
	if cacheErr := s.Cache.Set(ctx, id, data); cacheErr != nil {
		s.Log.Warn().Err(cacheErr).Str("quote_id", id).Msg("quote: cache write failed")
	}
	return data, nil
}

// Load parses the stored document. A stored document that no longer parses is
// treated as not found: the page renders fully or not at all.
func (s *Service) Load(ctx context.Context, id string) (*Document, error) {
	raw, err := s.Raw(ctx, id)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.Log.Error().Err(err).Str("quote_id", id).Msg("quote: stored document is malformed")
		return nil, common.ErrNotFound("quote not found")
	}
	return &doc, nil
}

// MetricsView is the derived portfolio payload.
type MetricsView struct {
	pricing.PortfolioMetrics
	CoverageAreas []string `json:"coverageAreas"`
}

// Metrics computes the portfolio aggregates for one quote.
func (s *Service) Metrics(ctx context.Context, id string) (MetricsView, error) {
	doc, err := s.Load(ctx, id)
	if err != nil {
		return MetricsView{}, err
	}
	return MetricsView{
		PortfolioMetrics: pricing.Metrics(doc.Policies),
		CoverageAreas:    pricing.CoverageAreas(doc.ComparisonMatrix),
	}, nil
}

// SummaryRequest selects a plan and a subset of policies.
type SummaryRequest struct {
	Plan      pricing.Plan `json:"plan"`
	PolicyIDs []string     `json:"policyIds"`
}

// SummaryView carries everything the decision page shows for one selection.
type SummaryView struct {
	Plan          pricing.Plan           `json:"plan"`
	PlanLabel     string                 `json:"planLabel"`
	AllowedCounts []int                  `json:"allowedCounts"`
	PerPolicy     []pricing.SelectionRow `json:"perPolicy"`
	GrandTotal    float64                `json:"grandTotal"`
	EpayURL       string                 `json:"epayUrl,omitempty"`
}

// Summary computes selection totals and the accept-payment redirect for a
// quote. Selected policies without a plan for the requested count contribute
// zero; the anomaly is logged and counted.
func (s *Service) Summary(ctx context.Context, id string, req SummaryRequest) (SummaryView, error) {
	if len(req.PolicyIDs) == 0 {
		return SummaryView{}, common.ErrInvalid("policyIds must not be empty", nil)
	}
	doc, err := s.Load(ctx, id)
	if err != nil {
		return SummaryView{}, err
	}
	for _, pid := range req.PolicyIDs {
		if _, ok := doc.PolicyByID(pid); !ok {
			return SummaryView{}, common.ErrInvalid("unknown policy id", map[string]any{"policyId": pid})
		}
	}

	totals := pricing.SelectionTotals(req.Plan, doc.Policies, req.PolicyIDs)
	for _, name := range totals.UnpricedPolicies() {
		s.Log.Warn().Str("quote_id", id).Str("policy", name).Int("count", req.Plan.Count()).
			Msg("quote: selected policy has no plan for requested count")
		if obs.UnpricedPolicyTotal != nil {
			obs.UnpricedPolicyTotal.Inc()
		}
	}

	view := SummaryView{
		Plan:          req.Plan,
		PlanLabel:     req.Plan.Label(),
		AllowedCounts: pricing.AllowedCounts(doc.Policies, req.PolicyIDs),
		PerPolicy:     totals.PerPolicy,
		GrandTotal:    totals.GrandTotal,
	}
	if s.Epay != nil {
		names := make([]string, 0, len(totals.PerPolicy))
		for _, row := range totals.PerPolicy {
			names = append(names, row.PolicyName)
		}
		comments := epay.AcceptComments(doc.Client.Name, names, req.Plan, totals.GrandTotal, id)
		view.EpayURL = s.Epay.PrefillURL(totals.GrandTotal, comments)
	}
	return view, nil
}

// DecisionRequest is an accept or decline submission.
type DecisionRequest struct {
	Decision  string       `json:"decision"`
	Plan      pricing.Plan `json:"plan"`
	PolicyIDs []string     `json:"policyIds,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	Comments  string       `json:"comments,omitempty"`
}

// DecisionResult acknowledges a relayed decision.
type DecisionResult struct {
	QuoteID  string `json:"quoteId"`
	Decision string `json:"decision"`
	EpayURL  string `json:"epayUrl,omitempty"`
}

// Decision relays an accept/decline to the automation webhook. Delivery is
// single-attempt and asynchronous; this call succeeds once the event is
// persisted and queued.
func (s *Service) Decision(ctx context.Context, id string, req DecisionRequest) (DecisionResult, error) {
	decision := strings.ToLower(strings.TrimSpace(req.Decision))
	if decision != "accept" && decision != "decline" {
		return DecisionResult{}, common.ErrInvalid("decision must be accept or decline", nil)
	}
	doc, err := s.Load(ctx, id)
	if err != nil {
		return DecisionResult{}, err
	}

	payload := map[string]any{
		"quoteId":    id,
		"decision":   decision,
		"clientName": doc.Client.Name,
		"agentEmail": doc.Agent.Email,
	}
	result := DecisionResult{QuoteID: id, Decision: decision}
	switch decision {
	case "accept":
		if len(req.PolicyIDs) == 0 {
			return DecisionResult{}, common.ErrInvalid("policyIds must not be empty for accept", nil)
		}
		view, err := s.Summary(ctx, id, SummaryRequest{Plan: req.Plan, PolicyIDs: req.PolicyIDs})
		if err != nil {
			return DecisionResult{}, err
		}
		payload["plan"] = view.PlanLabel
		payload["policies"] = view.PerPolicy
		payload["grandTotal"] = view.GrandTotal
		payload["epayUrl"] = view.EpayURL
		result.EpayURL = view.EpayURL
	case "decline":
		payload["reason"] = strings.TrimSpace(req.Reason)
		payload["comments"] = strings.TrimSpace(req.Comments)
	}

	if s.Bus == nil {
		return DecisionResult{}, common.ErrInternal(errors.New("event bus not configured"))
	}
	if _, err := s.Bus.Emit(ctx, events.TopicDecisionSubmitted, id, payload, doc.WebhookURL); err != nil {
		// The event row may exist while queueing failed; the contract is
		// fire-and-forget, so report success and leave a trace in the log.
		s.Log.Warn().Err(err).Str("quote_id", id).Msg("quote: decision relay scheduling failed")
	}
	return result, nil
}

// List returns the agent-facing quote index.
func (s *Service) List(ctx context.Context, limit, offset int) ([]ListItem, int, error) {
	return s.Store.List(ctx, limit, offset)
}

func countLoad(source, result string) {
	if obs.QuoteLoadsTotal != nil {
		obs.QuoteLoadsTotal.WithLabelValues(source, result).Inc()
	}
}
