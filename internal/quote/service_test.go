package quote

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/tradeguard/backend-quotes/internal/common"
	"github.com/tradeguard/backend-quotes/internal/epay"
	"github.com/tradeguard/backend-quotes/internal/events"
)

type fakeStore struct {
	docs       map[string][]byte
	duplicates int
}

func newFakeStore() *fakeStore { return &fakeStore{docs: map[string][]byte{}} }

func (f *fakeStore) Create(_ context.Context, id string, document []byte) error {
	if _, ok := f.docs[id]; ok {
		f.duplicates++
		return ErrDuplicateID
	}
	f.docs[id] = document
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) ([]byte, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, common.ErrNotFound("quote not found")
	}
	return doc, nil
}

func (f *fakeStore) List(context.Context, int, int) ([]ListItem, int, error) {
	return nil, 0, nil
}

type fakeBus struct {
	topics  []string
	targets []string
	last    map[string]any
}

func (f *fakeBus) Emit(_ context.Context, topic, aggregateID string, payload any, targetURL string) (events.Event, error) {
	f.topics = append(f.topics, topic)
	f.targets = append(f.targets, targetURL)
	data, _ := json.Marshal(payload)
	f.last = map[string]any{}
	_ = json.Unmarshal(data, &f.last)
	return events.Event{ID: "ev", Topic: topic, AggregateID: aggregateID}, nil
}

const testDoc = `{
	"client": {"name": "Acme Trucking LLC", "email": "owner@acme.test"},
	"agent": {"name": "Pat Smith", "email": "pat@tradeguard.test"},
	"quoteNumber": "Q-2025/00 42!",
	"webhookUrl": "https://hook.make.test/abc",
	"policies": [
		{"id": "a", "name": "General Liability", "premium": 1200,
		 "limits": {"total": 2000000},
		 "paymentOptions": {"installments": {"counts": [4, 10], "perInstallmentFee": 10}}},
		{"id": "b", "name": "Cyber", "premium": 800,
		 "limits": {"total": 2000000},
		 "paymentOptions": {"installments": {"counts": [10], "perInstallmentFee": 15}}}
	],
	"comparisonMatrix": [
		{"coverageArea": "Bodily Injury", "policies": ["$1M", "Not Covered"]},
		{"coverageArea": "Flood", "policies": ["Excluded", "not covered"]}
	],
	"extraVendorField": {"keep": "me"}
}`

func newTestService(store *fakeStore, bus *fakeBus) *Service {
	return &Service{
		Store:    store,
		Bus:      bus,
		Epay:     epay.NewBuilder(""),
		ShareURL: func(id string) string { return "https://quotes.test/api/v1/quotes/" + id },
		Log:      zerolog.Nop(),
	}
}

func TestCreateDerivesSanitizedID(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := newTestService(store, bus)

	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)
	require.Equal(t, "Q-20250042", res.ID)
	require.Equal(t, "https://quotes.test/api/v1/quotes/Q-20250042", res.ShareURL)

	require.Equal(t, []string{events.TopicQuoteCreated}, bus.topics)
	require.Equal(t, []string{"https://hook.make.test/abc"}, bus.targets)
	require.Equal(t, "Acme Trucking LLC", bus.last["clientName"])
}

func TestCreateDuplicateFallsBackToRandomID(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBus{})

	first, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)
	second, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
	require.True(t, strings.HasPrefix(second.ID, "q-"))
	require.Equal(t, 1, store.duplicates)
}

func TestCreateRejectsInvalidDocument(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeBus{})

	_, err := svc.Create(context.Background(), []byte(`{not json`))
	require.True(t, common.IsAppError(err))

	_, err = svc.Create(context.Background(), []byte(`{"client":{"name":""},"policies":[{"id":"a"}]}`))
	require.Error(t, err)

	_, err = svc.Create(context.Background(), []byte(`{"client":{"name":"x"},"policies":[{"id":"a"},{"id":"a"}]}`))
	require.Error(t, err, "duplicate policy ids must be rejected")
}

func TestRawServesStoredBytesVerbatim(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBus{})
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	raw, err := svc.Raw(context.Background(), res.ID)
	require.NoError(t, err)
	require.JSONEq(t, testDoc, string(raw), "unknown fields survive the round trip")
}

func TestLoadMissingIsTerminalNotFound(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeBus{})
	_, err := svc.Load(context.Background(), "nope")
	require.True(t, common.IsAppError(err))
}

func TestLoadMalformedStoredDocumentIsNotFound(t *testing.T) {
	store := newFakeStore()
	store.docs["broken"] = []byte(`{truncated`)
	svc := newTestService(store, &fakeBus{})
	_, err := svc.Load(context.Background(), "broken")
	require.True(t, common.IsAppError(err))
}

func TestMetricsView(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBus{})
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	view, err := svc.Metrics(context.Background(), res.ID)
	require.NoError(t, err)
	require.Equal(t, 2000.0, view.TotalPremium)
	require.Equal(t, 4000000.0, view.TotalProtection)
	require.Equal(t, 0.5, view.CostPerThousand)
	require.Equal(t, "2,000:1", view.ROIRatio)
	require.Equal(t, []string{"Bodily Injury"}, view.CoverageAreas)
}

func TestSummaryEndToEnd(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBus{})
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	var plan SummaryRequest
	require.NoError(t, json.Unmarshal([]byte(`{"plan":10,"policyIds":["a","b"]}`), &plan))

	view, err := svc.Summary(context.Background(), res.ID, plan)
	require.NoError(t, err)
	require.Equal(t, []int{10}, view.AllowedCounts)
	require.Equal(t, "10-Payments", view.PlanLabel)
	require.Equal(t, 2250.0, view.GrandTotal)
	require.Len(t, view.PerPolicy, 2)
	require.Equal(t, 1300.0, view.PerPolicy[0].TotalPaid)
	require.Equal(t, 950.0, view.PerPolicy[1].TotalPaid)

	u, err := url.Parse(view.EpayURL)
	require.NoError(t, err)
	require.Equal(t, "2250.00", u.Query().Get("amount"))
	comments := u.Query().Get("comments")
	require.Contains(t, comments, "TradeGuard Payment")
	require.Contains(t, comments, "Client Name: Acme Trucking LLC")
	require.Contains(t, comments, "Payment Plan: 10-Payments")
	require.Contains(t, comments, "Total Due: 2250.00")
	require.Contains(t, comments, "Quote ID: "+res.ID)
}

func TestSummaryRejectsUnknownPolicy(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, &fakeBus{})
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	_, err = svc.Summary(context.Background(), res.ID, SummaryRequest{PolicyIDs: []string{"ghost"}})
	require.True(t, common.IsAppError(err))
}

func TestDecisionDeclineRelaysReason(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := newTestService(store, bus)
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	result, err := svc.Decision(context.Background(), res.ID, DecisionRequest{
		Decision: "decline",
		Reason:   "price",
		Comments: "over budget",
	})
	require.NoError(t, err)
	require.Equal(t, "decline", result.Decision)
	require.Empty(t, result.EpayURL)

	require.Equal(t, events.TopicDecisionSubmitted, bus.topics[len(bus.topics)-1])
	require.Equal(t, "https://hook.make.test/abc", bus.targets[len(bus.targets)-1])
	require.Equal(t, "price", bus.last["reason"])
	require.Equal(t, "over budget", bus.last["comments"])
}

func TestDecisionAcceptCarriesTotalsAndEpayURL(t *testing.T) {
	store := newFakeStore()
	bus := &fakeBus{}
	svc := newTestService(store, bus)
	res, err := svc.Create(context.Background(), []byte(testDoc))
	require.NoError(t, err)

	var req DecisionRequest
	require.NoError(t, json.Unmarshal([]byte(`{"decision":"accept","plan":10,"policyIds":["a","b"]}`), &req))
	result, err := svc.Decision(context.Background(), res.ID, req)
	require.NoError(t, err)
	require.NotEmpty(t, result.EpayURL)
	require.Equal(t, 2250.0, bus.last["grandTotal"])
	require.Equal(t, "10-Payments", bus.last["plan"])
}

func TestDecisionRejectsUnknownVerb(t *testing.T) {
	svc := newTestService(newFakeStore(), &fakeBus{})
	_, err := svc.Decision(context.Background(), "any", DecisionRequest{Decision: "maybe"})
	require.True(t, common.IsAppError(err))
}

func TestSanitizeID(t *testing.T) {
	require.Equal(t, "Q-20250042", SanitizeID(" Q-2025/00 42! "))
	require.Equal(t, "", SanitizeID("!!!"))
	long := strings.Repeat("a", 60)
	require.Len(t, SanitizeID(long), 40)
}
