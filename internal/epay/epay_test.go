package epay

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeguard/backend-quotes/internal/pricing"
)

func TestFormatUSD(t *testing.T) {
	require.Equal(t, "1234.50", FormatUSD(1234.5))
	require.Equal(t, "0.00", FormatUSD(0))
	require.Equal(t, "2250.00", FormatUSD(2250))
	require.Equal(t, "10.01", FormatUSD(10.005+0.005))
}

func TestPrefillURL(t *testing.T) {
	b := NewBuilder("")
	raw := b.PrefillURL(1234.5, "line one\nline two")
	require.True(t, strings.HasPrefix(raw, DefaultBaseURL+"?"))
	require.Contains(t, raw, "%0A", "newlines must be percent-encoded")

	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	require.Equal(t, "1234.50", q.Get("amount"))
	require.Equal(t, "line one\nline two", q.Get("comments"))
}

func TestPrefillURLCustomBase(t *testing.T) {
	b := NewBuilder("https://pay.example.com/")
	raw := b.PrefillURL(10, "x")
	require.True(t, strings.HasPrefix(raw, "https://pay.example.com?"))
}

func TestAcceptComments(t *testing.T) {
	got := AcceptComments(
		"Acme Trucking LLC",
		[]string{"General Liability", "Cyber"},
		pricing.InstallmentPlan(10),
		2250,
		"Q-2025-0042",
	)
	want := strings.Join([]string{
		"TradeGuard Payment",
		"Client Name: Acme Trucking LLC",
		"Decision: accept",
		"Selected Policies: General Liability, Cyber",
		"Payment Plan: 10-Payments",
		"Total Due: 2250.00",
		"Quote ID: Q-2025-0042",
	}, "\n")
	require.Equal(t, want, got)
}

func TestAcceptCommentsFullPay(t *testing.T) {
	got := AcceptComments("Jane", []string{"GL"}, pricing.FullPayPlan(), 1950, "q1")
	require.Contains(t, got, "Payment Plan: Full Pay")
	require.Contains(t, got, "Total Due: 1950.00")
}
