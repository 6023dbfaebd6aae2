// Package epay builds prefilled ePayPolicy hosted payment page URLs.
package epay

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/tradeguard/backend-quotes/internal/pricing"
)

const DefaultBaseURL = "https://gmpeters.epaypolicy.com"

// Builder renders prefill URLs against a configured ePayPolicy portal.
type Builder struct {
	baseURL string
}

func NewBuilder(baseURL string) *Builder {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Builder{baseURL: strings.TrimRight(baseURL, "/")}
}

// PrefillURL returns the portal URL with amount and comments prefilled. The
// portal reads both from the query string; newlines in comments survive as
// %0A and render as separate note lines.
func (b *Builder) PrefillURL(amount float64, comments string) string {
	params := url.Values{}
	params.Set("amount", FormatUSD(amount))
	params.Set("comments", comments)
	return b.baseURL + "?" + params.Encode()
}

// FormatUSD renders an amount with exactly two decimal places and no
// thousands grouping, the format the portal expects in the amount parameter.
func FormatUSD(n float64) string {
	return strconv.FormatFloat(n, 'f', 2, 64)
}

// AcceptComments renders the payment note attached to an accepted quote. The
// line layout is fixed; back-office reconciliation parses these notes.
func AcceptComments(clientName string, policyNames []string, plan pricing.Plan, grandTotal float64, quoteID string) string {
	lines := []string{
		"TradeGuard Payment",
		"Client Name: " + clientName,
		"Decision: accept",
		"Selected Policies: " + strings.Join(policyNames, ", "),
		"Payment Plan: " + plan.Label(),
		"Total Due: " + FormatUSD(grandTotal),
		"Quote ID: " + quoteID,
	}
	return strings.Join(lines, "\n")
}
