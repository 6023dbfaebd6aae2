// Package quote persists and serves insurance quote documents.
package quote

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/tradeguard/backend-quotes/internal/pricing"
)

// Document is the root quote entity. It is read-only after load: derived
// aggregates are recomputed per request, never written back.
type Document struct {
	Client           Client              `json:"client"`
	Agent            Agent               `json:"agent"`
	Branding         Branding            `json:"branding,omitzero"`
	Policies         []pricing.Policy    `json:"policies"`
	ComparisonMatrix []pricing.MatrixRow `json:"comparisonMatrix,omitempty"`
	Summaries        *Summaries          `json:"summaries,omitempty"`
	QuoteNumber      string              `json:"quoteNumber,omitempty"`
	// WebhookURL overrides the default automation webhook for events about
	// this quote.
	WebhookURL string `json:"webhookUrl,omitempty"`
}

// Client is the insured party.
type Client struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Agent is the producing agent presented alongside the quote.
type Agent struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Company string `json:"company,omitempty"`
}

// Branding customises the presentation page.
type Branding struct {
	PrimaryColor string `json:"primaryColor,omitempty"`
	LogoURL      string `json:"logoUrl,omitempty"`
}

// Summaries holds optional strength/consideration bullet lists.
type Summaries struct {
	Strengths      []string `json:"coverageStrengths,omitempty"`
	Considerations []string `json:"considerations,omitempty"`
}

// Validate checks the invariants a stored document must satisfy.
func (d *Document) Validate() error {
	if strings.TrimSpace(d.Client.Name) == "" {
		return errors.New("client.name is required")
	}
	if len(d.Policies) == 0 {
		return errors.New("at least one policy is required")
	}
	seen := make(map[string]struct{}, len(d.Policies))
	for i, p := range d.Policies {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			return fmt.Errorf("policies[%d].id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("duplicate policy id %q", id)
		}
		seen[id] = struct{}{}
	}
	for i, row := range d.ComparisonMatrix {
		if len(row.Policies) != 0 && len(row.Policies) != len(d.Policies) {
			return fmt.Errorf("comparisonMatrix[%d] has %d cells for %d policies", i, len(row.Policies), len(d.Policies))
		}
	}
	return nil
}

// PolicyByID looks up a policy within the document.
func (d *Document) PolicyByID(id string) (pricing.Policy, bool) {
	for _, p := range d.Policies {
		if p.ID == id {
			return p, true
		}
	}
	return pricing.Policy{}, false
}

var idStrip = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// SanitizeID derives a storage identifier from a quote number: characters
// outside [a-zA-Z0-9_-] are stripped and the result is capped at 40 runes.
func SanitizeID(quoteNumber string) string {
	s := idStrip.ReplaceAllString(strings.TrimSpace(quoteNumber), "")
	if len(s) > 40 {
		s = s[:40]
	}
	return s
}

// NewID returns the sanitized quote number when usable, otherwise a random
// identifier.
func NewID(quoteNumber string) string {
	if s := SanitizeID(quoteNumber); s != "" {
		return s
	}
	return "q-" + uuid.NewString()
}
