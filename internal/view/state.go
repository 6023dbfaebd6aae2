// Package view models the presentation page's state as an explicit,
// serializable value updated through a pure reducer. Nothing here touches
// I/O; handlers hold a State per request and apply actions to it.
package view

import (
	"slices"

	"github.com/tradeguard/backend-quotes/internal/pricing"
)

// Section identifies the active page section.
type Section string

const (
	SectionOverview   Section = "overview"
	SectionPolicies   Section = "policies"
	SectionComparison Section = "comparison"
	SectionDecision   Section = "decision"
)

// State is the full view state. The zero value is a fresh page: overview
// section, nothing selected, full-pay plan.
type State struct {
	Section       Section      `json:"section,omitempty"`
	SelectedIDs   []string     `json:"selectedIds,omitempty"`
	Plan          pricing.Plan `json:"plan"`
	DeclineReason string       `json:"declineReason,omitempty"`
	Comments      string       `json:"comments,omitempty"`
}

// Action mutates a State through Apply.
type Action interface {
	apply(s State, policies []pricing.Policy) State
}

// SetSection switches the active section.
type SetSection struct{ Section Section }

// TogglePolicy adds or removes one policy from the selection.
type TogglePolicy struct{ PolicyID string }

// SetPlan chooses the payment plan.
type SetPlan struct{ Plan pricing.Plan }

// SetDeclineReason records the decline reason choice.
type SetDeclineReason struct{ Reason string }

// SetComments records free-form decision comments.
type SetComments struct{ Comments string }

// Apply returns the state after the action. Policies are consulted to keep
// the chosen plan consistent with the selection: whenever the selection
// changes, an installment plan whose count is no longer offered by every
// selected policy falls back to full pay.
func Apply(s State, a Action, policies []pricing.Policy) State {
	return a.apply(s, policies)
}

func (a SetSection) apply(s State, _ []pricing.Policy) State {
	s.Section = a.Section
	return s
}

func (a TogglePolicy) apply(s State, policies []pricing.Policy) State {
	if i := slices.Index(s.SelectedIDs, a.PolicyID); i >= 0 {
		s.SelectedIDs = slices.Delete(slices.Clone(s.SelectedIDs), i, i+1)
	} else {
		s.SelectedIDs = append(slices.Clone(s.SelectedIDs), a.PolicyID)
	}
	s.Plan = revalidate(s.Plan, policies, s.SelectedIDs)
	return s
}

func (a SetPlan) apply(s State, policies []pricing.Policy) State {
	s.Plan = revalidate(a.Plan, policies, s.SelectedIDs)
	return s
}

func (a SetDeclineReason) apply(s State, _ []pricing.Policy) State {
	s.DeclineReason = a.Reason
	return s
}

func (a SetComments) apply(s State, _ []pricing.Policy) State {
	s.Comments = a.Comments
	return s
}

func revalidate(plan pricing.Plan, policies []pricing.Policy, selectedIDs []string) pricing.Plan {
	if plan.IsFull() {
		return plan
	}
	if slices.Contains(pricing.AllowedCounts(policies, selectedIDs), plan.Count()) {
		return plan
	}
	return pricing.FullPayPlan()
}
