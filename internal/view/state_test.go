package view

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tradeguard/backend-quotes/internal/pricing"
)

func testPolicies() []pricing.Policy {
	mk := func(id string, counts []int) pricing.Policy {
		return pricing.Policy{
			ID:   id,
			Name: id,
			PaymentOptions: &pricing.PaymentOptions{
				Installments: &pricing.Installments{Counts: counts, PerInstallmentFee: 10},
			},
		}
	}
	return []pricing.Policy{mk("a", []int{2, 4, 10}), mk("b", []int{10}), mk("c", nil)}
}

func TestZeroState(t *testing.T) {
	var s State
	require.True(t, s.Plan.IsFull())
	require.Empty(t, s.SelectedIDs)
}

func TestTogglePolicy(t *testing.T) {
	policies := testPolicies()
	var s State
	s = Apply(s, TogglePolicy{PolicyID: "a"}, policies)
	require.Equal(t, []string{"a"}, s.SelectedIDs)
	s = Apply(s, TogglePolicy{PolicyID: "b"}, policies)
	require.Equal(t, []string{"a", "b"}, s.SelectedIDs)
	s = Apply(s, TogglePolicy{PolicyID: "a"}, policies)
	require.Equal(t, []string{"b"}, s.SelectedIDs)
}

func TestToggleDoesNotAliasPreviousState(t *testing.T) {
	policies := testPolicies()
	var s State
	s = Apply(s, TogglePolicy{PolicyID: "a"}, policies)
	before := Apply(s, TogglePolicy{PolicyID: "b"}, policies)
	_ = Apply(before, TogglePolicy{PolicyID: "b"}, policies)
	require.Equal(t, []string{"a", "b"}, before.SelectedIDs)
}

func TestPlanFallsBackWhenCountNoLongerOffered(t *testing.T) {
	policies := testPolicies()
	var s State
	s = Apply(s, TogglePolicy{PolicyID: "a"}, policies)
	s = Apply(s, SetPlan{Plan: pricing.InstallmentPlan(4)}, policies)
	require.Equal(t, 4, s.Plan.Count())

	// b supports only 10 payments; 4 is no longer in the intersection.
	s = Apply(s, TogglePolicy{PolicyID: "b"}, policies)
	require.True(t, s.Plan.IsFull())
}

func TestPlanSurvivesWhenStillAllowed(t *testing.T) {
	policies := testPolicies()
	var s State
	s = Apply(s, TogglePolicy{PolicyID: "a"}, policies)
	s = Apply(s, SetPlan{Plan: pricing.InstallmentPlan(10)}, policies)
	s = Apply(s, TogglePolicy{PolicyID: "b"}, policies)
	require.Equal(t, 10, s.Plan.Count())
}

func TestSetPlanRejectedCountFallsBack(t *testing.T) {
	policies := testPolicies()
	var s State
	s = Apply(s, TogglePolicy{PolicyID: "c"}, policies)
	s = Apply(s, SetPlan{Plan: pricing.InstallmentPlan(10)}, policies)
	require.True(t, s.Plan.IsFull(), "policy without counts collapses the allowed set")
}

func TestDecisionFields(t *testing.T) {
	var s State
	s = Apply(s, SetSection{Section: SectionDecision}, nil)
	s = Apply(s, SetDeclineReason{Reason: "price"}, nil)
	s = Apply(s, SetComments{Comments: "too expensive"}, nil)
	require.Equal(t, SectionDecision, s.Section)
	require.Equal(t, "price", s.DeclineReason)
	require.Equal(t, "too expensive", s.Comments)
}
