package pricing

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// Plan selects either full payment or a fixed installment count.
// The zero value means full pay.
type Plan struct {
	count int
}

// FullPayPlan returns the full-payment plan.
func FullPayPlan() Plan { return Plan{} }

// InstallmentPlan returns a plan with the given payment count.
func InstallmentPlan(count int) Plan { return Plan{count: count} }

// IsFull reports whether the plan is full payment.
func (p Plan) IsFull() bool { return p.count == 0 }

// Count returns the installment count, or 0 for full pay.
func (p Plan) Count() int { return p.count }

// Label renders the user-facing plan label.
func (p Plan) Label() string {
	if p.IsFull() {
		return "Full Pay"
	}
	return fmt.Sprintf("%d-Payments", p.count)
}

// UnmarshalJSON accepts the literal "full" or a positive integer count.
func (p *Plan) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s == "full" {
			*p = Plan{}
			return nil
		}
		return fmt.Errorf("pricing: unknown plan %q", s)
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return errors.New("pricing: plan must be \"full\" or a payment count")
	}
	if n <= 0 {
		return fmt.Errorf("pricing: payment count must be positive, got %d", n)
	}
	*p = Plan{count: n}
	return nil
}

// MarshalJSON emits "full" or the numeric count.
func (p Plan) MarshalJSON() ([]byte, error) {
	if p.IsFull() {
		return json.Marshal("full")
	}
	return json.Marshal(p.count)
}

// ResolveFee returns the per-installment fee applicable to count: the first
// override matching the count wins, otherwise the base fee, otherwise 0.
func ResolveFee(inst *Installments, count int) float64 {
	if inst == nil {
		return 0
	}
	for _, ov := range inst.Overrides {
		if int(ov.Count) == count {
			return ov.PerInstallmentFee.Float64()
		}
	}
	return inst.PerInstallmentFee.Float64()
}

// PlanQuote aggregates the cost of paying one policy over count installments.
type PlanQuote struct {
	Count             int     `json:"count"`
	PerInstallmentFee float64 `json:"perInstallmentFee"`
	TotalFees         float64 `json:"totalFees"`
	TotalPaid         float64 `json:"totalPaid"`
}

// PlanForCount computes the installment quote for a policy. It reports false
// when the policy carries no payment options or no installment configuration;
// count-based plans are undefined for such policies.
func PlanForCount(p Policy, count int) (PlanQuote, bool) {
	po := p.PaymentOptions
	if po == nil || po.Installments == nil {
		return PlanQuote{}, false
	}
	base := firstAmount(po.TotalPremium, p.Premium)
	fee := ResolveFee(po.Installments, count)
	totalFees := fee * float64(count)
	return PlanQuote{
		Count:             count,
		PerInstallmentFee: fee,
		TotalFees:         totalFees,
		TotalPaid:         base + totalFees,
	}, true
}

// FullPayAmount resolves the pay-in-full amount for a policy. Resolution
// order: fullPay.amount, then premium, then totalPremium, then 0. The first
// present value wins; later fallbacks are never combined with earlier ones.
func FullPayAmount(p Policy) float64 {
	if po := p.PaymentOptions; po != nil {
		if po.FullPay != nil && po.FullPay.Amount != nil {
			return po.FullPay.Amount.Float64()
		}
		return firstAmount(p.Premium, po.TotalPremium)
	}
	return firstAmount(p.Premium)
}

// CountsForPolicy returns the installment counts a policy supports.
func CountsForPolicy(p Policy) []int {
	if p.PaymentOptions == nil || p.PaymentOptions.Installments == nil {
		return nil
	}
	return p.PaymentOptions.Installments.Counts
}

// AllowedCounts intersects the installment counts of every selected policy
// and returns them in ascending order. An installment plan is offered only
// when every selected policy supports that exact count, so a selected policy
// without counts collapses the result to empty. An empty selection yields an
// empty result.
func AllowedCounts(policies []Policy, selectedIDs []string) []int {
	selected := selectPolicies(policies, selectedIDs)
	if len(selected) == 0 {
		return nil
	}
	set := map[int]struct{}{}
	for _, c := range CountsForPolicy(selected[0]) {
		set[c] = struct{}{}
	}
	for _, p := range selected[1:] {
		next := map[int]struct{}{}
		for _, c := range CountsForPolicy(p) {
			if _, ok := set[c]; ok {
				next[c] = struct{}{}
			}
		}
		set = next
	}
	out := make([]int, 0, len(set))
	for c := range set {
		out = append(out, c)
	}
	sort.Ints(out)
	return out
}

// SelectionRow is one policy's contribution to the selection totals.
type SelectionRow struct {
	PolicyID   string  `json:"policyId"`
	PolicyName string  `json:"policyName"`
	Type       string  `json:"type"`
	Amount     float64 `json:"amount,omitempty"`
	Count      int     `json:"count,omitempty"`
	TotalFees  float64 `json:"totalFees"`
	TotalPaid  float64 `json:"totalPaid"`
	// Unpriced flags a policy selected under an installment plan it does not
	// support. Such rows contribute zero to the grand total; callers should
	// surface the anomaly.
	Unpriced bool `json:"unpriced,omitempty"`
}

// Totals summarises the selection for a single plan.
type Totals struct {
	PerPolicy  []SelectionRow `json:"perPolicy"`
	GrandTotal float64        `json:"grandTotal"`
}

// SelectionTotals computes per-policy rows and the grand total for the
// selected policies under one plan. The same plan applies uniformly to every
// selected policy; full-pay rows carry Amount, installment rows carry
// TotalFees/TotalPaid.
func SelectionTotals(plan Plan, policies []Policy, selectedIDs []string) Totals {
	selected := selectPolicies(policies, selectedIDs)
	rows := make([]SelectionRow, 0, len(selected))
	var grand float64
	for _, p := range selected {
		if plan.IsFull() {
			amount := FullPayAmount(p)
			rows = append(rows, SelectionRow{
				PolicyID:   p.ID,
				PolicyName: p.Name,
				Type:       "full",
				Amount:     amount,
			})
			grand += amount
			continue
		}
		row := SelectionRow{
			PolicyID:   p.ID,
			PolicyName: p.Name,
			Type:       "installments",
			Count:      plan.Count(),
		}
		if q, ok := PlanForCount(p, plan.Count()); ok {
			row.TotalFees = q.TotalFees
			row.TotalPaid = q.TotalPaid
			grand += q.TotalPaid
		} else {
			row.Unpriced = true
		}
		rows = append(rows, row)
	}
	return Totals{PerPolicy: rows, GrandTotal: grand}
}

// UnpricedPolicies lists the names of rows flagged as unpriced.
func (t Totals) UnpricedPolicies() []string {
	var names []string
	for _, row := range t.PerPolicy {
		if row.Unpriced {
			names = append(names, row.PolicyName)
		}
	}
	return names
}

func selectPolicies(policies []Policy, selectedIDs []string) []Policy {
	if len(selectedIDs) == 0 {
		return nil
	}
	wanted := make(map[string]struct{}, len(selectedIDs))
	for _, id := range selectedIDs {
		wanted[id] = struct{}{}
	}
	out := make([]Policy, 0, len(selectedIDs))
	for _, p := range policies {
		if _, ok := wanted[p.ID]; ok {
			out = append(out, p)
		}
	}
	return out
}

func firstAmount(candidates ...*Amount) float64 {
	for _, c := range candidates {
		if c != nil {
			return c.Float64()
		}
	}
	return 0
}
