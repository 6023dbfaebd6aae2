package pricing

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Amount is a decimal currency value parsed leniently: JSON numbers, numeric
// strings, and null are all accepted; anything unparseable collapses to 0.
type Amount float64

// UnmarshalJSON implements the lenient parsing policy for monetary fields.
func (a *Amount) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*a = 0
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			*a = 0
			return nil
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*a = 0
			return nil
		}
		*a = Amount(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		*a = 0
		return nil
	}
	*a = Amount(v)
	return nil
}

// Float64 returns the amount as a plain float.
func (a Amount) Float64() float64 { return float64(a) }

// CountList is an ordered list of installment counts. Entries that are not
// positive integers are discarded during decoding.
type CountList []int

// UnmarshalJSON accepts numbers or numeric strings and keeps positive values.
func (c *CountList) UnmarshalJSON(data []byte) error {
	var raw []Amount
	if err := json.Unmarshal(data, &raw); err != nil {
		*c = nil
		return nil
	}
	out := make(CountList, 0, len(raw))
	for _, v := range raw {
		n := int(v)
		if n > 0 && float64(n) == v.Float64() {
			out = append(out, n)
		}
	}
	*c = out
	return nil
}

// Policy describes one purchasable coverage line item within a quote.
type Policy struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	Description      string           `json:"description,omitempty"`
	Icon             string           `json:"icon,omitempty"`
	Premium          *Amount          `json:"premium,omitempty"`
	Limits           Limits           `json:"limits,omitempty"`
	Deductibles      map[string]any   `json:"deductibles,omitempty"`
	KeyFeatures      []string         `json:"keyFeatures,omitempty"`
	CoverageExamples CoverageExamples `json:"coverageExamples,omitempty"`
	PaymentOptions   *PaymentOptions  `json:"paymentOptions,omitempty"`
}

// Limits holds the policy limit mapping. Values may be numeric or free-form
// strings; only the "total" aggregate participates in portfolio math.
type Limits struct {
	Total  Amount
	Values map[string]json.RawMessage
}

// UnmarshalJSON extracts the total aggregate while preserving all entries.
func (l *Limits) UnmarshalJSON(data []byte) error {
	var values map[string]json.RawMessage
	if err := json.Unmarshal(data, &values); err != nil {
		*l = Limits{}
		return nil
	}
	l.Values = values
	if raw, ok := values["total"]; ok {
		_ = l.Total.UnmarshalJSON(raw)
	}
	return nil
}

// MarshalJSON re-emits the original limit entries.
func (l Limits) MarshalJSON() ([]byte, error) {
	if l.Values == nil {
		return []byte("null"), nil
	}
	return json.Marshal(l.Values)
}

// CoverageExamples lists example scenarios grouped by coverage outcome.
type CoverageExamples struct {
	Covered    []string `json:"covered,omitempty"`
	NotCovered []string `json:"notCovered,omitempty"`
}

// PaymentOptions captures the payment configuration attached to a policy.
// Pointer fields distinguish "absent" from "zero" so fallback chains resolve
// the way the pricing rules require.
type PaymentOptions struct {
	FullPay      *FullPay      `json:"fullPay,omitempty"`
	Installments *Installments `json:"installments,omitempty"`
	TotalPremium *Amount       `json:"totalPremium,omitempty"`
}

// FullPay describes the pay-in-full option.
type FullPay struct {
	Amount         *Amount `json:"amount,omitempty"`
	DiscountAmount Amount  `json:"discountAmount,omitempty"`
}

// Installments describes the financed payment option.
type Installments struct {
	Counts             CountList     `json:"counts,omitempty"`
	PerInstallmentFee  Amount        `json:"perInstallmentFee,omitempty"`
	Overrides          []FeeOverride `json:"overrides,omitempty"`
	DownPaymentPercent Amount        `json:"downPaymentPercent,omitempty"`
}

// FeeOverride replaces the base per-installment fee for one specific count.
type FeeOverride struct {
	Count             Amount `json:"count"`
	PerInstallmentFee Amount `json:"perInstallmentFee"`
}

// MatrixRow is one coverage-area row of the policy comparison matrix. Cells
// align by position with the document's policy list.
type MatrixRow struct {
	CoverageArea string   `json:"coverageArea"`
	Policies     []string `json:"policies"`
}
