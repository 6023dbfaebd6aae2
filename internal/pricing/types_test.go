package pricing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAmountLenientDecode(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{`1234.5`, 1234.5},
		{`"1234.5"`, 1234.5},
		{`" 99 "`, 99},
		{`null`, 0},
		{`"n/a"`, 0},
		{`true`, 0},
		{`{}`, 0},
	}
	for _, tc := range cases {
		var a Amount
		require.NoError(t, a.UnmarshalJSON([]byte(tc.in)), tc.in)
		require.Equal(t, tc.want, a.Float64(), tc.in)
	}
}

func TestCountListDiscardsInvalid(t *testing.T) {
	var c CountList
	require.NoError(t, json.Unmarshal([]byte(`[2, "4", 0, -1, 2.5, null, "x", 10]`), &c))
	require.Equal(t, CountList{2, 4, 10}, c)

	require.NoError(t, json.Unmarshal([]byte(`"not a list"`), &c))
	require.Empty(t, c)
}

func TestPolicyDecode(t *testing.T) {
	raw := `{
		"id": "gl",
		"name": "General Liability",
		"premium": "1200",
		"limits": {"perOccurrence": 1000000, "aggregate": "2M", "total": 2000000},
		"paymentOptions": {
			"fullPay": {"amount": 1150, "discountAmount": 50},
			"installments": {
				"counts": [2, 4, 10],
				"perInstallmentFee": 10,
				"overrides": [{"count": 10, "perInstallmentFee": 8}],
				"downPaymentPercent": 25
			},
			"totalPremium": 1200
		}
	}`
	var p Policy
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	require.Equal(t, 1200.0, p.Premium.Float64())
	require.Equal(t, 2000000.0, p.Limits.Total.Float64())
	require.Contains(t, p.Limits.Values, "aggregate")
	require.Equal(t, []int{2, 4, 10}, []int(p.PaymentOptions.Installments.Counts))
	require.Equal(t, 8.0, ResolveFee(p.PaymentOptions.Installments, 10))
	require.Equal(t, 1150.0, FullPayAmount(p))
}

func TestLimitsRoundTrip(t *testing.T) {
	var l Limits
	require.NoError(t, json.Unmarshal([]byte(`{"total": 500, "note": "Included"}`), &l))
	out, err := json.Marshal(l)
	require.NoError(t, err)
	require.JSONEq(t, `{"total": 500, "note": "Included"}`, string(out))
}
