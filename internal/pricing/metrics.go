package pricing

import (
	"math"
	"strconv"
)

// PortfolioMetrics are scalar derivations over the full policy list. They do
// not depend on the user's selection and are recomputed per document load.
type PortfolioMetrics struct {
	TotalPremium    float64 `json:"totalPremium"`
	TotalProtection float64 `json:"totalProtection"`
	CostPerThousand float64 `json:"costPerThousand"`
	CostPerDay      float64 `json:"costPerDay"`
	ROIRatio        string  `json:"roiRatio"`
}

// Metrics computes portfolio-level aggregates. Non-numeric premiums and limit
// totals have already been coerced to 0 by the lenient Amount decoder.
func Metrics(policies []Policy) PortfolioMetrics {
	var premium, protection float64
	for _, p := range policies {
		premium += firstAmount(p.Premium)
		protection += p.Limits.Total.Float64()
	}
	m := PortfolioMetrics{
		TotalPremium:    premium,
		TotalProtection: protection,
		ROIRatio:        "—",
	}
	if protection > 0 {
		m.CostPerThousand = premium / (protection / 1000)
	}
	if premium > 0 {
		m.CostPerDay = premium / 365
		m.ROIRatio = groupThousands(int64(math.Round(protection/premium))) + ":1"
	}
	return m
}

// groupThousands renders n with comma separators, e.g. 40000 -> "40,000".
func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)
	neg := false
	if len(s) > 0 && s[0] == '-' {
		neg = true
		s = s[1:]
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	if neg {
		return "-" + s
	}
	return s
}
