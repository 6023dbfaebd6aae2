package pricing

// BreakdownRow describes the financing schedule of one installment count,
// including down payment and per-payment figures.
type BreakdownRow struct {
	Count              int     `json:"count"`
	PerInstallmentFee  float64 `json:"perInstallmentFee"`
	DownPaymentPercent float64 `json:"downPaymentPercent"`
	DownPayment        float64 `json:"downPayment"`
	PerPayment         float64 `json:"perPayment"`
	PerPaymentWithFee  float64 `json:"perPaymentWithFee"`
	TotalFees          float64 `json:"totalFees"`
	TotalPaid          float64 `json:"totalPaid"`
}

// InstallmentBreakdown expands every supported count of a policy into a
// financing schedule.
//
// Deprecated: informational display only. Totals submitted downstream must
// come from PlanForCount/SelectionTotals, which ignore down payments.
func InstallmentBreakdown(p Policy) []BreakdownRow {
	po := p.PaymentOptions
	if po == nil || po.Installments == nil || len(po.Installments.Counts) == 0 {
		return nil
	}
	inst := po.Installments
	base := firstAmount(po.TotalPremium, p.Premium)
	downPct := inst.DownPaymentPercent.Float64()
	var down float64
	if downPct > 0 {
		down = base * (downPct / 100)
	}
	financed := base - down
	if financed < 0 {
		financed = 0
	}
	rows := make([]BreakdownRow, 0, len(inst.Counts))
	for _, count := range inst.Counts {
		fee := ResolveFee(inst, count)
		perPayment := financed / float64(count)
		rows = append(rows, BreakdownRow{
			Count:              count,
			PerInstallmentFee:  fee,
			DownPaymentPercent: downPct,
			DownPayment:        down,
			PerPayment:         perPayment,
			PerPaymentWithFee:  perPayment + fee,
			TotalFees:          fee * float64(count),
			TotalPaid:          down + (perPayment+fee)*float64(count),
		})
	}
	return rows
}
