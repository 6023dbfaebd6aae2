package obs

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// QuotesCreatedTotal counts persisted quote documents.
	QuotesCreatedTotal prometheus.Counter
	// QuoteLoadsTotal counts document load outcomes by source.
	QuoteLoadsTotal *prometheus.CounterVec
	// CheckoutSessionsTotal counts payment session creation outcomes.
	CheckoutSessionsTotal *prometheus.CounterVec
	// PaymentWebhookTotal counts inbound payment webhook processing outcomes.
	PaymentWebhookTotal *prometheus.CounterVec
	// RelayDeliveriesTotal counts automation webhook relay outcomes.
	RelayDeliveriesTotal *prometheus.CounterVec
	// RelayAttemptLatency records relay delivery latency in milliseconds.
	RelayAttemptLatency *prometheus.HistogramVec
	// UnpricedPolicyTotal counts selections where a policy had no plan for the
	// requested installment count and contributed zero to the grand total.
	UnpricedPolicyTotal prometheus.Counter
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		QuotesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quotes_created_total",
			Help:      "Count of quote documents persisted.",
		})
		QuoteLoadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_loads_total",
			Help:      "Count of quote document loads by source and result.",
		}, []string{"source", "result"})
		CheckoutSessionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_sessions_total",
			Help:      "Count of payment session creation outcomes.",
		}, []string{"provider", "result"})
		PaymentWebhookTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_webhook_total",
			Help:      "Count of processed payment webhooks by outcome.",
		}, []string{"provider", "result"})
		RelayDeliveriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_deliveries_total",
			Help:      "Count of automation webhook relay outcomes.",
		}, []string{"result"})
		RelayAttemptLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "relay_attempt_duration_ms",
			Help:      "Latency for automation webhook relay attempts in milliseconds.",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}, []string{"result"})
		UnpricedPolicyTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unpriced_policy_total",
			Help:      "Count of selected policies without a plan for the requested installment count.",
		})

		mustRegisterCollector(reg, QuotesCreatedTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				QuotesCreatedTotal = v
			}
		})
		mustRegisterCollector(reg, QuoteLoadsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				QuoteLoadsTotal = v
			}
		})
		mustRegisterCollector(reg, CheckoutSessionsTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				CheckoutSessionsTotal = v
			}
		})
		mustRegisterCollector(reg, PaymentWebhookTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				PaymentWebhookTotal = v
			}
		})
		mustRegisterCollector(reg, RelayDeliveriesTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.CounterVec); ok {
				RelayDeliveriesTotal = v
			}
		})
		mustRegisterCollector(reg, RelayAttemptLatency, func(existing prometheus.Collector) {
			if v, ok := existing.(*prometheus.HistogramVec); ok {
				RelayAttemptLatency = v
			}
		})
		mustRegisterCollector(reg, UnpricedPolicyTotal, func(existing prometheus.Collector) {
			if v, ok := existing.(prometheus.Counter); ok {
				UnpricedPolicyTotal = v
			}
		})
	})
}

func mustRegisterCollector(reg prometheus.Registerer, collector prometheus.Collector, reuse func(prometheus.Collector)) {
	if err := reg.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if reuse != nil {
				reuse(are.ExistingCollector)
			}
			return
		}
		panic(fmt.Errorf("register domain metric: %w", err))
	}
}
