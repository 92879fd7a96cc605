package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_calls_total",
		Help: "Total inbound calls received",
	})

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "concierge_calls_active",
		Help: "Calls started and not yet finished",
	})

	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_call_decisions_total",
		Help: "Finished calls by final decision",
	}, []string{"decision"})

	ScreenerDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "concierge_screener_duration_seconds",
		Help:    "Generative engine latency per screening turn",
		Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	ScreenerFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concierge_screener_fallbacks_total",
		Help: "Screening turns answered with the scripted fallback",
	})

	WebhookDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "concierge_webhook_duration_seconds",
		Help:    "End-to-end webhook handling latency",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1.0, 2.0, 5.0},
	}, []string{"endpoint"})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concierge_errors_total",
		Help: "Error counts by stage",
	}, []string{"stage", "error_type"})
)
