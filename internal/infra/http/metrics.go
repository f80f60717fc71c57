package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	resultOK       = "ok"
	resultReplay   = "replay"
	resultDenied   = "denied"
	resultRejected = "rejected"
	resultError    = "error"
)

// Metrics are registered on a registry owned by the server so tests can build several
// servers in one process.
type Metrics struct {
	Registry *prometheus.Registry

	ExchangesTotal   *prometheus.CounterVec
	ForwardTotal     *prometheus.CounterVec
	DeniedTotal      *prometheus.CounterVec
	RateLimitedTotal *prometheus.CounterVec
	ExchangeLatency  prometheus.Histogram
}

func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ExchangesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signet_exchanges_total",
				Help: "Exchange requests by result",
			},
			[]string{"result"},
		),
		ForwardTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signet_forward_total",
				Help: "Forwards by destination host",
			},
			[]string{"host"},
		),
		DeniedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signet_denied_total",
				Help: "Forwards denied by egress policy, by reason",
			},
			[]string{"reason"},
		),
		RateLimitedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "signet_rate_limited_total",
				Help: "Requests rejected by the client quota, by route",
			},
			[]string{"route"},
		),
		ExchangeLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "signet_exchange_latency_seconds",
				Help:    "Duration of exchange requests",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.ExchangesTotal,
		m.ForwardTotal,
		m.DeniedTotal,
		m.RateLimitedTotal,
		m.ExchangeLatency,
	)
	return m
}
