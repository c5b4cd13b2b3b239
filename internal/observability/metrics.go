package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PackingRunsTotal     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "packing_runs_total", Help: "Total successful packing runs"})
	PackingFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "packing_failures_total", Help: "Packing runs rejected because a package fit no size rule"})
	PackedVehicles       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: "fleet_pricing", Name: "packed_vehicles", Help: "Vehicles needed per packing run", Buckets: []float64{1, 2, 3, 4, 6, 8, 12, 16}})

	PricingCalculationsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "pricing_calculations_total", Help: "Total price breakdowns produced"})
	PricingFailuresTotal     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "pricing_failures_total", Help: "Pricing failures by reason"},
		[]string{"reason"},
	)

	ReservationsTotal         = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "reservations_total", Help: "Reservations created"})
	ReservationConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "reservation_conflicts_total", Help: "Reserve attempts rejected because the slot was held by another order"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "fleet_pricing", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fleet_pricing",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
