package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for the routing engine.
var (
	DNSEventsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_dns_events_total",
			Help: "Total number of DNS resolution events read from the log",
		},
	)
	DNSEventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_dns_events_dropped_total",
			Help: "Events dropped because the watcher buffer overflowed",
		},
	)
	DNSLogMalformedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_dns_log_malformed_lines_total",
			Help: "Log lines skipped because they could not be parsed",
		},
	)
	MatchedEvents = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_matched_events_total",
			Help: "DNS events that matched at least one service policy",
		},
	)
	Reconciliations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dnsvpn_reconciliations_total",
			Help: "Reconciliation attempts per service and outcome",
		},
		[]string{"service", "outcome"},
	)
	RoutesAdded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_routes_added_total",
			Help: "Static routes added on the router",
		},
	)
	RoutesRemoved = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dnsvpn_routes_removed_total",
			Help: "Static routes removed from the router",
		},
	)
	AccumulatedIPs = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "dnsvpn_accumulated_ips",
			Help: "Accumulated destination addresses per service",
		},
		[]string{"service"},
	)
)

// Register registers all engine metrics with the default registry.
// Called once from app wiring.
func Register() {
	prometheus.MustRegister(
		DNSEventsTotal,
		DNSEventsDropped,
		DNSLogMalformedLines,
		MatchedEvents,
		Reconciliations,
		RoutesAdded,
		RoutesRemoved,
		AccumulatedIPs,
	)
}
